// Package domain reconciles repeated, noisy readings of weather-chart data
// into one canonical dataset and a report of where the readings disagreed.
//
// # Data Source
//
// Each forecast document carries hourly charts of three kinds. An upstream
// recognition service reads every chart several times, independently, and
// each complete pass is one run. A run delivers one 24-entry series per chart
// it managed to read:
//
//	Kind           Section      Measurement           MeasurementType  Units
//	wind           Wind         Wind                  Speed            mph
//	wind           Wind         Wind                  Gust             mph
//	wind           Wind         Wind                  Direction        (text)
//	precipitation  Precip       Precipitation         Rain             mm
//	precipitation  Precip       Precipitation         Snow             cm
//	precipitation  Precip       Precipitation         Type             (text)
//	temperature    Temperature  Temperature           AirTemp_C        degC
//	temperature    Temperature  FreezingLevel         FreezingLevel_m  m
//	temperature    Temperature  WetBulbFreezingLevel  WBFL_m           m
//
// A data point is one hour of one measurement type on one chart, identified
// by [DataPointKey]. A chart is identified by [ChartKey].
//
// # Conventions
//
// Location labels:
//
//	Chart descriptors read as part of the name are stripped:
//	  "Wind - Ben Nevis (1345m)"  →  "Ben Nevis (1345 metres)"
//	Placeholders ("", "unknown", "n/a", "na", "none") mean no location.
//
// Precipitation type:
//
//	"None", "none", "No precip" and "no precip" all mean "No Precip".
//	Other values keep their casing.
//
// Display rounding (see [Quantize]):
//
//	Wind: whole mph
//	Precip: 0.1
//	AirTemp_C: 0.1
//	FreezingLevel_m, WBFL_m: nearest 10 m
//	anything else: 0.01
//
// # Consensus
//
// Runs are validated ([ValidateSeries]), expanded into [RunMap] values and
// merged key by key ([Reconciler.Reconcile]): text wins over numbers and is
// decided by majority, numbers by median. Runs spreading further than the
// field's tolerance ([ToleranceTable]) are reported as disagreements, never
// treated as errors. A second vote settles one location per chart
// ([Harmonize]). Charts with disagreements may be read once more
// ([Reconciler.Repair]) and the fresh series overwrites their rows.
package domain
