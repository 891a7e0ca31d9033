// Command reconcile recomputes the final dataset and disagreement report
// from the CSVs written by individual extraction runs.
//
// Usage:
//
//	go run ./cmd/reconcile \
//	  --out-csv out/batch_results_recomputed.csv \
//	  --report out/disagreement_report_recomputed.json \
//	  --tolerance-override Wind:Speed=2.5 \
//	  --reread-file out/rereads.jsonl \
//	  out/run1.csv out/run2.csv out/run3.csv
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
