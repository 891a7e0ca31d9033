package rereader

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/chart-consensus/internal/domain"
	"github.com/couchcryptid/chart-consensus/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingRereader struct {
	calls  int
	series domain.Series
	err    error
}

func (m *countingRereader) Reread(context.Context, domain.RepairRequest) (domain.Series, error) {
	m.calls++
	return m.series, m.err
}

func f64(v float64) *float64 { return &v }

func windSeries(speed, gust float64) domain.Series {
	s := domain.Series{Location: "Ben Nevis (1345 metres)"}
	for h := range domain.HoursPerSeries {
		s.Hours = append(s.Hours, domain.Hour{
			HourIndex:     h,
			WindSpeedMph:  f64(speed),
			WindGustMph:   f64(gust),
			WindDirection: "SW",
		})
	}
	return s
}

func windRequest(page int) domain.RepairRequest {
	return domain.RepairRequest{
		Chart: domain.ChartKey{SourceFile: "forecast.pdf", Page: page, Section: domain.SectionWind},
		Kind:  domain.KindWind,
	}
}

// --- CachedRereader tests ---

func TestCachedRereader_CacheHit(t *testing.T) {
	inner := &countingRereader{series: windSeries(12, 17)}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedRereader(inner, 10, metrics)

	s1, err := cached.Reread(context.Background(), windRequest(2))
	require.NoError(t, err)
	s2, err := cached.Reread(context.Background(), windRequest(2))
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RereaderCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RereaderCache.WithLabelValues("miss")))
}

func TestCachedRereader_DifferentChartsMiss(t *testing.T) {
	inner := &countingRereader{series: windSeries(12, 17)}
	cached := NewCachedRereader(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.Reread(context.Background(), windRequest(2))
	_, _ = cached.Reread(context.Background(), windRequest(3))

	assert.Equal(t, 2, inner.calls)
}

func TestCachedRereader_DoesNotCacheFailures(t *testing.T) {
	tests := []struct {
		name   string
		series domain.Series
		err    error
	}{
		{"error", domain.Series{}, errors.New("timeout")},
		{"unavailable", domain.Series{}, domain.ErrNoReread},
		{"all zero", windSeries(0, 0), nil},
		{"empty", domain.Series{Location: "Ben Nevis"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &countingRereader{series: tt.series, err: tt.err}
			cached := NewCachedRereader(inner, 10, observability.NewMetricsForTesting())

			_, _ = cached.Reread(context.Background(), windRequest(2))
			_, _ = cached.Reread(context.Background(), windRequest(2))

			assert.Equal(t, 2, inner.calls)
			assert.Zero(t, cached.cache.size())
		})
	}
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put("a", domain.Series{Location: "A"})
	c.put("b", domain.Series{Location: "B"})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result.Location)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Series{Location: "A"})
	c.put("b", domain.Series{Location: "B"})
	c.put("c", domain.Series{Location: "C"}) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", result.Location)
	assert.Equal(t, 2, c.size())
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Series{Location: "A"})
	c.put("b", domain.Series{Location: "B"})

	c.get("a")
	c.put("c", domain.Series{Location: "C"})

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Series{Location: "A1"})
	c.put("a", domain.Series{Location: "A2"})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result.Location)
	assert.Equal(t, 1, c.size())
}
