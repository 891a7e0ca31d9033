package rereader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/chart-consensus/internal/domain"
	"github.com/couchcryptid/chart-consensus/internal/observability"
)

// Client implements domain.Rereader against an HTTP re-read service. Each
// request POSTs a domain.RepairRequest as JSON; the service answers with one
// series in the run payload shape, or 404/204 when it cannot read the chart.
type Client struct {
	url        string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a re-read client for the service at url.
func NewClient(url string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Reread requests one fresh reading of the chart named in req.
func (c *Client) Reread(ctx context.Context, req domain.RepairRequest) (domain.Series, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.Series{}, fmt.Errorf("encode repair request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.Series{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	c.metrics.RereaderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Series{}, fmt.Errorf("reread %s page %d: %w", req.Chart.SourceFile, req.Chart.Page, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNoContent:
		return domain.Series{}, domain.ErrNoReread
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Series{}, fmt.Errorf("rereader error: status %d: %s", resp.StatusCode, msg)
	}

	var series domain.Series
	if err := json.NewDecoder(resp.Body).Decode(&series); err != nil {
		return domain.Series{}, fmt.Errorf("decode series: %w", err)
	}

	c.logger.Debug("chart reread",
		"source_file", req.Chart.SourceFile,
		"page", req.Chart.Page,
		"kind", req.Kind,
		"hours", len(series.Hours),
	)
	return series, nil
}
