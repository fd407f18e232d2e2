// Package history keeps a rolling series of portfolio valuations.
// A background recorder samples the portfolio summary on an interval,
// retains a bounded in-memory series for the dashboard, and optionally
// ships batches to a webhook endpoint.
package history

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

// Point is one portfolio valuation sample
type Point struct {
	At            time.Time       `json:"at"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
	Positions     int             `json:"positions"`
}

// SummaryFunc produces the summary the recorder samples from
type SummaryFunc func(ctx context.Context) (model.PortfolioSummary, error)

// Config controls sampling cadence, retention and the webhook push
type Config struct {
	// Interval between samples taken by the background loop
	Interval time.Duration

	// MaxPoints bounds the retained series
	MaxPoints int

	// Webhook push is enabled when WebhookURL is non-empty. Batches of
	// BatchSize points are POSTed with an optional Bearer key.
	WebhookURL    string
	WebhookAPIKey string
	BatchSize     int
}

// Recorder samples portfolio valuations in the background
type Recorder struct {
	cfg     Config
	summary SummaryFunc
	client  *http.Client

	mu       sync.RWMutex
	points   []Point
	pending  []Point
	lastPush time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecorder creates a recorder; call Start to begin sampling
func NewRecorder(cfg Config, summary SummaryFunc) *Recorder {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = 288
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}

	return &Recorder{
		cfg:     cfg,
		summary: summary,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

// Start launches the background sampling loop
func (r *Recorder) Start() {
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx)
	logrus.Infof("Portfolio history recorder started (interval %s)", r.cfg.Interval)
}

// Stop halts the loop and flushes any pending webhook batch
func (r *Recorder) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
		r.cancel = nil
	}

	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) > 0 && r.cfg.WebhookURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.push(ctx, batch); err != nil {
			logrus.Errorf("Failed to flush history batch: %v", err)
		}
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sample(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sample records one valuation point now. The background loop calls
// this on every tick; handlers call it after simulation commits so the
// series picks up the jump immediately.
func (r *Recorder) Sample(ctx context.Context) {
	summary, err := r.summary(ctx)
	if err != nil {
		logrus.Warnf("History sample failed: %v", err)
		return
	}

	point := Point{
		At:            time.Now().UTC(),
		TotalInvested: summary.TotalInvested,
		CurrentValue:  summary.CurrentValue,
		TotalEarnings: summary.TotalEarnings,
		Positions:     summary.InvestmentCount,
	}

	r.mu.Lock()
	r.points = append(r.points, point)
	if len(r.points) > r.cfg.MaxPoints {
		r.points = r.points[len(r.points)-r.cfg.MaxPoints:]
	}

	var batch []Point
	if r.cfg.WebhookURL != "" {
		r.pending = append(r.pending, point)
		if len(r.pending) >= r.cfg.BatchSize {
			batch = r.pending
			r.pending = nil
		}
	}
	r.mu.Unlock()

	if len(batch) > 0 {
		if err := r.push(ctx, batch); err != nil {
			logrus.Errorf("Failed to push history batch: %v", err)
		}
	}
}

// Points returns a copy of the retained series, oldest first
func (r *Recorder) Points() []Point {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Point(nil), r.points...)
}

// Status reports recorder state for the status endpoint
func (r *Recorder) Status() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := map[string]interface{}{
		"interval":        r.cfg.Interval.String(),
		"points":          len(r.points),
		"max_points":      r.cfg.MaxPoints,
		"webhook_enabled": r.cfg.WebhookURL != "",
		"pending_push":    len(r.pending),
	}
	if !r.lastPush.IsZero() {
		status["last_push"] = r.lastPush.Format(time.RFC3339)
	}
	return status
}

// push ships one batch to the webhook endpoint
func (r *Recorder) push(ctx context.Context, batch []Point) error {
	payload := struct {
		Points     []Point `json:"points"`
		ExportTime string  `json:"export_time"`
		Count      int     `json:"count"`
	}{
		Points:     batch,
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		Count:      len(batch),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal history batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.WebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.WebhookAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.WebhookAPIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}

	r.mu.Lock()
	r.lastPush = time.Now()
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"count": len(batch),
	}).Debug("Pushed history batch to webhook")

	return nil
}
