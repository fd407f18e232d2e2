// Package market runs the pool pipeline: fetch the merged provider
// snapshot, sanitize and validate it, guard it with the circuit
// breaker, track APY history, score every pool and derive the market
// statistics served alongside listings.
package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/arthur-zhuk/yieldsnap/internal/aggregate"
	"github.com/arthur-zhuk/yieldsnap/internal/circuitbreaker"
	"github.com/arthur-zhuk/yieldsnap/internal/model"
	"github.com/arthur-zhuk/yieldsnap/internal/score"
	"github.com/arthur-zhuk/yieldsnap/internal/validation"
)

// ErrNotFound is returned when a pool id is not in the current snapshot
var ErrNotFound = errors.New("pool not found")

// maxHistoryPoints bounds the APY observations kept per pool
const maxHistoryPoints = 30

// Source produces the merged opportunity snapshot. The cached flag
// reports whether the snapshot came from cache rather than a live fetch.
type Source interface {
	Fetch(ctx context.Context) (ops []model.YieldOpportunity, cached bool, err error)
}

// Snapshot is the scored market view handlers serve from
type Snapshot struct {
	Opportunities []model.YieldOpportunity `json:"opportunities"`
	Stats         model.MarketStats        `json:"stats"`

	// Cached is true when the snapshot was served from the fetch cache
	Cached bool `json:"cached"`

	// Degraded is true when the circuit breaker rejected fresh data and
	// the last known-good snapshot is being served instead
	Degraded bool `json:"degraded"`
}

// Service assembles snapshots and tracks per-pool APY history
type Service struct {
	source  Source
	breaker *circuitbreaker.CircuitBreaker

	validationOpts   validation.ValidationOptions
	enableValidation bool

	mu        sync.Mutex
	histories map[string][]float64
}

// New creates the market pipeline. breaker may be nil to disable the
// snapshot guard.
func New(source Source, breaker *circuitbreaker.CircuitBreaker, opts validation.ValidationOptions, enableValidation bool) *Service {
	return &Service{
		source:           source,
		breaker:          breaker,
		validationOpts:   opts,
		enableValidation: enableValidation,
		histories:        make(map[string][]float64),
	}
}

// Snapshot produces the current scored market view
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	ops, cached, err := s.source.Fetch(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch pools: %w", err)
	}

	// Sanitize copies the slice, so everything below owns its data
	ops = validation.Sanitize(ops)
	if s.enableValidation {
		ops = validation.FilterInvalidWithOptions(ops, s.validationOpts)
	}
	if len(ops) == 0 {
		return Snapshot{}, errors.New("no valid opportunities after validation")
	}

	degraded := false
	if s.breaker != nil {
		if err := s.breaker.Check(ops); err != nil {
			lastGood := s.breaker.LastGoodSnapshot()
			if len(lastGood) == 0 {
				return Snapshot{}, fmt.Errorf("market data rejected: %w", err)
			}
			logrus.Warnf("Serving last known-good snapshot: %v", err)
			ops = lastGood
			degraded = true
		}
	}

	if !cached && !degraded {
		s.recordHistories(ops)
	}
	score.Apply(ops, s.historiesCopy())

	return Snapshot{
		Opportunities: ops,
		Stats:         aggregate.Stats(ops),
		Cached:        cached,
		Degraded:      degraded,
	}, nil
}

// Opportunity finds one pool by id in the current snapshot
func (s *Service) Opportunity(ctx context.Context, id string) (model.YieldOpportunity, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return model.YieldOpportunity{}, err
	}
	for _, op := range snapshot.Opportunities {
		if op.ID == id {
			return op, nil
		}
	}
	return model.YieldOpportunity{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Volatility is the stdev of the recorded APY observations for a pool
func (s *Service) Volatility(id string) float64 {
	s.mu.Lock()
	history := append([]float64(nil), s.histories[id]...)
	s.mu.Unlock()
	return score.Volatility(history)
}

// BreakerState reports the circuit breaker state for status endpoints
func (s *Service) BreakerState() string {
	if s.breaker == nil {
		return "disabled"
	}
	return s.breaker.GetState().String()
}

func (s *Service) recordHistories(ops []model.YieldOpportunity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		h := append(s.histories[op.ID], op.APY)
		if len(h) > maxHistoryPoints {
			h = h[len(h)-maxHistoryPoints:]
		}
		s.histories[op.ID] = h
	}
}

func (s *Service) historiesCopy() map[string][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]float64, len(s.histories))
	for id, h := range s.histories {
		out[id] = append([]float64(nil), h...)
	}
	return out
}

// Filter narrows and orders a pool listing. Zero values mean no
// constraint; Sort defaults to quality score descending.
type Filter struct {
	Protocol string
	Chain    string
	Symbol   string
	MinAPY   float64
	MinTVL   float64
	Sort     string
	Limit    int
}

// Apply returns the filtered, sorted, limited view of a snapshot
func (f Filter) Apply(ops []model.YieldOpportunity) []model.YieldOpportunity {
	out := make([]model.YieldOpportunity, 0, len(ops))
	for _, op := range ops {
		if f.Protocol != "" && !strings.EqualFold(op.Protocol, f.Protocol) {
			continue
		}
		if f.Chain != "" && !strings.EqualFold(string(op.Chain), f.Chain) {
			continue
		}
		if f.Symbol != "" && !strings.Contains(strings.ToUpper(op.Symbol), strings.ToUpper(f.Symbol)) {
			continue
		}
		if op.APY < f.MinAPY {
			continue
		}
		if op.TVL < f.MinTVL {
			continue
		}
		out = append(out, op)
	}

	less := func(i, j int) bool { return out[i].QualityScore > out[j].QualityScore }
	switch strings.ToLower(f.Sort) {
	case "apy":
		less = func(i, j int) bool { return out[i].APY > out[j].APY }
	case "tvl":
		less = func(i, j int) bool { return out[i].TVL > out[j].TVL }
	case "risk":
		// ascending: safest first
		less = func(i, j int) bool { return out[i].RiskScore < out[j].RiskScore }
	}
	sort.SliceStable(out, less)

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
