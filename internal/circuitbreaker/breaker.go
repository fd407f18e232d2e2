// Package circuitbreaker guards the market snapshot against extreme
// or erroneous provider data. A tripped breaker rejects fresh snapshots
// and hands callers the last known-good one until it recovers.
package circuitbreaker

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, no new operations allowed
	StateHalfOpen              // Testing if system has recovered
)

// String returns the state label used in status reporting
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Thresholds defines the limits that will trigger the circuit breaker
type Thresholds struct {
	// Maximum allowed APY value in percent (e.g., 1000.0 for 1000%)
	MaxAPY float64 `json:"max_apy"`

	// Maximum allowed change in aggregate TVL between consecutive checks (e.g., 0.5 for 50%)
	MaxTVLChange float64 `json:"max_tvl_change"`

	// Minimum number of distinct providers required for a valid snapshot
	MinProviders int `json:"min_providers"`

	// Maximum standard deviation for APY values as multiple of mean
	MaxStdDevMultiple float64 `json:"max_std_dev_multiple,omitempty"`
}

// snapshotSummary is the compact per-check record kept for TVL comparisons
type snapshotSummary struct {
	totalTVL    float64
	weightedAPY float64
	at          time.Time
}

// CircuitBreaker guards the pool pipeline against abnormal market data.
// While open it refuses fresh snapshots and callers fall back to the
// last known-good one.
type CircuitBreaker struct {
	// Configuration thresholds for triggering the circuit breaker
	thresholds Thresholds

	// Current state of the circuit breaker (Closed, Open, HalfOpen)
	state State

	// Timestamp of the last circuit trip
	lastTrip time.Time

	// Duration before auto-reset attempt
	resetDelay time.Duration

	// Mutex for thread safety
	mu sync.RWMutex

	// Compact history of accepted snapshots used for TVL comparison
	history []snapshotSummary

	// Full copy of the last snapshot that passed all checks
	lastGood []model.YieldOpportunity

	// Count of consecutive successful operations in HalfOpen state
	successCount int

	// Number of successful operations required to close circuit
	successThreshold int

	// Event callback for monitoring/alerting
	onTripCallback func(reason string, ops []model.YieldOpportunity)
}

// New creates a new CircuitBreaker with the provided thresholds
func New(t Thresholds) *CircuitBreaker {
	return &CircuitBreaker{
		thresholds:       t,
		state:            StateClosed,
		resetDelay:       5 * time.Minute,
		successThreshold: 3,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of successful operations needed to close the circuit
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	cb.successThreshold = threshold
	return cb
}

// WithTripCallback sets a callback function that is called when the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(reason string, ops []model.YieldOpportunity)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// Check evaluates a fresh snapshot against the thresholds and determines if it should be served.
// If the circuit is open, it blocks operations and returns an error.
// If the snapshot violates thresholds, it trips the circuit and returns an error.
func (cb *CircuitBreaker) Check(ops []model.YieldOpportunity) error {
	// Acquire a read lock initially to check state
	cb.mu.RLock()
	state := cb.state
	lastTripTime := cb.lastTrip
	cb.mu.RUnlock()

	// If circuit is open, check if it's time for a reset attempt
	if state == StateOpen {
		if time.Since(lastTripTime) > cb.resetDelay {
			cb.transitionToHalfOpen()
		} else {
			return errors.New("circuit breaker open: system protection engaged")
		}
	}

	// Now get a write lock for the actual check and potential state modification
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// Early exit for empty snapshots
	if len(ops) == 0 {
		return errors.New("no opportunities provided to circuit breaker")
	}

	// Check if we have enough distinct providers
	providers := distinctProviders(ops)
	if providers < cb.thresholds.MinProviders {
		reason := fmt.Sprintf("insufficient provider count: got %d, need %d",
			providers, cb.thresholds.MinProviders)
		cb.trip(reason, ops)
		return errors.New(reason)
	}

	// Check each opportunity for APY threshold violation
	for _, op := range ops {
		if op.APY > cb.thresholds.MaxAPY {
			reason := fmt.Sprintf("APY exceeds maximum threshold: %f > %f",
				op.APY, cb.thresholds.MaxAPY)
			cb.trip(reason, ops)
			return errors.New(reason)
		}
	}

	// Check for drastic TVL changes if we have history
	currentTVL := totalTVL(ops)
	if len(cb.history) > 0 {
		lastTVL := cb.history[len(cb.history)-1].totalTVL

		// Only check if we have substantial TVL (avoid division by zero or small number issues)
		if lastTVL > 1.0 {
			changeRatio := math.Abs(currentTVL-lastTVL) / lastTVL
			if changeRatio > cb.thresholds.MaxTVLChange {
				reason := fmt.Sprintf("TVL change too drastic: %.2f%% (threshold: %.2f%%)",
					changeRatio*100, cb.thresholds.MaxTVLChange*100)
				cb.trip(reason, ops)
				return errors.New(reason)
			}
		}
	}

	// Check for excessive spread in APY if threshold is set
	if cb.thresholds.MaxStdDevMultiple > 0 && len(ops) > 1 {
		apys := make([]float64, len(ops))
		for i, op := range ops {
			apys[i] = op.APY
		}
		stdDev, errStd := stats.StandardDeviationSample(apys)
		mean, errMean := stats.Mean(apys)
		if errStd == nil && errMean == nil && mean > 0 && stdDev/mean > cb.thresholds.MaxStdDevMultiple {
			reason := fmt.Sprintf("APY standard deviation too high: %.2f x mean (threshold: %.2f)",
				stdDev/mean, cb.thresholds.MaxStdDevMultiple)
			cb.trip(reason, ops)
			return errors.New(reason)
		}
	}

	// All checks passed, record the snapshot and update state
	logrus.Debug("Circuit breaker checks passed")

	cb.addToHistory(ops, currentTVL)

	// If we're in half-open state, increment success count and check if we can close
	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			logrus.Info("Circuit breaker closed: system has recovered")
		}
	}

	return nil
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forcibly resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.successCount = 0
	logrus.Info("Circuit breaker manually reset to closed state")
}

// LastGoodSnapshot returns a copy of the most recent snapshot that passed all checks
func (cb *CircuitBreaker) LastGoodSnapshot() []model.YieldOpportunity {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if len(cb.lastGood) == 0 {
		return nil
	}

	// Return a copy to prevent external modification
	snapshot := make([]model.YieldOpportunity, len(cb.lastGood))
	copy(snapshot, cb.lastGood)
	return snapshot
}

// transitionToHalfOpen changes the circuit state to half-open for testing recovery
func (cb *CircuitBreaker) transitionToHalfOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		cb.state = StateHalfOpen
		cb.successCount = 0
		logrus.Info("Circuit breaker half-open: testing system recovery")
	}
}

// trip sets the circuit breaker to open state with the current time
func (cb *CircuitBreaker) trip(reason string, ops []model.YieldOpportunity) {
	cb.state = StateOpen
	cb.lastTrip = time.Now()
	logrus.Warnf("Circuit breaker tripped: %s", reason)

	// Call the callback if registered
	if cb.onTripCallback != nil {
		go cb.onTripCallback(reason, ops)
	}
}

// addToHistory records an accepted snapshot, maintaining a bounded summary history
func (cb *CircuitBreaker) addToHistory(ops []model.YieldOpportunity, currentTVL float64) {
	cb.history = append(cb.history, snapshotSummary{
		totalTVL:    currentTVL,
		weightedAPY: weightedAPY(ops),
		at:          time.Now(),
	})

	// Keep history bounded to avoid memory growth
	const maxHistorySize = 100
	if len(cb.history) > maxHistorySize {
		cb.history = cb.history[len(cb.history)-maxHistorySize:]
	}

	cb.lastGood = make([]model.YieldOpportunity, len(ops))
	copy(cb.lastGood, ops)
}

// weightedAPY returns the TVL-weighted average APY of a snapshot
func weightedAPY(ops []model.YieldOpportunity) float64 {
	var totalAPY, tvl float64
	for _, op := range ops {
		totalAPY += op.APY * op.TVL
		tvl += op.TVL
	}

	if tvl > 0 {
		return totalAPY / tvl
	}
	return 0
}

// totalTVL returns the aggregate TVL of a snapshot
func totalTVL(ops []model.YieldOpportunity) float64 {
	var tvl float64
	for _, op := range ops {
		tvl += op.TVL
	}
	return tvl
}

// distinctProviders counts the unique providers present in a snapshot
func distinctProviders(ops []model.YieldOpportunity) int {
	seen := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		if op.Provider != "" {
			seen[op.Provider] = struct{}{}
		}
	}
	return len(seen)
}
