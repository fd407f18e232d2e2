// Package validation provides sanitization and filtering for yield opportunities.
package validation

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

// ValidationOptions holds configuration for the validation process
type ValidationOptions struct {
	// MaxAge defines how recent opportunities must be to be considered valid
	MaxAge time.Duration

	// MinTVL defines the minimum TVL in USD required for an opportunity to be valid
	MinTVL float64

	// MaxAPY defines the maximum reasonable APY value in percent
	MaxAPY float64

	// EnableOutlierDetection enables statistical outlier detection
	EnableOutlierDetection bool

	// OutlierIQRMultiplier defines sensitivity for outlier detection (1.5 is standard)
	OutlierIQRMultiplier float64
}

// DefaultValidationOptions returns sensible defaults for validation
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		MaxAge:                 24 * time.Hour,
		MinTVL:                 1000.0,
		MaxAPY:                 1000.0, // percent
		EnableOutlierDetection: true,
		OutlierIQRMultiplier:   1.5,
	}
}

// Sanitize replaces NaN, Inf and negative numeric fields with safe
// defaults instead of dropping the opportunity. Handlers downstream can
// rely on every number being finite.
func Sanitize(ops []model.YieldOpportunity) []model.YieldOpportunity {
	out := make([]model.YieldOpportunity, len(ops))
	for i, op := range ops {
		op.Provider = strings.TrimSpace(op.Provider)
		op.Symbol = strings.TrimSpace(op.Symbol)
		op.APY = numOrZero(op.APY)
		op.APYBase = numOrZero(op.APYBase)
		op.APYReward = numOrZero(op.APYReward)
		op.TVL = numOrZero(op.TVL)
		op.LiquidityUSD = numOrZero(op.LiquidityUSD)
		op.UserBalance = numOrZero(op.UserBalance)
		op.DepositGasUSD = numOrZero(op.DepositGasUSD)
		op.WithdrawGasUSD = numOrZero(op.WithdrawGasUSD)
		if op.CollectedAt.IsZero() {
			op.CollectedAt = time.Now()
		}
		out[i] = op
	}
	return out
}

// FilterInvalid removes opportunities that fail basic validation criteria.
// This is the main entrypoint for the validation package.
func FilterInvalid(ops []model.YieldOpportunity) []model.YieldOpportunity {
	return FilterInvalidWithOptions(ops, DefaultValidationOptions())
}

// FilterInvalidWithOptions removes opportunities with custom validation options.
func FilterInvalidWithOptions(ops []model.YieldOpportunity, opts ValidationOptions) []model.YieldOpportunity {
	// First apply basic filters
	valid := filterBasicCriteria(ops, opts)

	// Then apply statistical filters if enabled
	if opts.EnableOutlierDetection && len(valid) > 3 {
		return filterOutliers(valid, opts.OutlierIQRMultiplier)
	}

	return valid
}

// FilterInvalidConcurrently performs validation in parallel for large datasets.
func FilterInvalidConcurrently(ops []model.YieldOpportunity, opts ValidationOptions) []model.YieldOpportunity {
	if len(ops) < 100 {
		// For small datasets, parallel processing overhead isn't worth it
		return FilterInvalidWithOptions(ops, opts)
	}

	workerCount := 4
	chunkSize := (len(ops) + workerCount - 1) / workerCount
	wg := sync.WaitGroup{}
	resultChan := make(chan []model.YieldOpportunity, workerCount)

	// Process in chunks
	for i := 0; i < workerCount; i++ {
		start := i * chunkSize
		end := (i + 1) * chunkSize
		if end > len(ops) {
			end = len(ops)
		}
		if start >= len(ops) {
			break
		}

		chunk := ops[start:end]
		wg.Add(1)
		go func(chunk []model.YieldOpportunity) {
			defer wg.Done()
			resultChan <- filterBasicCriteria(chunk, opts)
		}(chunk)
	}

	// Wait for all workers to finish
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// Collect results
	var valid []model.YieldOpportunity
	for chunk := range resultChan {
		valid = append(valid, chunk...)
	}

	// Apply outlier detection on the combined result
	if opts.EnableOutlierDetection && len(valid) > 3 {
		return filterOutliers(valid, opts.OutlierIQRMultiplier)
	}

	return valid
}

// filterBasicCriteria applies fundamental validation rules to each opportunity
func filterBasicCriteria(ops []model.YieldOpportunity, opts ValidationOptions) []model.YieldOpportunity {
	valid := make([]model.YieldOpportunity, 0, len(ops))
	for _, op := range ops {
		if isValidOpportunity(op, opts) {
			valid = append(valid, op)
		} else {
			logrus.WithFields(logrus.Fields{
				"provider": op.Provider,
				"symbol":   op.Symbol,
				"apy":      op.APY,
				"tvl":      op.TVL,
			}).Debug("Filtered invalid opportunity")
		}
	}
	return valid
}

// isValidOpportunity checks if a single opportunity meets all validation criteria
func isValidOpportunity(op model.YieldOpportunity, opts ValidationOptions) bool {
	// Check for non-negative APY (negative yields don't make sense)
	if op.APY < 0 {
		return false
	}

	// Check for unreasonably high APY
	if op.APY > opts.MaxAPY {
		return false
	}

	// Check for sufficient TVL (protects against manipulation of low-liquidity pools)
	if op.TVL <= opts.MinTVL {
		return false
	}

	// Check if the opportunity is recent enough
	if time.Since(op.CollectedAt) > opts.MaxAge {
		return false
	}

	// Check for valid identifiers
	if op.Provider == "" || op.Symbol == "" {
		return false
	}

	return true
}

// filterOutliers removes statistical outliers using the IQR method
func filterOutliers(ops []model.YieldOpportunity, iqrMultiplier float64) []model.YieldOpportunity {
	if len(ops) <= 3 {
		return ops // Need at least 4 points for meaningful outlier detection
	}

	// Extract APY values
	apys := make([]float64, len(ops))
	for i, op := range ops {
		apys[i] = op.APY
	}

	// Calculate Q1, Q3, and IQR
	sort.Float64s(apys)
	q1Idx := len(apys) / 4
	q3Idx := len(apys) * 3 / 4
	q1 := apys[q1Idx]
	q3 := apys[q3Idx]
	iqr := q3 - q1

	// Calculate bounds
	lowerBound := q1 - iqrMultiplier*iqr
	upperBound := q3 + iqrMultiplier*iqr

	// If bounds are too strict, adjust them to ensure we don't filter too aggressively
	if upperBound-lowerBound < 0.5 { // Very small range in percent terms
		mean := calculateMean(apys)
		lowerBound = mean * 0.5 // Allow down to 50% of mean
		upperBound = mean * 2.0 // Allow up to 200% of mean
	}

	// Filter outliers
	valid := make([]model.YieldOpportunity, 0, len(ops))
	for _, op := range ops {
		if op.APY >= lowerBound && op.APY <= upperBound {
			valid = append(valid, op)
		} else {
			logrus.WithFields(logrus.Fields{
				"provider": op.Provider,
				"symbol":   op.Symbol,
				"apy":      op.APY,
				"bounds":   []float64{lowerBound, upperBound},
			}).Info("Filtered outlier opportunity")
		}
	}

	// Log summary
	logrus.WithFields(logrus.Fields{
		"total":    len(ops),
		"filtered": len(ops) - len(valid),
		"bounds":   []float64{lowerBound, upperBound},
	}).Debug("Outlier filtering complete")

	return valid
}

// calculateMean computes the arithmetic mean of a slice of float64
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func numOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
