// Package score rates yield opportunities: a quality score rewarding
// sustainable APY on deep liquidity, and a risk score penalizing thin
// pools, volatile rates and impermanent loss exposure.
package score

import (
	"math"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

// RiskInput carries everything the risk model looks at for one pool.
type RiskInput struct {
	APY        float64
	TVLUSD     float64
	Stablecoin bool
	ILRisk     string
	APYHistory []float64
}

// Quality blends normalized APY, log-scaled TVL depth and the liquidity
// ratio, minus a penalty for the assessed risk level. Result is 0..100.
func Quality(apyTotal, tvlUSD, liquidityUSD float64, riskLevel string) float64 {
	apyNorm := clamp(apyTotal, 0, 100) / 100
	tvlNorm := clamp(math.Log10(tvlUSD+1)/10, 0, 1)
	liqNorm := 0.0
	if tvlUSD > 0 {
		liqNorm = clamp(liquidityUSD/math.Max(tvlUSD, 1), 0, 1)
	}

	riskPenalty := map[string]float64{
		model.RiskLow:    0.10,
		model.RiskMedium: 0.30,
		model.RiskHigh:   0.60,
		"unknown":        0.45,
	}[strings.ToLower(strings.TrimSpace(riskLevel))]

	scoreRaw := 0.45*apyNorm + 0.30*tvlNorm + 0.20*liqNorm - 0.25*riskPenalty
	return math.Round(clamp(scoreRaw, 0, 1)*100*100) / 100
}

// Risk scores 0..100, higher is riskier. Additive bands: the APY level
// (too good to be true reads as risk), TVL depth, exposure flags and the
// volatility of recent APY observations.
func Risk(in RiskInput) float64 {
	score := apyBand(in.APY) + tvlBand(in.TVLUSD)

	if !in.Stablecoin {
		score += 10
	}
	if strings.EqualFold(strings.TrimSpace(in.ILRisk), "yes") {
		score += 15
	}

	score += clamp(Volatility(in.APYHistory), 0, 10)

	return math.Round(clamp(score, 0, 100)*100) / 100
}

func apyBand(apy float64) float64 {
	switch {
	case apy > 100:
		return 35
	case apy > 50:
		return 28
	case apy > 20:
		return 18
	case apy > 10:
		return 10
	default:
		return 5
	}
}

func tvlBand(tvl float64) float64 {
	switch {
	case tvl < 100_000:
		return 30
	case tvl < 1_000_000:
		return 22
	case tvl < 10_000_000:
		return 12
	case tvl < 100_000_000:
		return 6
	default:
		return 2
	}
}

// Band maps a risk score into the low/medium/high labels.
func Band(riskScore float64) string {
	switch {
	case riskScore < 30:
		return model.RiskLow
	case riskScore < 60:
		return model.RiskMedium
	default:
		return model.RiskHigh
	}
}

// Diversification turns per-protocol allocation shares into a 0..100
// score using the Herfindahl-Hirschman index: score = (1 - HHI) x 100.
// Everything in one protocol scores 0; an even split over n protocols
// scores (1 - 1/n) x 100. An empty allocation scores 0.
func Diversification(allocation map[string]float64) float64 {
	if len(allocation) == 0 {
		return 0
	}
	var hhi float64
	for _, share := range allocation {
		if math.IsNaN(share) || math.IsInf(share, 0) || share < 0 {
			continue
		}
		hhi += share * share
	}
	return math.Round(clamp(1-hhi, 0, 1)*100*100) / 100
}

// Volatility is the sample standard deviation of recent APY
// observations. Fewer than two observations reads as perfectly stable.
func Volatility(history []float64) float64 {
	clean := make([]float64, 0, len(history))
	for _, v := range history {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		clean = append(clean, v)
	}
	if len(clean) < 2 {
		return 0
	}
	stdev, err := stats.StandardDeviationSample(clean)
	if err != nil {
		return 0
	}
	return stdev
}

// Apply decorates each opportunity with its risk and quality scores.
// histories maps opportunity ids to recent APY observations and may be
// nil when no history has accumulated yet.
func Apply(ops []model.YieldOpportunity, histories map[string][]float64) {
	for i := range ops {
		op := &ops[i]
		op.RiskScore = Risk(RiskInput{
			APY:        op.APY,
			TVLUSD:     op.TVL,
			Stablecoin: op.Stablecoin,
			ILRisk:     op.ILRisk,
			APYHistory: histories[op.ID],
		})
		op.RiskLevel = Band(op.RiskScore)
		op.QualityScore = Quality(op.APY, op.TVL, op.LiquidityUSD, op.RiskLevel)
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
