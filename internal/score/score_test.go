package score

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

func TestQualityRange(t *testing.T) {
	s := Quality(20, 1_000_000, 700_000, model.RiskLow)
	assert.Greater(t, s, 0.0)
	assert.LessOrEqual(t, s, 100.0)

	// deep stable pool should outrank a thin risky one at equal APY
	deep := Quality(8, 500_000_000, 400_000_000, model.RiskLow)
	thin := Quality(8, 50_000, 10_000, model.RiskHigh)
	assert.Greater(t, deep, thin)
}

func TestQualityClamps(t *testing.T) {
	assert.Equal(t, 0.0, Quality(0, 0, 0, model.RiskHigh))
	// absurd inputs stay inside 0..100
	s := Quality(100000, 1e18, 1e18, model.RiskLow)
	assert.LessOrEqual(t, s, 100.0)
}

func TestRiskBands(t *testing.T) {
	safe := Risk(RiskInput{APY: 4, TVLUSD: 800_000_000, Stablecoin: true, ILRisk: "no"})
	assert.Less(t, safe, 30.0)
	assert.Equal(t, model.RiskLow, Band(safe))

	risky := Risk(RiskInput{APY: 140, TVLUSD: 40_000, Stablecoin: false, ILRisk: "yes"})
	assert.GreaterOrEqual(t, risky, 60.0)
	assert.Equal(t, model.RiskHigh, Band(risky))

	mid := Risk(RiskInput{APY: 15, TVLUSD: 5_000_000, Stablecoin: false, ILRisk: "no"})
	assert.Equal(t, model.RiskMedium, Band(mid))
}

func TestRiskVolatilityContribution(t *testing.T) {
	base := RiskInput{APY: 4, TVLUSD: 800_000_000, Stablecoin: true, ILRisk: "no"}
	stable := Risk(base)

	base.APYHistory = []float64{2, 12, 3, 14, 1}
	jittery := Risk(base)
	assert.Greater(t, jittery, stable)
}

func TestVolatility(t *testing.T) {
	assert.Equal(t, 0.0, Volatility(nil))
	assert.Equal(t, 0.0, Volatility([]float64{5}))
	assert.Equal(t, 0.0, Volatility([]float64{math.NaN(), math.Inf(1)}))

	v := Volatility([]float64{4, 6})
	assert.InDelta(t, math.Sqrt2, v, 1e-9)
}

func TestDiversification(t *testing.T) {
	assert.Equal(t, 0.0, Diversification(nil))
	assert.Equal(t, 0.0, Diversification(map[string]float64{"aave": 1}))

	// even split over n protocols scores (1 - 1/n) x 100
	even := Diversification(map[string]float64{"aave": 0.25, "compound": 0.25, "curve": 0.25, "lido": 0.25})
	assert.InDelta(t, 75.0, even, 1e-9)

	skewed := Diversification(map[string]float64{"aave": 0.9, "compound": 0.1})
	assert.Less(t, skewed, even)

	// bad shares are skipped, not propagated
	guarded := Diversification(map[string]float64{"aave": math.NaN(), "compound": 1})
	assert.Equal(t, 0.0, guarded)
}

func TestApplyDecoratesOpportunities(t *testing.T) {
	ops := []model.YieldOpportunity{
		{ID: "a", APY: 5, TVL: 200_000_000, LiquidityUSD: 150_000_000, Stablecoin: true, ILRisk: "no"},
		{ID: "b", APY: 95, TVL: 60_000, LiquidityUSD: 20_000, Stablecoin: false, ILRisk: "yes"},
	}
	Apply(ops, map[string][]float64{"b": {60, 95, 130}})

	assert.Equal(t, model.RiskLow, ops[0].RiskLevel)
	assert.Equal(t, model.RiskHigh, ops[1].RiskLevel)
	assert.Greater(t, ops[1].RiskScore, ops[0].RiskScore)
	for _, op := range ops {
		assert.Greater(t, op.QualityScore, 0.0)
		assert.GreaterOrEqual(t, op.RiskScore, 0.0)
		assert.LessOrEqual(t, op.RiskScore, 100.0)
	}
}
