package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-zhuk/yieldsnap/internal/circuitbreaker"
	"github.com/arthur-zhuk/yieldsnap/internal/model"
	"github.com/arthur-zhuk/yieldsnap/internal/validation"
)

type stubSource struct {
	ops    []model.YieldOpportunity
	cached bool
	err    error
	calls  int

	// next overrides ops per call when set, starting at call 1
	next func(call int) []model.YieldOpportunity
}

func (s *stubSource) Fetch(ctx context.Context) ([]model.YieldOpportunity, bool, error) {
	s.calls++
	if s.err != nil {
		return nil, false, s.err
	}
	if s.next != nil {
		return s.next(s.calls), s.cached, nil
	}
	return s.ops, s.cached, nil
}

func marketOp(provider, protocol string, chain model.Chain, symbol string, apy, tvl float64) model.YieldOpportunity {
	op := model.NewOpportunity(provider, protocol, chain, symbol, apy, tvl)
	op.LiquidityUSD = tvl / 10
	return op
}

func testOpts() validation.ValidationOptions {
	return validation.ValidationOptions{
		MaxAge:                 time.Hour,
		MinTVL:                 1000,
		MaxAPY:                 500,
		EnableOutlierDetection: false,
	}
}

func TestSnapshotScoresAndAggregates(t *testing.T) {
	src := &stubSource{ops: []model.YieldOpportunity{
		marketOp("defillama", "aave-v3", model.ChainEthereum, "USDC", 4.2, 250_000_000),
		marketOp("defillama", "gmx-v2", model.ChainArbitrum, "GLP", 19.5, 40_000_000),
	}}
	svc := New(src, nil, testOpts(), true)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Opportunities, 2)
	for _, op := range snap.Opportunities {
		assert.Greater(t, op.QualityScore, 0.0)
		assert.NotEmpty(t, op.RiskLevel)
	}
	assert.Equal(t, 2, snap.Stats.PoolCount)
	assert.Equal(t, 1, snap.Stats.ProviderCount)
	assert.InDelta(t, 290_000_000, snap.Stats.TotalTVL, 1)
	assert.False(t, snap.Cached)
	assert.False(t, snap.Degraded)
}

func TestSnapshotDropsInvalidPools(t *testing.T) {
	src := &stubSource{ops: []model.YieldOpportunity{
		marketOp("defillama", "aave-v3", model.ChainEthereum, "USDC", 4.2, 250_000_000),
		marketOp("defillama", "rugfarm", model.ChainBase, "RUG", 12, 50), // below MinTVL
	}}
	svc := New(src, nil, testOpts(), true)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Opportunities, 1)
	assert.Equal(t, "USDC", snap.Opportunities[0].Symbol)
}

func TestSnapshotErrorWhenNothingSurvives(t *testing.T) {
	src := &stubSource{ops: []model.YieldOpportunity{
		marketOp("defillama", "rugfarm", model.ChainBase, "RUG", 12, 50),
	}}
	svc := New(src, nil, testOpts(), true)

	_, err := svc.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestSnapshotPropagatesFetchError(t *testing.T) {
	src := &stubSource{err: errors.New("all providers down")}
	svc := New(src, nil, testOpts(), true)

	_, err := svc.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers down")
}

func TestSnapshotDegradesToLastGood(t *testing.T) {
	src := &stubSource{next: func(call int) []model.YieldOpportunity {
		if call == 1 {
			return []model.YieldOpportunity{
				marketOp("defillama", "aave-v3", model.ChainEthereum, "USDC", 4.2, 250_000_000),
				marketOp("aave", "aave-v3", model.ChainEthereum, "WETH", 2.1, 400_000_000),
			}
		}
		// Anomalous snapshot: APY above the breaker threshold
		return []model.YieldOpportunity{
			marketOp("defillama", "aave-v3", model.ChainEthereum, "USDC", 450, 250_000_000),
			marketOp("aave", "aave-v3", model.ChainEthereum, "WETH", 2.1, 400_000_000),
		}
	}}
	breaker := circuitbreaker.New(circuitbreaker.Thresholds{
		MaxAPY:       100,
		MaxTVLChange: 0.5,
		MinProviders: 1,
	})
	svc := New(src, breaker, testOpts(), true)

	first, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Degraded)

	second, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Degraded)
	require.Len(t, second.Opportunities, 2)
	for _, op := range second.Opportunities {
		assert.LessOrEqual(t, op.APY, 100.0)
	}
	assert.Equal(t, "open", svc.BreakerState())
}

func TestSnapshotFailsWhenTrippedWithoutHistory(t *testing.T) {
	src := &stubSource{ops: []model.YieldOpportunity{
		marketOp("defillama", "degen", model.ChainBase, "MOON", 450, 2_000_000),
	}}
	breaker := circuitbreaker.New(circuitbreaker.Thresholds{
		MaxAPY:       100,
		MaxTVLChange: 0.5,
		MinProviders: 1,
	})
	svc := New(src, breaker, testOpts(), true)

	_, err := svc.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestVolatilityTracksAPYHistory(t *testing.T) {
	src := &stubSource{next: func(call int) []model.YieldOpportunity {
		apy := 4.0 + float64(call)
		return []model.YieldOpportunity{
			marketOp("defillama", "aave-v3", model.ChainEthereum, "USDC", apy, 250_000_000),
		}
	}}
	svc := New(src, nil, testOpts(), true)

	var id string
	for i := 0; i < 3; i++ {
		snap, err := svc.Snapshot(context.Background())
		require.NoError(t, err)
		id = snap.Opportunities[0].ID
	}

	assert.Greater(t, svc.Volatility(id), 0.0)
	assert.Equal(t, 0.0, svc.Volatility("unknown-pool"))
}

func TestCachedSnapshotDoesNotRecordHistory(t *testing.T) {
	src := &stubSource{
		cached: true,
		ops: []model.YieldOpportunity{
			marketOp("defillama", "aave-v3", model.ChainEthereum, "USDC", 4.2, 250_000_000),
		},
	}
	svc := New(src, nil, testOpts(), true)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Cached)
	assert.Empty(t, svc.histories)
}

func TestHistoryIsBounded(t *testing.T) {
	src := &stubSource{next: func(call int) []model.YieldOpportunity {
		return []model.YieldOpportunity{
			marketOp("defillama", "aave-v3", model.ChainEthereum, "USDC", float64(call%10)+1, 250_000_000),
		}
	}}
	svc := New(src, nil, testOpts(), true)

	var id string
	for i := 0; i < maxHistoryPoints+5; i++ {
		snap, err := svc.Snapshot(context.Background())
		require.NoError(t, err)
		id = snap.Opportunities[0].ID
	}

	assert.Len(t, svc.histories[id], maxHistoryPoints)
}

func TestOpportunityByID(t *testing.T) {
	usdc := marketOp("defillama", "aave-v3", model.ChainEthereum, "USDC", 4.2, 250_000_000)
	src := &stubSource{ops: []model.YieldOpportunity{usdc}}
	svc := New(src, nil, testOpts(), true)

	op, err := svc.Opportunity(context.Background(), usdc.ID)
	require.NoError(t, err)
	assert.Equal(t, "USDC", op.Symbol)
	assert.Greater(t, op.QualityScore, 0.0)

	_, err = svc.Opportunity(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBreakerStateDisabled(t *testing.T) {
	svc := New(&stubSource{}, nil, testOpts(), false)
	assert.Equal(t, "disabled", svc.BreakerState())
}

func TestFilterApply(t *testing.T) {
	ops := []model.YieldOpportunity{
		marketOp("defillama", "aave-v3", model.ChainEthereum, "USDC", 4.2, 250_000_000),
		marketOp("defillama", "uniswap-v3", model.ChainEthereum, "WETH-USDC", 14.8, 80_000_000),
		marketOp("defillama", "gmx-v2", model.ChainArbitrum, "GLP", 19.5, 40_000_000),
		marketOp("defillama", "aave-v3", model.ChainPolygon, "USDT", 5.1, 60_000_000),
	}
	ops[0].QualityScore, ops[0].RiskScore = 80, 10
	ops[1].QualityScore, ops[1].RiskScore = 60, 40
	ops[2].QualityScore, ops[2].RiskScore = 50, 65
	ops[3].QualityScore, ops[3].RiskScore = 70, 15

	t.Run("protocol", func(t *testing.T) {
		out := Filter{Protocol: "AAVE-V3"}.Apply(ops)
		require.Len(t, out, 2)
		for _, op := range out {
			assert.Equal(t, "aave-v3", op.Protocol)
		}
	})

	t.Run("chain", func(t *testing.T) {
		out := Filter{Chain: "arbitrum"}.Apply(ops)
		require.Len(t, out, 1)
		assert.Equal(t, "GLP", out[0].Symbol)
	})

	t.Run("symbol substring", func(t *testing.T) {
		out := Filter{Symbol: "usdc"}.Apply(ops)
		require.Len(t, out, 2)
	})

	t.Run("min apy and tvl", func(t *testing.T) {
		out := Filter{MinAPY: 10, MinTVL: 50_000_000}.Apply(ops)
		require.Len(t, out, 1)
		assert.Equal(t, "WETH-USDC", out[0].Symbol)
	})

	t.Run("default sort is quality desc", func(t *testing.T) {
		out := Filter{}.Apply(ops)
		require.Len(t, out, 4)
		assert.Equal(t, "USDC", out[0].Symbol)
		assert.Equal(t, "USDT", out[1].Symbol)
	})

	t.Run("sort apy", func(t *testing.T) {
		out := Filter{Sort: "apy"}.Apply(ops)
		assert.Equal(t, "GLP", out[0].Symbol)
	})

	t.Run("sort tvl", func(t *testing.T) {
		out := Filter{Sort: "tvl"}.Apply(ops)
		assert.Equal(t, "USDC", out[0].Symbol)
	})

	t.Run("sort risk ascending", func(t *testing.T) {
		out := Filter{Sort: "risk"}.Apply(ops)
		assert.Equal(t, "USDC", out[0].Symbol)
		assert.Equal(t, "GLP", out[len(out)-1].Symbol)
	})

	t.Run("limit", func(t *testing.T) {
		out := Filter{Limit: 2}.Apply(ops)
		assert.Len(t, out, 2)
	})
}
