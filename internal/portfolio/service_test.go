package portfolio

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(openTestStore(t))
}

func TestCreateValidatesAmount(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(CreateParams{Protocol: "aave-v3", Amount: decimal.Zero})
	require.Error(t, err)

	_, err = svc.Create(CreateParams{Protocol: "aave-v3", Amount: decimal.NewFromInt(-5)})
	require.Error(t, err)

	_, err = svc.Create(CreateParams{Amount: decimal.NewFromInt(100)})
	require.Error(t, err, "missing protocol must be rejected")
}

func TestCreateSplitsRewardAPY(t *testing.T) {
	svc := newTestService(t)

	inv, err := svc.Create(CreateParams{
		Protocol:     "velodrome-v2",
		Amount:       decimal.NewFromInt(500),
		APY:          9.0,
		RewardAPY:    3.0,
		RewardTokens: []string{"VELO", "OP"},
	})
	require.NoError(t, err)

	require.Len(t, inv.RewardTokens, 2)
	assert.Equal(t, 1.5, inv.RewardTokens[0].APY)
	assert.True(t, inv.RewardTokens[0].Earned.IsZero())
	assert.Equal(t, model.InvestmentSchemaVersion, inv.SchemaVersion)
}

func TestCreateSanitizesBadNumbers(t *testing.T) {
	svc := newTestService(t)

	inv, err := svc.Create(CreateParams{
		Protocol:    "aave-v3",
		Amount:      decimal.NewFromInt(100),
		APY:         math.NaN(),
		EntryGasUSD: math.Inf(1),
		RiskScore:   -10,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, inv.APY)
	assert.Equal(t, 0.0, inv.EntryGasUSD)
	assert.Equal(t, 0.0, inv.RiskScore)
}

func TestCreateFromOpportunityCapturesEntryState(t *testing.T) {
	svc := newTestService(t)

	op := model.NewOpportunity("defillama", "gmx-v2", model.ChainArbitrum, "GLP", 22.2, 92_000_000)
	op.PoolName = "GMX GLP"
	op.APYReward = 4.9
	op.DepositGasUSD = 0.9
	op.RiskScore = 55
	op.RewardTokens = []string{"ARB"}

	inv, err := svc.CreateFromOpportunity(op, decimal.NewFromInt(2500), 3.4)
	require.NoError(t, err)

	assert.Equal(t, op.ID, inv.PoolID)
	assert.Equal(t, "gmx-v2", inv.Protocol)
	assert.Equal(t, 22.2, inv.APY)
	assert.Equal(t, 4.9, inv.RewardAPY)
	assert.Equal(t, 0.9, inv.EntryGasUSD)
	assert.Equal(t, 55.0, inv.RiskScore)
	assert.Equal(t, 3.4, inv.VolatilityScore)

	stored, err := svc.Get(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, stored.ID)
}

func TestApplyAccrualMutatesStoredEarnings(t *testing.T) {
	svc := newTestService(t)

	inv, err := svc.Create(CreateParams{
		Protocol:     "compound-v2",
		Amount:       decimal.NewFromInt(1000),
		APY:          4.0,
		RewardAPY:    1.0,
		RewardTokens: []string{"COMP"},
	})
	require.NoError(t, err)

	updated, err := svc.ApplyAccrual(inv.ID, decimal.RequireFromString("3.50"), decimal.RequireFromString("1.20"))
	require.NoError(t, err)
	assert.True(t, updated.BaseEarnings.Equal(decimal.RequireFromString("3.50")))
	assert.True(t, updated.RewardEarnings.Equal(decimal.RequireFromString("1.20")))
	assert.True(t, updated.RewardTokens[0].Earned.Equal(decimal.RequireFromString("1.20")))

	// accruals accumulate across commits
	updated, err = svc.ApplyAccrual(inv.ID, decimal.RequireFromString("0.50"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, updated.BaseEarnings.Equal(decimal.RequireFromString("4.00")))

	summary, err := svc.Summary()
	require.NoError(t, err)
	assert.True(t, summary.TotalEarnings.Equal(decimal.RequireFromString("5.20")))
	assert.True(t, summary.CurrentValue.Equal(decimal.RequireFromString("1005.20")))
}

func TestSummarizeEmptyPortfolio(t *testing.T) {
	summary := Summarize(nil)

	assert.True(t, summary.TotalInvested.IsZero())
	assert.True(t, summary.CurrentValue.IsZero())
	assert.True(t, summary.TotalEarnings.IsZero())
	assert.Equal(t, 0.0, summary.AverageAPY)
	assert.Equal(t, 0, summary.InvestmentCount)
	assert.Equal(t, 0.0, summary.DiversificationScore)
	assert.Equal(t, 0.0, summary.RiskScore)
	assert.Empty(t, summary.Allocation)
}

func TestSummarizeWeightedAverages(t *testing.T) {
	invs := []model.Investment{
		{Protocol: "aave-v3", Amount: decimal.NewFromInt(1000), APY: 5, RiskScore: 10},
		{Protocol: "gmx-v2", Amount: decimal.NewFromInt(3000), APY: 10, RiskScore: 50},
	}
	summary := Summarize(invs)

	// (1000x5 + 3000x10) / 4000
	assert.InDelta(t, 8.75, summary.AverageAPY, 1e-9)
	assert.InDelta(t, 40.0, summary.RiskScore, 1e-9)
	assert.Equal(t, 2, summary.InvestmentCount)
	assert.True(t, summary.TotalInvested.Equal(decimal.NewFromInt(4000)))

	assert.InDelta(t, 0.25, summary.Allocation["aave-v3"], 1e-9)
	assert.InDelta(t, 0.75, summary.Allocation["gmx-v2"], 1e-9)

	// 1 - (0.25^2 + 0.75^2) = 0.375
	assert.InDelta(t, 37.5, summary.DiversificationScore, 1e-9)
}

func TestSummarizeSingleProtocolHasZeroDiversification(t *testing.T) {
	invs := []model.Investment{
		{Protocol: "aave-v3", Amount: decimal.NewFromInt(100), APY: 5},
		{Protocol: "aave-v3", Amount: decimal.NewFromInt(900), APY: 4},
	}
	summary := Summarize(invs)
	assert.Equal(t, 0.0, summary.DiversificationScore)
	assert.Len(t, summary.Allocation, 1)
}
