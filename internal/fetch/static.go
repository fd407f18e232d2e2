package fetch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

// StaticProvider serves a built-in fixture set of opportunities. It is
// the only data source in mock mode, the fallback when every live
// provider fails, and the fixture used throughout the tests.
type StaticProvider struct{}

// NewStaticProvider creates the fixture data source
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// Name identifies this provider
func (p *StaticProvider) Name() string { return "static" }

// fixture describes one built-in pool. Gas estimates are included so
// break-even projections have something to work with.
type fixture struct {
	protocol       string
	chain          model.Chain
	symbol         string
	poolName       string
	apyBase        float64
	apyReward      float64
	tvl            float64
	liquidity      float64
	depositGasUSD  float64
	withdrawGasUSD float64
	stablecoin     bool
	ilRisk         string
	rewardTokens   []string
}

var fixtures = []fixture{
	{"aave-v3", model.ChainEthereum, "USDC", "Aave v3 USDC", 3.82, 0, 412_000_000, 389_000_000, 12.50, 9.80, true, "no", nil},
	{"aave-v3", model.ChainEthereum, "WETH", "Aave v3 WETH", 2.15, 0, 1_240_000_000, 1_100_000_000, 12.50, 9.80, false, "no", nil},
	{"aave-v3", model.ChainPolygon, "USDT", "Aave v3 USDT", 4.41, 0.35, 98_000_000, 92_000_000, 0.04, 0.03, true, "no", []string{"MATIC"}},
	{"compound-v2", model.ChainEthereum, "DAI", "cDAI", 2.96, 0.88, 186_000_000, 171_000_000, 11.20, 8.60, true, "no", []string{"COMP"}},
	{"compound-v2", model.ChainEthereum, "USDC", "cUSDC", 3.38, 0.74, 240_000_000, 229_000_000, 11.20, 8.60, true, "no", []string{"COMP"}},
	{"uniswap-v3", model.ChainEthereum, "WETH-USDC", "Uniswap v3 WETH/USDC 0.05%", 12.60, 0, 310_000_000, 310_000_000, 18.40, 14.10, false, "yes", nil},
	{"curve-dex", model.ChainEthereum, "3CRV", "Curve 3pool", 1.92, 1.45, 178_000_000, 178_000_000, 16.70, 12.30, true, "no", []string{"CRV"}},
	{"lido", model.ChainEthereum, "STETH", "Lido stETH", 3.12, 0, 22_400_000_000, 21_000_000_000, 9.30, 7.20, false, "no", nil},
	{"quickswap-dex", model.ChainPolygon, "WMATIC-USDC", "QuickSwap WMATIC/USDC", 24.80, 6.20, 4_800_000, 4_800_000, 0.05, 0.04, false, "yes", []string{"QUICK"}},
	{"gmx-v2", model.ChainArbitrum, "GLP", "GMX GLP", 17.30, 4.90, 92_000_000, 87_000_000, 0.90, 0.70, false, "yes", []string{"ARB"}},
	{"velodrome-v2", model.ChainOptimism, "USDC-DAI", "Velodrome sAMM USDC/DAI", 6.74, 2.10, 12_600_000, 12_600_000, 0.31, 0.24, true, "no", []string{"VELO"}},
	{"aerodrome-v1", model.ChainBase, "WETH-USDC", "Aerodrome vAMM WETH/USDC", 31.20, 9.70, 7_900_000, 7_900_000, 0.22, 0.18, false, "yes", []string{"AERO"}},
}

// Fetch returns the fixture set, stamped with the current time so it
// passes freshness checks downstream.
func (p *StaticProvider) Fetch(ctx context.Context) ([]model.YieldOpportunity, error) {
	now := time.Now()
	ops := make([]model.YieldOpportunity, 0, len(fixtures))
	for _, f := range fixtures {
		apy := f.apyBase + f.apyReward
		op := model.NewOpportunity("static", f.protocol, f.chain, f.symbol, apy, f.tvl)
		op.ID = model.OpportunityID("static", string(f.chain), f.protocol, f.symbol)
		op.PoolName = f.poolName
		op.APYBase = f.apyBase
		op.APYReward = f.apyReward
		op.LiquidityUSD = f.liquidity
		op.DepositGasUSD = f.depositGasUSD
		op.WithdrawGasUSD = f.withdrawGasUSD
		op.Stablecoin = f.stablecoin
		op.ILRisk = f.ilRisk
		op.RewardTokens = f.rewardTokens
		op.CollectedAt = now
		ops = append(ops, op)
	}

	logrus.Debugf("Serving %d fixture pools", len(ops))
	return ops, nil
}
