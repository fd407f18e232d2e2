// Package model defines the core data structures for yieldsnap.
package model

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Chain identifies a blockchain network an opportunity lives on.
type Chain string

// Supported blockchain networks
const (
	ChainEthereum  Chain = "ethereum"
	ChainPolygon   Chain = "polygon"
	ChainArbitrum  Chain = "arbitrum"
	ChainOptimism  Chain = "optimism"
	ChainAvalanche Chain = "avalanche"
	ChainBase      Chain = "base"
)

// Risk levels assigned to opportunities and portfolios.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// YieldOpportunity represents a single yield-bearing pool or market offered
// by a provider. This is the core data structure that flows through the
// entire application. Opportunities are ephemeral: they are rebuilt on every
// fetch and never persisted.
type YieldOpportunity struct {
	// ID is a stable identifier derived from provider, chain and pool
	ID string `json:"id"`

	// Provider is the unique identifier of the data source
	Provider string `json:"provider"`

	// Protocol is the protocol name as reported upstream (e.g. aave-v3)
	Protocol string `json:"protocol"`

	// Chain is the network this opportunity is on
	Chain Chain `json:"chain"`

	// Symbol is the asset or pair symbol (e.g. USDC, WETH-USDC)
	Symbol string `json:"symbol"`

	// PoolName is a human readable pool label
	PoolName string `json:"pool_name,omitempty"`

	// APY is the total Annual Percentage Yield in percent
	// e.g. 5.0 for 5% APY
	APY float64 `json:"apy"`

	// APYBase is the organic part of the APY in percent
	APYBase float64 `json:"apy_base"`

	// APYReward is the incentive token part of the APY in percent
	APYReward float64 `json:"apy_reward"`

	// TVL is the Total Value Locked in the pool in USD
	TVL float64 `json:"tvl_usd"`

	// LiquidityUSD is the withdrawable liquidity in USD
	LiquidityUSD float64 `json:"liquidity_usd"`

	// UserBalance is the connected user's balance in the pool, if known
	UserBalance float64 `json:"user_balance,omitempty"`

	// Gas cost estimates in USD for entering and exiting the position
	DepositGasUSD  float64 `json:"deposit_gas_usd,omitempty"`
	WithdrawGasUSD float64 `json:"withdraw_gas_usd,omitempty"`

	// Stablecoin reports whether the pool holds only stable assets
	Stablecoin bool `json:"stablecoin"`

	// ILRisk is "yes" when the pool is exposed to impermanent loss,
	// "no" when it is not, empty when the provider does not say
	ILRisk string `json:"il_risk"`

	// RewardTokens lists incentive tokens paid out by the pool
	RewardTokens []string `json:"reward_tokens,omitempty"`

	// QualityScore and RiskScore are filled by the scoring layer (0-100)
	QualityScore float64 `json:"quality_score,omitempty"`
	RiskScore    float64 `json:"risk_score,omitempty"`
	RiskLevel    string  `json:"risk_level,omitempty"`

	// CollectedAt records when this opportunity was collected
	CollectedAt time.Time `json:"collected_at"`
}

// NewOpportunity creates an opportunity with a derived ID and current timestamp.
func NewOpportunity(provider, protocol string, chain Chain, symbol string, apy, tvl float64) YieldOpportunity {
	o := YieldOpportunity{
		Provider:    provider,
		Protocol:    protocol,
		Chain:       chain,
		Symbol:      symbol,
		APY:         apy,
		APYBase:     apy,
		TVL:         tvl,
		CollectedAt: time.Now(),
	}
	o.ID = OpportunityID(provider, string(chain), protocol, symbol)
	return o
}

// OpportunityID derives a stable hex identifier from the identifying fields
// of a pool so repeated fetches produce the same ID.
func OpportunityID(provider, chain, pool, symbol string) string {
	seed := strings.Join([]string{provider, chain, pool, symbol}, "|")
	h := sha1.Sum([]byte(seed))
	return hex.EncodeToString(h[:])
}

// IsValid performs basic validation on this opportunity
func (o YieldOpportunity) IsValid() bool {
	return o.APY >= 0 &&
		o.TVL > 0 &&
		o.Provider != "" &&
		o.Symbol != "" &&
		time.Since(o.CollectedAt) < 24*time.Hour
}

// RewardToken is one entry of an investment's reward breakdown.
type RewardToken struct {
	Symbol string          `json:"symbol"`
	APY    float64         `json:"apy"`
	Earned decimal.Decimal `json:"earned"`
}

// Investment is a simulated position a user tracks in their portfolio.
// It is created by user action, its earnings are mutated in place by
// simulation commits, and it is deleted by user action. Investments are
// persisted as a JSON payload in the local store.
type Investment struct {
	ID       uuid.UUID `json:"id"`
	PoolID   string    `json:"pool_id"`
	Protocol string    `json:"protocol"`
	PoolName string    `json:"pool_name"`
	Symbol   string    `json:"symbol"`

	// Amount is the invested principal in USD
	Amount decimal.Decimal `json:"amount"`

	// APY is the total APY in percent at entry time
	APY float64 `json:"apy"`

	// RewardAPY is the incentive part of the APY in percent
	RewardAPY float64 `json:"reward_apy"`

	// EntryGasUSD is the gas cost paid to open the position
	EntryGasUSD float64 `json:"entry_gas_usd"`

	StartDate time.Time `json:"start_date"`

	// Accumulated earnings, split by origin
	BaseEarnings   decimal.Decimal `json:"base_earnings"`
	RewardEarnings decimal.Decimal `json:"reward_earnings"`

	RewardTokens []RewardToken `json:"reward_tokens,omitempty"`

	// Scores captured at entry time
	RiskScore       float64 `json:"risk_score"`
	VolatilityScore float64 `json:"volatility_score"`

	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InvestmentSchemaVersion is stored with every payload. There is no
// migration logic; older payloads decode with zero values for new fields.
const InvestmentSchemaVersion = 1

// TotalEarnings returns base plus reward earnings.
func (i Investment) TotalEarnings() decimal.Decimal {
	return i.BaseEarnings.Add(i.RewardEarnings)
}

// CurrentValue returns principal plus accumulated earnings.
func (i Investment) CurrentValue() decimal.Decimal {
	return i.Amount.Add(i.TotalEarnings())
}

// PortfolioSummary is the aggregate view over all stored investments.
// It is recomputed from scratch on every read and after every mutation,
// never maintained incrementally.
type PortfolioSummary struct {
	TotalInvested decimal.Decimal `json:"total_invested"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`

	// AverageAPY is the amount weighted average APY in percent
	AverageAPY float64 `json:"average_apy"`

	InvestmentCount int `json:"investment_count"`

	// Allocation maps protocol to its share of invested principal (0-1)
	Allocation map[string]float64 `json:"allocation"`

	// DiversificationScore is (1 - HHI) scaled to 0-100
	DiversificationScore float64 `json:"diversification_score"`

	// RiskScore is the amount weighted risk score, RiskLevel its band
	RiskScore float64 `json:"risk_score"`
	RiskLevel string  `json:"risk_level"`

	ComputedAt time.Time `json:"computed_at"`
}

// MarketStats aggregates opportunity-level numbers into a market overview.
type MarketStats struct {
	// WeightedAPY is the TVL weighted average APY in percent
	WeightedAPY float64 `json:"weighted_apy"`

	// MedianAPY is robust against single-pool outliers
	MedianAPY float64 `json:"median_apy"`

	// TrimmedAPY drops the extreme tails before averaging
	TrimmedAPY float64 `json:"trimmed_apy"`

	// TotalTVL is the summed TVL in USD over all valid opportunities
	TotalTVL float64 `json:"total_tvl"`

	// PoolCount is the number of opportunities that entered the aggregate
	PoolCount int `json:"pool_count"`

	// ProviderCount is the number of distinct data sources represented
	ProviderCount int `json:"provider_count"`

	CollectedAt time.Time `json:"collected_at"`
}
