package portfolio

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/arthur-zhuk/yieldsnap/internal/model"
	"github.com/arthur-zhuk/yieldsnap/internal/score"
)

// Service wraps the store with investment lifecycle operations and the
// aggregate summary. The summary is always recomputed from the stored
// investments, never maintained incrementally.
type Service struct {
	store *Store
}

// NewService creates a portfolio service over the given store
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// CreateParams carries the fields for a new investment. Zero scores and
// gas are allowed; a non-positive amount is not.
type CreateParams struct {
	PoolID          string
	Protocol        string
	PoolName        string
	Symbol          string
	Amount          decimal.Decimal
	APY             float64
	RewardAPY       float64
	EntryGasUSD     float64
	RiskScore       float64
	VolatilityScore float64
	RewardTokens    []string
}

// Create validates the parameters and stores a new investment
func (s *Service) Create(p CreateParams) (model.Investment, error) {
	if !p.Amount.IsPositive() {
		return model.Investment{}, fmt.Errorf("create investment: amount must be positive, got %s", p.Amount)
	}
	if strings.TrimSpace(p.Protocol) == "" {
		return model.Investment{}, fmt.Errorf("create investment: missing protocol")
	}

	now := time.Now().UTC()
	inv := model.Investment{
		ID:              uuid.New(),
		PoolID:          p.PoolID,
		Protocol:        p.Protocol,
		PoolName:        p.PoolName,
		Symbol:          p.Symbol,
		Amount:          p.Amount,
		APY:             numOrZero(p.APY),
		RewardAPY:       numOrZero(p.RewardAPY),
		EntryGasUSD:     numOrZero(p.EntryGasUSD),
		StartDate:       now,
		BaseEarnings:    decimal.Zero,
		RewardEarnings:  decimal.Zero,
		RiskScore:       numOrZero(p.RiskScore),
		VolatilityScore: numOrZero(p.VolatilityScore),
		SchemaVersion:   model.InvestmentSchemaVersion,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// Reward APY is split evenly across the listed reward tokens
	if len(p.RewardTokens) > 0 {
		perToken := inv.RewardAPY / float64(len(p.RewardTokens))
		for _, sym := range p.RewardTokens {
			inv.RewardTokens = append(inv.RewardTokens, model.RewardToken{
				Symbol: sym,
				APY:    perToken,
				Earned: decimal.Zero,
			})
		}
	}

	if err := s.store.Save(inv); err != nil {
		return model.Investment{}, err
	}

	logrus.WithFields(logrus.Fields{
		"id":       inv.ID,
		"protocol": inv.Protocol,
		"amount":   inv.Amount,
	}).Info("Investment created")
	return inv, nil
}

// CreateFromOpportunity tracks an investment into a listed pool,
// capturing the pool's current APY, gas estimate and scores at entry.
// volatility is the stdev of the pool's recent APY observations.
func (s *Service) CreateFromOpportunity(op model.YieldOpportunity, amount decimal.Decimal, volatility float64) (model.Investment, error) {
	return s.Create(CreateParams{
		PoolID:          op.ID,
		Protocol:        op.Protocol,
		PoolName:        op.PoolName,
		Symbol:          op.Symbol,
		Amount:          amount,
		APY:             op.APY,
		RewardAPY:       op.APYReward,
		EntryGasUSD:     op.DepositGasUSD,
		RiskScore:       op.RiskScore,
		VolatilityScore: volatility,
		RewardTokens:    op.RewardTokens,
	})
}

// Get returns a stored investment by id
func (s *Service) Get(id uuid.UUID) (model.Investment, error) {
	return s.store.Get(id)
}

// List returns all stored investments
func (s *Service) List() ([]model.Investment, error) {
	return s.store.List()
}

// Delete removes an investment
func (s *Service) Delete(id uuid.UUID) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	logrus.WithField("id", id).Info("Investment deleted")
	return nil
}

// ApplyAccrual adds simulated earnings to a stored investment. This is
// the commit path for simulation runs: earnings are mutated in place
// and the summary is recomputed from scratch on the next read.
func (s *Service) ApplyAccrual(id uuid.UUID, base, reward decimal.Decimal) (model.Investment, error) {
	inv, err := s.store.Get(id)
	if err != nil {
		return model.Investment{}, err
	}

	inv.BaseEarnings = inv.BaseEarnings.Add(base)
	inv.RewardEarnings = inv.RewardEarnings.Add(reward)
	if n := len(inv.RewardTokens); n > 0 && reward.IsPositive() {
		perToken := reward.Div(decimal.NewFromInt(int64(n)))
		for i := range inv.RewardTokens {
			inv.RewardTokens[i].Earned = inv.RewardTokens[i].Earned.Add(perToken)
		}
	}
	inv.UpdatedAt = time.Now().UTC()

	if err := s.store.Save(inv); err != nil {
		return model.Investment{}, err
	}
	return inv, nil
}

// Summary recomputes the aggregate view from the stored investments
func (s *Service) Summary() (model.PortfolioSummary, error) {
	invs, err := s.store.List()
	if err != nil {
		return model.PortfolioSummary{}, err
	}
	return Summarize(invs), nil
}

// Summarize aggregates a set of investments from scratch. A portfolio
// with zero investments returns all-zero fields.
func Summarize(invs []model.Investment) model.PortfolioSummary {
	summary := model.PortfolioSummary{
		TotalInvested: decimal.Zero,
		CurrentValue:  decimal.Zero,
		TotalEarnings: decimal.Zero,
		Allocation:    map[string]float64{},
		ComputedAt:    time.Now().UTC(),
	}
	if len(invs) == 0 {
		summary.RiskLevel = score.Band(0)
		return summary
	}

	var (
		weightedAPY  float64
		weightedRisk float64
		totalWeight  float64
	)
	investedByProtocol := map[string]decimal.Decimal{}

	for _, inv := range invs {
		summary.TotalInvested = summary.TotalInvested.Add(inv.Amount)
		summary.CurrentValue = summary.CurrentValue.Add(inv.CurrentValue())
		summary.TotalEarnings = summary.TotalEarnings.Add(inv.TotalEarnings())

		weight := inv.Amount.InexactFloat64()
		if weight > 0 {
			weightedAPY += numOrZero(inv.APY) * weight
			weightedRisk += numOrZero(inv.RiskScore) * weight
			totalWeight += weight
		}

		prev, ok := investedByProtocol[inv.Protocol]
		if !ok {
			prev = decimal.Zero
		}
		investedByProtocol[inv.Protocol] = prev.Add(inv.Amount)
	}

	summary.InvestmentCount = len(invs)
	if totalWeight > 0 {
		summary.AverageAPY = weightedAPY / totalWeight
		summary.RiskScore = math.Round(weightedRisk/totalWeight*100) / 100
	}
	summary.RiskLevel = score.Band(summary.RiskScore)

	if summary.TotalInvested.IsPositive() {
		for protocol, invested := range investedByProtocol {
			share, _ := invested.Div(summary.TotalInvested).Float64()
			summary.Allocation[protocol] = share
		}
	}
	summary.DiversificationScore = score.Diversification(summary.Allocation)

	return summary
}

func numOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
