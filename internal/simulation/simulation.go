// Package simulation steps a portfolio through simulated days. Each day
// accrues compounded base earnings and linear reward earnings for every
// investment and emits a frame with per-position and portfolio totals.
// A run can execute synchronously or play back on a ticker for animated
// clients.
package simulation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arthur-zhuk/yieldsnap/internal/model"
	"github.com/arthur-zhuk/yieldsnap/internal/projection"
)

// Position is the state of one investment inside a frame
type Position struct {
	ID           uuid.UUID       `json:"id"`
	PoolName     string          `json:"pool_name"`
	Value        decimal.Decimal `json:"value"`
	BaseEarned   decimal.Decimal `json:"base_earned"`
	RewardEarned decimal.Decimal `json:"reward_earned"`
}

// Frame is one simulated day of portfolio growth
type Frame struct {
	Day           int             `json:"day"`
	Date          time.Time       `json:"date"`
	Positions     []Position      `json:"positions"`
	TotalValue    decimal.Decimal `json:"total_value"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
}

// Accrual is the earnings one run added to one investment, used when a
// run is committed back to the store.
type Accrual struct {
	ID     uuid.UUID       `json:"id"`
	Base   decimal.Decimal `json:"base"`
	Reward decimal.Decimal `json:"reward"`
}

// Result bundles the frames of a synchronous run
type Result struct {
	Days       int             `json:"days"`
	Frames     []Frame         `json:"frames"`
	FinalValue decimal.Decimal `json:"final_value"`
	Accruals   []Accrual       `json:"accruals"`
}

// stepper carries the running accrual state across days. Base earnings
// compound on top of already-accumulated base earnings; reward earnings
// accrue linearly on principal.
type stepper struct {
	invs        []model.Investment
	baseRates   []decimal.Decimal
	rewardRates []decimal.Decimal
	runBase     []decimal.Decimal
	runReward   []decimal.Decimal
	start       time.Time
	day         int
}

func newStepper(invs []model.Investment, start time.Time) *stepper {
	s := &stepper{
		invs:        invs,
		baseRates:   make([]decimal.Decimal, len(invs)),
		rewardRates: make([]decimal.Decimal, len(invs)),
		runBase:     make([]decimal.Decimal, len(invs)),
		runReward:   make([]decimal.Decimal, len(invs)),
		start:       start,
	}
	for i, inv := range invs {
		baseAPY := inv.APY - inv.RewardAPY
		if baseAPY < 0 {
			baseAPY = 0
		}
		s.baseRates[i] = decimal.NewFromFloat(projection.DailyRate(baseAPY))
		s.rewardRates[i] = decimal.NewFromFloat(projection.DailyRate(inv.RewardAPY))
		s.runBase[i] = decimal.Zero
		s.runReward[i] = decimal.Zero
	}
	return s
}

// step advances the portfolio one day and emits the resulting frame
func (s *stepper) step() Frame {
	s.day++
	frame := Frame{
		Day:           s.day,
		Date:          s.start.AddDate(0, 0, s.day),
		Positions:     make([]Position, len(s.invs)),
		TotalValue:    decimal.Zero,
		TotalEarnings: decimal.Zero,
	}

	for i, inv := range s.invs {
		// Base compounds on principal plus all base earnings so far
		carrying := inv.Amount.Add(inv.BaseEarnings).Add(s.runBase[i])
		s.runBase[i] = s.runBase[i].Add(carrying.Mul(s.baseRates[i]))
		s.runReward[i] = s.runReward[i].Add(inv.Amount.Mul(s.rewardRates[i]))

		earned := s.runBase[i].Add(s.runReward[i])
		value := inv.CurrentValue().Add(earned)

		frame.Positions[i] = Position{
			ID:           inv.ID,
			PoolName:     inv.PoolName,
			Value:        value,
			BaseEarned:   s.runBase[i],
			RewardEarned: s.runReward[i],
		}
		frame.TotalValue = frame.TotalValue.Add(value)
		frame.TotalEarnings = frame.TotalEarnings.Add(inv.TotalEarnings()).Add(earned)
	}

	return frame
}

// accruals snapshots what the run has earned per investment so far
func (s *stepper) accruals() []Accrual {
	out := make([]Accrual, len(s.invs))
	for i, inv := range s.invs {
		out[i] = Accrual{ID: inv.ID, Base: s.runBase[i], Reward: s.runReward[i]}
	}
	return out
}

func clampDays(days int) int {
	if days <= 0 {
		return projection.DefaultHorizonDays
	}
	if days > projection.MaxHorizonDays {
		return projection.MaxHorizonDays
	}
	return days
}

// Run executes a synchronous simulation and returns every frame.
// The stored investments are not modified; committing the returned
// accruals is the caller's decision.
func Run(invs []model.Investment, days int) Result {
	days = clampDays(days)
	s := newStepper(invs, time.Now().UTC())

	res := Result{
		Days:       days,
		Frames:     make([]Frame, 0, days),
		FinalValue: decimal.Zero,
	}
	for d := 0; d < days; d++ {
		res.Frames = append(res.Frames, s.step())
	}
	if len(res.Frames) > 0 {
		res.FinalValue = res.Frames[len(res.Frames)-1].TotalValue
	}
	res.Accruals = s.accruals()
	return res
}

// Play steps the simulation on a ticker, handing each frame to emit.
// Playback stops when the context is cancelled or emit returns an
// error (a disconnected client); either way the ticker is stopped and
// nothing else happens.
func Play(ctx context.Context, invs []model.Investment, days int, interval time.Duration, emit func(Frame) error) error {
	days = clampDays(days)
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	s := newStepper(invs, time.Now().UTC())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for d := 0; d < days; d++ {
		// A cancelled context wins over a pending tick
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := emit(s.step()); err != nil {
				return err
			}
		}
	}
	return nil
}
