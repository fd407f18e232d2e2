// Package projection implements the deterministic yield arithmetic:
// compound interest series, break-even and exit-day heuristics, and the
// constant-product impermanent loss approximation.
package projection

import (
	"math"
)

const (
	// DefaultHorizonDays is used when a request does not name a horizon.
	DefaultHorizonDays = 365

	// MaxHorizonDays bounds the linear scans.
	MaxHorizonDays = 3650

	// MinHoldDays is the floor for the suggested exit day.
	MinHoldDays = 7
)

// Params describes a single projected position.
type Params struct {
	// Amount invested in USD
	Amount float64

	// APR in percent (5.0 means 5%)
	APR float64

	// Days in the projection horizon
	Days int

	// Reinvest compounds earnings daily when true
	Reinvest bool

	// Gas paid to enter and to exit the position, in USD
	EntryGasUSD float64
	ExitGasUSD  float64
}

// Point is one day in a projection series.
type Point struct {
	Day      int     `json:"day"`
	Value    float64 `json:"value"`
	Earnings float64 `json:"earnings"`
	GasSpent float64 `json:"gas_spent"`
}

// Result bundles the series with the derived heuristics.
type Result struct {
	Points         []Point `json:"points"`
	FinalValue     float64 `json:"final_value"`
	TotalEarnings  float64 `json:"total_earnings"`
	NetAfterGas    float64 `json:"net_after_gas"`
	BreakEvenDay   int     `json:"break_even_day"`
	OptimalExitDay int     `json:"optimal_exit_day"`
}

// DailyRate converts a percent APR into a daily fractional rate.
func DailyRate(apr float64) float64 {
	return sanitize(apr, 0) / 100.0 / 365.0
}

// ValueAt returns the position value after day days. With reinvestment
// earnings compound daily, otherwise they accrue linearly on principal.
func ValueAt(amount, apr float64, day int, reinvest bool) float64 {
	amount = sanitize(amount, 0)
	if day < 0 {
		day = 0
	}
	rate := DailyRate(apr)
	if reinvest {
		return amount * math.Pow(1+rate, float64(day))
	}
	return amount * (1 + rate*float64(day))
}

// Project computes the full day-by-day series for one position plus the
// break-even and suggested exit days.
func Project(p Params) Result {
	amount := sanitize(p.Amount, 0)
	apr := sanitize(p.APR, 0)
	entryGas := sanitize(p.EntryGasUSD, 0)
	exitGas := sanitize(p.ExitGasUSD, 0)
	days := clampDays(p.Days)

	points := make([]Point, 0, days+1)
	for d := 0; d <= days; d++ {
		value := ValueAt(amount, apr, d, p.Reinvest)
		points = append(points, Point{
			Day:      d,
			Value:    value,
			Earnings: value - amount,
			GasSpent: entryGas,
		})
	}

	final := points[len(points)-1]
	breakEven := BreakEvenDay(amount, apr, entryGas, exitGas, p.Reinvest, days)

	return Result{
		Points:         points,
		FinalValue:     final.Value,
		TotalEarnings:  final.Earnings,
		NetAfterGas:    final.Earnings - entryGas - exitGas,
		BreakEvenDay:   breakEven,
		OptimalExitDay: OptimalExitDay(breakEven, apr, days),
	}
}

// BreakEvenDay scans for the first day where cumulative earnings cover
// the round-trip gas cost. Returns 1 when there is no gas cost and -1
// when the horizon is never enough.
func BreakEvenDay(amount, apr, entryGas, exitGas float64, reinvest bool, horizon int) int {
	totalGas := sanitize(entryGas, 0) + sanitize(exitGas, 0)
	if totalGas <= 0 {
		return 1
	}
	horizon = clampDays(horizon)
	for d := 1; d <= horizon; d++ {
		earnings := ValueAt(amount, apr, d, reinvest) - sanitize(amount, 0)
		if earnings >= totalGas {
			return d
		}
	}
	return -1
}

// OptimalExitDay suggests an exit day as a multiple of the break-even
// day. High-APR positions earn their gas back quickly and get a shorter
// suggested hold; low-APR positions hold longer to amortize it. The
// result is clamped into [MinHoldDays, horizon]. A position that never
// breaks even suggests holding the full horizon.
func OptimalExitDay(breakEvenDay int, apr float64, horizon int) int {
	horizon = clampDays(horizon)
	if breakEvenDay <= 0 {
		return horizon
	}

	apr = sanitize(apr, 0)
	var multiplier float64
	switch {
	case apr >= 50:
		multiplier = 1.5
	case apr >= 20:
		multiplier = 2.0
	case apr >= 10:
		multiplier = 2.5
	default:
		multiplier = 3.0
	}

	day := int(math.Round(float64(breakEvenDay) * multiplier))
	if day < MinHoldDays {
		day = MinHoldDays
	}
	if day > horizon {
		day = horizon
	}
	return day
}

// ImpermanentLoss returns the fractional value divergence versus holding
// for a two-asset constant-product pool after the price ratio between
// the assets moves to r. The result is <= 0; r=1 means no divergence.
func ImpermanentLoss(priceRatio float64) float64 {
	if priceRatio <= 0 || math.IsNaN(priceRatio) || math.IsInf(priceRatio, 0) {
		return 0
	}
	return 2*math.Sqrt(priceRatio)/(1+priceRatio) - 1
}

// NetOfFees nets the impermanent loss against linear fee income over a
// holding period. A positive result means fees outweigh the loss.
func NetOfFees(priceRatio, feeAPR float64, days int) float64 {
	if days < 0 {
		days = 0
	}
	return DailyRate(feeAPR)*float64(days) + ImpermanentLoss(priceRatio)
}

func clampDays(days int) int {
	if days <= 0 {
		return DefaultHorizonDays
	}
	if days > MaxHorizonDays {
		return MaxHorizonDays
	}
	return days
}

func sanitize(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}
