package projection

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func TestValueAtCompound(t *testing.T) {
	// 1000 at 5% APR for a year, reinvested daily
	got := ValueAt(1000, 5.0, 365, true)
	want := 1000 * math.Pow(1+0.05/365, 365)
	if math.Abs(got-want) > epsilon {
		t.Errorf("expected %f, got %f", want, got)
	}
}

func TestValueAtSimple(t *testing.T) {
	got := ValueAt(1000, 5.0, 365, false)
	want := 1000 * (1 + 0.05)
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("expected %f, got %f", want, got)
	}
}

func TestValueAtGuardsBadInput(t *testing.T) {
	if got := ValueAt(math.NaN(), 5.0, 30, true); got != 0 {
		t.Errorf("NaN amount should project to 0, got %f", got)
	}
	if got := ValueAt(1000, math.Inf(1), 30, true); got != 1000 {
		t.Errorf("Inf APR should be treated as 0%%, got %f", got)
	}
	if got := ValueAt(1000, 5.0, -3, true); got != 1000 {
		t.Errorf("negative day should clamp to 0, got %f", got)
	}
}

func TestProjectSeries(t *testing.T) {
	res := Project(Params{Amount: 1000, APR: 10, Days: 30, Reinvest: true})

	if len(res.Points) != 31 {
		t.Fatalf("expected 31 points for a 30 day horizon, got %d", len(res.Points))
	}
	if res.Points[0].Value != 1000 {
		t.Errorf("day 0 should equal the principal, got %f", res.Points[0].Value)
	}
	if res.Points[0].Earnings != 0 {
		t.Errorf("day 0 earnings should be zero, got %f", res.Points[0].Earnings)
	}
	for i := 1; i < len(res.Points); i++ {
		if res.Points[i].Value <= res.Points[i-1].Value {
			t.Fatalf("series should be strictly increasing at day %d", i)
		}
	}
	if res.FinalValue != res.Points[30].Value {
		t.Errorf("final value should match the last point")
	}
}

func TestProjectNetAfterGas(t *testing.T) {
	res := Project(Params{Amount: 10000, APR: 20, Days: 365, Reinvest: false, EntryGasUSD: 15, ExitGasUSD: 10})
	want := res.TotalEarnings - 25
	if math.Abs(res.NetAfterGas-want) > epsilon {
		t.Errorf("expected net %f, got %f", want, res.NetAfterGas)
	}
}

func TestBreakEvenDayNoGas(t *testing.T) {
	if got := BreakEvenDay(1000, 5, 0, 0, true, 365); got != 1 {
		t.Errorf("no gas should break even on day 1, got %d", got)
	}
}

func TestBreakEvenDayCoversGas(t *testing.T) {
	// 10000 at 36.5% simple is ~10/day, 25 USD of gas recovered on day 3
	got := BreakEvenDay(10000, 36.5, 15, 10, false, 365)
	if got != 3 {
		t.Errorf("expected day 3, got %d", got)
	}
}

func TestBreakEvenDayNeverReached(t *testing.T) {
	if got := BreakEvenDay(10, 0.1, 500, 500, true, 365); got != -1 {
		t.Errorf("expected -1 when gas is never recovered, got %d", got)
	}
}

func TestOptimalExitDayBands(t *testing.T) {
	cases := []struct {
		name      string
		breakEven int
		apr       float64
		horizon   int
		want      int
	}{
		{"high apr exits early", 20, 60, 365, 30},
		{"mid apr", 20, 25, 365, 40},
		{"low mid apr", 20, 12, 365, 50},
		{"low apr holds long", 20, 5, 365, 60},
		{"clamped to min hold", 1, 80, 365, MinHoldDays},
		{"clamped to horizon", 300, 5, 365, 365},
		{"never breaks even holds horizon", -1, 5, 180, 180},
	}
	for _, tc := range cases {
		if got := OptimalExitDay(tc.breakEven, tc.apr, tc.horizon); got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestImpermanentLoss(t *testing.T) {
	if got := ImpermanentLoss(1); math.Abs(got) > epsilon {
		t.Errorf("ratio 1 should have zero loss, got %f", got)
	}
	// classic reference point: 4x price move loses ~20%
	got := ImpermanentLoss(4)
	if math.Abs(got-(-0.2)) > 1e-9 {
		t.Errorf("expected -0.2 for ratio 4, got %f", got)
	}
	// symmetric in direction of the move
	if a, b := ImpermanentLoss(2), ImpermanentLoss(0.5); math.Abs(a-b) > 1e-12 {
		t.Errorf("expected symmetry, got %f vs %f", a, b)
	}
}

func TestImpermanentLossGuards(t *testing.T) {
	for _, r := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if got := ImpermanentLoss(r); got != 0 {
			t.Errorf("expected 0 for ratio %f, got %f", r, got)
		}
	}
}

func TestNetOfFees(t *testing.T) {
	// fees over a year at 20% APR outweigh a 2x move
	got := NetOfFees(2, 20, 365)
	want := 0.20 + ImpermanentLoss(2)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %f, got %f", want, got)
	}
	if got <= 0 {
		t.Errorf("expected fees to outweigh IL, got %f", got)
	}
}
