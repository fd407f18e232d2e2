package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

func TestWeightedAPY(t *testing.T) {
	tests := []struct {
		name     string
		ops      []model.YieldOpportunity
		expected float64
	}{
		{
			name: "single pool",
			ops: []model.YieldOpportunity{
				{APY: 5.0, TVL: 1000, CollectedAt: time.Now()},
			},
			expected: 5.0,
		},
		{
			name: "multiple pools",
			ops: []model.YieldOpportunity{
				{APY: 5.0, TVL: 1000, CollectedAt: time.Now()},
				{APY: 10.0, TVL: 3000, CollectedAt: time.Now()},
			},
			expected: 8.75, // (5*1000 + 10*3000)/4000
		},
		{
			name: "invalid pools skipped",
			ops: []model.YieldOpportunity{
				{APY: 5.0, TVL: 1000},
				{APY: -2.0, TVL: 1000}, // negativer APY
				{APY: 10.0, TVL: 0},    // kein TVL
			},
			expected: 5.0,
		},
		{
			name:     "empty input",
			ops:      []model.YieldOpportunity{},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAPY(tt.ops)
			if got != tt.expected {
				t.Errorf("WeightedAPY() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestWeightedAPYParallel(t *testing.T) {
	tests := []struct {
		name     string
		ops      []model.YieldOpportunity
		expected float64
	}{
		{
			name: "multiple pools",
			ops: []model.YieldOpportunity{
				{APY: 5.0, TVL: 1000, CollectedAt: time.Now()},
				{APY: 10.0, TVL: 3000, CollectedAt: time.Now()},
			},
			expected: 8.75,
		},
		{
			name:     "empty input",
			ops:      []model.YieldOpportunity{},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			got := WeightedAPYParallel(ctx, tt.ops)
			if got != tt.expected {
				t.Errorf("WeightedAPYParallel() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name     string
		ops      []model.YieldOpportunity
		selector func(model.YieldOpportunity) float64
		expected float64
	}{
		{
			name: "median APY odd count",
			ops: []model.YieldOpportunity{
				{APY: 5.0, TVL: 1000},
				{APY: 10.0, TVL: 2000},
				{APY: 15.0, TVL: 3000},
			},
			selector: func(op model.YieldOpportunity) float64 { return op.APY },
			expected: 10.0,
		},
		{
			name: "median APY even count",
			ops: []model.YieldOpportunity{
				{APY: 5.0, TVL: 1000},
				{APY: 10.0, TVL: 2000},
				{APY: 15.0, TVL: 3000},
				{APY: 20.0, TVL: 4000},
			},
			selector: func(op model.YieldOpportunity) float64 { return op.APY },
			expected: 12.5,
		},
		{
			name:     "empty input",
			ops:      []model.YieldOpportunity{},
			selector: func(op model.YieldOpportunity) float64 { return op.APY },
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Median(tt.ops, tt.selector)
			if got != tt.expected {
				t.Errorf("Median() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTrimmedMeanAPY(t *testing.T) {
	ops := make([]model.YieldOpportunity, 0, 10)
	for i := 1; i <= 10; i++ {
		ops = append(ops, model.YieldOpportunity{
			APY:         float64(i),
			TVL:         1000,
			CollectedAt: time.Now(),
		})
	}

	got := TrimmedMeanAPY(ops, 0.1)
	if got != 5.5 { // Mittelwert von 2-9 (ohne 1 und 10)
		t.Errorf("TrimmedMeanAPY() = %v, want 5.5", got)
	}

	// zu wenige Pools: Fallback auf gewichteten Durchschnitt
	few := []model.YieldOpportunity{
		{APY: 5.0, TVL: 1000},
		{APY: 10.0, TVL: 3000},
	}
	if got := TrimmedMeanAPY(few, 0.1); got != 8.75 {
		t.Errorf("TrimmedMeanAPY() fallback = %v, want 8.75", got)
	}
}

func TestStats(t *testing.T) {
	now := time.Now()
	ops := []model.YieldOpportunity{
		{Provider: "aave", Chain: model.ChainEthereum, APY: 5.0, TVL: 1000, CollectedAt: now.Add(-time.Hour)},
		{Provider: "compound", Chain: model.ChainEthereum, APY: 10.0, TVL: 3000, CollectedAt: now},
		{Provider: "aave", Chain: model.ChainBase, APY: 7.0, TVL: 2000, CollectedAt: now.Add(-2 * time.Hour)},
	}

	stats := Stats(ops)
	if stats.PoolCount != 3 {
		t.Errorf("PoolCount = %d, want 3", stats.PoolCount)
	}
	if stats.ProviderCount != 2 {
		t.Errorf("ProviderCount = %d, want 2", stats.ProviderCount)
	}
	if stats.TotalTVL != 6000 {
		t.Errorf("TotalTVL = %v, want 6000", stats.TotalTVL)
	}
	if stats.MedianAPY != 7.0 {
		t.Errorf("MedianAPY = %v, want 7.0", stats.MedianAPY)
	}
	if !stats.CollectedAt.Equal(now) {
		t.Errorf("CollectedAt = %v, want %v", stats.CollectedAt, now)
	}

	empty := Stats(nil)
	if empty.PoolCount != 0 || empty.WeightedAPY != 0 || empty.TotalTVL != 0 {
		t.Errorf("empty Stats should be all zero, got %+v", empty)
	}
}

func TestTotalTVLByChain(t *testing.T) {
	ops := []model.YieldOpportunity{
		{Chain: model.ChainEthereum, TVL: 1000},
		{Chain: model.ChainEthereum, TVL: 2000},
		{Chain: model.ChainArbitrum, TVL: 500},
		{Chain: model.ChainBase, TVL: -5}, // wird ignoriert
	}

	byChain := TotalTVLByChain(ops)
	if byChain[model.ChainEthereum] != 3000 {
		t.Errorf("ethereum TVL = %v, want 3000", byChain[model.ChainEthereum])
	}
	if byChain[model.ChainArbitrum] != 500 {
		t.Errorf("arbitrum TVL = %v, want 500", byChain[model.ChainArbitrum])
	}
	if _, ok := byChain[model.ChainBase]; ok {
		t.Error("negative TVL should not be counted")
	}
}

func BenchmarkWeightedAPY(b *testing.B) {
	ops := make([]model.YieldOpportunity, 100)
	for i := 0; i < 100; i++ {
		ops[i] = model.YieldOpportunity{
			APY:         float64(i) + 1.0,
			TVL:         float64(i+1) * 1000,
			CollectedAt: time.Now(),
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		WeightedAPY(ops)
	}
}

func BenchmarkWeightedAPYParallel(b *testing.B) {
	ops := make([]model.YieldOpportunity, 100)
	for i := 0; i < 100; i++ {
		ops[i] = model.YieldOpportunity{
			APY:         float64(i) + 1.0,
			TVL:         float64(i+1) * 1000,
			CollectedAt: time.Now(),
		}
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		WeightedAPYParallel(ctx, ops)
	}
}
