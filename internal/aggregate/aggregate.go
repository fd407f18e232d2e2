package aggregate

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

// Stats berechnet Marktstatistiken über alle Pools
// Kombiniert gewichtete, Median- und getrimmte Aggregation in einem Ergebnis
func Stats(ops []model.YieldOpportunity) model.MarketStats {
	if len(ops) == 0 {
		return model.MarketStats{}
	}

	providers := make(map[string]struct{})
	var totalTVL float64
	var latest time.Time

	for _, op := range ops {
		if op.TVL > 0 {
			totalTVL += op.TVL
		}
		if op.Provider != "" {
			providers[op.Provider] = struct{}{}
		}
		if op.CollectedAt.After(latest) {
			latest = op.CollectedAt
		}
	}

	return model.MarketStats{
		WeightedAPY:   WeightedAPY(ops),
		MedianAPY:     Median(ops, func(op model.YieldOpportunity) float64 { return op.APY }),
		TrimmedAPY:    TrimmedMeanAPY(ops, 0.1),
		TotalTVL:      totalTVL,
		PoolCount:     len(ops),
		ProviderCount: len(providers),
		CollectedAt:   latest,
	}
}

// WeightedAPY berechnet den TVL-gewichteten APY-Durchschnitt über alle Pools
// Pools mit ungültigen Werten werden übersprungen
func WeightedAPY(ops []model.YieldOpportunity) float64 {
	if len(ops) == 0 {
		return 0
	}

	var totalTVL, weightedAPY float64
	validOps := 0

	for _, op := range ops {
		if op.TVL > 0 && op.APY >= 0 {
			totalTVL += op.TVL
			weightedAPY += op.APY * op.TVL
			validOps++
		}
	}

	if validOps == 0 || totalTVL <= 0 || math.IsNaN(weightedAPY) {
		return 0
	}

	return weightedAPY / totalTVL
}

// WeightedAPYParallel berechnet den TVL-gewichteten APY mit paralleler Verarbeitung
// für bessere Performance bei großen Pool-Sammlungen
func WeightedAPYParallel(ctx context.Context, ops []model.YieldOpportunity) float64 {
	if len(ops) == 0 {
		return 0
	}

	var (
		mu          sync.Mutex
		wg          sync.WaitGroup
		totalTVL    float64
		weightedAPY float64
		validOps    int
	)

	// Verarbeite Pools parallel für bessere Performance
	for i := range ops {
		wg.Add(1)
		go func(op model.YieldOpportunity) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			default:
				if op.TVL > 0 && op.APY >= 0 {
					mu.Lock()
					totalTVL += op.TVL
					weightedAPY += op.APY * op.TVL
					validOps++
					mu.Unlock()
				}
			}
		}(ops[i])
	}

	wg.Wait()

	if validOps == 0 || totalTVL <= 0 || math.IsNaN(weightedAPY) {
		return 0
	}

	return weightedAPY / totalTVL
}

// Median berechnet den Medianwert für eine bestimmte Pool-Eigenschaft
// Nützlich für robuste Statistiken, die weniger anfällig für Ausreißer sind
func Median(ops []model.YieldOpportunity, selector func(model.YieldOpportunity) float64) float64 {
	if len(ops) == 0 {
		return 0
	}

	values := make([]float64, 0, len(ops))
	for _, op := range ops {
		if op.TVL > 0 {
			values = append(values, selector(op))
		}
	}

	if len(values) == 0 {
		return 0
	}

	sort.Float64s(values)
	n := len(values)

	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}

// TrimmedMeanAPY berechnet den getrimmten TVL-gewichteten APY (ohne extreme Werte)
// Entfernt einen bestimmten Prozentsatz der höchsten und niedrigsten APY-Werte vor der Mittelwertbildung
func TrimmedMeanAPY(ops []model.YieldOpportunity, trimPercent float64) float64 {
	if len(ops) < 3 || trimPercent <= 0 || trimPercent >= 0.5 {
		return WeightedAPY(ops) // Fallback auf gewichteten Durchschnitt
	}

	// Sortiere Pools nach APY
	validOps := make([]model.YieldOpportunity, 0, len(ops))
	for _, op := range ops {
		if op.TVL > 0 && op.APY >= 0 {
			validOps = append(validOps, op)
		}
	}

	if len(validOps) < 3 {
		return WeightedAPY(ops) // Fallback auf gewichteten Durchschnitt
	}

	sort.Slice(validOps, func(i, j int) bool {
		return validOps[i].APY < validOps[j].APY
	})

	// Berechne Anzahl der zu trimmenden Elemente
	trimCount := int(float64(len(validOps)) * trimPercent)

	// Trimme die Pools und berechne den gewichteten Durchschnitt des Rests
	return WeightedAPY(validOps[trimCount : len(validOps)-trimCount])
}

// TotalTVLByChain summiert TVL je Chain
// Liefert eine Verteilung für die Statistik-Endpunkte
func TotalTVLByChain(ops []model.YieldOpportunity) map[model.Chain]float64 {
	out := make(map[model.Chain]float64)
	for _, op := range ops {
		if op.TVL > 0 {
			out[op.Chain] += op.TVL
		}
	}
	return out
}
