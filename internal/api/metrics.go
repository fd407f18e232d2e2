package api

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arthur-zhuk/yieldsnap/internal/market"
	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	providerErrors  *prometheus.CounterVec
	breakerState    prometheus.Gauge
	poolCount       prometheus.Gauge
	totalTVL        prometheus.Gauge
	weightedAPY     prometheus.Gauge
	portfolioValue  prometheus.Gauge
	investmentCount prometheus.Gauge
}

// The default registry rejects duplicate registration, so the metrics
// set is created once per process no matter how many handlers exist
var (
	metricsOnce   sync.Once
	sharedMetrics *serverMetrics
)

// registerMetrics sets up Prometheus metrics collection
func registerMetrics() *serverMetrics {
	metricsOnce.Do(func() {
		m := &serverMetrics{
			requestCounter: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "yieldsnap_requests_total",
					Help: "Total number of requests processed",
				},
				[]string{"status", "route"},
			),
			requestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "yieldsnap_request_duration_seconds",
					Help:    "Request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"route"},
			),
			providerErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "yieldsnap_provider_errors_total",
					Help: "Total number of provider fetch errors",
				},
				[]string{"provider"},
			),
			breakerState: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "yieldsnap_circuit_breaker_state",
					Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
				},
			),
			poolCount: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "yieldsnap_pool_count",
					Help: "Number of pools in the current snapshot",
				},
			),
			totalTVL: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "yieldsnap_market_tvl_usd",
					Help: "Aggregated TVL over the current snapshot",
				},
			),
			weightedAPY: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "yieldsnap_market_weighted_apy",
					Help: "TVL weighted APY over the current snapshot",
				},
			),
			portfolioValue: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "yieldsnap_portfolio_value_usd",
					Help: "Current portfolio value including earnings",
				},
			),
			investmentCount: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "yieldsnap_investment_count",
					Help: "Number of tracked investments",
				},
			),
		}

		prometheus.MustRegister(
			m.requestCounter,
			m.requestDuration,
			m.providerErrors,
			m.breakerState,
			m.poolCount,
			m.totalTVL,
			m.weightedAPY,
			m.investmentCount,
			m.portfolioValue,
		)

		sharedMetrics = m
	})

	return sharedMetrics
}

// ProviderErrorHook returns a callback for the fetch registry that
// counts provider failures
func (h *Handler) ProviderErrorHook() func(provider string) {
	return func(provider string) {
		if h.metrics != nil {
			h.metrics.providerErrors.WithLabelValues(provider).Inc()
		}
	}
}

func (h *Handler) observeMarket(snap market.Snapshot) {
	if h.metrics == nil {
		return
	}
	h.metrics.poolCount.Set(float64(len(snap.Opportunities)))
	h.metrics.totalTVL.Set(snap.Stats.TotalTVL)
	h.metrics.weightedAPY.Set(snap.Stats.WeightedAPY)
	h.metrics.breakerState.Set(breakerStateValue(h.market.BreakerState()))
}

func (h *Handler) observePortfolio(summary model.PortfolioSummary) {
	if h.metrics == nil {
		return
	}
	h.metrics.portfolioValue.Set(summary.CurrentValue.InexactFloat64())
	h.metrics.investmentCount.Set(float64(summary.InvestmentCount))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half-open":
		return 2
	default:
		return 0
	}
}
