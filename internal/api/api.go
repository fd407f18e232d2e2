// Package api serves the dashboard HTTP surface: pool listings and
// projections, the simulated portfolio, day-by-day simulation with
// websocket playback, the deposit stub and the ops endpoints.
package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/arthur-zhuk/yieldsnap/internal/config"
	"github.com/arthur-zhuk/yieldsnap/internal/deposit"
	"github.com/arthur-zhuk/yieldsnap/internal/history"
	"github.com/arthur-zhuk/yieldsnap/internal/market"
	"github.com/arthur-zhuk/yieldsnap/internal/portfolio"
)

const version = "1.0.0"

// Handler bundles the services behind the HTTP surface
type Handler struct {
	cfg       config.Config
	market    *market.Service
	portfolio *portfolio.Service
	deposits  *deposit.Service
	recorder  *history.Recorder

	providers []string
	limiter   *rate.Limiter
	metrics   *serverMetrics
	upgrader  websocket.Upgrader
	startTime time.Time
}

// New creates the handler. providers is the list of configured data
// source names, reported on the status endpoint.
func New(cfg config.Config, mkt *market.Service, pf *portfolio.Service, deposits *deposit.Service, recorder *history.Recorder, providers []string) *Handler {
	h := &Handler{
		cfg:       cfg,
		market:    mkt,
		portfolio: pf,
		deposits:  deposits,
		recorder:  recorder,
		providers: providers,
		upgrader: websocket.Upgrader{
			// The dashboard is a browser client on another origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startTime: time.Now(),
	}

	if cfg.RateLimitRPS > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
		logrus.Infof("Rate limiting initialized: %v req/s, burst: %d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.EnableMetrics {
		h.metrics = registerMetrics()
	}

	return h
}

// Router builds the gin engine with all routes and middleware
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	if h.limiter != nil {
		router.Use(h.rateLimitMiddleware())
	}
	if h.metrics != nil {
		router.Use(h.metricsMiddleware())
	}

	router.GET("/healthz", h.handleHealth)
	router.GET("/status", h.handleStatus)
	if h.cfg.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	} else {
		router.GET("/metrics", func(c *gin.Context) {
			c.String(http.StatusServiceUnavailable, "metrics disabled")
		})
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/pools", h.listPools)
		v1.GET("/pools/:id", h.getPool)
		v1.GET("/pools/:id/projection", h.poolProjection)
		v1.POST("/projections", h.adHocProjection)

		v1.GET("/portfolio", h.getPortfolio)
		v1.GET("/portfolio/history", h.getPortfolioHistory)
		v1.POST("/portfolio/investments", h.createInvestment)
		v1.DELETE("/portfolio/investments/:id", h.deleteInvestment)
		v1.POST("/portfolio/simulate", h.simulatePortfolio)
		v1.GET("/portfolio/simulate/ws", h.streamSimulation)
		v1.GET("/portfolio/export", h.exportPortfolio)

		v1.POST("/deposit", h.simulateDeposit)
	}

	return router
}

func (h *Handler) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (h *Handler) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		h.metrics.requestCounter.WithLabelValues(status, route).Inc()
		h.metrics.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func returnErrorJson(err error, c *gin.Context) {
	returnErrorJsonCode(err, c, http.StatusInternalServerError)
}

func returnErrorJsonCode(err error, c *gin.Context, code int) {
	logrus.Warn(err.Error())
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

// floatQuery reads a float query parameter, substituting the default
// for missing, malformed or non-finite values
func floatQuery(c *gin.Context, key string, def float64) float64 {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func boolQuery(c *gin.Context, key string, def bool) bool {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
