package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arthur-zhuk/yieldsnap/internal/market"
	"github.com/arthur-zhuk/yieldsnap/internal/projection"
)

// defaultAmountUSD is substituted when a request carries no usable amount
const defaultAmountUSD = 1000.0

func (h *Handler) listPools(c *gin.Context) {
	snap, err := h.market.Snapshot(c.Request.Context())
	if err != nil {
		returnErrorJsonCode(err, c, http.StatusServiceUnavailable)
		return
	}
	h.observeMarket(snap)

	filter := market.Filter{
		Protocol: c.Query("protocol"),
		Chain:    c.Query("chain"),
		Symbol:   c.Query("symbol"),
		MinAPY:   floatQuery(c, "min_apy", 0),
		MinTVL:   floatQuery(c, "min_tvl", 0),
		Sort:     c.Query("sort"),
		Limit:    intQuery(c, "limit", 0),
	}
	pools := filter.Apply(snap.Opportunities)

	c.JSON(http.StatusOK, gin.H{
		"pools":    pools,
		"count":    len(pools),
		"stats":    snap.Stats,
		"cached":   snap.Cached,
		"degraded": snap.Degraded,
	})
}

func (h *Handler) getPool(c *gin.Context) {
	op, err := h.market.Opportunity(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, market.ErrNotFound) {
			returnErrorJsonCode(err, c, http.StatusNotFound)
		} else {
			returnErrorJsonCode(err, c, http.StatusServiceUnavailable)
		}
		return
	}
	c.JSON(http.StatusOK, op)
}

// poolProjection projects an amount into a listed pool using its current
// APY and gas estimates. Pools flagged for impermanent loss also get the
// divergence scenarios.
func (h *Handler) poolProjection(c *gin.Context) {
	op, err := h.market.Opportunity(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, market.ErrNotFound) {
			returnErrorJsonCode(err, c, http.StatusNotFound)
		} else {
			returnErrorJsonCode(err, c, http.StatusServiceUnavailable)
		}
		return
	}

	amount := floatQuery(c, "amount", defaultAmountUSD)
	if amount <= 0 {
		amount = defaultAmountUSD
	}
	days := intQuery(c, "days", projection.DefaultHorizonDays)
	reinvest := boolQuery(c, "reinvest", true)

	result := projection.Project(projection.Params{
		Amount:      amount,
		APR:         op.APY,
		Days:        days,
		Reinvest:    reinvest,
		EntryGasUSD: op.DepositGasUSD,
		ExitGasUSD:  op.WithdrawGasUSD,
	})

	resp := gin.H{
		"pool_id":    op.ID,
		"symbol":     op.Symbol,
		"apy":        op.APY,
		"amount":     amount,
		"reinvest":   reinvest,
		"projection": result,
	}
	if op.ILRisk == "yes" {
		resp["impermanent_loss"] = ilScenarios(op.APYBase, days)
	}

	c.JSON(http.StatusOK, resp)
}

type projectionRequest struct {
	Amount      float64 `json:"amount"`
	APR         float64 `json:"apr"`
	Days        int     `json:"days"`
	Reinvest    *bool   `json:"reinvest"`
	EntryGasUSD float64 `json:"entry_gas_usd"`
	ExitGasUSD  float64 `json:"exit_gas_usd"`
}

// adHocProjection projects arbitrary parameters without a pool
func (h *Handler) adHocProjection(c *gin.Context) {
	var req projectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		returnErrorJsonCode(err, c, http.StatusBadRequest)
		return
	}

	if req.Amount <= 0 {
		req.Amount = defaultAmountUSD
	}
	reinvest := true
	if req.Reinvest != nil {
		reinvest = *req.Reinvest
	}

	result := projection.Project(projection.Params{
		Amount:      req.Amount,
		APR:         req.APR,
		Days:        req.Days,
		Reinvest:    reinvest,
		EntryGasUSD: req.EntryGasUSD,
		ExitGasUSD:  req.ExitGasUSD,
	})

	c.JSON(http.StatusOK, result)
}

type ilScenario struct {
	PriceRatio float64 `json:"price_ratio"`
	LossPct    float64 `json:"loss_pct"`
	NetOfFees  float64 `json:"net_of_fees_pct"`
}

// ilScenarios tabulates divergence loss at fixed price ratios, netted
// against fee income over the holding period
func ilScenarios(feeAPR float64, days int) []ilScenario {
	ratios := []float64{0.5, 0.75, 1.25, 1.5, 2, 4}
	out := make([]ilScenario, 0, len(ratios))
	for _, r := range ratios {
		out = append(out, ilScenario{
			PriceRatio: r,
			LossPct:    projection.ImpermanentLoss(r) * 100,
			NetOfFees:  projection.NetOfFees(r, feeAPR, days) * 100,
		})
	}
	return out
}
