package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arthur-zhuk/yieldsnap/internal/market"
	"github.com/arthur-zhuk/yieldsnap/internal/model"
	"github.com/arthur-zhuk/yieldsnap/internal/portfolio"
)

func (h *Handler) getPortfolio(c *gin.Context) {
	invs, err := h.portfolio.List()
	if err != nil {
		returnErrorJson(fmt.Errorf("failed to load portfolio: %w", err), c)
		return
	}
	if invs == nil {
		invs = []model.Investment{}
	}

	summary := portfolio.Summarize(invs)
	h.observePortfolio(summary)

	c.JSON(http.StatusOK, gin.H{
		"investments": invs,
		"summary":     summary,
	})
}

func (h *Handler) getPortfolioHistory(c *gin.Context) {
	points := h.recorder.Points()
	c.JSON(http.StatusOK, gin.H{
		"points": points,
		"count":  len(points),
	})
}

type createInvestmentRequest struct {
	// PoolID tracks an investment into a listed pool; when set the
	// explicit fields below are ignored
	PoolID string          `json:"pool_id"`
	Amount decimal.Decimal `json:"amount"`

	Protocol     string   `json:"protocol"`
	PoolName     string   `json:"pool_name"`
	Symbol       string   `json:"symbol"`
	APY          float64  `json:"apy"`
	RewardAPY    float64  `json:"reward_apy"`
	EntryGasUSD  float64  `json:"entry_gas_usd"`
	RewardTokens []string `json:"reward_tokens"`
}

func (h *Handler) createInvestment(c *gin.Context) {
	var req createInvestmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		returnErrorJsonCode(err, c, http.StatusBadRequest)
		return
	}

	var (
		inv model.Investment
		err error
	)
	if req.PoolID != "" {
		var op model.YieldOpportunity
		op, err = h.market.Opportunity(c.Request.Context(), req.PoolID)
		if err != nil {
			if errors.Is(err, market.ErrNotFound) {
				returnErrorJsonCode(err, c, http.StatusNotFound)
			} else {
				returnErrorJsonCode(err, c, http.StatusServiceUnavailable)
			}
			return
		}
		inv, err = h.portfolio.CreateFromOpportunity(op, req.Amount, h.market.Volatility(req.PoolID))
	} else {
		inv, err = h.portfolio.Create(portfolio.CreateParams{
			Protocol:     req.Protocol,
			PoolName:     req.PoolName,
			Symbol:       req.Symbol,
			Amount:       req.Amount,
			APY:          req.APY,
			RewardAPY:    req.RewardAPY,
			EntryGasUSD:  req.EntryGasUSD,
			RewardTokens: req.RewardTokens,
		})
	}
	if err != nil {
		returnErrorJsonCode(err, c, http.StatusBadRequest)
		return
	}

	if summary, err := h.portfolio.Summary(); err == nil {
		h.observePortfolio(summary)
	}

	c.JSON(http.StatusCreated, inv)
}

func (h *Handler) deleteInvestment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		returnErrorJsonCode(fmt.Errorf("invalid investment id: %w", err), c, http.StatusBadRequest)
		return
	}

	if err := h.portfolio.Delete(id); err != nil {
		if errors.Is(err, portfolio.ErrNotFound) {
			returnErrorJsonCode(err, c, http.StatusNotFound)
		} else {
			returnErrorJson(err, c)
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// investmentRow flattens an investment for CSV export
type investmentRow struct {
	ID             string  `csv:"id"`
	Protocol       string  `csv:"protocol"`
	PoolName       string  `csv:"pool_name"`
	Symbol         string  `csv:"symbol"`
	AmountUSD      string  `csv:"amount_usd"`
	APY            float64 `csv:"apy_pct"`
	RewardAPY      float64 `csv:"reward_apy_pct"`
	BaseEarnings   string  `csv:"base_earnings_usd"`
	RewardEarnings string  `csv:"reward_earnings_usd"`
	CurrentValue   string  `csv:"current_value_usd"`
	RiskScore      float64 `csv:"risk_score"`
	StartDate      string  `csv:"start_date"`
}

func (h *Handler) exportPortfolio(c *gin.Context) {
	invs, err := h.portfolio.List()
	if err != nil {
		returnErrorJson(fmt.Errorf("failed to load portfolio: %w", err), c)
		return
	}

	rows := make([]investmentRow, 0, len(invs))
	for _, inv := range invs {
		rows = append(rows, investmentRow{
			ID:             inv.ID.String(),
			Protocol:       inv.Protocol,
			PoolName:       inv.PoolName,
			Symbol:         inv.Symbol,
			AmountUSD:      inv.Amount.String(),
			APY:            inv.APY,
			RewardAPY:      inv.RewardAPY,
			BaseEarnings:   inv.BaseEarnings.String(),
			RewardEarnings: inv.RewardEarnings.String(),
			CurrentValue:   inv.CurrentValue().String(),
			RiskScore:      inv.RiskScore,
			StartDate:      inv.StartDate.UTC().Format("2006-01-02"),
		})
	}

	out, err := gocsv.MarshalString(&rows)
	if err != nil {
		returnErrorJson(fmt.Errorf("failed to marshal csv: %w", err), c)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="yieldsnap-portfolio.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(out))
}
