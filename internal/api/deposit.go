package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/arthur-zhuk/yieldsnap/internal/market"
)

type depositRequest struct {
	WalletAddress string          `json:"wallet_address"`
	PoolID        string          `json:"pool_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// simulateDeposit validates the request against the live pool list and
// returns a signed fake receipt. Nothing touches a chain.
func (h *Handler) simulateDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		returnErrorJsonCode(err, c, http.StatusBadRequest)
		return
	}

	if req.PoolID != "" {
		if _, err := h.market.Opportunity(c.Request.Context(), req.PoolID); err != nil {
			if errors.Is(err, market.ErrNotFound) {
				returnErrorJsonCode(err, c, http.StatusNotFound)
			} else {
				returnErrorJsonCode(err, c, http.StatusServiceUnavailable)
			}
			return
		}
	}

	receipt, err := h.deposits.Simulate(req.WalletAddress, req.PoolID, req.Amount)
	if err != nil {
		returnErrorJsonCode(err, c, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusOK, receipt)
}
