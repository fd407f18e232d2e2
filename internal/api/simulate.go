package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/arthur-zhuk/yieldsnap/internal/simulation"
)

// defaultPlaybackDays keeps the animated stream short unless asked
const defaultPlaybackDays = 30

type simulateRequest struct {
	Days int `json:"days"`

	// Commit writes the simulated earnings back into the stored
	// investments when true; otherwise the run is a pure preview
	Commit bool `json:"commit"`
}

func (h *Handler) simulatePortfolio(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		returnErrorJsonCode(err, c, http.StatusBadRequest)
		return
	}

	invs, err := h.portfolio.List()
	if err != nil {
		returnErrorJson(fmt.Errorf("failed to load portfolio: %w", err), c)
		return
	}

	result := simulation.Run(invs, req.Days)

	committed := false
	if req.Commit {
		for _, acc := range result.Accruals {
			if _, err := h.portfolio.ApplyAccrual(acc.ID, acc.Base, acc.Reward); err != nil {
				returnErrorJson(fmt.Errorf("failed to commit accrual: %w", err), c)
				return
			}
		}
		committed = true

		// The committed jump should show up in the history series now,
		// not at the next sampling tick
		if h.recorder != nil {
			h.recorder.Sample(c.Request.Context())
		}
		if summary, err := h.portfolio.Summary(); err == nil {
			h.observePortfolio(summary)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"days":        result.Days,
		"frames":      result.Frames,
		"final_value": result.FinalValue,
		"committed":   committed,
	})
}

// streamSimulation plays the simulation frame by frame over a
// websocket on a fixed interval, for animated dashboards. The stream
// never commits earnings.
func (h *Handler) streamSimulation(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logrus.Warnf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	invs, err := h.portfolio.List()
	if err != nil {
		conn.WriteJSON(gin.H{"error": err.Error()})
		return
	}

	days := intQuery(c, "days", defaultPlaybackDays)
	interval := h.cfg.PlaybackInterval
	if ms := intQuery(c, "interval_ms", 0); ms > 0 {
		interval = time.Duration(ms) * time.Millisecond
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Reader pump: the first read error means the client went away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	err = simulation.Play(ctx, invs, days, interval, func(frame simulation.Frame) error {
		return conn.WriteJSON(frame)
	})
	if err != nil {
		logrus.Debugf("Playback ended early: %v", err)
		return
	}

	conn.WriteJSON(gin.H{"done": true, "days": days})
}
