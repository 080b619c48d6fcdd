package api

import (
	"errors"
	"net/http"
	"strings"

	"dca-core/internal/engine"
	"dca-core/internal/state"
	"dca-core/internal/strategy"

	"github.com/gin-gonic/gin"
)

type listQuery struct {
	Limit int `form:"limit"`
}

func (q *listQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

type startSideRequest struct {
	Config *state.StrategyConfig `json:"config"`
}

type toggleAIRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

func parseSide(raw string) (state.Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LONG":
		return state.SideLong, true
	case "SHORT":
		return state.SideShort, true
	}
	return "", false
}

// commandError maps engine command failures to HTTP responses. Commands are
// rejected with 4xx codes; anything the bot cannot act on right now is 409.
func commandError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownSide):
		respondError(c, http.StatusNotFound, "UNKNOWN_SIDE", err.Error())
	case errors.Is(err, strategy.ErrAlreadyRunning):
		respondError(c, http.StatusConflict, "ALREADY_RUNNING", err.Error())
	case errors.Is(err, strategy.ErrNotStopped):
		respondError(c, http.StatusConflict, "NOT_STOPPED", err.Error())
	case errors.Is(err, strategy.ErrNoPrice):
		respondError(c, http.StatusServiceUnavailable, "NO_PRICE", err.Error())
	default:
		respondError(c, http.StatusBadRequest, "COMMAND_REJECTED", err.Error())
	}
}

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.GetSystemStatus(c.Request.Context()))
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.GetState(c.Request.Context()))
}

func (s *Server) getPlan(c *gin.Context) {
	side, ok := parseSide(c.Param("side"))
	if !ok {
		respondError(c, http.StatusNotFound, "UNKNOWN_SIDE", "side must be long or short")
		return
	}

	plan, err := s.Engine.GetPlan(c.Request.Context(), side)
	if err != nil {
		commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) getOrders(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	orders, err := s.Engine.GetRecentOrders(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) getOpenOrders(c *gin.Context) {
	orders, err := s.Engine.GetOpenOrders(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) getFills(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	fills, err := s.Engine.GetRecentFills(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, fills)
}

func (s *Server) getBalances(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.GetBalances(c.Request.Context()))
}

func (s *Server) getReconReports(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	reports, err := s.DB.ListReconReports(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, reports)
}

// startSide starts one ladder. An optional config in the body replaces the
// persisted side config before the entry order goes out.
func (s *Server) startSide(c *gin.Context) {
	side, ok := parseSide(c.Param("side"))
	if !ok {
		respondError(c, http.StatusNotFound, "UNKNOWN_SIDE", "side must be long or short")
		return
	}

	var req startSideRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload")
			return
		}
	}

	if err := s.Engine.StartSide(c.Request.Context(), side, req.Config); err != nil {
		commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"side": side, "status": "started"})
}

func (s *Server) stopSide(c *gin.Context) {
	side, ok := parseSide(c.Param("side"))
	if !ok {
		respondError(c, http.StatusNotFound, "UNKNOWN_SIDE", "side must be long or short")
		return
	}

	if err := s.Engine.StopSide(c.Request.Context(), side); err != nil {
		commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"side": side, "status": "stopped"})
}

func (s *Server) resetCycle(c *gin.Context) {
	side, ok := parseSide(c.Param("side"))
	if !ok {
		respondError(c, http.StatusNotFound, "UNKNOWN_SIDE", "side must be long or short")
		return
	}

	if err := s.Engine.ResetCycle(c.Request.Context(), side); err != nil {
		commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"side": side, "status": "reset"})
}

func (s *Server) updateSideConfig(c *gin.Context) {
	side, ok := parseSide(c.Param("side"))
	if !ok {
		respondError(c, http.StatusNotFound, "UNKNOWN_SIDE", "side must be long or short")
		return
	}

	var patch strategy.ConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload")
		return
	}

	if err := s.Engine.UpdateSideConfig(c.Request.Context(), side, patch); err != nil {
		commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"side": side, "status": "updated"})
}

func (s *Server) toggleAI(c *gin.Context) {
	var req toggleAIRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "enabled is required")
		return
	}

	if err := s.Engine.ToggleAI(c.Request.Context(), *req.Enabled); err != nil {
		commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}

func (s *Server) updateAIConfig(c *gin.Context) {
	var patch engine.AIConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload")
		return
	}

	if err := s.Engine.UpdateAIConfig(c.Request.Context(), patch); err != nil {
		commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
