package handler

import (
	"strconv"

	"energy-trading-backend/internal/core/ports"
	"energy-trading-backend/pkg/apperror"
	"energy-trading-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SettlementHandler exposes settlement execution endpoints.
type SettlementHandler struct {
	settlementSvc ports.SettlementService
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(settlementSvc ports.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlementSvc: settlementSvc}
}

// Execute handles POST /settlements/:id/execute.
func (h *SettlementHandler) Execute(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid settlement id"))
		return
	}

	settlement, err := h.settlementSvc.Execute(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, settlement)
}

// ExecutePending handles POST /settlements/execute-pending.
// Optional ?limit=N caps the batch size.
func (h *SettlementHandler) ExecutePending(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, apperror.Validation("invalid limit"))
			return
		}
		limit = parsed
	}

	completed, err := h.settlementSvc.ExecutePending(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"completed": completed})
}
