package handler

import (
	"energy-trading-backend/internal/adapter/http/middleware"
	"energy-trading-backend/internal/core/ports"
	"energy-trading-backend/pkg/apperror"
	"energy-trading-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler exposes custodial wallet endpoints.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// Provision handles POST /wallets. One custodial wallet per user.
func (h *WalletHandler) Provision(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	record, err := h.walletSvc.Provision(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, gin.H{
		"user_id":    record.UserID,
		"address":    record.Address,
		"created_at": record.CreatedAt,
	})
}

// GetBalance handles GET /wallets/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	tokens, err := h.walletSvc.TokenBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	lamports, err := h.walletSvc.NativeBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"energy_tokens": tokens.String(),
		"lamports":      lamports,
	})
}

// authenticatedUser pulls the user ID set by the JWT middleware.
func authenticatedUser(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get(middleware.CtxUserID)
	if !exists {
		return uuid.Nil, false
	}
	userID, ok := raw.(uuid.UUID)
	return userID, ok
}
