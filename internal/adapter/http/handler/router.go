package handler

import (
	"energy-trading-backend/internal/adapter/http/middleware"
	"energy-trading-backend/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// RouterDeps carries everything the router needs. The WebSocket handler is
// injected as a plain gin.HandlerFunc so this package stays free of hub
// dependencies.
type RouterDeps struct {
	SettlementSvc  ports.SettlementService
	WalletSvc      ports.WalletService
	TokenSvc       ports.TokenService
	WSHandler      gin.HandlerFunc
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter wires all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.MaxBodySize(maxRequestBodyBytes))

	settlementHandler := NewSettlementHandler(deps.SettlementSvc)
	walletHandler := NewWalletHandler(deps.WalletSvc)

	router.GET("/health", HealthCheck(deps.HealthCheckers...))
	router.GET("/ws", deps.WSHandler)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.JWTAuth(deps.TokenSvc, deps.Logger))
	{
		settlements := v1.Group("/settlements")
		{
			settlements.POST("/:id/execute", settlementHandler.Execute)
			settlements.POST("/execute-pending", settlementHandler.ExecutePending)
		}

		wallets := v1.Group("/wallets")
		{
			wallets.POST("", walletHandler.Provision)
			wallets.GET("/balance", walletHandler.GetBalance)
		}
	}

	return router
}
