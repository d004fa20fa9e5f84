package handler

import (
	"context"
	"net/http"
	"time"

	"energy-trading-backend/internal/core/ports"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports the status of each backing dependency. Returns 503
// when any dependency is unreachable so load balancers can drain the node.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		httpStatus := http.StatusOK
		deps := make(map[string]string, len(checkers))

		for _, checker := range checkers {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
			err := checker.Ping(ctx)
			cancel()
			if err != nil {
				deps[checker.Name()] = "unreachable"
				status = "degraded"
				httpStatus = http.StatusServiceUnavailable
				continue
			}
			deps[checker.Name()] = "ok"
		}

		c.JSON(httpStatus, gin.H{
			"status":       status,
			"dependencies": deps,
			"timestamp":    time.Now().UTC(),
		})
	}
}
