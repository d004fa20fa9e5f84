package ws

import (
	"net/http"

	"energy-trading-backend/internal/core/ports"
	"energy-trading-backend/internal/hub"
	"energy-trading-backend/pkg/apperror"
	"energy-trading-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Handler upgrades authenticated clients onto the notification hub.
type Handler struct {
	events   *hub.Hub
	tokenSvc ports.TokenService
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler creates a websocket handler.
func NewHandler(events *hub.Hub, tokenSvc ports.TokenService, log zerolog.Logger) *Handler {
	return &Handler{
		events:   events,
		tokenSvc: tokenSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients cannot set custom headers on websocket
			// connects, so origin enforcement happens at the proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Serve handles GET /ws?token=<jwt>. The token is validated before the
// upgrade: an invalid token gets a plain 401, never a websocket close frame.
func (h *Handler) Serve(c *gin.Context) {
	claims, err := h.tokenSvc.Validate(c.Query("token"))
	if err != nil {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := h.events.Register(claims.UserID)
	h.log.Info().Str("user_id", claims.UserID.String()).Msg("websocket client connected")

	newConnection(ws, h.events, sub, h.log).run()
}
