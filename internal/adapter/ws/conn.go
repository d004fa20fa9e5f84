package ws

import (
	"encoding/json"
	"time"

	"energy-trading-backend/internal/core/domain"
	"energy-trading-backend/internal/hub"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// writeWait is the deadline for a single outbound frame.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before the read
	// loop gives up on it.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait so the peer gets a chance
	// to answer before the deadline fires.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
)

// connection ties one websocket to its hub subscription. The write pump is
// the only goroutine that touches the socket for writes; the read pump owns
// the subscription lifetime.
type connection struct {
	ws     *websocket.Conn
	events *hub.Hub
	sub    *hub.Subscription
	// direct carries replies generated by the read loop (pong responses)
	// so they merge into the single writer.
	direct chan domain.Event
	log    zerolog.Logger
}

func newConnection(ws *websocket.Conn, events *hub.Hub, sub *hub.Subscription, log zerolog.Logger) *connection {
	return &connection{
		ws:     ws,
		events: events,
		sub:    sub,
		direct: make(chan domain.Event, 4),
		log:    log,
	}
}

func (c *connection) run() {
	go c.writePump()
	go c.readPump()
}

// writePump drains the hub subscription and keepalive ticker into the socket.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case event, ok := <-c.sub.Events():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub dropped us (eviction or unregister).
				c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteJSON(event); err != nil {
				c.log.Debug().Err(err).Str("user_id", c.sub.UserID.String()).Msg("websocket write failed")
				return
			}
		case event := <-c.direct:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client frames, answering application-level pings and
// refreshing the read deadline on protocol pongs. When it exits the
// subscription is unregistered and the socket closed.
func (c *connection) readPump() {
	defer func() {
		c.events.Unregister(c.sub)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Str("user_id", c.sub.UserID.String()).Msg("websocket closed unexpectedly")
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == string(domain.EventPing) {
			select {
			case c.direct <- domain.NewPong():
			default:
			}
		}
	}
}
