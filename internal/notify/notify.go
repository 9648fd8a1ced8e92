// Package notify delivers match events to connected users. Delivery is
// best effort and happens after the settlement transaction commits;
// a failed or missing delivery never affects settlement.
package notify

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tradecore/exchange-api/internal/types"
)

// Notifier is the port the matching engine emits trades through, once
// per participant.
type Notifier interface {
	NotifyMatch(trade *types.Trade, userID uint)
}

// Nop discards all notifications. Used in tests and batch tools.
type Nop struct{}

func (Nop) NotifyMatch(*types.Trade, uint) {}

// matchEvent is the wire format pushed to websocket subscribers.
type matchEvent struct {
	Type string          `json:"type"`
	Data types.TradeView `json:"data"`
}

// Hub tracks websocket subscriptions per user and fans match events out
// to them.
type Hub struct {
	mu    sync.Mutex
	conns map[uint]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[uint]map[*websocket.Conn]struct{}),
	}
}

// NotifyMatch pushes the trade to every connection the user has open.
// Connections that fail to write are dropped.
func (h *Hub) NotifyMatch(trade *types.Trade, userID uint) {
	event := matchEvent{
		Type: "order_matched",
		Data: types.NewTradeView(trade),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns[userID] {
		if err := conn.WriteJSON(event); err != nil {
			log.Debug().
				Err(err).
				Uint("user_id", userID).
				Msg("dropping websocket subscriber after failed write")
			conn.Close()
			delete(h.conns[userID], conn)
		}
	}
}

func (h *Hub) register(userID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[userID][conn] = struct{}{}
}

func (h *Hub) unregister(userID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[userID], conn)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect cross-origin from the trading UI.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and subscribes the authenticated user to
// match events until the connection closes.
func (h *Hub) ServeWS() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userID")
		if userID == 0 {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		h.register(userID, conn)
		log.Debug().Uint("user_id", userID).Msg("websocket subscriber connected")

		// Drain the connection to observe the close; subscribers only
		// receive.
		go func() {
			defer func() {
				h.unregister(userID, conn)
				conn.Close()
				log.Debug().Uint("user_id", userID).Msg("websocket subscriber disconnected")
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
