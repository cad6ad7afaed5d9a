package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vpanel/economy-engine/internal/metrics"
	"github.com/vpanel/economy-engine/internal/model"
)

// WSMessage is a JSON message pushed to WebSocket clients: live big
// wins, draw reports, and surprise events.
type WSMessage struct {
	Type string `json:"type"`
	Date string `json:"date,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Hub manages WebSocket connections and pushes economy events to all
// connected panel clients. It also implements Dispatcher, so draw
// reports reach open browsers without extra wiring.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewHub creates a WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			slog.Info("ws client connected", "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// DrawReport implements Dispatcher by broadcasting the settlement. A
// surprise event riding the report also goes out as its own message, so
// clients can animate it without digging through the report payload.
func (h *Hub) DrawReport(_ context.Context, report *model.DrawReport) error {
	h.send(WSMessage{Type: "draw_report", Date: report.Date, Data: report})
	if report.Surprise != nil {
		h.BroadcastSurprise(report.Surprise)
	}
	return nil
}

// Alert implements Dispatcher. Operator alerts never reach the public
// feed.
func (h *Hub) Alert(context.Context, string, error) error { return nil }

// BroadcastBigWin pushes a fresh big-win feed entry.
func (h *Hub) BroadcastBigWin(record model.GameRecord) {
	h.send(WSMessage{Type: "big_win", Data: record})
}

// BroadcastSurprise pushes a fired surprise event.
func (h *Hub) BroadcastSurprise(event *model.SurpriseEvent) {
	h.send(WSMessage{Type: "surprise", Data: event})
}

func (h *Hub) send(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full to avoid blocking settlement.
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Panel and engine share an origin behind the proxy.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	h.register <- conn

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
