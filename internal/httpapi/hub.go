package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	sessiondto "uvfleet/internal/modules/session/dto"
	"uvfleet/internal/platform/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
)

// Envelope is one websocket frame.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub pushes session state and outcome events to websocket clients. A client
// that falls behind by more than its buffer is disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(logger zerolog.Logger, allowedOrigins []string) *Hub {
	allowed := map[string]struct{}{}
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		logger:  logger.With().Str("component", "ws").Logger(),
		clients: map[*client]struct{}{},
	}
}

func (h *Hub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.register(cl)
	go h.writeLoop(cl)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(cl)
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[cl] = struct{}{}
	h.logger.Debug().Int("clients", len(h.clients)).Msg("client connected")
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	close(cl.send)
	h.logger.Debug().Int("clients", len(h.clients)).Msg("client disconnected")
}

func (h *Hub) writeLoop(cl *client) {
	defer cl.conn.Close()
	for data := range cl.send {
		_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug().Err(err).Msg("websocket write failed")
			h.unregister(cl)
			return
		}
	}
	_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) Broadcast(kind string, data any) {
	payload, err := json.Marshal(Envelope{Type: kind, Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("type", kind).Msg("could not encode event")
		return
	}
	h.mu.RLock()
	var slow []*client
	for cl := range h.clients {
		select {
		case cl.send <- payload:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()
	for _, cl := range slow {
		h.logger.Warn().Msg("dropping slow websocket client")
		h.unregister(cl)
	}
}

// Run forwards both subscriptions to clients until ctx ends, then closes
// every connection.
func (h *Hub) Run(ctx context.Context, states *events.Subscription[sessiondto.StateEvent], outcomes *events.Subscription[sessiondto.OutcomeEvent]) {
	defer states.Close()
	defer outcomes.Close()
	stateCh, outcomeCh := states.Events(), outcomes.Events()
	for stateCh != nil || outcomeCh != nil {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-stateCh:
			if !ok {
				stateCh = nil
				continue
			}
			h.Broadcast("session.state", ev)
		case ev, ok := <-outcomeCh:
			if !ok {
				outcomeCh = nil
				continue
			}
			h.Broadcast("session.outcome", ev)
		}
	}
	h.closeAll()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
