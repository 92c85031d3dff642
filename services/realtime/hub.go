package realtimesvc

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sorobanclub/backend/core"
	"github.com/sorobanclub/backend/core/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 16
)

// envelope is the wire format of every event pushed to observers.
type envelope struct {
	Event   string      `json:"event"`
	Channel string      `json:"channel"`
	Payload interface{} `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan envelope
}

// Hub fans session events out to websocket observers subscribed by channel.
// Delivery is best-effort: a slow client gets dropped, never blocks an Emit.
type Hub struct {
	logger   core.Logger
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[session.Channel]map[*client]bool
}

var _ session.Emitter = (*Hub)(nil)

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// cross-origin browsers are fine; auth happens before the upgrade
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subs: make(map[session.Channel]map[*client]bool),
	}
}

func (h *Hub) Emit(event string, payload interface{}, channels ...session.Channel) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range channels {
		env := envelope{Event: event, Channel: string(ch), Payload: payload}
		for cl := range h.subs[ch] {
			select {
			case cl.send <- env:
			default:
				// client too slow; it will be reaped by its write pump
			}
		}
	}
}

// Subscribe upgrades the request and serves the connection until the client
// goes away. Blocks; call from an HTTP handler.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, channels ...session.Channel) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	cl := &client{conn: conn, send: make(chan envelope, sendBufferSize)}
	h.register(cl, channels)

	go h.writePump(cl)
	h.readPump(cl)

	h.unregister(cl, channels)
	return nil
}

func (h *Hub) register(cl *client, channels []session.Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range channels {
		if h.subs[ch] == nil {
			h.subs[ch] = make(map[*client]bool)
		}
		h.subs[ch][cl] = true
	}
}

func (h *Hub) unregister(cl *client, channels []session.Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range channels {
		delete(h.subs[ch], cl)
		if len(h.subs[ch]) == 0 {
			delete(h.subs, ch)
		}
	}
	close(cl.send)
}

// readPump discards inbound frames; the protocol is push-only. It exists to
// process control messages and detect disconnects.
func (h *Hub) readPump(cl *client) {
	defer func() { _ = cl.conn.Close() }()

	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("realtime: read failed", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case env, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			body, err := json.Marshal(env)
			if err != nil {
				h.logger.Error("realtime: encoding event failed", err)
				continue
			}
			if err = cl.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
