// Package ws streams vehicle events to websocket clients.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autopeer-io/agvfleet/internal/link"
	"github.com/autopeer-io/agvfleet/internal/pkg/metrics"
	"github.com/autopeer-io/agvfleet/pkg/log"
)

const (
	subscriberBuffer = 64
	pingInterval     = 20 * time.Second
	writeTimeout     = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Hub fans link events out to every connected client. A client that falls behind loses events
// rather than slowing the links down.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan link.Event]struct{}
	logger log.Logger
}

var _ link.Notifier = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[chan link.Event]struct{}),
		logger: log.WithName("ws"),
	}
}

func (h *Hub) Notify(e link.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			metrics.EventsDroppedTotal.WithLabelValues("ws").Inc()
		}
	}
}

// Subscribe registers a new receiver. The returned func unregisters it and closes the channel.
func (h *Hub) Subscribe() (<-chan link.Event, func()) {
	ch := make(chan link.Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Clients is the number of live subscriptions.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and streams events as JSON text messages until the client goes
// away or the request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, unsub := h.Subscribe()
	defer unsub()

	// Control frames are handled by the read side; it also notices the client leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	h.logger.Debug("websocket client connected", "remote", r.RemoteAddr)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(e); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
