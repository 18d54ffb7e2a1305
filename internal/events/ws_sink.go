package events

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"kaya/internal/logging"
)

// WebSocketSink broadcasts every event as a single JSON text frame to
// 0..N connected subscribers (§4.11, §6). Subscribers connect over plain
// HTTP upgraded to a WebSocket; disconnects are detected lazily, on the
// next failed write.
type WebSocketSink struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]chan Event
	upgrader websocket.Upgrader
}

// NewWebSocketSink creates an empty hub. Call ServeHTTP from an http.Server
// to accept subscriber connections.
func NewWebSocketSink() *WebSocketSink {
	return &WebSocketSink{
		clients: make(map[*websocket.Conn]chan Event),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (w *WebSocketSink) Name() string { return "websocket" }

// ServeHTTP upgrades the connection and registers it as a subscriber.
func (w *WebSocketSink) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		logging.Get(logging.CategoryEvents).Warn("websocket upgrade failed: %v", err)
		return
	}
	ch := make(chan Event, 64)
	w.mu.Lock()
	w.clients[conn] = ch
	w.mu.Unlock()

	go w.writeLoop(conn, ch)
}

func (w *WebSocketSink) writeLoop(conn *websocket.Conn, ch chan Event) {
	defer func() {
		w.mu.Lock()
		delete(w.clients, conn)
		w.mu.Unlock()
		conn.Close()
	}()
	for evt := range ch {
		data, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// Handle fans the event out to every connected subscriber without blocking
// on a slow one (a full per-client buffer drops that client's copy of
// this event, not the event itself).
func (w *WebSocketSink) Handle(evt Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, ch := range w.clients {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscriberCount reports how many WebSocket clients are currently connected.
func (w *WebSocketSink) SubscriberCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.clients)
}

// Close disconnects every subscriber.
func (w *WebSocketSink) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for conn, ch := range w.clients {
		close(ch)
		conn.Close()
		delete(w.clients, conn)
	}
}
