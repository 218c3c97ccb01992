// Package gateway pushes committed position updates to WebSocket clients.
//
// The Hub is registered on the notification hub as an observer: on commit it
// re-reads the changed positions from the store and broadcasts one envelope
// per ticker plus a refreshed portfolio summary. Clients connecting
// mid-stream receive the full current state first.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"portfolio-enginev1/internal/portfolio"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Hub manages connected WebSocket clients and fans out update envelopes.
type Hub struct {
	store *portfolio.Store

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	// OnClientCount is an optional metrics hook, called with the connected
	// client count after every connect/disconnect.
	OnClientCount func(n int)
}

// NewHub creates a Hub over the given store.
func NewHub(store *portfolio.Store) *Hub {
	return &Hub{
		store:   store,
		clients: make(map[*Client]bool),
	}
}

// HandleWS upgrades an HTTP connection and registers the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	slog.Info("ws client connected", "total", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	go client.sendInitialState()
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	close(c.send)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnCommit implements the hub observer: re-read each changed ticker and
// broadcast its current state. Removed tickers produce a tombstone envelope.
func (h *Hub) OnCommit(ctx context.Context, changed []string) error {
	for _, ticker := range changed {
		if p, ok := h.store.Get(ticker); ok {
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			h.Broadcast("position:"+ticker, data)
			continue
		}
		h.Broadcast("position:"+ticker, []byte(`{"ticker":"`+ticker+`","removed":true}`))
	}

	sum, err := json.Marshal(h.store.Summary())
	if err != nil {
		return err
	}
	h.Broadcast("summary", sum)
	return nil
}

// Broadcast sends data on a channel to every connected client. Slow clients
// with a full send buffer drop the message instead of blocking the fan-out.
// Uses a hand-crafted JSON envelope to stay off json.Marshal on the hot path.
func (h *Hub) Broadcast(channel string, data []byte) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	buf := buildEnvelope(channel, data, time.Now().UTC(), seq)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- buf:
		default:
		}
	}
}

// buildEnvelope constructs the wire envelope:
//
//	{"channel":"...","data":{...},"ts":"...","seq":N}
func buildEnvelope(channel string, data []byte, ts time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}
