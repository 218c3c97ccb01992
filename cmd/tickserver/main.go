// cmd/tickserver — Demo WebSocket tick server.
// Broadcasts simulated tick data for running the engine without a real
// market data provider.
//
// Tick JSON shape is identical to model.Tick:
//
//	{"ticker":"005930","price":75000,"change_rate":0.05,"tick_ts":"..."}
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  — listen address (default: ":9001")
//	TICK_TICKERS      — comma-separated TICKER:STARTPRICE pairs (default: "005930:70000")
//	TICK_INTERVAL_MS  — broadcast interval milliseconds (default: "100")
//	TICK_TOTP_SECRET  — when set, clients must present a valid ?code= parameter
package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"portfolio-enginev1/internal/logger"
	"portfolio-enginev1/internal/model"
)

// instrument holds per-ticker simulation state.
type instrument struct {
	Ticker string
	Price  int64 // current simulated price
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type tickHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newTickHub() *tickHub {
	return &tickHub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *tickHub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *tickHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *tickHub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop tick
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *tickHub, totpSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if totpSecret != "" {
			code := r.URL.Query().Get("code")
			if !totp.Validate(code, totpSecret) {
				slog.Warn("rejected client with bad totp code", "remote", r.RemoteAddr)
				http.Error(w, "invalid code", http.StatusUnauthorized)
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("upgrade error", "err", err)
			return
		}
		slog.Info("client connected", "remote", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			slog.Info("client disconnected", "remote", r.RemoteAddr)
		}()

		// Write pump: sends tick JSON to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Tick generator ──────────────────────────────────────────────────────────

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price int64) int64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	delta := int64(float64(price) * pct)
	newPrice := price + delta
	if newPrice < 1 {
		newPrice = 1
	}
	return newPrice
}

func runGenerator(h *tickHub, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for i := range instruments {
			prev := instruments[i].Price
			instruments[i].Price = walkPrice(prev)

			changeRate := 0.0
			if prev > 0 {
				changeRate = (float64(instruments[i].Price)/float64(prev) - 1) * 100
			}

			msg := model.Tick{
				Ticker:     instruments[i].Ticker,
				Price:      instruments[i].Price,
				ChangeRate: changeRate,
				TickTS:     time.Now().UTC(),
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log := logger.Init("tickserver", slog.LevelInfo)
	log.Info("starting demo tick server")

	addr := envOrDefault("TICK_SERVER_ADDR", ":9001")
	tickersEnv := envOrDefault("TICK_TICKERS", "005930:70000")
	intervalMs := envIntOrDefault("TICK_INTERVAL_MS", 100)
	totpSecret := os.Getenv("TICK_TOTP_SECRET")

	instruments := parseInstruments(tickersEnv)
	if len(instruments) == 0 {
		log.Error("no instruments configured via TICK_TICKERS")
		os.Exit(1)
	}
	log.Info("simulation configured",
		"instruments", len(instruments), "interval_ms", intervalMs, "totp", totpSecret != "")

	h := newTickHub()
	go runGenerator(h, instruments, intervalMs)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(h, totpSecret))

	log.Info("listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}

// parseInstruments parses "TICKER:STARTPRICE,TICKER:STARTPRICE,..." pairs.
func parseInstruments(s string) []instrument {
	var result []instrument
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ":")
		if len(parts) != 2 {
			continue
		}
		price, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || price <= 0 {
			continue
		}
		result = append(result, instrument{Ticker: parts[0], Price: price})
	}
	return result
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
