// Package feed provides the WebSocket ingest client that streams price
// ticks into the engine pipeline.
//
// The expected JSON message format on the wire is identical to model.Tick:
//
//	{"ticker":"005930","price":75000,"change_rate":2.5,"tick_ts":"..."}
//
// When a TOTP secret is configured, each connection attempt appends a fresh
// one-time code so the tick server can authenticate the session.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"portfolio-enginev1/internal/model"
)

// Config holds configuration for the feed ingest.
type Config struct {
	// URL of the tick WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// TOTPSecret, when non-empty, enables the one-time-code handshake.
	TOTPSecret string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest connects to a JSON tick WebSocket server and pushes model.Tick
// values into a channel, reconnecting with exponential backoff.
type Ingest struct {
	cfg Config

	// Optional hook — called each time a reconnection happens.
	OnReconnect func()

	// Optional hook — called for every tick pushed into the channel.
	OnTick func()
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("feed: parse url: %w", err)
	}
	return &Ingest{cfg: cfg}, nil
}

// Start connects to the tick server and streams ticks into tickCh.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Start(ctx context.Context, tickCh chan<- model.Tick) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, tickCh)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		slog.Warn("feed disconnected", "err", err, "retry_in", delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// dialURL returns the connect URL, with a fresh TOTP code appended when the
// handshake is enabled.
func (ing *Ingest) dialURL() (string, error) {
	if ing.cfg.TOTPSecret == "" {
		return ing.cfg.URL, nil
	}
	code, err := totp.GenerateCode(ing.cfg.TOTPSecret, time.Now())
	if err != nil {
		return "", fmt.Errorf("feed: generate totp: %w", err)
	}
	u, err := url.Parse(ing.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("feed: parse url: %w", err)
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel.
func (ing *Ingest) runOnce(ctx context.Context, tickCh chan<- model.Tick) error {
	target, err := ing.dialURL()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	slog.Info("feed connected", "url", ing.cfg.URL)

	// Async context watcher — closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		tick, err := DecodeTick(raw)
		if err != nil {
			slog.Warn("feed parse error", "err", err, "raw", string(raw))
			continue
		}

		select {
		case tickCh <- tick:
			if ing.OnTick != nil {
				ing.OnTick()
			}
		default:
			slog.Warn("tick channel full, dropping tick", "ticker", tick.Ticker)
		}
	}
}

// DecodeTick parses one wire message into a model.Tick.
// Ticks without a ticker are rejected.
func DecodeTick(raw []byte) (model.Tick, error) {
	var tick model.Tick
	if err := json.Unmarshal(raw, &tick); err != nil {
		return model.Tick{}, err
	}
	if tick.Ticker == "" {
		return model.Tick{}, fmt.Errorf("tick with empty ticker")
	}
	return tick, nil
}
