package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the position engine.
type Metrics struct {
	TicksTotal     prometheus.Counter
	UpdatesApplied prometheus.Counter
	UpdatesSkipped prometheus.Counter
	InsertsTotal   prometheus.Counter
	RemovesTotal   prometheus.Counter

	BatchSize      prometheus.Histogram
	BatchCommitDur prometheus.Histogram

	NotifyTotal    prometheus.Counter
	ObserverErrors *prometheus.CounterVec // labels: observer

	FeedReconnects  prometheus.Counter
	WSClients       prometheus.Gauge
	RedisPublishDur prometheus.Histogram

	PositionsCount prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_ticks_total",
			Help: "Total ticks received from the feed",
		}),
		UpdatesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_updates_applied_total",
			Help: "Price updates applied to tracked positions",
		}),
		UpdatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_updates_skipped_total",
			Help: "Ticks skipped (unknown ticker or invalid price)",
		}),
		InsertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_inserts_total",
			Help: "Positions inserted",
		}),
		RemovesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_removes_total",
			Help: "Positions removed",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_batch_size",
			Help:    "Ticks per committed batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		BatchCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_batch_commit_duration_seconds",
			Help:    "Store lock window duration per batch",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		NotifyTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_notifications_total",
			Help: "Post-commit notification rounds",
		}),
		ObserverErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_observer_errors_total",
			Help: "Observer failures (error or panic), isolated per observer",
		}, []string{"observer"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_feed_reconnects_total",
			Help: "Feed WebSocket reconnection attempts",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_ws_clients",
			Help: "Connected gateway WebSocket clients",
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_redis_publish_duration_seconds",
			Help:    "Redis publish pipeline latency",
			Buckets: prometheus.DefBuckets,
		}),
		PositionsCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_positions",
			Help: "Number of tracked positions",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.UpdatesApplied,
		m.UpdatesSkipped,
		m.InsertsTotal,
		m.RemovesTotal,
		m.BatchSize,
		m.BatchCommitDur,
		m.NotifyTotal,
		m.ObserverErrors,
		m.FeedReconnects,
		m.WSClients,
		m.RedisPublishDur,
		m.PositionsCount,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool
	LastTickTime   time.Time
	RedisConnected bool
	RedisLatencyMs float64
	LastCheckAt    time.Time
	StartedAt      time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if rdb != nil {
					probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
					h.CheckRedis(probeCtx, rdb)
					cancel()
				}
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.FeedConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		FeedConnected  bool    `json:"feed_connected"`
		LastTickTime   string  `json:"last_tick_time"`
		TickAge        string  `json:"tick_age"`
		RedisConnected bool    `json:"redis_connected"`
		RedisLatencyMs float64 `json:"redis_latency_ms"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:  h.FeedConnected,
		LastTickTime:   h.LastTickTime.Format(time.RFC3339),
		TickAge:        tickAge,
		RedisConnected: h.RedisConnected,
		RedisLatencyMs: h.RedisLatencyMs,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "err", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
