// cmd/engine — Real-time portfolio position engine.
//
// Pipeline: [Feed WS] → [Batcher] → [Store commit] → [Hub notify] →
// [Gateway WS push + Redis publish], with a REST API for position CRUD and
// reads, and a Prometheus metrics/health server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio-enginev1/config"
	"portfolio-enginev1/internal/api"
	"portfolio-enginev1/internal/engine"
	"portfolio-enginev1/internal/feed"
	"portfolio-enginev1/internal/gateway"
	"portfolio-enginev1/internal/hub"
	"portfolio-enginev1/internal/logger"
	"portfolio-enginev1/internal/metrics"
	"portfolio-enginev1/internal/model"
	"portfolio-enginev1/internal/notify"
	"portfolio-enginev1/internal/portfolio"
)

func main() {
	cfg := config.Load()
	log := logger.Init("engine", logger.ParseLevel(cfg.LogLevel))
	log.Info("starting position engine")

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Store, hub, engine ----
	store := portfolio.New()
	notifyHub := hub.New()
	notifyHub.OnObserverError = func(name string) {
		prom.ObserverErrors.WithLabelValues(name).Inc()
	}

	eng := engine.New(store, notifyHub)
	eng.OnApplied = func(n int) { prom.UpdatesApplied.Add(float64(n)) }
	eng.OnSkipped = func(n int) { prom.UpdatesSkipped.Add(float64(n)) }
	eng.OnNotify = func(int) { prom.NotifyTotal.Inc() }
	eng.OnInsert = func() {
		prom.InsertsTotal.Inc()
		prom.PositionsCount.Set(float64(store.Len()))
	}
	eng.OnRemove = func() {
		prom.RemovesTotal.Inc()
		prom.PositionsCount.Set(float64(store.Len()))
	}

	// ---- Seed positions from config ----
	for _, seed := range cfg.ParseSeeds() {
		if err := store.Insert(seed.Ticker, seed.Name, seed.Qty, seed.AvgPrice); err != nil {
			log.Warn("skipping seed position", "ticker", seed.Ticker, "err", err)
			continue
		}
		prom.InsertsTotal.Inc()
	}
	prom.PositionsCount.Set(float64(store.Len()))
	log.Info("store seeded", "positions", store.Len())

	// ---- Gateway WS push (observer #1) ----
	gw := gateway.NewHub(store)
	gw.OnClientCount = func(n int) { prom.WSClients.Set(float64(n)) }
	notifyHub.Register("gateway", gw.OnCommit)

	// ---- Redis publisher (observer #2, optional) ----
	publisher, err := notify.NewRedisPublisher(notify.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, store)
	if err != nil {
		log.Warn("redis unavailable, continuing without publisher", "err", err)
		health.SetRedisConnected(false)
	} else {
		defer publisher.Close()
		publisher.OnPublish = func(took time.Duration) {
			prom.RedisPublishDur.Observe(took.Seconds())
		}
		notifyHub.Register("redis", publisher.OnCommit)
		health.SetRedisConnected(true)
		health.StartLivenessChecker(ctx, publisher.Client(), 10*time.Second)
	}

	// ---- Batcher consuming the tick stream ----
	tickCh := make(chan model.Tick, 10000)
	batcher := engine.NewBatcher(eng, cfg.BatchMaxSize, time.Duration(cfg.BatchFlushMs)*time.Millisecond)
	batcher.OnFlush = func(n int, took time.Duration) {
		prom.BatchSize.Observe(float64(n))
		prom.BatchCommitDur.Observe(took.Seconds())
	}
	go batcher.Run(ctx, tickCh)

	// ---- Feed ingest ----
	ingest, err := feed.New(feed.Config{
		URL:        cfg.FeedWSURL,
		TOTPSecret: cfg.FeedTOTPSecret,
	})
	if err != nil {
		log.Error("feed init failed", "err", err)
		os.Exit(1)
	}
	ingest.OnReconnect = func() {
		prom.FeedReconnects.Inc()
		health.SetFeedConnected(false)
	}
	ingest.OnTick = func() {
		prom.TicksTotal.Inc()
		health.SetFeedConnected(true)
		health.SetLastTickTime(time.Now())
	}
	go func() {
		if err := ingest.Start(ctx, tickCh); err != nil {
			log.Error("feed ingest stopped", "err", err)
			health.SetFeedConnected(false)
		}
	}()
	log.Info("feed ingest started", "url", cfg.FeedWSURL)

	// ---- HTTP API + gateway WS ----
	apiSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewRouter(eng, gw),
	}
	go func() {
		log.Info("api server listening", "addr", cfg.HTTPAddr)
		if err := apiSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("api server error", "err", err)
		}
	}()

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Info("shutdown signal received, cleaning up")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	log.Info("shutdown complete")
}
