package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/teamhub/internal/app/bootstrap"
	httpx "github.com/splax/teamhub/internal/http"
	"github.com/splax/teamhub/internal/notify"
	"github.com/splax/teamhub/internal/service/team"
	"github.com/splax/teamhub/internal/ws"
	"github.com/splax/teamhub/pkg/config"
	"github.com/splax/teamhub/pkg/logger"
)

func main() {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		logger.New("api", "development", "info").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New("api", cfg.Environment, cfg.LogLevel)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	rdb, err := bootstrap.OpenRedis(ctx, cfg)
	if err != nil {
		log.Warn("redis unavailable; notifications and rate limits stay local", "error", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	hub := ws.NewHub()
	defer hub.Close()

	inbox := notify.NewStoreSink(store)
	local := notify.NewHubSink(hub)
	var sink notify.Sink = notify.Multi{inbox, local}
	limiter := httpx.NewMemoryRateLimiter()
	if rdb != nil {
		sink = notify.Multi{inbox, notify.NewRedisPublisher(rdb, cfg.NotifyChannel)}
		relay := notify.NewRedisRelay(rdb, cfg.NotifyChannel, local, log)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("notification relay stopped", "error", err)
			}
		}()
		limiter.Close()
		limiter = httpx.NewRedisRateLimiter(rdb, log)
	}

	metrics, err := team.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		log.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}
	teamSvc := team.New(store, sink, log, metrics)

	router := httpx.NewRouter(log, teamSvc, hub, inbox, limiter, httpx.Settings{
		JWTSecret:      cfg.JWTSecret,
		StoreTimeout:   cfg.StoreTimeout,
		RateLimitWrite: cfg.RateLimitWrite,
		RateLimitRead:  cfg.RateLimitRead,
	}, store.Health)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "store", store.Driver)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
