package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "chess-coordinator/internal/api/http"
	"chess-coordinator/internal/api/ws"
	"chess-coordinator/internal/config"
	"chess-coordinator/internal/game"
	"chess-coordinator/internal/room"
	"chess-coordinator/internal/settlement"
	"chess-coordinator/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

// @title Chess Match Coordinator API
// @version 1.0
// @description Real-time two-player chess rooms over websocket with outcome settlement
// @BasePath /
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logger := newLogger(cfg)
	log := logrus.NewEntry(logger)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("coordinator stopped")
	}
	log.Info("coordinator stopped")
}

func newLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if level < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	return logger
}

func run(cfg config.Config, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, closeLedger, err := openLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLedger()

	var svc settlement.Service
	if cfg.Settlement.URL != "" {
		svc = settlement.NewHTTPService(cfg.Settlement.URL, cfg.Settlement.Timeout)
		log.WithField("url", cfg.Settlement.URL).Info("settling outcomes over http")
	} else {
		svc = settlement.NewLogService(log)
		log.Warn("SETTLEMENT_URL not set, outcomes are only logged")
	}
	dispatcher := settlement.NewDispatcher(svc, ledger, settlement.Options{
		AttemptTimeout: cfg.Settlement.Timeout,
		MaxAttempts:    cfg.Settlement.MaxAttempts,
		InitialBackoff: cfg.Settlement.InitialBackoff,
		MaxElapsed:     cfg.Settlement.MaxElapsed,
	}, log)

	hub := ws.NewHub(log, cfg.AllowedOrigins)
	registry := room.NewRegistry(game.NewChessOracle(), hub, dispatcher, room.Options{
		ReconnectWindow: cfg.Rooms.ReconnectWindow,
		GracePeriod:     cfg.Rooms.GracePeriod,
		SweepInterval:   cfg.Rooms.SweepInterval,
		MaxRooms:        cfg.Rooms.MaxRooms,
	}, log)
	hub.SetRoomManager(registry)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(registry, ledger, hub, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return registry.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// websocket connections are hijacked and survive srv.Shutdown
		hub.Close()
		err := srv.Shutdown(shutdownCtx)
		registry.Close()
		if derr := dispatcher.Close(shutdownCtx); derr != nil {
			log.WithError(derr).Warn("settlements still in flight at shutdown")
		}
		return err
	})
	return g.Wait()
}

func openLedger(ctx context.Context, cfg config.Config, log *logrus.Entry) (settlement.Ledger, func(), error) {
	if cfg.RedisURL == "" {
		log.Info("settlement failures kept in memory")
		return store.NewMemoryStore(), func() {}, nil
	}
	client, err := store.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info("settlement failures recorded in redis")
	return store.NewRedisStore(client, cfg.RedisKeyPrefix), func() { _ = client.Close() }, nil
}
