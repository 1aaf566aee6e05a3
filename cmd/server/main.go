// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/cache"
	"github.com/jason-s-yu/lobbyd/internal/config"
	"github.com/jason-s-yu/lobbyd/internal/gateway"
	"github.com/jason-s-yu/lobbyd/internal/handlers"
	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/session"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}

func newLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

func newSigner(cfg config.Config) (*auth.Signer, error) {
	if cfg.TokenKeyPath != "" {
		return auth.NewSignerFromSeed(cfg.TokenKeyPath, cfg.TokenExpire)
	}
	return auth.NewSigner(cfg.TokenExpire)
}

func run(cfg config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signer, err := newSigner(cfg)
	if err != nil {
		return err
	}

	var bridge *cache.Bridge
	var engine lobby.Engine = lobby.LogEngine{Logger: logger}
	if cfg.RedisEnabled() {
		bridge, err = cache.Connect(ctx, cache.Options{
			Addr:          cfg.RedisAddr,
			DB:            cfg.RedisDB,
			HandoffQueue:  cfg.HandoffQueue,
			ActionQueue:   cfg.ActionQueue,
			OutputChannel: cfg.GameOutputChannel,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		defer bridge.Close()
		engine = bridge
		logger.Infof("Game engine bridge connected to Redis at %s", cfg.RedisAddr)
	} else {
		logger.Warn("REDIS_ADDR not set, game handoffs are only logged")
	}

	// Lobby actors outlive the signal context so Shutdown can close them
	// with a final broadcast.
	lobbyCtx, cancelLobbies := context.WithCancel(context.Background())
	defer cancelLobbies()

	sessions := session.NewManager(cfg.OutboxSize, logger)
	registry := lobby.NewRegistry(lobbyCtx, lobby.Options{
		Settings: lobby.Settings{
			CountdownSeconds: cfg.CountdownSeconds,
			CountdownTick:    cfg.CountdownTick,
			DisconnectGrace:  cfg.DisconnectGrace,
			InboxSize:        lobby.DefaultSettings().InboxSize,
		},
		IdleTimeout:   cfg.IdleTimeout,
		SweepInterval: cfg.SweepInterval,
		Transport:     sessions,
		Engine:        engine,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: handlers.Routes(&handlers.Server{
			Registry:       registry,
			Sessions:       sessions,
			Gateway:        gateway.New(registry, sessions, logger),
			Signer:         signer,
			Logger:         logger,
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return registry.Run(gctx)
	})
	if bridge != nil {
		g.Go(func() error {
			return bridge.RunPublisher(gctx)
		})
		g.Go(func() error {
			return bridge.RunRelay(gctx, registry)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := registry.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("lobby shutdown incomplete")
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
