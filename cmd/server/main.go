package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alperenkursun/anonymous-chat-app/internal/app"
	"github.com/alperenkursun/anonymous-chat-app/internal/bus"
	"github.com/alperenkursun/anonymous-chat-app/internal/config"
	"github.com/alperenkursun/anonymous-chat-app/internal/domain"
	"github.com/alperenkursun/anonymous-chat-app/internal/logging"
	appredis "github.com/alperenkursun/anonymous-chat-app/internal/redis"
	"github.com/alperenkursun/anonymous-chat-app/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupBus picks the broadcast backend: Redis Pub/Sub when REDIS_URL is
// set (instances share one stream), otherwise the in-process bus.
func setupBus(ctx context.Context, cfg *config.Config) (domain.Bus, *bus.Bus, *appredis.Client) {
	if cfg.RedisURL == "" {
		memBus := bus.New(cfg.BusBufferSize, cfg.OverflowPolicy)
		slog.Info("Using in-memory broadcast bus")
		return memBus, memBus, nil
	}

	client, err := appredis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("Using Redis-backed broadcast bus")
	return appredis.NewBus(client, cfg.BusBufferSize, cfg.OverflowPolicy), nil, client
}

func runGracefulShutdown(srv *server.Server, memBus *bus.Bus, redisClient *appredis.Client) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		if memBus != nil {
			memBus.Stop()
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				slog.Error("Failed to close Redis client", "error", err)
			}
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	b, memBus, redisClient := setupBus(connectCtx, cfg)
	cancel()

	factory := domain.NewMessageFactory(clock)
	appSvc := app.NewService(factory, b, cfg.SubmitRate, cfg.SubmitBurst)

	srv := server.NewServer(cfg, appSvc, b, redisClient, clock)

	done := runGracefulShutdown(srv, memBus, redisClient)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
