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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/camayank/clientportal-realtime/internal/config"
	"github.com/camayank/clientportal-realtime/internal/directory"
	"github.com/camayank/clientportal-realtime/internal/logging"
	"github.com/camayank/clientportal-realtime/internal/metrics"
	"github.com/camayank/clientportal-realtime/internal/realtime"
	"github.com/camayank/clientportal-realtime/internal/server"
	"github.com/camayank/clientportal-realtime/internal/version"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupPostgres(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := directory.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := directory.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, registry *realtime.Registry, monitor *realtime.Monitor) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		monitor.Stop()
		registry.CloseAll("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	_ = godotenv.Load()

	clock := clockwork.NewRealClock()
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Realtime service starting", "env", cfg.AppEnv, "port", cfg.Port)

	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.BuildTime, info.GoVersion).Set(1)

	pool := setupPostgres(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	// External collaborators: the portal owns sessions, users, and projects.
	users := directory.NewPostgresDirectory(pool)
	projects := directory.NewBreakerProjectDirectory(users)
	sessionStore := directory.NewRedisSessionStore(redisClient)

	registry := realtime.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry, projects)
	dispatcher := realtime.NewDispatcher(broadcaster, clock)

	monitor := realtime.NewMonitor(registry, clock, realtime.DefaultProbeInterval)
	monitor.Start()

	auth := server.NewAuthenticator(cfg.SessionSecret, cfg.SessionCookieName, sessionStore, users, cfg.ExcludedSubprotocols)
	srv := server.NewServer(cfg, clock, registry, dispatcher, auth, pool, redisClient)

	done := runGracefulShutdown(srv, registry, monitor)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
