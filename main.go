package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"signalrelaygo/internal/config"
	"signalrelaygo/internal/database/db_client"
	"signalrelaygo/internal/http/http_server"
	"signalrelaygo/internal/redis/redis_client"
	"signalrelaygo/internal/services/presence"
	"signalrelaygo/internal/store/roomevents"
	"signalrelaygo/internal/ws"

	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Room directory + connection registry
	hub := ws.NewHub()
	reg := ws.NewRegistry()

	// 4. Optional: Redis pub/sub bridge for multi-instance rooms
	var tap ws.BroadcastTap
	if cfg.RedisFanoutEnabled {
		redisClient, err := redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort))
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		tap = ws.NewFanout(redisClient, hub)
		Log.Debug("Redis fan-out enabled")
	}

	// 5. Optional: join/leave audit trail in Postgres
	var events ws.EventLog
	if cfg.EventLogEnabled {
		pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort,
			cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
		if err != nil {
			Log.Fatal("pg-open", zap.Error(err))
		}
		defer pgDb.Close()
		events = roomevents.Run(ctx, pgDb)
	}

	// 6. Message router + WS server
	router := ws.NewRouter(hub, reg, tap, events)
	wsSrv := ws.NewWsServer(hub, reg, router)

	// 7. REST presence service
	presenceSvc := presence.NewPresenceService(hub, reg)

	// 8. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, presenceSvc)
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			Log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	case <-ctx.Done():
		Log.Info("Shutting down")
		_ = httpServer.Dispose()
	}
}
