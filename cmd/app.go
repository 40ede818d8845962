package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/duocall/duocall/internal/application/config"
	"github.com/duocall/duocall/internal/application/constant"
	"github.com/duocall/duocall/internal/application/metric"
	"github.com/duocall/duocall/internal/infra/adapters/memory"
	"github.com/duocall/duocall/internal/infra/adapters/postgres"
	"github.com/duocall/duocall/internal/infra/adapters/postgres/repository"
	"github.com/duocall/duocall/internal/infra/ports/http/handlers"
	"github.com/duocall/duocall/internal/infra/ports/http/server"
	"github.com/duocall/duocall/internal/rooms"
	"github.com/duocall/duocall/internal/usecase"
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: slog.LevelInfo},
			),
		),
	)

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	slog.Info("Running app", slog.Bool("debug", cfg.Debug))

	dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		slog.Error("connect to postgres", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer dbConn.Close()

	userRepo := repository.NewUserRepo(dbConn)
	wsConnRepo := memory.NewWSConnectionRepository()

	userUsecase := usecase.NewUserUsecase([]byte(cfg.JWTSecret), userRepo)

	manager := rooms.NewManager(wsConnRepo, cfg.RoomSweepInterval, cfg.RoomRetention)
	go manager.Run(ctx)

	authHandler := handlers.NewAuthHandler(userUsecase)
	iceHandler := handlers.NewIceHandler(cfg)
	roomHandler := handlers.NewRoomHandler(manager)
	wsHandler := handlers.NewWebSocketHandler(cfg, manager, userUsecase, wsConnRepo)

	echoSrv := server.New(cfg, authHandler, roomHandler, iceHandler, wsHandler)
	metricSrv := metric.NewServer()

	srvCh := make(chan (error), 1)
	go func() {
		srvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	go func() {
		if err := metricSrv.Start(":" + cfg.MetricPort); err != nil {
			slog.Error("metric server failed", slog.Any(constant.Error, err))
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down server due to context cancel")
	case err = <-srvCh:
		slog.Error(
			"HTTP server failed",
			slog.Any(constant.Error, err),
		)

		os.Exit(1)
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown server", slog.Any(constant.Error, err))
	}

	if err := metricSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}
}
