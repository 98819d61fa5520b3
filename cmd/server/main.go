package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcoot/tagmatch/internal/api"
	"github.com/mcoot/tagmatch/internal/factory"
)

func main() {
	env, err := factory.LoadEnv(".env")
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.LogLevel,
	}))
	slog.SetDefault(logger)

	cfg := env.Factory
	cfg.Logger = logger

	// Create application factory
	app, err := factory.New(cfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serverConfig := api.DefaultServerConfig()
	serverConfig.Addr = env.HTTPAddr
	server := api.NewServer(app.Router(), serverConfig, logger)
	if err := server.Listen(); err != nil {
		logger.Error("failed to listen", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Bring up the hosted match
	hostSession, err := app.HostAccount(ctx, env.HostName, env.HostUsername, env.HostPassword)
	if err != nil {
		logger.Error("failed to create host account", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := app.StartHosting(ctx, hostSession); err != nil {
		logger.Error("failed to start hosting", slog.String("error", err.Error()))
		os.Exit(1)
	}
	info := app.Orchestrator.Info()
	logger.Info("hosting match",
		slog.String("host", hostSession.Player.DisplayName),
		slog.String("join_code", info.JoinCode),
		slog.String("allocation_id", info.AllocationID),
		slog.String("registry_entry_id", info.RegistryEntryID),
	)
	if env.HostUsername == "" {
		// A guest host can only be driven through its session token
		logger.Info("host session", slog.String("session_token", hostSession.Token))
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started", slog.String("addr", server.Addr()))

	exitCode := 0
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			exitCode = 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	// End the match first so clients are told why they were dropped
	if err := app.Close(context.Background()); err != nil {
		logger.Error("failed to close application", slog.String("error", err.Error()))
		exitCode = 1
	}
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		exitCode = 1
	}

	logger.Info("server stopped")
	os.Exit(exitCode)
}
