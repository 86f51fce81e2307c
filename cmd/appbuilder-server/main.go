package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	server "github.com/kazz187/appbuilder/internal"
	"github.com/kazz187/appbuilder/internal/app"
	"github.com/kazz187/appbuilder/internal/config"
	"github.com/kazz187/appbuilder/internal/orchestrator"
	"github.com/kazz187/appbuilder/internal/pushnotification"
	pushsubrepo "github.com/kazz187/appbuilder/internal/pushsubscription/repositoryimpl"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}
	app.SetupLogger(env, os.Stderr)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, env)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("failed to close resources", "error", err)
		}
	}()

	if env.APIKey == "" {
		slog.Warn("APPBUILDER_API_KEY is empty, the API is unauthenticated")
	}

	if env.WatchAgentsFile {
		if err := a.Registry.Watch(ctx); err != nil {
			slog.Warn("agent registry hot reload disabled", "error", err)
		}
	}

	// Setup push notification
	pushSubRepo := pushsubrepo.NewYAMLRepository(a.Storage)
	vapidEnv := &env.VAPIDEnv
	pushSender := pushnotification.NewSender(vapidEnv, pushSubRepo)
	pushNotificationServer := pushnotification.NewServer(vapidEnv, pushSubRepo, pushSender)
	pushDispatcher := pushnotification.NewDispatcher(a.Bus, pushSender)

	projectServer := orchestrator.NewServer(a.Orchestrator, a.Repo, a.Storage, a.Reports, &env.ExportEnv)
	srv := server.NewServer(env, projectServer, pushNotificationServer, a.Metrics)

	go pushDispatcher.Start(ctx)

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
