package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-agent/internal/di"
	"media-agent/internal/infrastructure/env"
)

func main() {
	envService := env.NewEnvService()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.NewContainer(ctx, di.Config{
		ProfilePath:  envService.GetDefault("SITE_PROFILE", "profiles/aistudio.yaml"),
		DataDir:      envService.GetDefault("DATA_DIR", "data"),
		StoreBackend: envService.GetDefault("STORE_BACKEND", "json"),
		Headless:     envService.GetBool("BROWSER_HEADLESS", true),
		SlowMotion:   envService.GetDuration("BROWSER_SLOW_MOTION", 500*time.Millisecond),
		LogLevel:     envService.GetDefault("LOG_LEVEL", "info"),
		ServiceName:  envService.GetDefault("SERVICE_NAME", "media-agent"),
	})
	if err != nil {
		log.Fatalf("initialization failed: %v", err)
	}

	addr := envService.GetDefault("HTTP_ADDR", ":8812")
	srv := &http.Server{
		Addr:    addr,
		Handler: container.HTTP.Router(),
	}

	go func() {
		container.Logger.Info("http server listening", "addr", addr,
			"site", container.Profile.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			container.Logger.Error("http server failed", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		container.Logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		container.Logger.Warn("http shutdown incomplete", "error", err)
	}
	container.Close(shutdownCtx)
}
