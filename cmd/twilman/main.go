package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/twilman/twilman/internal/adapter/driven/jsonfile"
	twilioadapter "github.com/twilman/twilman/internal/adapter/driven/twilio"
	httphandler "github.com/twilman/twilman/internal/adapter/driving/http"
	"github.com/twilman/twilman/internal/application"
	"github.com/twilman/twilman/internal/config"
	"github.com/twilman/twilman/internal/domain/model"
	"github.com/twilman/twilman/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"store_path", cfg.StorePath,
		"http_timeout", cfg.HTTPTimeout,
		"inactive_days", cfg.InactiveDays,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Wire the credential store and account registry. A corrupt store is
	// recoverable: the server starts with no accounts and account writes
	// replace the file.
	store := jsonfile.NewStore(cfg.StorePath)
	registry := application.NewAccountRegistry(store)
	if err := registry.Reload(ctx); err != nil {
		if errors.Is(err, driven.ErrCorruptStore) {
			slog.Warn("credential store is corrupt, starting with no accounts",
				"path", cfg.StorePath,
				"error", err,
			)
		} else {
			return err
		}
	}
	slog.Info("account registry loaded", "accounts", len(registry.List()))

	// 4. Create the fetch service with a per-account client factory.
	newClient := func(acc model.Account) driven.TelephonyClient {
		return twilioadapter.NewClient(acc, cfg.HTTPTimeout)
	}
	fetchSvc := application.NewFetchService(registry, newClient, cfg.InactiveLookbackDays)

	// 5. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(registry, fetchSvc, cfg.InactiveDays, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("twilman started", "listen_addr", cfg.ListenAddr)

	// 6. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 7. Graceful shutdown with 10s timeout to drain in-flight fetches.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
