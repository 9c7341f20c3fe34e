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

	httpadapter "github.com/kirillkom/clinical-intake/internal/adapters/http"
	"github.com/kirillkom/clinical-intake/internal/bootstrap"
	"github.com/kirillkom/clinical-intake/internal/config"
	"github.com/kirillkom/clinical-intake/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(bootstrap.ServiceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, app.Pipeline, app.Store).WithMetrics(app.HTTPMetrics).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.ASRTimeout + cfg.ExtractionTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("api_listening",
			"port", cfg.APIPort,
			"store_driver", cfg.StoreDriver,
			"llm_provider", cfg.LLMProvider,
			"audio_archive", cfg.AudioArchive,
			"events_enabled", cfg.NATSURL != "",
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
