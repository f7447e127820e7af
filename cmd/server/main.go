package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/docparse/internal/api"
	"github.com/dgallion1/docparse/internal/config"
	"github.com/dgallion1/docparse/internal/pathstore"
	"github.com/dgallion1/docparse/internal/pipeline"
	"github.com/dgallion1/docparse/internal/stats"
)

func main() {
	cfg, err := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	ps := pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
	engineStats := stats.NewEngines(time.Hour)
	parser := pipeline.NewParserFromConfig(cfg, engineStats, log)

	for _, st := range parser.Registry().List() {
		if !st.Available {
			log.Warn("engine unavailable", "engine", st.ID, "reason", st.Reason)
		}
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, parser, ps, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(parser, orch, engineStats, log, cfg)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv,
		ReadTimeout: 60 * time.Second,
		// Synchronous parses of large scanned PDFs run OCR inside the request.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		ps.Close()
	}()

	log.Info("starting docparse", "port", cfg.Port, "workers", cfg.WorkerCount)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
