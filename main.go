package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JA50N14/course_reports/config"
	"github.com/JA50N14/course_reports/graph"
	"github.com/JA50N14/course_reports/pipeline"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load(logger)
	if err != nil {
		return fmt.Errorf("failed to initialize API config: %w", err)
	}

	p, err := newPipeline(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newServer(cfg, p).routes(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		cfg.Logger.Info("listening", "port", cfg.Port, "graph", cfg.Graph.Enabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newPipeline picks the template source and, when a Graph archive folder
// is configured, archives every generated document.
func newPipeline(cfg *config.ApiConfig) (*pipeline.Pipeline, error) {
	var (
		client *graph.Client
		opts   []pipeline.Option
	)
	if cfg.Graph.Enabled() {
		client = graph.NewClient(cfg)
		if cfg.Graph.ArchiveFolder != "" {
			opts = append(opts, pipeline.WithArchive(client))
		}
	}
	store := pipeline.NewTemplateStore(cfg.TemplateDir, client, cfg.Graph.TemplateFolder)
	return pipeline.New(cfg, store, opts...)
}
