package cmd

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

	"github.com/spf13/cobra"

	"github.com/docsift/docsift/internal/chunk"
	"github.com/docsift/docsift/internal/config"
	"github.com/docsift/docsift/internal/embed"
	"github.com/docsift/docsift/internal/extract"
	"github.com/docsift/docsift/internal/indexer"
	"github.com/docsift/docsift/internal/jobs"
	"github.com/docsift/docsift/internal/lexical"
	"github.com/docsift/docsift/internal/logging"
	"github.com/docsift/docsift/internal/search"
	"github.com/docsift/docsift/internal/server"
	"github.com/docsift/docsift/internal/store"
	"github.com/docsift/docsift/internal/vector"
	"github.com/docsift/docsift/pkg/version"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the docsift server: the HTTP API plus the background job
worker that scans sources and indexes documents.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logging.Setup(os.Stderr, cfg.Server.LogLevel)
	slog.Info("starting docsift",
		slog.String("version", version.Version),
		slog.String("addr", cfg.Server.Addr),
		slog.String("data_dir", cfg.Storage.DataDir))

	meta, err := store.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer meta.Close()

	lex, err := lexical.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to open lexical index: %w", err)
	}
	defer lex.Close()

	vec, err := vector.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer vec.Close()

	embedder, err := embed.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	defer embedder.Close()

	splitter, err := chunk.NewSplitter(cfg.Ingestion.ChunkSizeTokens, cfg.Ingestion.ChunkOverlapTokens)
	if err != nil {
		return err
	}

	fetcher := extract.NewFetcher(cfg.WebFetch)
	registry := extract.NewRegistry(fetcher)

	idx := indexer.New(meta, lex, vec, embedder, registry, splitter, cfg.Ingestion.MaxFileMB)
	runner := jobs.NewRunner(meta, idx)
	searcher := search.New(meta, lex, vec, embedder, nil)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner.Start(ctx)
	defer runner.Stop()

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(meta, runner, searcher).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
