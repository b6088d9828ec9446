package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/artribune/internal/api"
	"github.com/kalambet/artribune/internal/auth"
	"github.com/kalambet/artribune/internal/config"
	"github.com/kalambet/artribune/internal/graph"
	"github.com/kalambet/artribune/internal/ollama"
	"github.com/kalambet/artribune/internal/query"
	"github.com/kalambet/artribune/internal/search"
	"github.com/kalambet/artribune/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP tool server on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app holds the wired components shared by the HTTP and MCP front ends.
type app struct {
	store  *storage.Store
	router *query.Router
	logger *slog.Logger
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	driver, err := storage.ParseDialect(cfg.Storage.Driver)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Options{
		Driver:         driver,
		DSN:            cfg.Storage.DSN,
		DataDir:        cfg.Storage.DataDir,
		PoolSize:       cfg.Storage.PoolSize,
		AcquireTimeout: cfg.Storage.AcquireTimeout.Std(),
		RetryAttempts:  cfg.Storage.RetryAttempts,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	var index search.VectorIndex
	switch cfg.Vector.Backend {
	case "pgvector":
		idx, err := search.NewPgVectorIndex(ctx, store, cfg.Vector.Dimensions)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("opening vector index: %w", err)
		}
		index = idx
	default:
		index = search.NewSQLiteIndex(store)
	}

	oc := ollama.New(cfg.Embedding.BaseURL)
	go func() {
		if err := ollama.EnsureModel(ctx, oc, cfg.Embedding.Model, logger); err != nil && ctx.Err() == nil {
			logger.Warn("embedding model not ready, semantic search will degrade", "model", cfg.Embedding.Model, "error", err)
		}
	}()
	embedder := search.NewOllamaEmbedder(oc, cfg.Embedding.Model, cfg.Embedding.RatePerSecond)

	lexical := search.NewLexicalSearcher(store, cfg.Search.MaxLimit)
	semantic := search.NewSemanticSearcher(embedder, index, store, cfg.Search.MaxLimit, cfg.Search.VectorCandidates)
	profiles := graph.NewAggregator(store, cfg.Graph.CategoryCap, logger)

	router := query.New(lexical, semantic, store, profiles, query.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		ProfileLimit: cfg.Graph.DefaultLimit,
		Weights: search.Weights{
			Lexical:  cfg.Search.WeightLexical,
			Semantic: cfg.Search.WeightSemantic,
		},
		SubsearchTimeout: cfg.Search.SubsearchTimeout.Std(),
	}, logger)

	return &app{store: store, router: router, logger: logger}, nil
}

func (a *app) Close() {
	stats := a.store.Pool().Stats()
	a.logger.Info("closing storage", "pool_size", stats.Size, "pool_in_use", stats.InUse)
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing storage", "error", err)
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "artribune version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	gate := auth.NewGate(cfg.Auth.APIKeys, logger)
	if gate.Size() == 0 {
		printWarning("no API keys configured (MCP_API_KEYS); protected endpoints will answer 401")
	} else {
		logger.Info("API keys loaded", "count", gate.Size())
	}

	handler := api.NewHandler(api.Deps{
		Service:        a.router,
		Gate:           gate,
		Logger:         logger,
		RequestTimeout: cfg.Server.RequestTimeout.Std(),
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		printSuccess("artribune listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		printStep("shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runMCP serves the tools over stdio. stdout carries the protocol, so all
// logging goes to stderr.
func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	mcpSrv := api.NewMCPServer(a.router, logger)
	stdio := server.NewStdioServer(mcpSrv)
	logger.Info("MCP server started (stdio transport)")
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
