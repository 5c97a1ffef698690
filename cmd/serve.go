package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sheetsage/sheetsage/db"
	"github.com/sheetsage/sheetsage/internal/chatstore"
	"github.com/sheetsage/sheetsage/internal/config"
	"github.com/sheetsage/sheetsage/internal/dataset"
	"github.com/sheetsage/sheetsage/internal/history"
	"github.com/sheetsage/sheetsage/internal/llm"
	"github.com/sheetsage/sheetsage/internal/observability"
	"github.com/sheetsage/sheetsage/internal/query"
	"github.com/sheetsage/sheetsage/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the answer service HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := observability.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := db.Connect(ctx, cfg.PostgresURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(cfg.RedisOptions())
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("closing redis client", "error", err)
		}
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Conversation context degrades gracefully; the pipeline answers
		// without it.
		logger.Warn("redis unreachable, conversation memory degraded", "error", err)
	}

	histStore := history.New(rdb, cfg.HistoryLimit, logger)
	chatStore := chatstore.New(pool, logger)
	datasetStore := dataset.NewStore(pool, logger)
	ingestor := dataset.NewIngestor(pool, datasetStore, logger)

	generator, err := llm.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating model client: %w", err)
	}

	engine := query.NewEngine(pool, generator, datasetStore, chatStore, histStore, logger)

	srv := server.NewServer(server.Deps{
		Engine:   engine,
		Ingestor: ingestor,
		Datasets: datasetStore,
		Chats:    chatStore,
		History:  histStore,
		Pool:     pool,
		Redis:    rdb,
	}, logger)

	addr := cfg.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	logger.Info("starting answer service", "version", Version, "addr", addr, "model", cfg.ModelName)
	return srv.Run(ctx, addr)
}
