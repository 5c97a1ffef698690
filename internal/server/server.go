// Package server exposes the ask pipeline and its stores over HTTP.
//
// Endpoints:
//
//	POST   /api/ask/stream          streamed answer (SSE framing)
//	POST   /api/ask/ndjson          streamed answer (NDJSON framing)
//	POST   /api/datasets            upload a file, progress streamed as SSE
//	GET    /api/datasets            list datasets
//	DELETE /api/datasets/{id}       delete a dataset and its table
//	GET    /api/chats               list chats
//	GET    /api/chats/{id}          one chat
//	PATCH  /api/chats/{id}          rename a chat
//	DELETE /api/chats/{id}          delete a chat and its history
//	GET    /api/chats/{id}/messages chat transcript
//	GET    /health                  liveness probe
//	GET    /ready                   readiness probe (DB and Redis)
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sheetsage/sheetsage/internal/chatstore"
	"github.com/sheetsage/sheetsage/internal/dataset"
	"github.com/sheetsage/sheetsage/internal/history"
	"github.com/sheetsage/sheetsage/internal/log"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8000"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against slow-header connections.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 60 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server. Answer streams hold responses open for as long
// as generation takes, so no WriteTimeout is set.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health   *HealthHandler
	ask      *AskHandler
	datasets *DatasetHandler
	chats    *ChatHandler
}

// Deps are the wired components the server serves.
type Deps struct {
	Engine   Asker
	Ingestor *dataset.Ingestor
	Datasets *dataset.Store
	Chats    *chatstore.Store
	History  *history.Store
	Pool     *pgxpool.Pool
	Redis    *redis.Client
}

// NewServer creates the server with all routes registered. History and
// Redis may be nil when conversation memory is disabled.
func NewServer(deps Deps, logger log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:      mux,
		logger:   logger,
		health:   NewHealthHandler(deps.Pool, deps.Redis, logger),
		ask:      NewAskHandler(deps.Engine, logger),
		datasets: NewDatasetHandler(deps.Ingestor, deps.Datasets, logger),
		chats:    NewChatHandler(deps.Chats, deps.History, logger),
	}

	s.health.RegisterRoutes(mux)
	s.ask.RegisterRoutes(mux)
	s.datasets.RegisterRoutes(mux)
	s.chats.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery, then logging, then the mux.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	)
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
