package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ubeswap/v3-indexer/internal/prices"
	"github.com/ubeswap/v3-indexer/internal/store"
)

// APIServer serves the entity store read-only over REST.
type APIServer struct {
	mux       *http.ServeMux
	store     store.Backend
	factoryID string
	router    *prices.Router
	logger    zerolog.Logger
}

// NewAPIServer serves backend. router supplies the pricing anchors shown on
// /bundle and must be the one the mappers price with.
func NewAPIServer(backend store.Backend, factoryID string, router *prices.Router, logger zerolog.Logger) *APIServer {
	s := &APIServer{
		mux:       http.NewServeMux(),
		store:     backend,
		factoryID: factoryID,
		router:    router,
		logger:    logger.With().Str("component", "api").Logger(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the routes wrapped in request logging.
func (s *APIServer) Handler() http.Handler {
	return s.logMiddleware(s.mux)
}

func (s *APIServer) Start(ctx context.Context, addr string) error {
	s.logger.Info().Str("addr", addr).Msg("Starting API server")
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Shutdown goroutine
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info().Msg("Shutting down API server...")
		_ = server.Shutdown(shutdownCtx)
	}()
	// Start serving (returns http.ErrServerClosed on shutdown)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) registerRoutes() {
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		}, nil)
	})
	s.mux.HandleFunc("GET /status", s.handleStatus)

	s.mux.HandleFunc("GET /factory", s.handleFactory)
	s.mux.HandleFunc("GET /bundle", s.handleBundle)
	s.mux.HandleFunc("GET /day-data", s.handleUniswapDayData)

	s.mux.HandleFunc("GET /tokens", s.handleTokens)
	s.mux.HandleFunc("GET /tokens/{id}", s.handleToken)
	s.mux.HandleFunc("GET /tokens/{id}/data/{interval}", s.handleTokenIntervals)

	s.mux.HandleFunc("GET /pools", s.handlePools)
	s.mux.HandleFunc("GET /pools/{id}", s.handlePool)
	s.mux.HandleFunc("GET /pools/{id}/ticks", s.handlePoolTicks)
	s.mux.HandleFunc("GET /pools/{id}/data/{interval}", s.handlePoolIntervals)
	s.mux.HandleFunc("GET /pools/{id}/events/{kind}", s.handlePoolEvents)

	s.mux.HandleFunc("GET /positions", s.handlePositions)
	s.mux.HandleFunc("GET /positions/{id}", s.handlePosition)
	s.mux.HandleFunc("GET /positions/{id}/snapshots", s.handlePositionSnapshots)

	s.mux.HandleFunc("GET /transactions/{id}", s.handleTransaction)
}

func (s *APIServer) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("latency", time.Since(start)).
			Msg("http")
	})
}

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	cursor, err := s.store.Cursor(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"block":     cursor.Block,
		"log_index": cursor.LogIndex,
		"time":      time.Now().UTC(),
	}, nil)
}
