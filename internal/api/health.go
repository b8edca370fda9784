package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ubeswap/v3-indexer/internal/sync"
)

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ChainHead reports the node's latest block.
type ChainHead interface {
	GetEndpoint() string
	ChainID() uint64
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
}

// SyncStatus reports how far the indexer has got.
type SyncStatus interface {
	GetStatus() sync.Status
}

type HealthServer struct {
	db        Pinger
	rpc       ChainHead
	syncMgr   SyncStatus
	metrics   http.Handler
	maxBehind uint64
	logger    zerolog.Logger
}

type HealthStatus struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Database  DatabaseStatus `json:"database"`
	RPC       RPCStatus      `json:"rpc"`
	Sync      *sync.Status   `json:"sync,omitempty"`
}

type DatabaseStatus struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

type RPCStatus struct {
	Connected   bool   `json:"connected"`
	Endpoint    string `json:"endpoint"`
	ChainID     uint64 `json:"chain_id"`
	LatestBlock uint64 `json:"latest_block"`
	Error       string `json:"error,omitempty"`
}

// NewHealthServer builds the probe server. metrics may be nil; maxBehind is the
// sync lag beyond which the indexer reports itself degraded.
func NewHealthServer(db Pinger, rpc ChainHead, syncMgr SyncStatus, metrics http.Handler, maxBehind uint64, logger zerolog.Logger) *HealthServer {
	return &HealthServer{
		db:        db,
		rpc:       rpc,
		syncMgr:   syncMgr,
		metrics:   metrics,
		maxBehind: maxBehind,
		logger:    logger.With().Str("component", "health").Logger(),
	}
}

func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	// k8s probes
	mux.HandleFunc("GET /ready", h.handleReady)
	mux.HandleFunc("GET /live", h.handleLive)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
	return mux
}

func (h *HealthServer) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      h.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	h.logger.Info().Str("addr", addr).Msg("Starting health server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.getHealthStatus(ctx)
	httpStatus := http.StatusOK
	if status.Status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(status)
}

func (h *HealthServer) getHealthStatus(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Timestamp: time.Now().UTC(),
		Status:    "healthy",
	}

	status.Database = h.checkDatabase(ctx)
	status.RPC = h.checkRPC(ctx)
	if !status.Database.Connected || !status.RPC.Connected {
		status.Status = "unhealthy"
	}

	if h.syncMgr != nil {
		s := h.syncMgr.GetStatus()
		status.Sync = &s
		if status.Status == "healthy" && h.maxBehind > 0 && s.BehindBy > h.maxBehind {
			status.Status = "degraded"
		}
	}
	return status
}

func (h *HealthServer) checkDatabase(ctx context.Context) DatabaseStatus {
	if h.db == nil {
		return DatabaseStatus{Connected: false, Error: "no database"}
	}
	if err := h.db.Ping(ctx); err != nil {
		return DatabaseStatus{Connected: false, Error: err.Error()}
	}
	return DatabaseStatus{Connected: true}
}

func (h *HealthServer) checkRPC(ctx context.Context) RPCStatus {
	if h.rpc == nil {
		return RPCStatus{Error: "no rpc client"}
	}
	status := RPCStatus{
		Connected: true,
		Endpoint:  h.rpc.GetEndpoint(),
		ChainID:   h.rpc.ChainID(),
	}
	latest, err := h.rpc.GetLatestBlockNumber(ctx)
	if err != nil {
		status.Connected = false
		status.Error = err.Error()
		return status
	}
	status.LatestBlock = latest
	return status
}

func (h *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.checkDatabase(ctx).Connected && h.checkRPC(ctx).Connected {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (h *HealthServer) handleLive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
