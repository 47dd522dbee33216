package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedrun-hq/railsettle/pkg/circuitbreaker"
	"github.com/speedrun-hq/railsettle/pkg/logger"
)

// Pinger is a dependency that can report whether it is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// BlockSource reports the chain head of the connected RPC endpoint
type BlockSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Options configures the health server. Chain fields are left zero when the
// service runs without an operator key.
type Options struct {
	Port          string
	MetricsAPIKey string

	Ledger        Pinger
	LedgerBackend string
	TaskStore     Pinger
	TaskBackend   string

	ChainID       int
	RPCURL        string
	ZKRailAddress string
	Blocks        BlockSource
	Breaker       *circuitbreaker.CircuitBreaker
	// Operator is true when the chain client holds a signing key
	Operator bool

	Logger logger.Logger
}

// Server represents a health check HTTP server
type Server struct {
	opts   Options
	logger logger.Logger
}

// NewServer creates a new health check server
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Server{opts: opts, logger: log}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.opts.MetricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.opts.MetricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the health, status and metrics routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/circuit/reset", s.handleCircuitReset)
	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports ready once the ledger, the task store and the chain answer
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if s.opts.Ledger != nil {
		if err := s.opts.Ledger.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Ledger %s unavailable: %v", s.opts.LedgerBackend, err)))
			return
		}
	}
	if s.opts.TaskStore != nil {
		if err := s.opts.TaskStore.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Task store %s unavailable: %v", s.opts.TaskBackend, err)))
			return
		}
	}
	if s.opts.Blocks != nil {
		if _, err := s.opts.Blocks.LatestBlockNumber(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Chain %d client not connected: %v", s.opts.ChainID, err)))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"ledger":     map[string]interface{}{"backend": s.opts.LedgerBackend},
		"task_store": map[string]interface{}{"backend": s.opts.TaskBackend},
	}

	chainStatus := map[string]interface{}{
		"chain_id":       s.opts.ChainID,
		"name":           logger.ChainName(s.opts.ChainID),
		"rpc_url":        s.opts.RPCURL,
		"zkrail_address": s.opts.ZKRailAddress,
		"connected":      s.opts.Blocks != nil,
		"operator":       s.opts.Operator,
	}
	if s.opts.Breaker != nil {
		circuitStatus := "closed"
		if s.opts.Breaker.IsOpen() {
			circuitStatus = "open"
		}
		failures, _, _, threshold := s.opts.Breaker.GetState()
		chainStatus["circuit"] = circuitStatus
		chainStatus["circuit_failures"] = failures
		chainStatus["circuit_threshold"] = threshold
	}
	if s.opts.Blocks != nil {
		if blockNumber, err := s.opts.Blocks.LatestBlockNumber(r.Context()); err == nil {
			chainStatus["latest_block"] = blockNumber
		} else {
			chainStatus["error"] = err.Error()
		}
	}
	status[fmt.Sprintf("chain_%d", s.opts.ChainID)] = chainStatus

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Error encoding status JSON: %v", err)
	}
}

// handleCircuitReset closes the chain circuit breaker on operator request
func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	chainIDStr := r.URL.Query().Get("chain")
	if chainIDStr == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Missing chain parameter"))
		return
	}

	chainID, err := strconv.Atoi(chainIDStr)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Invalid chain ID"))
		return
	}

	if s.opts.Breaker == nil || chainID != s.opts.ChainID {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(fmt.Sprintf("No circuit breaker for chain %d", chainID)))
		return
	}

	s.opts.Breaker.Reset()
	s.logger.NoticeWithChain(chainID, "Circuit breaker reset by operator")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker for chain %d reset", chainID)))
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.opts.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting health and metrics server on port %s", s.opts.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
