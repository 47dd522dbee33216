// Package api serves the protocol over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/speedrun-hq/railsettle/pkg/coordinator"
	"github.com/speedrun-hq/railsettle/pkg/ledger"
	"github.com/speedrun-hq/railsettle/pkg/oracle"
)

// IntentQueue receives newly created intents for automatic commitment
type IntentQueue interface {
	Enqueue(intentID string) bool
}

// Deps are the components the API drives. Queue, Oracle and Executor are optional.
type Deps struct {
	Ledger      *ledger.Ledger
	Commitment  *coordinator.Commitment
	Settlement  *coordinator.Settlement
	Executor    *oracle.Executor
	Oracle      *oracle.Oracle
	Queue       IntentQueue
	RateLimiter *SolverRateLimiter
	Logger      *logrus.Logger
}

// Server is the protocol HTTP server
type Server struct {
	deps   Deps
	engine *gin.Engine
	now    func() time.Time
}

// NewServer builds the router
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	s := &Server{deps: deps, now: time.Now}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(deps.Logger))
	s.routes(r)
	s.engine = r
	return s
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes(r *gin.Engine) {
	api := r.Group("/api")
	{
		intents := api.Group("/intents")
		{
			intents.POST("", s.createIntent)
			intents.GET("", s.listIntents)
			intents.GET("/:id", s.getIntent)
			intents.POST("/:id/solutions", s.submitSolution)
			intents.GET("/:id/solutions", s.listSolutions)
			intents.GET("/:id/wait", s.waitForState)

			// operator endpoints, they sign chain transactions with the service key
			intents.POST("/:id/commit", s.commitIntent)
			intents.POST("/:id/settle", s.settleIntent)
			intents.POST("/:id/resolve", s.resolveIntent)
			intents.POST("/:id/resolve-timeout", s.resolveIntentAfterTimeout)
		}

		solutions := api.Group("/solutions")
		{
			solutions.GET("/:id", s.getSolution)
			solutions.POST("/:id/accept", s.acceptSolution)
			solutions.POST("/:id/claim", s.claimPayment)
			solutions.POST("/:id/settle", s.recordSettlement)
			solutions.POST("/:id/resolve", s.recordResolution)
		}

		oracles := api.Group("/oracle")
		{
			oracles.POST("/execute", s.executeTask)
			oracles.POST("/validate", s.validateTask)
		}
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.WithField("addr", addr).Info("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
