package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/railsettle/pkg/circuitbreaker"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixedHead uint64

func (h fixedHead) LatestBlockNumber(context.Context) (uint64, error) { return uint64(h), nil }

type deadRPC struct{}

func (deadRPC) LatestBlockNumber(context.Context) (uint64, error) {
	return 0, errors.New("dial tcp: connection refused")
}

func serve(s *Server, method, target, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestReady(t *testing.T) {
	var ledgerErr error
	s := NewServer(Options{
		Ledger:        pingFunc(func(context.Context) error { return ledgerErr }),
		LedgerBackend: "postgres",
	})

	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/ready", "").Code)

	ledgerErr = errors.New("connection refused")
	rec := serve(s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgres")
}

func TestReadyRequiresChain(t *testing.T) {
	s := NewServer(Options{ChainID: 84532, Blocks: deadRPC{}})
	rec := serve(s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "84532")

	s = NewServer(Options{ChainID: 84532, Blocks: fixedHead(1)})
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/ready", "").Code)
}

func TestStatusAndCircuitReset(t *testing.T) {
	breaker := circuitbreaker.NewCircuitBreaker(true, 1, time.Minute, time.Hour, nil)
	breaker.RecordFailure()
	require.True(t, breaker.IsOpen())

	s := NewServer(Options{
		LedgerBackend: "memory",
		TaskBackend:   "redis",
		ChainID:       84532,
		ZKRailAddress: "0x887A72ABf9395b0a45Dca391901cCD71243cd1b3",
		Blocks:        fixedHead(1234),
		Breaker:       breaker,
	})
	readOnly := NewServer(Options{ChainID: 84532, Blocks: fixedHead(1)})

	rec := serve(s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "open", status["chain_84532"]["circuit"])
	assert.Equal(t, float64(1234), status["chain_84532"]["latest_block"])
	assert.Equal(t, "BASE-SEPOLIA", status["chain_84532"]["name"])
	assert.Equal(t, "redis", status["task_store"]["backend"])
	assert.Equal(t, true, status["chain_84532"]["connected"])
	assert.Equal(t, false, status["chain_84532"]["operator"])

	rec = serve(readOnly, http.MethodGet, "/status", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, true, status["chain_84532"]["connected"])
	assert.NotContains(t, status["chain_84532"], "circuit")

	assert.Equal(t, http.StatusMethodNotAllowed, serve(s, http.MethodGet, "/circuit/reset?chain=84532", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodPost, "/circuit/reset", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodPost, "/circuit/reset?chain=1", "").Code)

	assert.Equal(t, http.StatusOK, serve(s, http.MethodPost, "/circuit/reset?chain=84532", "").Code)
	assert.False(t, breaker.IsOpen())
}

func TestMetricsAuth(t *testing.T) {
	s := NewServer(Options{MetricsAPIKey: "secret"})

	assert.Equal(t, http.StatusUnauthorized, serve(s, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(s, http.MethodGet, "/metrics", "secret").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(s, http.MethodGet, "/metrics", "Bearer wrong").Code)

	rec := serve(s, http.MethodGet, "/metrics", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
