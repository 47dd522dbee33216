package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/railsettle/pkg/api"
	"github.com/speedrun-hq/railsettle/pkg/chain"
	"github.com/speedrun-hq/railsettle/pkg/chain/mocks"
	"github.com/speedrun-hq/railsettle/pkg/coordinator"
	"github.com/speedrun-hq/railsettle/pkg/ledger"
	"github.com/speedrun-hq/railsettle/pkg/models"
	"github.com/speedrun-hq/railsettle/pkg/oracle"
	"github.com/speedrun-hq/railsettle/pkg/taskstore"
)

const (
	testToken   = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	testCreator = "0x1111111111111111111111111111111111111111"
	solverA     = "0x2222222222222222222222222222222222222222"
	solverB     = "0x3333333333333333333333333333333333333333"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	handler http.Handler
	chain   *mocks.Collaborator
	clock   *testClock
	queued  []string
}

func (h *harness) Enqueue(intentID string) bool {
	h.queued = append(h.queued, intentID)
	return true
}

func newHarness(t *testing.T, limiter *api.SolverRateLimiter) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var seq int64
	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := ledger.New(ledger.NewMemoryStore(),
		ledger.WithClock(clock.Now),
		ledger.WithIDGenerator(func() string {
			return fmt.Sprintf("id-%03d", atomic.AddInt64(&seq, 1))
		}),
	)
	c := mocks.NewCollaborator()
	poll := coordinator.PollConfig{MaxAttempts: 2, Interval: time.Millisecond}

	tasks := taskstore.NewMemoryStore()
	o, err := oracle.New(tasks, l, oracle.WithClock(clock.Now))
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})

	h := &harness{chain: c, clock: clock}
	srv := api.NewServer(api.Deps{
		Ledger:      l,
		Commitment:  coordinator.NewCommitment(l, c, poll, nil),
		Settlement:  coordinator.NewSettlement(l, c, poll, time.Hour, nil),
		Executor:    oracle.NewExecutor(l, tasks, nil),
		Oracle:      o,
		Queue:       h,
		RateLimiter: limiter,
		Logger:      log,
	})
	h.handler = srv.Handler()
	return h
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body api.ErrorBody
	decode(t, rec, &body)
	return body.Error.Code
}

func (h *harness) createIntent(t *testing.T) string {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/intents", models.IntentSpec{
		PaymentToken:       testToken,
		PaymentTokenAmount: "1000000",
		RailType:           models.RailUPI,
		RecipientAddress:   "merchant@upi",
		RailAmount:         "10000",
		CreatorAddress:     testCreator,
		ChainID:            84532,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		IntentID string `json:"intentId"`
	}
	decode(t, rec, &resp)
	return resp.IntentID
}

func (h *harness) submit(t *testing.T, intentID, solver, amountWei string) string {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/intents/"+intentID+"/solutions", models.SolutionCandidate{
		SolverAddress: solver,
		AmountWei:     amountWei,
		Signature:     "0xsig",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		SolutionID string `json:"solutionId"`
	}
	decode(t, rec, &resp)
	return resp.SolutionID
}

func upiClaim() map[string]interface{} {
	return map[string]interface{}{
		"paymentMetadata": map[string]interface{}{
			"transactionId":    "UPI123456789",
			"timestamp":        "2025-03-01T12:00:30Z",
			"railSpecificData": map[string]interface{}{"vpa": "merchant@upi", "utr": "123456789012"},
		},
	}
}

func TestIntentLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, nil)

	intentID := h.createIntent(t)
	assert.Equal(t, []string{intentID}, h.queued)

	expensive := h.submit(t, intentID, solverA, "400")
	cheap := h.submit(t, intentID, solverB, "250")

	rec := h.do(t, http.MethodGet, "/api/intents/"+intentID+"/solutions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Solutions []models.Solution `json:"solutions"`
	}
	decode(t, rec, &listed)
	assert.Len(t, listed.Solutions, 2)

	rec = h.do(t, http.MethodPost, "/api/intents/"+intentID+"/commit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var committed models.Intent
	decode(t, rec, &committed)
	assert.Equal(t, models.StateSolutionCommitted, committed.State)
	require.NotNil(t, committed.WinningSolutionID)
	assert.Equal(t, cheap, *committed.WinningSolutionID)

	rec = h.do(t, http.MethodPost, "/api/solutions/"+expensive+"/claim", upiClaim())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", errorCode(t, rec))

	h.clock.Advance(time.Minute)
	rec = h.do(t, http.MethodPost, "/api/solutions/"+cheap+"/claim", upiClaim())
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/oracle/execute", map[string]interface{}{"intentId": intentID, "taskDefinitionId": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var executed struct {
		ProofOfTask      string `json:"proofOfTask"`
		Data             string `json:"data"`
		TaskDefinitionID int    `json:"taskDefinitionId"`
	}
	decode(t, rec, &executed)
	assert.Len(t, executed.ProofOfTask, 66)
	assert.Equal(t, 1, executed.TaskDefinitionID)
	assert.Contains(t, executed.Data, `"amountWei":"250"`)

	rec = h.do(t, http.MethodPost, "/api/oracle/validate", map[string]interface{}{"proofOfTask": executed.ProofOfTask, "taskDefinitionId": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var validated struct {
		IsValid     bool   `json:"isValid"`
		Reason      string `json:"reason"`
		ProofOfTask string `json:"proofOfTask"`
	}
	decode(t, rec, &validated)
	assert.True(t, validated.IsValid, validated.Reason)
	assert.Equal(t, executed.ProofOfTask, validated.ProofOfTask)

	rec = h.do(t, http.MethodPost, "/api/intents/"+intentID+"/settle", map[string]string{"settlerAddress": solverA})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/intents/"+intentID+"/settle", map[string]string{"settlerAddress": solverB})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var settled models.Intent
	decode(t, rec, &settled)
	assert.Equal(t, models.StateSettled, settled.State)
	assert.Nil(t, settled.ResolutionTxHash)

	rec = h.do(t, http.MethodGet, "/api/intents/"+intentID+"/wait?state=SETTLED", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/intents?state=SETTLED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var intents struct {
		Intents []models.IntentWithSolution `json:"intents"`
	}
	decode(t, rec, &intents)
	require.Len(t, intents.Intents, 1)
	require.NotNil(t, intents.Intents[0].WinningSolution)
	assert.Equal(t, cheap, intents.Intents[0].WinningSolution.ID)
}

func TestRecordedTransitions(t *testing.T) {
	h := newHarness(t, nil)
	intentID := h.createIntent(t)
	h.submit(t, intentID, solverA, "400")
	cheap := h.submit(t, intentID, solverB, "250")

	rec := h.do(t, http.MethodPost, "/api/solutions/"+cheap+"/accept", map[string]string{"commitmentTxHash": "0xabc"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/solutions/"+cheap+"/claim", upiClaim())
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/solutions/"+cheap+"/resolve", map[string]string{"resolutionTxHash": "0xdef"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/solutions/"+cheap+"/resolve", map[string]string{"resolutionTxHash": "0x123"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_RESOLVED", errorCode(t, rec))

	rec = h.do(t, http.MethodPost, "/api/solutions/"+cheap+"/settle", map[string]string{"settlementTxHash": "0x456", "settlerAddress": solverB})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", errorCode(t, rec))

	rec = h.do(t, http.MethodGet, "/api/intents/"+intentID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var intent models.Intent
	decode(t, rec, &intent)
	assert.Equal(t, models.StateResolved, intent.State)
	require.NotNil(t, intent.ResolutionTxHash)
	assert.Equal(t, "0xdef", *intent.ResolutionTxHash)
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t, nil)
	intentID := h.createIntent(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown intent", http.MethodGet, "/api/intents/missing", nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown solution", http.MethodGet, "/api/solutions/missing", nil, http.StatusNotFound, "NOT_FOUND"},
		{"bid on unknown intent", http.MethodPost, "/api/intents/missing/solutions",
			models.SolutionCandidate{SolverAddress: solverA, AmountWei: "1", Signature: "0xsig"}, http.StatusNotFound, "NOT_FOUND"},
		{"bad amount", http.MethodPost, "/api/intents/" + intentID + "/solutions",
			models.SolutionCandidate{SolverAddress: solverA, AmountWei: "-5", Signature: "0xsig"}, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"bad state filter", http.MethodGet, "/api/intents?state=DONE", nil, http.StatusBadRequest, "INVALID_INPUT"},
		{"bad limit", http.MethodGet, "/api/intents?limit=x", nil, http.StatusBadRequest, "INVALID_INPUT"},
		{"commit without bids", http.MethodPost, "/api/intents/" + intentID + "/commit", nil, http.StatusConflict, "INVALID_STATE"},
		{"settle before commit", http.MethodPost, "/api/intents/" + intentID + "/settle",
			map[string]string{"settlerAddress": solverA}, http.StatusConflict, "INVALID_STATE"},
		{"proof not hex", http.MethodPost, "/api/intents/" + intentID + "/resolve",
			map[string]string{"proof": "zz"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"wait without state", http.MethodGet, "/api/intents/" + intentID + "/wait", nil, http.StatusBadRequest, "INVALID_INPUT"},
		{"wait times out", http.MethodGet, "/api/intents/" + intentID + "/wait?state=SETTLED", nil, http.StatusGatewayTimeout, "TIMEOUT_EXCEEDED"},
		{"execute without intent", http.MethodPost, "/api/oracle/execute", map[string]string{}, http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestChainFailureMapsToBadGateway(t *testing.T) {
	h := newHarness(t, nil)
	intentID := h.createIntent(t)
	h.submit(t, intentID, solverA, "400")
	h.chain.CommitErr = fmt.Errorf("execution reverted")

	rec := h.do(t, http.MethodPost, "/api/intents/"+intentID+"/commit", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "CHAIN_ERROR", errorCode(t, rec))

	rec = h.do(t, http.MethodGet, "/api/intents/"+intentID, nil)
	var intent models.Intent
	decode(t, rec, &intent)
	assert.Equal(t, models.StateCreated, intent.State)
}

func TestMalformedTxHashIsBadRequest(t *testing.T) {
	h := newHarness(t, nil)
	intentID := h.createIntent(t)
	solutionID := h.submit(t, intentID, solverA, "400")
	h.chain.VerifyErr = fmt.Errorf("%w: %q", chain.ErrInvalidTxHash, "0xnothex")

	rec := h.do(t, http.MethodPost, "/api/solutions/"+solutionID+"/accept", map[string]string{"commitmentTxHash": "0xnothex"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "INVALID_INPUT", errorCode(t, rec))
}

func TestUnknownTaskIsInvalid(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/oracle/validate", map[string]interface{}{"proofOfTask": "0xdeadbeef", "taskDefinitionId": 7})
	require.Equal(t, http.StatusOK, rec.Code)
	var validated struct {
		IsValid          bool   `json:"isValid"`
		Reason           string `json:"reason"`
		TaskDefinitionID int    `json:"taskDefinitionId"`
		Timestamp        string `json:"timestamp"`
	}
	decode(t, rec, &validated)
	assert.False(t, validated.IsValid)
	assert.Equal(t, oracle.ReasonTaskNotFound, validated.Reason)
	assert.Equal(t, 7, validated.TaskDefinitionID)
	assert.NotEmpty(t, validated.Timestamp)
}

func TestSolutionRateLimit(t *testing.T) {
	h := newHarness(t, api.NewSolverRateLimiter(0.001, 2))
	intentID := h.createIntent(t)

	h.submit(t, intentID, solverA, "400")
	h.submit(t, intentID, solverA, "390")

	rec := h.do(t, http.MethodPost, "/api/intents/"+intentID+"/solutions", models.SolutionCandidate{
		SolverAddress: solverA, AmountWei: "380", Signature: "0xsig",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, rec))

	// other solvers have their own budget
	h.submit(t, intentID, solverB, "370")
}

func TestOracleDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := ledger.New(ledger.NewMemoryStore())
	srv := api.NewServer(api.Deps{
		Ledger:     l,
		Commitment: coordinator.NewCommitment(l, nil, coordinator.DefaultPollConfig, nil),
		Settlement: coordinator.NewSettlement(l, nil, coordinator.DefaultPollConfig, time.Hour, nil),
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/oracle/validate", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
