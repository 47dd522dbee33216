package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"github.com/speedrun-hq/railsettle/pkg/ledger"
	"github.com/speedrun-hq/railsettle/pkg/models"
)

type createIntentResponse struct {
	IntentID string `json:"intentId"`
}

type submitSolutionResponse struct {
	SolutionID string `json:"solutionId"`
}

type listIntentsResponse struct {
	Intents []models.IntentWithSolution `json:"intents"`
}

type listSolutionsResponse struct {
	Solutions []models.Solution `json:"solutions"`
}

type acceptRequest struct {
	CommitmentTxHash string `json:"commitmentTxHash"`
}

type claimRequest struct {
	PaymentMetadata *models.PaymentMetadata `json:"paymentMetadata"`
}

type recordSettlementRequest struct {
	SettlementTxHash string `json:"settlementTxHash"`
	SettlerAddress   string `json:"settlerAddress"`
}

type recordResolutionRequest struct {
	ResolutionTxHash string `json:"resolutionTxHash"`
}

type settleRequest struct {
	SettlerAddress string `json:"settlerAddress"`
}

type resolveRequest struct {
	// Proof is the 0x-prefixed hex encoded proof of payment
	Proof string `json:"proof"`
}

// bindJSON decodes the request body, rejecting malformed JSON with 400
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) createIntent(c *gin.Context) {
	var spec models.IntentSpec
	if !bindJSON(c, &spec) {
		return
	}
	id, err := s.deps.Ledger.CreateIntent(c.Request.Context(), spec)
	if err != nil {
		writeError(c, err)
		return
	}
	if s.deps.Queue != nil {
		s.deps.Queue.Enqueue(id)
	}
	c.JSON(http.StatusOK, createIntentResponse{IntentID: id})
}

func (s *Server) listIntents(c *gin.Context) {
	var filter ledger.IntentFilter
	if raw := c.Query("state"); raw != "" {
		state, err := models.ParseIntentState(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		filter.State = state
	}
	filter.CreatorAddress = c.Query("creator")
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	intents, err := s.deps.Ledger.ListIntents(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listIntentsResponse{Intents: intents})
}

func (s *Server) getIntent(c *gin.Context) {
	intent, err := s.deps.Ledger.GetIntent(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (s *Server) submitSolution(c *gin.Context) {
	var candidate models.SolutionCandidate
	if !bindJSON(c, &candidate) {
		return
	}
	if s.deps.RateLimiter != nil && !s.deps.RateLimiter.Allow(candidate.SolverAddress) {
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorBody{Error: ErrorDetail{
			Code:    "RATE_LIMITED",
			Message: "too many solutions from " + candidate.SolverAddress,
		}})
		return
	}
	id, err := s.deps.Ledger.SubmitSolution(c.Request.Context(), c.Param("id"), candidate)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, submitSolutionResponse{SolutionID: id})
}

func (s *Server) listSolutions(c *gin.Context) {
	solutions, err := s.deps.Ledger.ListSolutions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listSolutionsResponse{Solutions: solutions})
}

func (s *Server) getSolution(c *gin.Context) {
	solution, err := s.deps.Ledger.GetSolution(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, solution)
}

func (s *Server) acceptSolution(c *gin.Context) {
	var req acceptRequest
	if !bindJSON(c, &req) {
		return
	}
	if _, err := s.deps.Commitment.Accept(c.Request.Context(), c.Param("id"), req.CommitmentTxHash); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) claimPayment(c *gin.Context) {
	var req claimRequest
	if !bindJSON(c, &req) {
		return
	}
	if _, err := s.deps.Commitment.Claim(c.Request.Context(), c.Param("id"), req.PaymentMetadata); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) recordSettlement(c *gin.Context) {
	var req recordSettlementRequest
	if !bindJSON(c, &req) {
		return
	}
	_, err := s.deps.Settlement.RecordSettlement(c.Request.Context(), c.Param("id"), req.SettlerAddress, req.SettlementTxHash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) recordResolution(c *gin.Context) {
	var req recordResolutionRequest
	if !bindJSON(c, &req) {
		return
	}
	if _, err := s.deps.Settlement.RecordResolution(c.Request.Context(), c.Param("id"), req.ResolutionTxHash); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) commitIntent(c *gin.Context) {
	intent, err := s.deps.Commitment.Commit(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (s *Server) settleIntent(c *gin.Context) {
	var req settleRequest
	if !bindJSON(c, &req) {
		return
	}
	intent, err := s.deps.Settlement.Settle(c.Request.Context(), c.Param("id"), req.SettlerAddress)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (s *Server) resolveIntent(c *gin.Context) {
	var req resolveRequest
	if !bindJSON(c, &req) {
		return
	}
	proof, err := hexutil.Decode(strings.TrimSpace(req.Proof))
	if err != nil {
		badRequest(c, "proof must be 0x-prefixed hex: "+err.Error())
		return
	}
	intent, err := s.deps.Settlement.ResolveWithProof(c.Request.Context(), c.Param("id"), proof)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (s *Server) resolveIntentAfterTimeout(c *gin.Context) {
	intent, err := s.deps.Settlement.EmergencyResolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (s *Server) waitForState(c *gin.Context) {
	target, err := models.ParseIntentState(c.Query("state"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	intent, err := s.deps.Settlement.WaitForState(c.Request.Context(), c.Param("id"), target)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

type executeRequest struct {
	IntentID         string `json:"intentId"`
	TaskDefinitionID int    `json:"taskDefinitionId"`
}

type executeResponse struct {
	ProofOfTask      string `json:"proofOfTask"`
	Data             string `json:"data"`
	TaskDefinitionID int    `json:"taskDefinitionId"`
}

// taskData is the compact claim summary returned with a published task
type taskData struct {
	IntentID      string `json:"intentId"`
	SolutionID    string `json:"solutionId"`
	AmountWei     string `json:"amountWei"`
	SolverAddress string `json:"solverAddress"`
}

func (s *Server) executeTask(c *gin.Context) {
	if s.deps.Executor == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorBody{Error: ErrorDetail{
			Code: "ORACLE_DISABLED", Message: "execution service is not configured",
		}})
		return
	}
	var req executeRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.IntentID) == "" {
		badRequest(c, "intentId is required")
		return
	}

	handle, payload, err := s.deps.Executor.Execute(c.Request.Context(), req.IntentID)
	if err != nil {
		writeError(c, err)
		return
	}
	data, err := json.Marshal(taskData{
		IntentID:      req.IntentID,
		SolutionID:    payload.Solution.ID,
		AmountWei:     payload.Solution.AmountWei,
		SolverAddress: payload.Solution.SolverAddress,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, executeResponse{ProofOfTask: handle, Data: string(data), TaskDefinitionID: req.TaskDefinitionID})
}

type validateRequest struct {
	ProofOfTask      string `json:"proofOfTask"`
	TaskDefinitionID int    `json:"taskDefinitionId"`
}

type validateResponse struct {
	IsValid          bool   `json:"isValid"`
	Reason           string `json:"reason"`
	Detail           string `json:"detail,omitempty"`
	ProofOfTask      string `json:"proofOfTask"`
	TaskDefinitionID int    `json:"taskDefinitionId"`
	Timestamp        string `json:"timestamp"`
}

func (s *Server) validateTask(c *gin.Context) {
	if s.deps.Oracle == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorBody{Error: ErrorDetail{
			Code: "ORACLE_DISABLED", Message: "validation service is not configured",
		}})
		return
	}
	var req validateRequest
	if !bindJSON(c, &req) {
		return
	}

	result := s.deps.Oracle.ValidateClaim(c.Request.Context(), req.ProofOfTask)
	c.JSON(http.StatusOK, validateResponse{
		IsValid:          result.IsValid,
		Reason:           result.Reason,
		Detail:           result.Detail,
		ProofOfTask:      req.ProofOfTask,
		TaskDefinitionID: req.TaskDefinitionID,
		Timestamp:        s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}
