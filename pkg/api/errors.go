package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/speedrun-hq/railsettle/pkg/chain"
	"github.com/speedrun-hq/railsettle/pkg/ledger"
	"github.com/speedrun-hq/railsettle/pkg/poller"
)

// ErrorBody is the body of every failed request
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable code and a human readable message
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an error to its HTTP status and code. Order matters:
// a chain error can wrap a timeout and AlreadyResolved is checked before
// the generic state errors.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, chain.ErrReadOnly):
		return http.StatusServiceUnavailable, "OPERATOR_DISABLED"
	case errors.Is(err, chain.ErrChain):
		return http.StatusBadGateway, "CHAIN_ERROR"
	case errors.Is(err, poller.ErrTimeoutExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT_EXCEEDED"
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ledger.ErrInvalidProofOfPayment):
		return http.StatusBadRequest, "INVALID_PROOF_OF_PAYMENT"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, "INVALID_AMOUNT"
	case errors.Is(err, ledger.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, ledger.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, ledger.ErrAlreadyResolved):
		return http.StatusConflict, "ALREADY_RESOLVED"
	case errors.Is(err, ledger.ErrStaleTransition):
		return http.StatusConflict, "STALE_TRANSITION"
	case errors.Is(err, ledger.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// writeError aborts the request with the mapped status and error body
func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorBody{Error: ErrorDetail{Code: code, Message: err.Error()}})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorBody{Error: ErrorDetail{Code: "INVALID_INPUT", Message: message}})
}
