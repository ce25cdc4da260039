package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/efuayankey/aimes-sub001/internal/errs"
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Error     string            `json:"error"`
	Retryable bool              `json:"retryable,omitempty"`
	Fields    []errs.FieldError `json:"fields,omitempty"`
}

// retryAfter is sent with 503 responses.
const retryAfter = 1

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	body := errorBody{Error: err.Error(), Retryable: errs.IsRetryable(err)}
	var status int
	switch {
	case errors.Is(err, errs.ErrValidation):
		status = http.StatusBadRequest
		var ve *errs.ValidationError
		if errors.As(err, &ve) {
			body.Fields = ve.Errors
		}
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrAlreadyClaimed), errors.Is(err, errs.ErrStaleClaim):
		status = http.StatusConflict
	case errors.Is(err, errs.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, errs.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, errs.ErrGatewayTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, errs.ErrGatewayError):
		status = http.StatusBadGateway
	case errors.Is(err, errs.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		body.Error = "store unavailable"
	default:
		status = http.StatusInternalServerError
		body.Error = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, field, message string) {
	writeError(c, errs.NewValidationError(field, message))
}

func queryLimit(c *gin.Context) (int, bool) {
	v := c.Query("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		badRequest(c, "limit", "must be a non-negative integer")
		return 0, false
	}
	return n, true
}
