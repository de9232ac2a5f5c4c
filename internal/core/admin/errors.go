package admin

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/solatis/medaudit/internal/types"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps a core error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case types.IsInvalidInput(err):
		return http.StatusBadRequest, "ERR_INVALID_INPUT"
	case types.IsNotFound(err):
		return http.StatusNotFound, "ERR_NOT_FOUND"
	case errors.Is(err, types.ErrVersionNotRecorded):
		return http.StatusInternalServerError, "ERR_VERSION_NOT_RECORDED"
	case types.IsRetryable(err):
		return http.StatusServiceUnavailable, "ERR_RULE_SOURCE_UNAVAILABLE"
	case errors.Is(err, types.ErrNoRules):
		return http.StatusUnprocessableEntity, "ERR_NO_RULES"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "ERR_TIMEOUT"
	default:
		return http.StatusInternalServerError, "ERR_INTERNAL"
	}
}

// writeError renders err. 5xx errors are logged; their message is kept
// generic except for the version failure, which callers must act on.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= 500 {
		a.log.Errorw("Request failed", "path", r.URL.Path, "code", code, "error", err)
		if code == "ERR_INTERNAL" {
			msg = "internal error"
		}
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Code: code, Message: msg})
}

// badRequest renders a 400 for malformed requests.
func badRequest(w http.ResponseWriter, r *http.Request, code, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Code: code, Message: msg})
}
