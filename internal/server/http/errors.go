package httpserver

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/and161185/offer-chat/internal/api"
	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/service"
)

// writeError maps service errors onto status codes. Unknown errors are
// logged and answered with 500 "internal".
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *service.RateLimitError
	switch {
	case errors.As(err, &rl):
		secs := int(math.Ceil(rl.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, api.ErrorResponse{Error: "too many messages"})
	case errors.Is(err, errs.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
	case errors.Is(err, errs.ErrForbidden):
		writeJSON(w, http.StatusForbidden, api.ErrorResponse{Error: "forbidden"})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "conversation not found"})
	case errors.Is(err, errs.ErrValidation):
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, errs.ErrInvalidState), errors.Is(err, errs.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, api.ErrorResponse{Error: "conflict"})
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "internal"})
	}
}
