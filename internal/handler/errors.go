package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/pkordes/trip-scheduler/internal/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a human-readable message.
// Conflicts and Messages are set only for code "conflict" raised by the
// availability check.
type ErrorDetail struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Conflicts []ConflictSummary `json:"conflicts,omitempty"`
	Messages  []string          `json:"messages,omitempty"`
}

// writeJSON encodes body with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestError writes a 422 for input rejected before reaching the service
// layer (e.g. malformed JSON or a bad path parameter).
func requestError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: ErrorDetail{Code: "validation_error", Message: message}})
}

// writeError maps a service error to its HTTP status and body.
// Unrecognised errors are logged and reported as a bare 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *domain.ConflictError
	switch {
	case errors.As(err, &ce):
		conflicts := ce.Availability.Conflicts()
		detail := ErrorDetail{
			Code:      "conflict",
			Message:   "driver or vehicle is already booked in this window",
			Conflicts: make([]ConflictSummary, len(conflicts)),
			Messages:  ce.Messages,
		}
		for i, c := range conflicts {
			detail.Conflicts[i] = conflictToResponse(c)
		}
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: detail})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: ErrorDetail{Code: "not_found", Message: unwrapMessage(err, domain.ErrNotFound)}})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: ErrorDetail{Code: "conflict", Message: unwrapMessage(err, domain.ErrConflict)}})
	case errors.Is(err, domain.ErrInvalidState):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: ErrorDetail{Code: "invalid_state", Message: unwrapMessage(err, domain.ErrInvalidState)}})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: ErrorDetail{Code: "validation_error", Message: unwrapMessage(err, domain.ErrInvalidArgument)}})
	default:
		s.log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{Code: "internal_error", Message: "internal server error"}})
	}
}

// opPrefix matches the "service.Type.Method: " and "repo.Type.Method: "
// wrapping added on the way up, however deeply nested.
var opPrefix = regexp.MustCompile(`^(?:(?:service|repo)\.\w+\.\w+: )+`)

// unwrapMessage extracts the human-readable part of a wrapped sentinel error.
// e.g. "service.ScheduleService.Create: destinations[0]: validation error: trip_start_time is required"
// → "destinations[0]: trip_start_time is required"
func unwrapMessage(err, sentinel error) string {
	if err == nil {
		return ""
	}
	msg := opPrefix.ReplaceAllString(err.Error(), "")
	if msg == sentinel.Error() {
		return msg
	}
	return strings.Replace(msg, sentinel.Error()+": ", "", 1)
}
