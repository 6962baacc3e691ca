package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/plc-core/internal/controller"
	"github.com/nerrad567/plc-core/internal/dimmer"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeUnavailable = "unavailable"
)

// Errors returned by WSClient.Send.
var (
	ErrSendQueueFull = errors.New("api: client send queue full")
	ErrClientClosed  = errors.New("api: client closed")
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeControllerError maps a controller or dimmer error to a response.
func writeControllerError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err.Error())
}

// classify maps an error to an HTTP status and error code. The WebSocket
// handler reuses the code in its error replies.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, dimmer.ErrEntityNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, dimmer.ErrInvalidLevel),
		errors.Is(err, dimmer.ErrCyclicReference),
		errors.Is(err, dimmer.ErrInvalidKind),
		errors.Is(err, dimmer.ErrInvalidAttribute),
		errors.Is(err, controller.ErrUnknownUpdate),
		errors.Is(err, controller.ErrEmptyID),
		errors.Is(err, errInvalidChannel):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, dimmer.ErrDeserialization):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, controller.ErrStopped):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
