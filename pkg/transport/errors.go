package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rhuss/copilot-bridge/pkg/api"
)

// HTTPStatusFromError maps an APIError type to the corresponding HTTP status
// code. Upstream failures are not APIErrors and keep the upstream status.
func HTTPStatusFromError(err *api.APIError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes the flat {"error": msg} body with the given status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, api.ErrorResponse{Error: msg})
}

// WriteAPIError writes an APIError, deriving the HTTP status code from the
// error type. Only the message reaches the client.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteError(w, HTTPStatusFromError(apiErr), apiErr.Message)
}

// WriteJSON encodes v as the response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
