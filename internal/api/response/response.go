package response

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lifelog-dev/beacon/internal/api/errors"
)

// Response represents a standardized API response
type Response struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     any    `json:"error,omitempty"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	resp := Response{
		Success:   statusCode >= 200 && statusCode < 300,
		RequestID: middleware.GetReqID(r.Context()),
		Data:      data,
	}
	sendJSON(w, statusCode, resp)
}

// Message sends a JSON response carrying a human-readable message next to
// the data payload.
func Message(w http.ResponseWriter, r *http.Request, statusCode int, message string, data any) {
	resp := Response{
		Success:   statusCode >= 200 && statusCode < 300,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
		Data:      data,
	}
	sendJSON(w, statusCode, resp)
}

// Error sends an error response
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())

	apiErr := errors.FromError(err)
	apiErr.WithRequestID(requestID)

	resp := Response{
		Success:   false,
		RequestID: requestID,
		Error:     apiErr,
	}
	sendJSON(w, apiErr.HTTPCode, resp)
}

// sendJSON is a helper function to send a JSON response
func sendJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"success":false,"error":{"type":"internal","code":"json_encode_error","message":"Failed to encode JSON response"}}`, http.StatusInternalServerError)
	}
}
