package response

import (
	"encoding/json"
	"net/http"
	"time"
)

// Envelope is the uniform wire shape for every API response. CorrelationID
// is set on errors so clients can reference server logs; success responses
// omit it unless a caller supplies one explicitly.
type Envelope struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	Data          any    `json:"data,omitempty"`
	Timestamp     string `json:"timestamp"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func Success(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
