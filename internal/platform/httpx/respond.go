// Package httpx provides the JSON response envelope shared by all handlers.
package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

// Envelope is the wire shape for every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Meta carries observability fields attached to permission-check responses.
type Meta struct {
	UserID       int64     `json:"userId"`
	Role         string    `json:"role"`
	ResponseTime string    `json:"responseTime"`
	FromCache    bool      `json:"fromCache"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewMeta builds response metadata for a permission check that started at the given time.
func NewMeta(userID int64, role string, start time.Time, fromCache bool) *Meta {
	return &Meta{
		UserID:       userID,
		Role:         role,
		ResponseTime: time.Since(start).Round(time.Millisecond).String(),
		FromCache:    fromCache,
		Timestamp:    time.Now().UTC(),
	}
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// OK sends a success envelope.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// OKWithMeta sends a success envelope with check metadata attached.
func OKWithMeta(w http.ResponseWriter, data any, meta *Meta) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data, Meta: meta})
}

// DecodeJSON decodes a JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
