package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// apiError is the JSON error envelope returned by the listener.
type apiError struct {
	Code    string
	Message string
	Status  int
}

func newError(code, message string, status int) apiError {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return apiError{Code: sanitize(code, 80), Message: sanitize(message, 512), Status: status}
}

func writeError(ctx context.Context, w http.ResponseWriter, e apiError) {
	payload := map[string]any{
		"error":   e.Code,
		"message": e.Message,
		"status":  e.Status,
	}
	if id := sanitize(middleware.GetReqID(ctx), 80); id != "" {
		payload["request_id"] = id
	}
	writeJSON(w, e.Status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
