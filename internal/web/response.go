package web

import (
	"context"
	"encoding/json"
	"net/http"
)

type contextKey string

const requestIDKey contextKey = "request_id"

func withRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFrom returns the request ID stored in the context, if any
func RequestIDFrom(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// errorBody is the JSON error envelope used outside the RPC endpoint
type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// JSON writes v as a JSON response with the given status
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes a JSON error envelope with the given status
func Error(w http.ResponseWriter, status int, message string) {
	var body errorBody
	body.Error.Message = message
	JSON(w, status, body)
}
