// Package rpc implements the JSON-RPC 2.0 endpoint served at POST /rpc.
// Methods are registered by name ("TestExecution.update", "Testing.breakdown")
// together with the permission required to call them; the handler decodes
// the envelope, checks the caller's identity and dispatches.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/caseflow/caseflow/internal/auth"
	"github.com/caseflow/caseflow/internal/store"
)

// JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// Implementation-defined codes
	CodeUnauthorized = -32000
	CodeForbidden    = -32001
	CodeNotFound     = -32002
	CodeConflict     = -32003
)

// Request is one JSON-RPC 2.0 call
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is one JSON-RPC 2.0 reply
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Error is the JSON-RPC 2.0 error object
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds an *Error with the given code and message
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// HandlerFunc executes one RPC method. Params is the raw params member of
// the request; the returned value becomes the result member.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Method is a registered RPC method
type Method struct {
	Name       string
	Handler    HandlerFunc
	Permission auth.Permission
}

// Registry maps method names to handlers
type Registry struct {
	mu      sync.RWMutex
	methods map[string]Method
	logger  *zap.Logger
}

// NewRegistry creates an empty method registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		methods: make(map[string]Method),
		logger:  logger,
	}
}

// Register adds a method to the registry. An empty permission means the
// method is open to any authenticated caller.
func (r *Registry) Register(name string, permission auth.Permission, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[name] = Method{Name: name, Handler: handler, Permission: permission}
}

// Methods returns the registered method names in sorted order
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServeHTTP handles POST /rpc. Both single calls and batches are accepted.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := json.NewDecoder(req.Body)
	body.UseNumber()

	var raw json.RawMessage
	if err := body.Decode(&raw); err != nil {
		writeResponse(w, r.logger, Response{
			JSONRPC: "2.0",
			Error:   NewError(CodeParseError, "parse error"),
			ID:      json.RawMessage("null"),
		})
		return
	}

	if isBatch(raw) {
		var calls []json.RawMessage
		if err := json.Unmarshal(raw, &calls); err != nil || len(calls) == 0 {
			writeResponse(w, r.logger, Response{
				JSONRPC: "2.0",
				Error:   NewError(CodeInvalidRequest, "invalid request"),
				ID:      json.RawMessage("null"),
			})
			return
		}

		responses := make([]Response, 0, len(calls))
		for _, call := range calls {
			responses = append(responses, r.dispatch(req.Context(), call))
		}
		writeResponse(w, r.logger, responses)
		return
	}

	writeResponse(w, r.logger, r.dispatch(req.Context(), raw))
}

// dispatch runs a single call and builds its response
func (r *Registry) dispatch(ctx context.Context, raw json.RawMessage) Response {
	var call Request
	if err := json.Unmarshal(raw, &call); err != nil || call.Method == "" {
		return Response{
			JSONRPC: "2.0",
			Error:   NewError(CodeInvalidRequest, "invalid request"),
			ID:      requestID(call.ID),
		}
	}

	resp := Response{JSONRPC: "2.0", ID: requestID(call.ID)}

	r.mu.RLock()
	method, ok := r.methods[call.Method]
	r.mu.RUnlock()
	if !ok {
		resp.Error = NewError(CodeMethodNotFound, "method not found: "+call.Method)
		return resp
	}

	if err := r.authorize(ctx, method); err != nil {
		resp.Error = err
		return resp
	}

	result, err := method.Handler(ctx, call.Params)
	if err != nil {
		resp.Error = mapError(err)
		r.logger.Debug("rpc call failed",
			zap.String("method", call.Method),
			zap.Int("code", resp.Error.Code),
			zap.String("error", resp.Error.Message),
		)
		return resp
	}

	resp.Result = result
	return resp
}

// authorize verifies the caller's identity and the method's permission
func (r *Registry) authorize(ctx context.Context, method Method) *Error {
	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		return NewError(CodeUnauthorized, "authentication required")
	}
	if method.Permission == "" {
		return nil
	}
	if !auth.HasPermission(identity.Roles, method.Permission) {
		return NewError(CodeForbidden, "permission denied: "+string(method.Permission))
	}
	return nil
}

// mapError translates store and handler errors into JSON-RPC errors
func mapError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return NewError(CodeNotFound, err.Error())
	case errors.Is(err, store.ErrUniqueViolation),
		errors.Is(err, store.ErrForeignKeyViolation):
		return NewError(CodeConflict, err.Error())
	case errors.Is(err, store.ErrNotNullViolation),
		errors.Is(err, store.ErrCheckViolation):
		return NewError(CodeInvalidParams, err.Error())
	default:
		return NewError(CodeInternalError, err.Error())
	}
}

// invalidParams wraps a params decoding failure
func invalidParams(err error) *Error {
	return NewError(CodeInvalidParams, "invalid params: "+err.Error())
}

// requestID normalizes a missing id to JSON null
func requestID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// isBatch reports whether the payload is a JSON array
func isBatch(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

func writeResponse(w http.ResponseWriter, logger *zap.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode rpc response", zap.Error(err))
	}
}
