package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/caseflow/caseflow/internal/store"
	"github.com/caseflow/caseflow/internal/web/events"
)

// RouterConfig carries the router dependencies
type RouterConfig struct {
	RPC       http.Handler
	Hub       *events.Hub
	Store     *store.Store
	Validator TokenValidator
	Logger    *zap.Logger
}

// NewRouter assembles the route table behind the middleware chain:
// POST /rpc, GET /healthz and GET /ws.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	chain := NewChain(
		RequestID(),
		Recovery(cfg.Logger),
		Logging(cfg.Logger),
		Authenticate(cfg.Validator, "/healthz"),
	)

	r.Method(http.MethodPost, "/rpc", cfg.RPC)
	r.Get("/healthz", healthz(cfg.Store))
	r.Get("/ws", events.ServeWS(cfg.Hub, cfg.Logger))

	return chain.Then(r)
}

// healthz reports liveness and database reachability
func healthz(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.DB().PingContext(ctx); err != nil {
			Error(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
