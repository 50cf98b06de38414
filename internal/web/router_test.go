package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/caseflow/caseflow/internal/auth"
	"github.com/caseflow/caseflow/internal/store"
	"github.com/caseflow/caseflow/internal/web/events"
)

func setupTestRouter(t *testing.T) (*httptest.Server, *events.Hub, string) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := auth.NewService("test-secret", time.Hour)
	token, err := svc.GenerateToken(9, "tester", []string{"tester"})
	require.NoError(t, err)

	hub := events.NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		hub.Stop()
	})

	router := NewRouter(RouterConfig{
		RPC: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
		Hub:       hub,
		Store:     store.NewWithDB(db, "postgres"),
		Validator: svc,
		Logger:    zap.NewNop(),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, hub, token
}

// The upgrade must survive the whole middleware chain: the logging
// middleware's response wrapper has to pass hijacking through.
func TestRouter_WebsocketUpgradeThroughFullChain(t *testing.T) {
	server, hub, token := setupTestRouter(t)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?access_token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "websocket upgrade failed behind the middleware chain")
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action": "subscribe",
		"run_id": 5,
	}))
	// Give the read pump time to register the subscription with the hub
	time.Sleep(200 * time.Millisecond)

	hub.ExecutionUpdated(5, &store.TestExecution{ID: 42, RunID: 5, StatusID: 3})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg events.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "execution.updated", msg.Type)
	assert.Equal(t, "run:5", msg.Room)
}

func TestRouter_WebsocketRequiresToken(t *testing.T) {
	server, _, _ := setupTestRouter(t)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if conn != nil {
		conn.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
