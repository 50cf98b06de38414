package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/caseflow/caseflow/internal/store"
)

// settle gives the hub loop time to drain its channels; register,
// subscribe and broadcast arrive on separate channels with no ordering
// guarantee between them
func settle(hub *Hub) {
	for i := 0; i < 50; i++ {
		if len(hub.register) == 0 && len(hub.subscribe) == 0 && len(hub.unregister) == 0 {
			time.Sleep(5 * time.Millisecond)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestClient(hub *Hub) *Client {
	return &Client{
		id:    "test-client",
		hub:   hub,
		send:  make(chan []byte, 8),
		rooms: make(map[string]bool),
	}
}

func TestHub_BroadcastsToSubscribedRoom(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	defer hub.Stop()

	client := newTestClient(hub)
	hub.register <- client
	settle(hub)
	hub.subscribe <- subscription{client: client, room: RunRoom(5)}
	settle(hub)

	execution := &store.TestExecution{ID: 42, RunID: 5, StatusID: 3}
	hub.ExecutionUpdated(5, execution)

	select {
	case data := <-client.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "execution.updated", msg.Type)
		assert.Equal(t, "run:5", msg.Room)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast message")
	}
}

func TestHub_DoesNotBroadcastToOtherRooms(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	defer hub.Stop()

	client := newTestClient(hub)
	hub.register <- client
	settle(hub)
	hub.subscribe <- subscription{client: client, room: RunRoom(5)}
	settle(hub)

	hub.ExecutionUpdated(6, &store.TestExecution{ID: 1, RunID: 6})

	select {
	case <-client.send:
		t.Fatal("client of run:5 must not receive run:6 events")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	defer hub.Stop()

	client := newTestClient(hub)
	hub.register <- client
	settle(hub)
	hub.subscribe <- subscription{client: client, room: RunRoom(5)}
	hub.subscribe <- subscription{client: client, room: RunRoom(5), leave: true}
	settle(hub)

	hub.ExecutionUpdated(5, &store.TestExecution{ID: 1, RunID: 5})

	select {
	case <-client.send:
		t.Fatal("unsubscribed client must not receive events")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	defer hub.Stop()

	client := newTestClient(hub)
	hub.register <- client
	settle(hub)
	hub.subscribe <- subscription{client: client, room: RunRoom(5)}
	settle(hub)
	hub.unregister <- client

	select {
	case _, ok := <-client.send:
		assert.False(t, ok, "send channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("expected the send channel to close")
	}
}

func TestHub_PublishAfterShutdownDoesNotBlock(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()
	hub.Stop()

	// The loop has exited and nothing drains the broadcast buffer; keep
	// publishing past its capacity
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < cap(hub.broadcast)+10; i++ {
			hub.ExecutionUpdated(5, &store.TestExecution{ID: int64(i), RunID: 5})
		}
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("publishing to a stopped hub must not block")
	}
}

func TestRunRoom(t *testing.T) {
	assert.Equal(t, "run:17", RunRoom(17))
}
