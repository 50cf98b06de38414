// Package events pushes execution status changes to websocket clients.
// Clients subscribe to per-run rooms ("run:<id>"); every TestExecution
// update is broadcast to the room of its run.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/caseflow/caseflow/internal/store"
)

// Message is the envelope sent to websocket clients
type Message struct {
	Type string      `json:"type"`
	Room string      `json:"room,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// roomMessage targets one room
type roomMessage struct {
	room string
	data []byte
}

// subscription is a join or leave request from a client's read loop
type subscription struct {
	client *Client
	room   string
	leave  bool
}

// Hub maintains the set of active clients and their room subscriptions
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	broadcast  chan roomMessage

	logger *zap.Logger

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// NewHub creates an idle hub; call Run to start the event loop
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		subscribe:  make(chan subscription, 64),
		broadcast:  make(chan roomMessage, 256),
		logger:     logger,
		stopped:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run drives the hub until the context is cancelled or Stop is called.
// All client and room bookkeeping happens on this goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.stopped:
			h.closeAll()
			return

		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.removeClient(client)
			}

		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			if sub.leave {
				h.leave(sub.client, sub.room)
			} else {
				h.join(sub.client, sub.room)
			}

		case msg := <-h.broadcast:
			for client := range h.rooms[msg.room] {
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer, drop it
					h.removeClient(client)
				}
			}
		}
	}
}

// Stop shuts the hub down and waits for the event loop to exit. Run must
// have been started.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopped) })
	<-h.done
}

// ExecutionUpdated broadcasts an execution change to the run's room
func (h *Hub) ExecutionUpdated(runID int64, execution *store.TestExecution) {
	room := RunRoom(runID)
	data, err := json.Marshal(Message{
		Type: "execution.updated",
		Room: room,
		Data: execution,
	})
	if err != nil {
		h.logger.Error("failed to marshal execution event", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- roomMessage{room: room, data: data}:
	case <-h.done:
	}
}

// RunRoom returns the room name for a test run
func RunRoom(runID int64) string {
	return fmt.Sprintf("run:%d", runID)
}

// join subscribes a client to a room. Called from the event loop only.
func (h *Hub) join(client *Client, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	client.rooms[room] = true
}

// leave unsubscribes a client from a room. Called from the event loop only.
func (h *Hub) leave(client *Client, room string) {
	delete(client.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// removeClient drops a client from every room and closes its send channel
func (h *Hub) removeClient(client *Client) {
	for room := range client.rooms {
		h.leave(client, room)
	}
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) closeAll() {
	for client := range h.clients {
		h.removeClient(client)
	}
}
