// Package ws pushes committed order events to connected websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/repairhub/api/internal/enum"
	"github.com/repairhub/api/internal/logger"
	"github.com/repairhub/api/internal/service"
)

const broadcastBuffer = 256

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// roomEvent routes one event to a set of rooms.
type roomEvent struct {
	Rooms []string
	Event Event
}

// Hub maintains the set of active clients and broadcasts messages to them.
// Staff clients join the staff room; customers join their own user room.
type Hub struct {
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomEvent
	done       chan struct{}

	log *zap.Logger
	mu  sync.RWMutex
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = logger.L()
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomEvent, broadcastBuffer),
		done:       make(chan struct{}),
		log:        log,
	}
}

// StaffRoom receives every order event.
func StaffRoom() string { return enum.RoomStaff }

// UserRoom receives events for orders owned by one customer.
func UserRoom(userID string) string { return enum.RoomCustomerPfx + userID }

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			for _, room := range client.rooms {
				if h.rooms[room] == nil {
					h.rooms[room] = make(map[*Client]bool)
				}
				h.rooms[room][client] = true
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			message, err := json.Marshal(ev.Event)
			if err != nil {
				h.log.Error("marshal ws event", zap.String("type", ev.Event.Type), zap.Error(err))
				continue
			}

			h.mu.Lock()
			for _, room := range ev.Rooms {
				for client := range h.rooms[room] {
					select {
					case client.send <- message:
					default:
						// Slow consumer: drop the connection rather than block.
						h.removeLocked(client)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// removeLocked drops client from all its rooms and closes its send channel.
func (h *Hub) removeLocked(client *Client) {
	registered := false
	for _, room := range client.rooms {
		clients, ok := h.rooms[room]
		if !ok || !clients[client] {
			continue
		}
		registered = true
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	if registered {
		close(client.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[*Client]bool)
	for _, clients := range h.rooms {
		for c := range clients {
			if !seen[c] {
				seen[c] = true
				close(c.send)
			}
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
}

// Register adds client to the hub. Returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues ev for the given rooms. It never blocks: when the queue
// is full the event is dropped and logged.
func (h *Hub) Broadcast(ev Event, rooms ...string) {
	select {
	case h.broadcast <- &roomEvent{Rooms: rooms, Event: ev}:
	default:
		h.log.Warn("ws broadcast queue full, dropping event", zap.String("type", ev.Type))
	}
}

// Publish implements service.EventPublisher. Staff see every event; the
// order's owner sees events for their own order.
func (h *Hub) Publish(ctx context.Context, ev service.OrderEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.FromCtx(ctx).Error("marshal order event", zap.Error(err))
		return
	}
	h.Broadcast(Event{Type: ev.Type, Payload: payload}, StaffRoom(), UserRoom(ev.OwnerID.String()))
}
