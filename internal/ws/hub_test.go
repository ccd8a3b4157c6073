package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/repairhub/api/internal/auth"
	"github.com/repairhub/api/internal/enum"
	"github.com/repairhub/api/internal/service"
)

const testSecret = "test-secret"

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, rooms ...string) *Client {
	return &Client{
		hub:   hub,
		rooms: rooms,
		send:  make(chan []byte, 8),
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal message: %v", err)
		}
		return ev
	case <-time.After(200 * time.Millisecond):
		t.Fatal("client did not receive message")
	}
	return Event{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected message: %s", msg)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func orderEvent(owner uuid.UUID) service.OrderEvent {
	return service.OrderEvent{
		Type:       enum.EventOrderCreated,
		OrderID:    uuid.New(),
		OwnerID:    owner,
		Status:     enum.OrderStatusPending,
		TotalPrice: "10.00",
		At:         time.Now().UTC(),
	}
}

func TestHubRegistration(t *testing.T) {
	hub := startHub(t)
	client := mockClient(hub, StaffRoom())

	if !hub.Register(client) {
		t.Fatal("register failed")
	}
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if !hub.rooms[StaffRoom()][client] {
		t.Fatal("client not registered in staff room")
	}
}

func TestHubCleanupEmptyRoom(t *testing.T) {
	hub := startHub(t)
	room := UserRoom(uuid.NewString())
	client1 := mockClient(hub, room)
	client2 := mockClient(hub, room)

	hub.Register(client1)
	hub.Register(client2)
	time.Sleep(10 * time.Millisecond)

	hub.Unregister(client1)
	time.Sleep(10 * time.Millisecond)
	hub.mu.RLock()
	if len(hub.rooms[room]) != 1 {
		t.Fatalf("expected 1 client after first unregister, got %d", len(hub.rooms[room]))
	}
	hub.mu.RUnlock()

	hub.Unregister(client2)
	time.Sleep(10 * time.Millisecond)
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.rooms[room] != nil {
		t.Fatal("room should be deleted when last client unregisters")
	}
	if _, ok := <-client1.send; ok {
		t.Error("send channel should be closed")
	}
}

func TestPublish_RoutesToStaffAndOwner(t *testing.T) {
	hub := startHub(t)
	owner := uuid.New()
	staff := mockClient(hub, StaffRoom())
	mine := mockClient(hub, UserRoom(owner.String()))
	other := mockClient(hub, UserRoom(uuid.NewString()))
	for _, c := range []*Client{staff, mine, other} {
		hub.Register(c)
	}
	time.Sleep(10 * time.Millisecond)

	ev := orderEvent(owner)
	hub.Publish(context.Background(), ev)

	for name, c := range map[string]*Client{"staff": staff, "owner": mine} {
		got := receive(t, c)
		if got.Type != enum.EventOrderCreated {
			t.Errorf("%s: type got %q", name, got.Type)
		}
		var payload service.OrderEvent
		if err := json.Unmarshal(got.Payload, &payload); err != nil {
			t.Fatalf("%s: payload: %v", name, err)
		}
		if payload.OrderID != ev.OrderID || payload.TotalPrice != "10.00" {
			t.Errorf("%s: payload got %+v", name, payload)
		}
	}
	expectNothing(t, other)
}

func TestBroadcast_DropsWhenQueueFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	hub := NewHub(zap.New(core))
	// Run is not started, so nothing drains the queue.
	for i := 0; i < broadcastBuffer+3; i++ {
		hub.Broadcast(Event{Type: "x"}, StaffRoom())
	}

	if n := logs.FilterMessage("ws broadcast queue full, dropping event").Len(); n != 3 {
		t.Errorf("dropped events logged: got %d, want 3", n)
	}
}

func TestSlowClientIsDisconnected(t *testing.T) {
	hub := startHub(t)
	slow := mockClient(hub, StaffRoom())
	slow.send = make(chan []byte) // unbuffered and never read
	hub.Register(slow)
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(Event{Type: "x"}, StaffRoom())
	time.Sleep(20 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.rooms[StaffRoom()] != nil {
		t.Fatal("slow client should have been removed")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := mockClient(hub, StaffRoom())
	hub.Register(client)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	if _, ok := <-client.send; ok {
		t.Error("client channel should be closed on shutdown")
	}
	if hub.Register(mockClient(hub, StaffRoom())) {
		t.Error("register after shutdown should fail")
	}
}

func TestHandler_DeliversEvents(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(NewHandler(hub, testSecret, nil))
	defer srv.Close()

	owner := uuid.New()
	token, err := auth.GenerateToken(testSecret, time.Minute, owner, "sita", false)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for registration before publishing.
	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.rooms[UserRoom(owner.String())])
		hub.mu.RUnlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(context.Background(), orderEvent(owner))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != enum.EventOrderCreated {
		t.Errorf("type: got %q", got.Type)
	}
}

func TestHandler_RejectsBadToken(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(NewHandler(hub, testSecret, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	for _, q := range []string{"", "?token=nope"} {
		_, resp, err := websocket.DefaultDialer.Dial(url+q, nil)
		if err == nil {
			t.Fatalf("%q: expected handshake failure", q)
		}
		if resp == nil || resp.StatusCode != 401 {
			t.Errorf("%q: expected 401, got %v", q, resp)
		}
	}
}

func TestRoomsFor(t *testing.T) {
	id := uuid.New()
	if got := roomsFor(&auth.Claims{UserID: id, IsStaff: true}); len(got) != 1 || got[0] != "staff" {
		t.Errorf("staff rooms: %v", got)
	}
	if got := roomsFor(&auth.Claims{UserID: id}); len(got) != 1 || got[0] != "user:"+id.String() {
		t.Errorf("customer rooms: %v", got)
	}
}
