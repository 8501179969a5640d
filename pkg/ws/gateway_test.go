package ws

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vendaro/vendaro/pkg/auth"
	"github.com/vendaro/vendaro/pkg/db"
	"github.com/vendaro/vendaro/pkg/models"
	"github.com/vendaro/vendaro/pkg/service"
	"github.com/vendaro/vendaro/pkg/utils"
)

type gatewayFixture struct {
	svc      *service.SupportService
	resolver *auth.Resolver
	hub      *Hub
	wsURL    string
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(filepath.Join(t.TempDir(), "support.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	directory := auth.NewGormDirectory(gdb)
	svc := service.NewSupportService(gdb, directory)
	if err := svc.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	accounts := []db.Account{
		{ID: "c1", Role: db.RoleCustomer, DisplayName: "Carol", Active: true},
		{ID: "v1", Role: db.RoleVendor, DisplayName: "Vera", Active: true},
		{ID: "s1", Role: db.RoleStaff, DisplayName: "Sam", Active: true},
	}
	for i := range accounts {
		if err := gdb.Create(&accounts[i]).Error; err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}

	resolver := auth.NewResolver("test-secret", directory, time.Hour)
	hub := NewHub(utils.GetLogger())
	svc.SetBroadcaster(hub)
	gateway := NewGateway(hub, resolver, svc, utils.GetLogger())

	engine := gin.New()
	engine.GET("/ws/support", gateway.Handle)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return &gatewayFixture{
		svc:      svc,
		resolver: resolver,
		hub:      hub,
		wsURL:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/support",
	}
}

func (f *gatewayFixture) dial(t *testing.T, role, id string) *websocket.Conn {
	t.Helper()
	token, err := f.resolver.Issue(role, id)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial as %s/%s: %v", role, id, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) (Envelope, bool) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	var ev Envelope
	if err := conn.ReadJSON(&ev); err != nil {
		return Envelope{}, false
	}
	return ev, true
}

func waitForRoomSize(t *testing.T, hub *Hub, room string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.RoomSize(room) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("RoomSize(%s) = %d, want %d", room, hub.RoomSize(room), want)
}

func TestHandshake_RefusesInvalidCredential(t *testing.T) {
	f := newGatewayFixture(t)

	for _, url := range []string{f.wsURL, f.wsURL + "?token=garbage"} {
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			conn.Close()
			t.Fatalf("dial %s succeeded, want refusal", url)
		}
		if resp == nil || resp.StatusCode != 401 {
			t.Fatalf("dial %s status = %v, want 401", url, resp)
		}
	}
}

func TestHandshake_AutoJoinsSelfRoom(t *testing.T) {
	f := newGatewayFixture(t)

	f.dial(t, db.RoleCustomer, "c1")
	waitForRoomSize(t, f.hub, service.SelfRoom("c1"), 1)
}

func TestSendMessage_FanOut(t *testing.T) {
	f := newGatewayFixture(t)

	ticket, err := f.svc.CreateTicket(
		models.Identity{Role: db.RoleCustomer, AccountID: "c1", DisplayName: "Carol"},
		&models.CreateTicketRequest{Type: "billing", Subject: "Refund"},
	)
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	customer := f.dial(t, db.RoleCustomer, "c1")
	staff := f.dial(t, db.RoleStaff, "s1")
	bystander := f.dial(t, db.RoleVendor, "v1")

	join := Envelope{Event: "join_ticket_room", Data: map[string]any{"ticketId": ticket.ID}}
	for _, conn := range []*websocket.Conn{customer, staff} {
		if err := conn.WriteJSON(join); err != nil {
			t.Fatalf("join: %v", err)
		}
		ack, ok := readEnvelope(t, conn, 2*time.Second)
		if !ok || ack.Event != "joined_ticket_room" {
			t.Fatalf("join ack = %+v", ack)
		}
	}
	waitForRoomSize(t, f.hub, service.TicketRoom(ticket.ID), 2)

	post := Envelope{Event: "send_message", Data: map[string]any{
		"ticketId": ticket.ID,
		"message":  "Where is my order?",
	}}
	if err := customer.WriteJSON(post); err != nil {
		t.Fatalf("send_message: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"customer": customer, "staff": staff} {
		ev, ok := readEnvelope(t, conn, 2*time.Second)
		if !ok {
			t.Fatalf("%s received nothing", name)
		}
		if ev.Event != "message_received" {
			t.Fatalf("%s event = %q, want message_received", name, ev.Event)
		}
		if ev.Data["ticketId"] != ticket.ID {
			t.Fatalf("%s ticketId = %v", name, ev.Data["ticketId"])
		}
		msg, _ := ev.Data["message"].(map[string]any)
		if msg["body"] != "Where is my order?" {
			t.Fatalf("%s body = %v", name, msg["body"])
		}
	}

	// A connection that never joined the room receives nothing.
	if ev, ok := readEnvelope(t, bystander, 500*time.Millisecond); ok {
		t.Fatalf("bystander received %+v, want nothing", ev)
	}
}

func TestSendMessage_ErrorsGoToSenderOnly(t *testing.T) {
	f := newGatewayFixture(t)

	customer := f.dial(t, db.RoleCustomer, "c1")

	post := Envelope{Event: "send_message", Data: map[string]any{
		"ticketId": "no-such-ticket",
		"message":  "hello",
	}}
	if err := customer.WriteJSON(post); err != nil {
		t.Fatalf("send_message: %v", err)
	}

	ev, ok := readEnvelope(t, customer, 2*time.Second)
	if !ok || ev.Event != "error" {
		t.Fatalf("event = %+v, want error", ev)
	}

	// The connection survives a per-event failure.
	if err := customer.WriteJSON(Envelope{Event: "typing_start", Data: map[string]any{"ticketId": "t"}}); err != nil {
		t.Fatalf("connection closed after error event: %v", err)
	}
}

func TestUpdateTicketStatus_StaffOnlyEvent(t *testing.T) {
	f := newGatewayFixture(t)

	customer := f.dial(t, db.RoleCustomer, "c1")

	if err := customer.WriteJSON(Envelope{
		Event: "update_ticket_status",
		Data:  map[string]any{"ticketId": "t1", "status": "closed"},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	ev, ok := readEnvelope(t, customer, 2*time.Second)
	if !ok || ev.Event != "error" {
		t.Fatalf("event = %+v, want error for non-staff status update", ev)
	}
}

func TestTyping_RelayedToPeersOnly(t *testing.T) {
	f := newGatewayFixture(t)

	session, err := f.svc.StartSession(models.Identity{Role: db.RoleCustomer, AccountID: "c1", DisplayName: "Carol"})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	customer := f.dial(t, db.RoleCustomer, "c1")
	staff := f.dial(t, db.RoleStaff, "s1")

	join := Envelope{Event: "join_chat_session", Data: map[string]any{"sessionId": session.ID}}
	for _, conn := range []*websocket.Conn{customer, staff} {
		if err := conn.WriteJSON(join); err != nil {
			t.Fatalf("join: %v", err)
		}
		if ack, ok := readEnvelope(t, conn, 2*time.Second); !ok || ack.Event != "joined_chat_session" {
			t.Fatalf("join ack = %+v", ack)
		}
	}

	if err := customer.WriteJSON(Envelope{Event: "typing_start", Data: map[string]any{"sessionId": session.ID}}); err != nil {
		t.Fatalf("typing_start: %v", err)
	}

	ev, ok := readEnvelope(t, staff, 2*time.Second)
	if !ok || ev.Event != "user_typing" {
		t.Fatalf("staff event = %+v, want user_typing", ev)
	}
	if ev.Data["name"] != "Carol" {
		t.Fatalf("typing name = %v, want Carol", ev.Data["name"])
	}

	// The typist does not hear their own indicator.
	if ev, ok := readEnvelope(t, customer, 500*time.Millisecond); ok {
		t.Fatalf("typist received %+v, want nothing", ev)
	}
}
