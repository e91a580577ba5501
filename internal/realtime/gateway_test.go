package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"bazaar/internal/domain/chat"
	"bazaar/internal/infra/storage/memory"
)

// fakeConn satisfies Conn for tests that drive Dispatch directly.
type fakeConn struct {
	closed bool
}

func (c *fakeConn) ReadMessage() (int, []byte, error) { select {} }
func (c *fakeConn) WriteMessage(int, []byte) error    { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) Close() error                      { c.closed = true; return nil }

type gatewayFixture struct {
	gateway       *Gateway
	conversations *memory.ConversationStore
	messages      *memory.MessageStore
	conversation  *chat.Conversation
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	conversations := memory.NewConversationStore()
	messages := memory.NewMessageStore()

	conv, err := conversations.FindOrCreate(context.Background(), "alice", "bob", "post-1")
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gateway := NewGateway(logger, NewInMemoryRegistry(), conversations, messages, nil, nil)
	return &gatewayFixture{
		gateway:       gateway,
		conversations: conversations,
		messages:      messages,
		conversation:  conv,
	}
}

func dispatch(t *testing.T, g *Gateway, client *Client, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	g.Dispatch(context.Background(), client, Frame{Event: event, Data: data})
}

func nextFrame(t *testing.T, client *Client) Frame {
	t.Helper()
	select {
	case frame := <-client.send:
		return frame
	default:
		t.Fatalf("no frame queued for %s", client.UserID)
		return Frame{}
	}
}

func noFrame(t *testing.T, client *Client) {
	t.Helper()
	select {
	case frame := <-client.send:
		t.Fatalf("unexpected frame %q for %s", frame.Event, client.UserID)
	default:
	}
}

func errorMessage(t *testing.T, frame Frame) string {
	t.Helper()
	if frame.Event != EventError {
		t.Fatalf("expected error event, got %q", frame.Event)
	}
	var p ErrorPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return p.Message
}

func TestJoinConversationAsParticipant(t *testing.T) {
	fx := newGatewayFixture(t)
	alice := newTestClient("alice", "s1")

	dispatch(t, fx.gateway, alice, EventJoinConversation, JoinConversationPayload{
		ConversationID: string(fx.conversation.ID),
	})

	frame := nextFrame(t, alice)
	if frame.Event != EventJoinedConversation {
		t.Fatalf("expected joined_conversation, got %q", frame.Event)
	}
	var p JoinedConversationPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !p.Success || p.ConversationID != string(fx.conversation.ID) {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if !fx.gateway.Rooms.Contains(conversationRoom(fx.conversation.ID), alice) {
		t.Fatalf("client not in conversation room after join")
	}
}

func TestJoinConversationRejectsOutsider(t *testing.T) {
	fx := newGatewayFixture(t)
	mallory := newTestClient("mallory", "s1")

	dispatch(t, fx.gateway, mallory, EventJoinConversation, JoinConversationPayload{
		ConversationID: string(fx.conversation.ID),
	})

	if msg := errorMessage(t, nextFrame(t, mallory)); msg != "Not authorized to join this conversation" {
		t.Fatalf("unexpected error message %q", msg)
	}
	if fx.gateway.Rooms.Contains(conversationRoom(fx.conversation.ID), mallory) {
		t.Fatalf("outsider joined the room")
	}
}

func TestJoinConversationUnknownID(t *testing.T) {
	fx := newGatewayFixture(t)
	alice := newTestClient("alice", "s1")

	dispatch(t, fx.gateway, alice, EventJoinConversation, JoinConversationPayload{
		ConversationID: "missing",
	})

	if msg := errorMessage(t, nextFrame(t, alice)); msg != "Conversation not found" {
		t.Fatalf("unexpected error message %q", msg)
	}
}

func TestSendMessagePersistsAndFansOut(t *testing.T) {
	fx := newGatewayFixture(t)
	alice := newTestClient("alice", "s1")
	bob := newTestClient("bob", "s2")

	fx.gateway.Rooms.Join(userRoom("bob"), bob)
	fx.gateway.Rooms.Join(conversationRoom(fx.conversation.ID), alice)
	fx.gateway.Rooms.Join(conversationRoom(fx.conversation.ID), bob)

	dispatch(t, fx.gateway, alice, EventSendMessage, SendMessagePayload{
		ConversationID: string(fx.conversation.ID),
		Message:        "hello bob",
	})

	msgs, total, err := fx.messages.History(context.Background(), fx.conversation.ID, 1, 50)
	if err != nil || total != 1 {
		t.Fatalf("expected one persisted message, got total=%d err=%v", total, err)
	}
	if msgs[0].Body != "hello bob" || msgs[0].Receiver != "bob" {
		t.Fatalf("persisted message wrong: %+v", msgs[0])
	}

	conv, err := fx.conversations.ByID(context.Background(), fx.conversation.ID)
	if err != nil {
		t.Fatalf("reload conversation: %v", err)
	}
	if conv.LastMessage != "hello bob" || conv.LastMessageSender != "alice" {
		t.Fatalf("snapshot not updated: %+v", conv)
	}

	// Both room members get receive_message.
	for _, client := range []*Client{alice, bob} {
		frame := nextFrame(t, client)
		if frame.Event != EventReceiveMessage {
			t.Fatalf("expected receive_message for %s, got %q", client.UserID, frame.Event)
		}
	}
	// Only the receiver gets the personal-room notification.
	frame := nextFrame(t, bob)
	if frame.Event != EventNewMessageNotification {
		t.Fatalf("expected new_message_notification, got %q", frame.Event)
	}
	noFrame(t, alice)
}

func TestSendMessageValidation(t *testing.T) {
	fx := newGatewayFixture(t)
	alice := newTestClient("alice", "s1")

	dispatch(t, fx.gateway, alice, EventSendMessage, SendMessagePayload{
		ConversationID: string(fx.conversation.ID),
		Message:        "   ",
	})
	if msg := errorMessage(t, nextFrame(t, alice)); msg != "Invalid message data" {
		t.Fatalf("unexpected error for blank body: %q", msg)
	}

	dispatch(t, fx.gateway, alice, EventSendMessage, SendMessagePayload{
		ConversationID: string(fx.conversation.ID),
		Message:        strings.Repeat("a", chat.MaxMessageChars+1),
	})
	if msg := errorMessage(t, nextFrame(t, alice)); msg != "Message cannot exceed 1000 characters" {
		t.Fatalf("unexpected error for long body: %q", msg)
	}

	if _, total, err := fx.messages.History(context.Background(), fx.conversation.ID, 1, 50); err != nil || total != 0 {
		t.Fatalf("invalid sends persisted messages: total=%d err=%v", total, err)
	}
}

func TestSendMessageRejectsOutsider(t *testing.T) {
	fx := newGatewayFixture(t)
	mallory := newTestClient("mallory", "s1")

	dispatch(t, fx.gateway, mallory, EventSendMessage, SendMessagePayload{
		ConversationID: string(fx.conversation.ID),
		Message:        "hi",
	})
	if msg := errorMessage(t, nextFrame(t, mallory)); msg != "Not authorized to send message" {
		t.Fatalf("unexpected error message %q", msg)
	}
}

func TestMarkAsReadNotifiesOtherParticipant(t *testing.T) {
	fx := newGatewayFixture(t)
	alice := newTestClient("alice", "s1")
	bob := newTestClient("bob", "s2")
	fx.gateway.Rooms.Join(userRoom("bob"), bob)

	dispatch(t, fx.gateway, bob, EventSendMessage, SendMessagePayload{
		ConversationID: string(fx.conversation.ID),
		Message:        "unread ping",
	})

	dispatch(t, fx.gateway, alice, EventMarkAsRead, MarkAsReadPayload{
		ConversationID: string(fx.conversation.ID),
	})

	unread, err := fx.messages.UnreadCountInConversation(context.Background(), fx.conversation.ID, "alice")
	if err != nil || unread != 0 {
		t.Fatalf("expected zero unread after mark_as_read, got %d err=%v", unread, err)
	}

	// The receipt lands in the other participant's personal room.
	frame := nextFrame(t, bob)
	if frame.Event != EventMessagesRead {
		t.Fatalf("expected messages_read, got %q", frame.Event)
	}
	var p MessagesReadPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.ReadBy != "alice" || p.ConversationID != string(fx.conversation.ID) {
		t.Fatalf("unexpected payload: %+v", p)
	}
	noFrame(t, alice)
}

func TestMarkAsReadSwallowsFailures(t *testing.T) {
	fx := newGatewayFixture(t)
	alice := newTestClient("alice", "s1")

	// Unknown conversation: the flip cannot land and the caller hears nothing.
	dispatch(t, fx.gateway, alice, EventMarkAsRead, MarkAsReadPayload{
		ConversationID: "missing",
	})
	noFrame(t, alice)

	// Invalid payload: same silence.
	fx.gateway.Dispatch(context.Background(), alice, Frame{Event: EventMarkAsRead, Data: json.RawMessage(`{"conversationId":""}`)})
	noFrame(t, alice)
}

func TestTypingExcludesSender(t *testing.T) {
	fx := newGatewayFixture(t)
	alice := newTestClient("alice", "s1")
	bob := newTestClient("bob", "s2")
	fx.gateway.Rooms.Join(conversationRoom(fx.conversation.ID), alice)
	fx.gateway.Rooms.Join(conversationRoom(fx.conversation.ID), bob)

	dispatch(t, fx.gateway, alice, EventTyping, TypingPayload{
		ConversationID: string(fx.conversation.ID),
		IsTyping:       true,
	})

	frame := nextFrame(t, bob)
	if frame.Event != EventUserTyping {
		t.Fatalf("expected user_typing, got %q", frame.Event)
	}
	var p UserTypingPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.UserID != "alice" || !p.IsTyping {
		t.Fatalf("unexpected payload: %+v", p)
	}
	noFrame(t, alice)
}

func TestAttachEvictsPreviousSession(t *testing.T) {
	fx := newGatewayFixture(t)
	first := newTestClient("alice", "s1")
	second := newTestClient("alice", "s2")

	fx.gateway.attach(context.Background(), first)
	fx.gateway.Rooms.Join(conversationRoom(fx.conversation.ID), first)

	fx.gateway.attach(context.Background(), second)

	select {
	case <-first.Done():
	default:
		t.Fatalf("evicted session was not closed")
	}
	if fx.gateway.Rooms.Contains(conversationRoom(fx.conversation.ID), first) {
		t.Fatalf("evicted session kept room membership")
	}
	current, ok := fx.gateway.Registry.Lookup("alice")
	if !ok || current != second {
		t.Fatalf("registry does not point at the new session")
	}

	// The evicted session's detach must not remove the live entry.
	fx.gateway.detach(first)
	if current, ok := fx.gateway.Registry.Lookup("alice"); !ok || current != second {
		t.Fatalf("stale detach clobbered the live session")
	}
}

func TestEvictIfElsewhere(t *testing.T) {
	fx := newGatewayFixture(t)
	client := newTestClient("alice", "s1")
	fx.gateway.attach(context.Background(), client)

	// Presence echo from this instance is ignored.
	fx.gateway.EvictIfElsewhere("alice", fx.gateway.InstanceID)
	select {
	case <-client.Done():
		t.Fatalf("local presence echo evicted the session")
	default:
	}

	fx.gateway.EvictIfElsewhere("alice", "other-instance")
	select {
	case <-client.Done():
	default:
		t.Fatalf("remote presence did not evict the session")
	}
	if _, ok := fx.gateway.Registry.Lookup("alice"); ok {
		t.Fatalf("registry entry survived remote eviction")
	}
}
