package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"bazaar/internal/app/dto"
	"bazaar/internal/domain/chat"
	domainuser "bazaar/internal/domain/user"
)

const (
	defaultQueueSize = 64
	defaultOpTimeout = 10 * time.Second

	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second

	maxFrameBytes = 8 << 10
)

// TokenVerifier resolves an opaque bearer token to a subject id.
type TokenVerifier interface {
	Verify(token string) (domainuser.ID, error)
}

// PresencePublisher announces that a subject's live session moved to this
// instance, so sibling instances can evict their copy.
type PresencePublisher interface {
	SessionOnline(ctx context.Context, userID domainuser.ID, instanceID string)
}

// Gateway is the realtime protocol engine: it authenticates incoming
// websocket connections, enforces single-session-per-user through the
// Registry, owns room membership and fans events out to the right rooms.
type Gateway struct {
	Log           *slog.Logger
	Registry      Registry
	Rooms         *Rooms
	Conversations chat.ConversationStore
	Messages      chat.MessageStore
	Users         domainuser.Repository
	Verifier      TokenVerifier
	Events        chat.EventPublisher
	Presence      PresencePublisher
	InstanceID    string

	QueueSize int
	OpTimeout time.Duration

	upgrader websocket.Upgrader
}

func NewGateway(log *slog.Logger, registry Registry, conversations chat.ConversationStore, messages chat.MessageStore, users domainuser.Repository, verifier TokenVerifier) *Gateway {
	return &Gateway{
		Log:           log,
		Registry:      registry,
		Rooms:         NewRooms(),
		Conversations: conversations,
		Messages:      messages,
		Users:         users,
		Verifier:      verifier,
		Events:        chat.NopPublisher{},
		InstanceID:    uuid.NewString(),
		QueueSize:     defaultQueueSize,
		OpTimeout:     defaultOpTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Bearer tokens gate the connection; cross-origin browser
			// clients are expected.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleHTTP authenticates the handshake and upgrades it to a realtime
// session. A missing or invalid token rejects the request before any event
// handling begins; no registry entry is created.
func (g *Gateway) HandleHTTP(w http.ResponseWriter, r *http.Request) {
	token := handshakeToken(r)
	if token == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	userID, err := g.Verifier.Verify(token)
	if err != nil {
		g.Log.Info("ws handshake rejected", "error", err, "remote", r.RemoteAddr)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.Log.Error("ws upgrade failed", "error", err, "user_id", userID)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client := newClient(userID, uuid.NewString(), conn, g.QueueSize)
	g.Serve(r.Context(), client)
}

// handshakeToken reads the bearer token from the Authorization header or the
// token query parameter (browser websocket clients cannot set headers).
func handshakeToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Serve runs an authenticated client: installs it in the registry (evicting
// any previous session for the same subject), joins the personal room, then
// pumps frames until disconnect. It blocks until the session ends.
func (g *Gateway) Serve(ctx context.Context, client *Client) {
	g.attach(ctx, client)
	defer g.detach(client)

	go g.writePump(client)
	g.readPump(ctx, client)
}

// attach performs single-session enforcement: the registry swap is atomic,
// and the evicted connection is force-closed before this client handles any
// event.
func (g *Gateway) attach(ctx context.Context, client *Client) {
	if evicted := g.Registry.Register(client); evicted != nil {
		g.Log.Info("evicting previous session", "user_id", client.UserID, "old_session", evicted.SessionID, "new_session", client.SessionID)
		g.Rooms.LeaveAll(evicted)
		evicted.Close()
	}
	g.Rooms.Join(userRoom(client.UserID), client)
	if g.Presence != nil {
		g.Presence.SessionOnline(ctx, client.UserID, g.InstanceID)
	}
	g.Log.Info("client connected", "user_id", client.UserID, "session_id", client.SessionID)
}

// detach tears the session down. The registry entry is removed only when it
// still points at this client, so a forced replace is never clobbered.
func (g *Gateway) detach(client *Client) {
	g.Rooms.LeaveAll(client)
	if g.Registry.Unregister(client) {
		g.Log.Info("client disconnected", "user_id", client.UserID, "session_id", client.SessionID)
	}
	client.Close()
}

// EvictIfElsewhere force-closes the local session for userID when another
// instance reported it online. Called from the broker presence consumer.
func (g *Gateway) EvictIfElsewhere(userID domainuser.ID, instanceID string) {
	if instanceID == g.InstanceID {
		return
	}
	client, ok := g.Registry.Lookup(userID)
	if !ok {
		return
	}
	g.Log.Info("evicting session registered on another instance", "user_id", userID, "instance_id", instanceID)
	g.Rooms.LeaveAll(client)
	g.Registry.Unregister(client)
	client.Close()
}

func (g *Gateway) writePump(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.Done():
			return
		case frame := <-client.send:
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				client.Close()
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}
		}
	}
}

func (g *Gateway) readPump(ctx context.Context, client *Client) {
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			client.enqueue(errorFrame("Invalid message data"))
			continue
		}
		g.Dispatch(ctx, client, frame)
	}
}

// Dispatch routes one validated frame to its handler. Events from a single
// connection are handled sequentially to completion.
func (g *Gateway) Dispatch(ctx context.Context, client *Client, frame Frame) {
	opCtx, cancel := context.WithTimeout(ctx, g.opTimeout())
	defer cancel()

	switch frame.Event {
	case EventJoinConversation:
		g.handleJoin(opCtx, client, frame.Data)
	case EventLeaveConversation:
		g.handleLeave(client, frame.Data)
	case EventSendMessage:
		g.handleSend(opCtx, client, frame.Data)
	case EventMarkAsRead:
		g.handleMarkAsRead(opCtx, client, frame.Data)
	case EventTyping:
		g.handleTyping(client, frame.Data)
	default:
		client.enqueue(errorFrame("Unknown event"))
	}
}

func (g *Gateway) handleJoin(ctx context.Context, client *Client, data json.RawMessage) {
	var p JoinConversationPayload
	if err := decodePayload(data, &p, func() string { return p.ConversationID }); err != nil {
		client.enqueue(errorFrame("Invalid message data"))
		return
	}

	conv, err := g.authorizedConversation(ctx, client, chat.ConversationID(p.ConversationID))
	if err != nil {
		client.enqueue(errorFrame(joinErrorMessage(err)))
		return
	}

	g.Rooms.Join(conversationRoom(conv.ID), client)
	client.enqueue(newFrame(EventJoinedConversation, JoinedConversationPayload{
		ConversationID: string(conv.ID),
		Success:        true,
	}))
}

func (g *Gateway) handleLeave(client *Client, data json.RawMessage) {
	var p LeaveConversationPayload
	if err := decodePayload(data, &p, func() string { return p.ConversationID }); err != nil {
		return
	}
	g.Rooms.Leave(conversationRoom(chat.ConversationID(p.ConversationID)), client)
}

func (g *Gateway) handleSend(ctx context.Context, client *Client, data json.RawMessage) {
	var p SendMessagePayload
	if err := decodePayload(data, &p, func() string { return p.ConversationID }); err != nil {
		client.enqueue(errorFrame("Invalid message data"))
		return
	}

	conv, err := g.authorizedConversation(ctx, client, chat.ConversationID(p.ConversationID))
	if err != nil {
		client.enqueue(errorFrame(sendErrorMessage(err)))
		return
	}

	msg, err := chat.NewMessage(chat.NewMessageParams{
		ID:           chat.MessageID(uuid.NewString()),
		Conversation: conv,
		Sender:       client.UserID,
		Body:         p.Message,
	})
	if err != nil {
		client.enqueue(errorFrame(sendErrorMessage(err)))
		return
	}

	// Persist-before-broadcast: a client that sees receive_message can
	// immediately fetch consistent history over HTTP.
	if err := g.Messages.Insert(ctx, msg); err != nil {
		g.Log.Error("message insert failed", "error", err, "conversation_id", conv.ID, "user_id", client.UserID)
		client.enqueue(errorFrame("Failed to send message"))
		return
	}
	if err := g.Conversations.UpdateSnapshot(ctx, conv.ID, msg.Body, msg.Sender, msg.CreatedAt); err != nil {
		g.Log.Error("conversation snapshot update failed", "error", err, "conversation_id", conv.ID)
		client.enqueue(errorFrame("Failed to send message"))
		return
	}

	enriched := g.enrich(ctx, msg)
	g.Rooms.Broadcast(conversationRoom(conv.ID), newFrame(EventReceiveMessage, ReceiveMessagePayload{
		ConversationID: string(conv.ID),
		Message:        enriched,
	}), nil)
	g.Rooms.Broadcast(userRoom(msg.Receiver), newFrame(EventNewMessageNotification, ReceiveMessagePayload{
		ConversationID: string(conv.ID),
		Message:        enriched,
	}), nil)

	g.Events.MessageSent(ctx, msg)
}

// handleMarkAsRead deliberately swallows failures: read receipts are
// best-effort and the caller is never told when the flip did not land.
func (g *Gateway) handleMarkAsRead(ctx context.Context, client *Client, data json.RawMessage) {
	var p MarkAsReadPayload
	if err := decodePayload(data, &p, func() string { return p.ConversationID }); err != nil {
		g.Log.Debug("mark_as_read payload invalid", "error", err, "user_id", client.UserID)
		return
	}
	convID := chat.ConversationID(p.ConversationID)

	if _, err := g.Messages.MarkConversationRead(ctx, convID, client.UserID, time.Now()); err != nil {
		g.Log.Error("mark as read failed", "error", err, "conversation_id", convID, "user_id", client.UserID)
		return
	}

	conv, err := g.Conversations.ByID(ctx, convID)
	if err != nil {
		g.Log.Error("conversation load failed after mark read", "error", err, "conversation_id", convID)
		return
	}
	other, err := conv.OtherParticipant(client.UserID)
	if err != nil {
		g.Log.Debug("mark_as_read by non-participant", "conversation_id", convID, "user_id", client.UserID)
		return
	}
	g.Rooms.Broadcast(userRoom(other), newFrame(EventMessagesRead, MessagesReadPayload{
		ConversationID: string(convID),
		ReadBy:         string(client.UserID),
	}), nil)

	g.Events.ConversationRead(ctx, convID, client.UserID)
}

func (g *Gateway) handleTyping(client *Client, data json.RawMessage) {
	var p TypingPayload
	if err := decodePayload(data, &p, func() string { return p.ConversationID }); err != nil {
		return
	}
	g.Rooms.Broadcast(conversationRoom(chat.ConversationID(p.ConversationID)), newFrame(EventUserTyping, UserTypingPayload{
		UserID:         string(client.UserID),
		ConversationID: p.ConversationID,
		IsTyping:       p.IsTyping,
	}), client)
}

// authorizedConversation loads the conversation and verifies the caller is a
// participant, the same check the HTTP facade applies.
func (g *Gateway) authorizedConversation(ctx context.Context, client *Client, id chat.ConversationID) (*chat.Conversation, error) {
	conv, err := g.Conversations.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			return nil, chat.ErrConversationNotFound
		}
		g.Log.Error("conversation load failed", "error", err, "conversation_id", id)
		return nil, err
	}
	if !conv.IsParticipant(client.UserID) {
		return nil, chat.ErrNotParticipant
	}
	return conv, nil
}

// enrich attaches sender/receiver contact details to the persisted message.
// Lookup failures fall back to bare ids rather than blocking delivery.
func (g *Gateway) enrich(ctx context.Context, msg *chat.Message) dto.ChatMessage {
	out := dto.ChatMessage{
		ID:             string(msg.ID),
		ConversationID: string(msg.ConversationID),
		Sender:         dto.Contact{ID: string(msg.Sender)},
		Receiver:       dto.Contact{ID: string(msg.Receiver)},
		Message:        msg.Body,
		IsRead:         msg.IsRead,
		CreatedAt:      msg.CreatedAt,
	}
	if !msg.ReadAt.IsZero() {
		at := msg.ReadAt
		out.ReadAt = &at
	}
	if g.Users == nil {
		return out
	}
	if sender, err := g.Users.ByID(ctx, msg.Sender); err == nil {
		out.Sender.Name = sender.Name
		out.Sender.Email = sender.Email
	}
	if receiver, err := g.Users.ByID(ctx, msg.Receiver); err == nil {
		out.Receiver.Name = receiver.Name
		out.Receiver.Email = receiver.Email
	}
	return out
}

func (g *Gateway) opTimeout() time.Duration {
	if g.OpTimeout > 0 {
		return g.OpTimeout
	}
	return defaultOpTimeout
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		return "Conversation not found"
	case errors.Is(err, chat.ErrNotParticipant):
		return "Not authorized to join this conversation"
	default:
		return "Failed to join conversation"
	}
}

func sendErrorMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		return "Conversation not found"
	case errors.Is(err, chat.ErrNotParticipant):
		return "Not authorized to send message"
	case errors.Is(err, chat.ErrMessageEmpty):
		return "Invalid message data"
	case errors.Is(err, chat.ErrMessageTooLong):
		return "Message cannot exceed 1000 characters"
	default:
		return "Failed to send message"
	}
}
