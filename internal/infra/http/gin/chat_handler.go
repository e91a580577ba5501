package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bazaar/internal/app/dto"
	"bazaar/internal/domain/chat"
	domainlistings "bazaar/internal/domain/listings"
	domainuser "bazaar/internal/domain/user"
)

const defaultMessagesLimit = 50

// ChatHTTP exposes the chat endpoints.
type ChatHTTP interface {
	StartConversation(c *gin.Context)
	ListConversations(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	UnreadCount(c *gin.Context)
}

// ChatHandler serves conversation history and sending over plain HTTP. It
// runs the same participant and body checks as the realtime gateway, against
// the same stores, so the two transports cannot drift apart.
type ChatHandler struct {
	Conversations chat.ConversationStore
	Messages      chat.MessageStore
	Users         domainuser.Repository
	Listings      domainlistings.Repository
	Logger        *slog.Logger
}

// StartConversation finds or creates the thread between the caller and
// receiverId scoped to postId.
func (h ChatHandler) StartConversation(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	var req struct {
		PostID     string `json:"postId"`
		ReceiverID string `json:"receiverId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Please provide postId and receiverId")
		return
	}
	req.PostID = strings.TrimSpace(req.PostID)
	req.ReceiverID = strings.TrimSpace(req.ReceiverID)
	if req.PostID == "" || req.ReceiverID == "" {
		respondError(c, http.StatusBadRequest, "Please provide postId and receiverId")
		return
	}
	if req.ReceiverID == p.ID {
		respondError(c, http.StatusBadRequest, "Cannot start conversation with yourself")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.Listings.ByID(ctx, domainlistings.ListingID(req.PostID)); err != nil {
		if errors.Is(err, domainlistings.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Post not found")
			return
		}
		h.serverError(c, err, "load listing", "Server error while starting conversation")
		return
	}
	receiver, err := h.Users.ByID(ctx, domainuser.ID(req.ReceiverID))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Receiver not found")
			return
		}
		h.serverError(c, err, "load receiver", "Server error while starting conversation")
		return
	}

	conv, err := h.Conversations.FindOrCreate(ctx, domainuser.ID(p.ID), receiver.ID, domainlistings.ListingID(req.PostID))
	if err != nil {
		if errors.Is(err, chat.ErrSameParticipant) {
			respondError(c, http.StatusBadRequest, "Cannot start conversation with yourself")
			return
		}
		h.serverError(c, err, "find or create conversation", "Server error while starting conversation")
		return
	}

	respondData(c, http.StatusOK, gin.H{
		"conversation": h.toConversationDTO(c, conv, domainuser.ID(p.ID), 0),
	})
}

// ListConversations returns the caller's threads, most recent activity first,
// each with its unread count and the other participant's contact details.
func (h ChatHandler) ListConversations(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	userID := domainuser.ID(p.ID)

	conversations, err := h.Conversations.ForParticipant(ctx, userID)
	if err != nil {
		h.serverError(c, err, "list conversations", "Server error while fetching conversations")
		return
	}

	out := make([]dto.Conversation, 0, len(conversations))
	for _, conv := range conversations {
		unread, err := h.Messages.UnreadCountInConversation(ctx, conv.ID, userID)
		if err != nil {
			h.serverError(c, err, "count unread", "Server error while fetching conversations")
			return
		}
		out = append(out, h.toConversationDTO(c, conv, userID, unread))
	}

	respondData(c, http.StatusOK, gin.H{"conversations": out})
}

// ListMessages pages through a conversation's history, oldest first, and as a
// side effect marks everything addressed to the caller as read.
func (h ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	conv, ok := h.authorizedConversation(c, domainuser.ID(p.ID), "Not authorized to access this conversation")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultMessagesLimit)

	messages, total, err := h.Messages.History(ctx, conv.ID, page, limit)
	if err != nil {
		h.serverError(c, err, "load history", "Server error while fetching messages")
		return
	}
	if _, err := h.Messages.MarkConversationRead(ctx, conv.ID, domainuser.ID(p.ID), time.Now()); err != nil {
		h.serverError(c, err, "mark read on fetch", "Server error while fetching messages")
		return
	}

	out := make([]dto.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, h.toMessageDTO(c, msg))
	}
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	respondData(c, http.StatusOK, dto.MessagePage{
		Messages: out,
		Total:    total,
		Page:     page,
		Pages:    pages,
	})
}

// SendMessage persists a message without realtime fan-out; connected clients
// pick it up on their next history fetch.
func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Message content is required")
		return
	}
	conv, ok := h.authorizedConversation(c, domainuser.ID(p.ID), "Not authorized to send message in this conversation")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	msg, err := chat.NewMessage(chat.NewMessageParams{
		ID:           chat.MessageID(uuid.NewString()),
		Conversation: conv,
		Sender:       domainuser.ID(p.ID),
		Body:         req.Message,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrMessageEmpty):
			respondError(c, http.StatusBadRequest, "Message content is required")
		case errors.Is(err, chat.ErrMessageTooLong):
			respondError(c, http.StatusBadRequest, "Message cannot exceed 1000 characters")
		default:
			respondError(c, http.StatusForbidden, "Not authorized to send message in this conversation")
		}
		return
	}

	if err := h.Messages.Insert(ctx, msg); err != nil {
		h.serverError(c, err, "insert message", "Server error while sending message")
		return
	}
	if err := h.Conversations.UpdateSnapshot(ctx, conv.ID, msg.Body, msg.Sender, msg.CreatedAt); err != nil {
		h.serverError(c, err, "update snapshot", "Server error while sending message")
		return
	}

	respondData(c, http.StatusCreated, gin.H{"message": h.toMessageDTO(c, msg)})
}

// MarkRead flips every unread message addressed to the caller in the
// conversation and reports how many flipped.
func (h ChatHandler) MarkRead(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	conv, ok := h.authorizedConversation(c, domainuser.ID(p.ID), "Not authorized to access this conversation")
	if !ok {
		return
	}
	marked, err := h.Messages.MarkConversationRead(c.Request.Context(), conv.ID, domainuser.ID(p.ID), time.Now())
	if err != nil {
		h.serverError(c, err, "mark read", "Server error while marking messages as read")
		return
	}
	respondData(c, http.StatusOK, gin.H{"markedCount": marked})
}

// UnreadCount returns the caller's unread total across all conversations.
func (h ChatHandler) UnreadCount(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	count, err := h.Messages.UnreadCount(c.Request.Context(), domainuser.ID(p.ID))
	if err != nil {
		h.serverError(c, err, "count unread", "Server error while fetching unread count")
		return
	}
	respondData(c, http.StatusOK, gin.H{"unreadCount": count})
}

// authorizedConversation loads :conversationId and enforces the participant
// check shared with the gateway. It writes the error response itself.
func (h ChatHandler) authorizedConversation(c *gin.Context, userID domainuser.ID, forbiddenMsg string) (*chat.Conversation, bool) {
	id := strings.TrimSpace(c.Param("conversationId"))
	if id == "" {
		respondError(c, http.StatusBadRequest, "Conversation id is required")
		return nil, false
	}
	conv, err := h.Conversations.ByID(c.Request.Context(), chat.ConversationID(id))
	if err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			respondError(c, http.StatusNotFound, "Conversation not found")
			return nil, false
		}
		h.serverError(c, err, "load conversation", "Server error while fetching conversation")
		return nil, false
	}
	if !conv.IsParticipant(userID) {
		respondError(c, http.StatusForbidden, forbiddenMsg)
		return nil, false
	}
	return conv, true
}

func (h ChatHandler) toConversationDTO(c *gin.Context, conv *chat.Conversation, viewer domainuser.ID, unread int64) dto.Conversation {
	participants := make([]string, 0, len(conv.Participants))
	for _, id := range conv.Participants {
		participants = append(participants, string(id))
	}
	out := dto.Conversation{
		ID:                string(conv.ID),
		Participants:      participants,
		ListingID:         string(conv.ListingID),
		LastMessage:       conv.LastMessage,
		LastMessageTime:   conv.LastMessageTime,
		LastMessageSender: string(conv.LastMessageSender),
		UnreadCount:       unread,
		CreatedAt:         conv.CreatedAt,
	}
	if other, err := conv.OtherParticipant(viewer); err == nil {
		out.OtherParticipant = h.contact(c, other)
	}
	return out
}

func (h ChatHandler) toMessageDTO(c *gin.Context, msg *chat.Message) dto.ChatMessage {
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
	if sender := h.contact(c, msg.Sender); sender != nil {
		out.Sender = *sender
	}
	if receiver := h.contact(c, msg.Receiver); receiver != nil {
		out.Receiver = *receiver
	}
	return out
}

// contact resolves a user id to contact details; lookup failures degrade to
// the bare id.
func (h ChatHandler) contact(c *gin.Context, id domainuser.ID) *dto.Contact {
	out := &dto.Contact{ID: string(id)}
	if h.Users == nil {
		return out
	}
	user, err := h.Users.ByID(c.Request.Context(), id)
	if err != nil {
		return out
	}
	out.Name = user.Name
	out.Email = user.Email
	return out
}

func (h ChatHandler) serverError(c *gin.Context, err error, action, message string) {
	if h.Logger != nil {
		h.Logger.Error("chat request failed", "action", action, "error", err, "path", c.FullPath())
	}
	respondError(c, http.StatusInternalServerError, message)
}

func parsePositiveInt(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

var _ ChatHTTP = (*ChatHandler)(nil)
