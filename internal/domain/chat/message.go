package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	domainuser "bazaar/internal/domain/user"
)

// MaxMessageChars bounds message bodies after trimming (counted in runes).
const MaxMessageChars = 1000

var (
	ErrMessageEmpty   = errors.New("chat: message body is required")
	ErrMessageTooLong = errors.New("chat: message exceeds 1000 characters")
)

type MessageID string

// Message is immutable after creation except for the read flip.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	Sender         domainuser.ID
	Receiver       domainuser.ID
	Body           string
	IsRead         bool
	ReadAt         time.Time
	CreatedAt      time.Time
}

// NormalizeBody trims the body and enforces the 1..1000 character bound.
func NormalizeBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", ErrMessageEmpty
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageChars {
		return "", ErrMessageTooLong
	}
	return trimmed, nil
}

type NewMessageParams struct {
	ID           MessageID
	Conversation *Conversation
	Sender       domainuser.ID
	Body         string
	Now          time.Time
}

// NewMessage validates the body, checks the sender is a participant and
// derives the receiver as the conversation's other participant.
func NewMessage(params NewMessageParams) (*Message, error) {
	body, err := NormalizeBody(params.Body)
	if err != nil {
		return nil, err
	}
	if params.Conversation == nil {
		return nil, ErrConversationNotFound
	}
	receiver, err := params.Conversation.OtherParticipant(params.Sender)
	if err != nil {
		return nil, err
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Message{
		ID:             params.ID,
		ConversationID: params.Conversation.ID,
		Sender:         params.Sender,
		Receiver:       receiver,
		Body:           body,
		CreatedAt:      now.UTC(),
	}, nil
}

// MarkRead flips the read flag once; later calls are no-ops.
func (m *Message) MarkRead(at time.Time) {
	if m.IsRead {
		return
	}
	m.IsRead = true
	m.ReadAt = at.UTC()
}

// MessageStore is the durable home of messages. MarkConversationRead must be
// a single bulk update relying on the store's per-document atomicity.
type MessageStore interface {
	Insert(ctx context.Context, msg *Message) error
	History(ctx context.Context, id ConversationID, page, limit int) ([]*Message, int64, error)
	MarkConversationRead(ctx context.Context, id ConversationID, receiver domainuser.ID, at time.Time) (int64, error)
	UnreadCount(ctx context.Context, receiver domainuser.ID) (int64, error)
	UnreadCountInConversation(ctx context.Context, id ConversationID, receiver domainuser.ID) (int64, error)
}
