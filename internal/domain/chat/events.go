package chat

import (
	"context"

	domainuser "bazaar/internal/domain/user"
)

// EventPublisher receives chat facts after they are persisted. Implementations
// must be safe for concurrent use; publish failures are the publisher's
// problem (logged, never surfaced to chat clients).
type EventPublisher interface {
	MessageSent(ctx context.Context, msg *Message)
	ConversationRead(ctx context.Context, id ConversationID, reader domainuser.ID)
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) MessageSent(context.Context, *Message)                           {}
func (NopPublisher) ConversationRead(context.Context, ConversationID, domainuser.ID) {}
