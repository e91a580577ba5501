package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	domainlistings "bazaar/internal/domain/listings"
	domainuser "bazaar/internal/domain/user"
)

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrParticipantCount     = errors.New("chat: conversation must have exactly 2 participants")
	ErrSameParticipant      = errors.New("chat: cannot start a conversation with yourself")
	ErrNotParticipant       = errors.New("chat: not a conversation participant")
	ErrListingRequired      = errors.New("chat: listing id is required")
)

type ConversationID string

// Conversation is a two-party thread scoped to one listing. Participants are
// stored in canonical sorted order so lookups are independent of call order.
type Conversation struct {
	ID                ConversationID
	Participants      []domainuser.ID
	ListingID         domainlistings.ListingID
	LastMessage       string
	LastMessageTime   time.Time
	LastMessageSender domainuser.ID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ParticipantPair returns the canonical (sorted) participant pair for a
// conversation between a and b, or an error when the pair is invalid.
func ParticipantPair(a, b domainuser.ID) ([]domainuser.ID, error) {
	first := domainuser.ID(strings.TrimSpace(string(a)))
	second := domainuser.ID(strings.TrimSpace(string(b)))
	if first == "" || second == "" {
		return nil, ErrParticipantCount
	}
	if first == second {
		return nil, ErrSameParticipant
	}
	pair := []domainuser.ID{first, second}
	sort.Slice(pair, func(i, j int) bool { return pair[i] < pair[j] })
	return pair, nil
}

// PairKey joins a canonical participant pair into the "a|b" form stores use
// as a scalar uniqueness key for the pair.
func PairKey(pair []domainuser.ID) string {
	return string(pair[0]) + "|" + string(pair[1])
}

type NewConversationParams struct {
	ID           ConversationID
	Participants []domainuser.ID
	ListingID    domainlistings.ListingID
	Now          time.Time
}

func NewConversation(params NewConversationParams) (*Conversation, error) {
	if len(params.Participants) != 2 {
		return nil, ErrParticipantCount
	}
	pair, err := ParticipantPair(params.Participants[0], params.Participants[1])
	if err != nil {
		return nil, err
	}
	listingID := domainlistings.ListingID(strings.TrimSpace(string(params.ListingID)))
	if listingID == "" {
		return nil, ErrListingRequired
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Conversation{
		ID:           params.ID,
		Participants: pair,
		ListingID:    listingID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Validate re-checks the participant invariant before any persistence.
func (c *Conversation) Validate() error {
	if len(c.Participants) != 2 {
		return ErrParticipantCount
	}
	if _, err := ParticipantPair(c.Participants[0], c.Participants[1]); err != nil {
		return err
	}
	return nil
}

func (c *Conversation) IsParticipant(id domainuser.ID) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// OtherParticipant returns the peer of id, or an error when id is not part of
// the conversation.
func (c *Conversation) OtherParticipant(id domainuser.ID) (domainuser.ID, error) {
	if !c.IsParticipant(id) {
		return "", ErrNotParticipant
	}
	for _, p := range c.Participants {
		if p != id {
			return p, nil
		}
	}
	return "", ErrNotParticipant
}

// ApplySnapshot records the latest-message snapshot fields. The update is
// skipped when at is older than the current snapshot so interleaved sends
// cannot rewind the preview.
func (c *Conversation) ApplySnapshot(body string, sender domainuser.ID, at time.Time) bool {
	if at.Before(c.LastMessageTime) {
		return false
	}
	c.LastMessage = body
	c.LastMessageTime = at
	c.LastMessageSender = sender
	c.UpdatedAt = at
	return true
}

// ConversationStore is the durable home of conversations. Implementations
// must keep FindOrCreate idempotent with respect to the canonical pair.
type ConversationStore interface {
	FindOrCreate(ctx context.Context, a, b domainuser.ID, listingID domainlistings.ListingID) (*Conversation, error)
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	ForParticipant(ctx context.Context, id domainuser.ID) ([]*Conversation, error)
	UpdateSnapshot(ctx context.Context, id ConversationID, body string, sender domainuser.ID, at time.Time) error
}
