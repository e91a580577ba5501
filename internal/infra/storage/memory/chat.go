package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bazaar/internal/domain/chat"
	domainlistings "bazaar/internal/domain/listings"
	domainuser "bazaar/internal/domain/user"
)

// ConversationStore keeps conversations in memory. Not suitable for
// production; used in dev mode and tests.
type ConversationStore struct {
	mu     sync.RWMutex
	byID   map[chat.ConversationID]*chat.Conversation
	byPair map[pairKey]chat.ConversationID
}

type pairKey struct {
	first   domainuser.ID
	second  domainuser.ID
	listing domainlistings.ListingID
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		byID:   make(map[chat.ConversationID]*chat.Conversation),
		byPair: make(map[pairKey]chat.ConversationID),
	}
}

func (s *ConversationStore) FindOrCreate(ctx context.Context, a, b domainuser.ID, listingID domainlistings.ListingID) (*chat.Conversation, error) {
	pair, err := chat.ParticipantPair(a, b)
	if err != nil {
		return nil, err
	}
	// NewConversation trims the listing id; key on the same trimmed value so
	// " post-1" and "post-1" resolve to one conversation.
	listing := domainlistings.ListingID(strings.TrimSpace(string(listingID)))
	key := pairKey{first: pair[0], second: pair[1], listing: listing}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPair[key]; ok {
		return cloneConversation(s.byID[id]), nil
	}
	conv, err := chat.NewConversation(chat.NewConversationParams{
		ID:           chat.ConversationID(uuid.NewString()),
		Participants: pair,
		ListingID:    listing,
	})
	if err != nil {
		return nil, err
	}
	conv.LastMessageTime = conv.CreatedAt
	s.byID[conv.ID] = conv
	s.byPair[key] = conv.ID
	return cloneConversation(conv), nil
}

func (s *ConversationStore) ByID(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.byID[id]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (s *ConversationStore) ForParticipant(ctx context.Context, id domainuser.ID) ([]*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*chat.Conversation
	for _, conv := range s.byID {
		if conv.IsParticipant(id) {
			out = append(out, cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out, nil
}

func (s *ConversationStore) UpdateSnapshot(ctx context.Context, id chat.ConversationID, body string, sender domainuser.ID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.byID[id]
	if !ok {
		return chat.ErrConversationNotFound
	}
	conv.ApplySnapshot(body, sender, at.UTC())
	return nil
}

func cloneConversation(c *chat.Conversation) *chat.Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]domainuser.ID(nil), c.Participants...)
	return &out
}

// MessageStore keeps messages in memory.
type MessageStore struct {
	mu       sync.RWMutex
	messages []*chat.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

func (s *MessageStore) Insert(ctx context.Context, msg *chat.Message) error {
	if msg == nil {
		return chat.ErrMessageEmpty
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *msg
	s.messages = append(s.messages, &clone)
	return nil
}

func (s *MessageStore) History(ctx context.Context, id chat.ConversationID, page, limit int) ([]*chat.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*chat.Message
	for _, m := range s.messages {
		if m.ConversationID == id {
			all = append(all, m)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]*chat.Message, 0, end-start)
	for _, m := range all[start:end] {
		clone := *m
		out = append(out, &clone)
	}
	return out, total, nil
}

func (s *MessageStore) MarkConversationRead(ctx context.Context, id chat.ConversationID, receiver domainuser.ID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var flipped int64
	for _, m := range s.messages {
		if m.ConversationID == id && m.Receiver == receiver && !m.IsRead {
			m.MarkRead(at)
			flipped++
		}
	}
	return flipped, nil
}

func (s *MessageStore) UnreadCount(ctx context.Context, receiver domainuser.ID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, m := range s.messages {
		if m.Receiver == receiver && !m.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *MessageStore) UnreadCountInConversation(ctx context.Context, id chat.ConversationID, receiver domainuser.ID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, m := range s.messages {
		if m.ConversationID == id && m.Receiver == receiver && !m.IsRead {
			count++
		}
	}
	return count, nil
}

var (
	_ chat.ConversationStore = (*ConversationStore)(nil)
	_ chat.MessageStore      = (*MessageStore)(nil)
)
