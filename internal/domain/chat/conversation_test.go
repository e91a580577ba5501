package chat

import (
	"errors"
	"testing"
	"time"

	domainuser "bazaar/internal/domain/user"
)

func TestParticipantPairSortsIndependentOfOrder(t *testing.T) {
	ab, err := ParticipantPair("bob", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ba, err := ParticipantPair("alice", "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ab[0] != ba[0] || ab[1] != ba[1] {
		t.Fatalf("pairs differ: %v vs %v", ab, ba)
	}
	if ab[0] != "alice" || ab[1] != "bob" {
		t.Fatalf("pair not sorted: %v", ab)
	}
}

func TestPairKeyIsCanonical(t *testing.T) {
	ab, err := ParticipantPair("bob", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ba, err := ParticipantPair("alice", "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if PairKey(ab) != PairKey(ba) {
		t.Fatalf("keys differ across order: %q vs %q", PairKey(ab), PairKey(ba))
	}
	if PairKey(ab) != "alice|bob" {
		t.Fatalf("unexpected key: %q", PairKey(ab))
	}
}

func TestParticipantPairRejectsSelf(t *testing.T) {
	if _, err := ParticipantPair("alice", "alice"); !errors.Is(err, ErrSameParticipant) {
		t.Fatalf("expected ErrSameParticipant, got %v", err)
	}
	if _, err := ParticipantPair("alice", "  alice  "); !errors.Is(err, ErrSameParticipant) {
		t.Fatalf("expected ErrSameParticipant after trim, got %v", err)
	}
}

func TestParticipantPairRejectsBlank(t *testing.T) {
	if _, err := ParticipantPair("", "bob"); !errors.Is(err, ErrParticipantCount) {
		t.Fatalf("expected ErrParticipantCount, got %v", err)
	}
	if _, err := ParticipantPair("alice", "   "); !errors.Is(err, ErrParticipantCount) {
		t.Fatalf("expected ErrParticipantCount, got %v", err)
	}
}

func TestNewConversationRequiresListing(t *testing.T) {
	_, err := NewConversation(NewConversationParams{
		ID:           "c1",
		Participants: []domainuser.ID{"alice", "bob"},
	})
	if !errors.Is(err, ErrListingRequired) {
		t.Fatalf("expected ErrListingRequired, got %v", err)
	}
}

func TestNewConversationEnforcesExactlyTwo(t *testing.T) {
	_, err := NewConversation(NewConversationParams{
		ID:           "c1",
		Participants: []domainuser.ID{"alice"},
		ListingID:    "post-1",
	})
	if !errors.Is(err, ErrParticipantCount) {
		t.Fatalf("expected ErrParticipantCount, got %v", err)
	}
}

func TestOtherParticipant(t *testing.T) {
	conv, err := NewConversation(NewConversationParams{
		ID:           "c1",
		Participants: []domainuser.ID{"bob", "alice"},
		ListingID:    "post-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other, err := conv.OtherParticipant("alice")
	if err != nil || other != "bob" {
		t.Fatalf("expected bob, got %q err=%v", other, err)
	}
	if _, err := conv.OtherParticipant("mallory"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestApplySnapshotSkipsStaleUpdates(t *testing.T) {
	conv, err := NewConversation(NewConversationParams{
		ID:           "c1",
		Participants: []domainuser.ID{"alice", "bob"},
		ListingID:    "post-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	later := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Minute)

	if !conv.ApplySnapshot("second", "alice", later) {
		t.Fatalf("expected newer snapshot to apply")
	}
	if conv.ApplySnapshot("first", "bob", earlier) {
		t.Fatalf("expected stale snapshot to be skipped")
	}
	if conv.LastMessage != "second" || conv.LastMessageSender != "alice" {
		t.Fatalf("snapshot rewound: %q by %q", conv.LastMessage, conv.LastMessageSender)
	}
}
