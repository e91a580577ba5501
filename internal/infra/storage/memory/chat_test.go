package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bazaar/internal/domain/chat"
	domainuser "bazaar/internal/domain/user"
)

func TestFindOrCreateIsIdempotentAcrossOrder(t *testing.T) {
	store := NewConversationStore()
	ctx := context.Background()

	first, err := store.FindOrCreate(ctx, "alice", "bob", "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := store.FindOrCreate(ctx, "bob", "alice", "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("reversed pair created a second conversation: %s vs %s", first.ID, second.ID)
	}

	otherListing, err := store.FindOrCreate(ctx, "alice", "bob", "post-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if otherListing.ID == first.ID {
		t.Fatalf("different listing reused the same conversation")
	}
}

func TestFindOrCreateSharedParticipantSameListing(t *testing.T) {
	store := NewConversationStore()
	ctx := context.Background()

	withBob, err := store.FindOrCreate(ctx, "alice", "bob", "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	withCarol, err := store.FindOrCreate(ctx, "carol", "alice", "post-1")
	if err != nil {
		t.Fatalf("second buyer could not open a conversation: %v", err)
	}
	if withBob.ID == withCarol.ID {
		t.Fatalf("distinct pairs about one listing collapsed into %s", withBob.ID)
	}
}

func TestFindOrCreateTrimsListingID(t *testing.T) {
	store := NewConversationStore()
	ctx := context.Background()

	first, err := store.FindOrCreate(ctx, "alice", "bob", "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	padded, err := store.FindOrCreate(ctx, "alice", "bob", " post-1 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != padded.ID {
		t.Fatalf("padded listing id created a second conversation: %s vs %s", first.ID, padded.ID)
	}
}

func TestFindOrCreateRejectsSelfPair(t *testing.T) {
	store := NewConversationStore()
	if _, err := store.FindOrCreate(context.Background(), "alice", "alice", "post-1"); err != chat.ErrSameParticipant {
		t.Fatalf("expected ErrSameParticipant, got %v", err)
	}
}

func TestForParticipantSortsByActivity(t *testing.T) {
	store := NewConversationStore()
	ctx := context.Background()

	older, _ := store.FindOrCreate(ctx, "alice", "bob", "post-1")
	newer, _ := store.FindOrCreate(ctx, "alice", "carol", "post-2")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.UpdateSnapshot(ctx, older.ID, "old", "bob", base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.UpdateSnapshot(ctx, newer.ID, "new", "carol", base.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := store.ForParticipant(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(out))
	}
	if out[0].ID != newer.ID {
		t.Fatalf("most recent conversation not first")
	}
}

func TestUpdateSnapshotIgnoresStaleWrites(t *testing.T) {
	store := NewConversationStore()
	ctx := context.Background()
	conv, _ := store.FindOrCreate(ctx, "alice", "bob", "post-1")

	later := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.UpdateSnapshot(ctx, conv.ID, "second", "alice", later); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.UpdateSnapshot(ctx, conv.ID, "first", "bob", later.Add(-time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded, err := store.ByID(ctx, conv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reloaded.LastMessage != "second" {
		t.Fatalf("stale write rewound snapshot to %q", reloaded.LastMessage)
	}
}

func seedMessages(t *testing.T, store *MessageStore, conv *chat.Conversation, sender domainuser.ID, n int) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		msg, err := chat.NewMessage(chat.NewMessageParams{
			ID:           chat.MessageID(fmt.Sprintf("m%d", i)),
			Conversation: conv,
			Sender:       sender,
			Body:         fmt.Sprintf("message %d", i),
			Now:          base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("build message %d: %v", i, err)
		}
		if err := store.Insert(context.Background(), msg); err != nil {
			t.Fatalf("insert message %d: %v", i, err)
		}
	}
}

func TestHistoryPaginatesOldestFirst(t *testing.T) {
	conversations := NewConversationStore()
	messages := NewMessageStore()
	ctx := context.Background()
	conv, _ := conversations.FindOrCreate(ctx, "alice", "bob", "post-1")

	seedMessages(t, messages, conv, "alice", 7)

	page1, total, err := messages.History(ctx, conv.ID, 1, 3)
	if err != nil || total != 7 {
		t.Fatalf("page 1: total=%d err=%v", total, err)
	}
	if len(page1) != 3 || page1[0].Body != "message 0" {
		t.Fatalf("page 1 wrong: len=%d first=%q", len(page1), page1[0].Body)
	}

	page3, _, err := messages.History(ctx, conv.ID, 3, 3)
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(page3) != 1 || page3[0].Body != "message 6" {
		t.Fatalf("page 3 wrong: len=%d", len(page3))
	}

	empty, total, err := messages.History(ctx, conv.ID, 4, 3)
	if err != nil || len(empty) != 0 || total != 7 {
		t.Fatalf("past-the-end page: len=%d total=%d err=%v", len(empty), total, err)
	}
}

func TestMarkConversationReadFlipsOnlyReceiverSide(t *testing.T) {
	conversations := NewConversationStore()
	messages := NewMessageStore()
	ctx := context.Background()
	conv, _ := conversations.FindOrCreate(ctx, "alice", "bob", "post-1")

	// Three to bob, two to alice.
	seedMessages(t, messages, conv, "alice", 3)
	for i := 0; i < 2; i++ {
		msg, err := chat.NewMessage(chat.NewMessageParams{
			ID:           chat.MessageID(fmt.Sprintf("r%d", i)),
			Conversation: conv,
			Sender:       "bob",
			Body:         "reply",
		})
		if err != nil {
			t.Fatalf("build reply: %v", err)
		}
		if err := messages.Insert(ctx, msg); err != nil {
			t.Fatalf("insert reply: %v", err)
		}
	}

	flipped, err := messages.MarkConversationRead(ctx, conv.ID, "bob", time.Now())
	if err != nil || flipped != 3 {
		t.Fatalf("expected 3 flipped, got %d err=%v", flipped, err)
	}

	// Second call finds nothing left to flip.
	flipped, err = messages.MarkConversationRead(ctx, conv.ID, "bob", time.Now())
	if err != nil || flipped != 0 {
		t.Fatalf("expected idempotent second call, got %d err=%v", flipped, err)
	}

	aliceUnread, _ := messages.UnreadCount(ctx, "alice")
	if aliceUnread != 2 {
		t.Fatalf("alice's unread messages were touched: %d", aliceUnread)
	}
}
