package chat

import (
	"errors"
	"strings"
	"testing"
	"time"

	domainuser "bazaar/internal/domain/user"
)

func TestNormalizeBodyBounds(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{"empty", "", ErrMessageEmpty},
		{"spaces only", "   \t\n", ErrMessageEmpty},
		{"single char", "x", nil},
		{"exactly max", strings.Repeat("a", MaxMessageChars), nil},
		{"over max", strings.Repeat("a", MaxMessageChars+1), ErrMessageTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NormalizeBody(tc.body)
			if !errors.Is(err, tc.want) {
				t.Fatalf("NormalizeBody(%q-len-%d) = %v, want %v", tc.name, len(tc.body), err, tc.want)
			}
		})
	}
}

func TestNormalizeBodyCountsRunesNotBytes(t *testing.T) {
	body := strings.Repeat("å", MaxMessageChars)
	out, err := NormalizeBody(body)
	if err != nil {
		t.Fatalf("multibyte body at limit rejected: %v", err)
	}
	if out != body {
		t.Fatalf("body altered")
	}
}

func TestNormalizeBodyTrimsBeforeCounting(t *testing.T) {
	body := "  " + strings.Repeat("a", MaxMessageChars) + "  "
	if _, err := NormalizeBody(body); err != nil {
		t.Fatalf("trimmed body at limit rejected: %v", err)
	}
}

func testConversation(t *testing.T) *Conversation {
	t.Helper()
	conv, err := NewConversation(NewConversationParams{
		ID:           "c1",
		Participants: []domainuser.ID{"alice", "bob"},
		ListingID:    "post-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return conv
}

func TestNewMessageDerivesReceiver(t *testing.T) {
	msg, err := NewMessage(NewMessageParams{
		ID:           "m1",
		Conversation: testConversation(t),
		Sender:       "alice",
		Body:         " hello ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Receiver != "bob" {
		t.Fatalf("expected receiver bob, got %q", msg.Receiver)
	}
	if msg.Body != "hello" {
		t.Fatalf("expected trimmed body, got %q", msg.Body)
	}
	if msg.IsRead {
		t.Fatalf("new message must start unread")
	}
}

func TestNewMessageRejectsOutsider(t *testing.T) {
	_, err := NewMessage(NewMessageParams{
		ID:           "m1",
		Conversation: testConversation(t),
		Sender:       "mallory",
		Body:         "hi",
	})
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	msg, err := NewMessage(NewMessageParams{
		ID:           "m1",
		Conversation: testConversation(t),
		Sender:       "alice",
		Body:         "hi",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg.MarkRead(first)
	if !msg.IsRead || !msg.ReadAt.Equal(first) {
		t.Fatalf("first MarkRead did not stick: read=%v at=%v", msg.IsRead, msg.ReadAt)
	}

	msg.MarkRead(first.Add(time.Hour))
	if !msg.ReadAt.Equal(first) {
		t.Fatalf("second MarkRead moved ReadAt to %v", msg.ReadAt)
	}
}
