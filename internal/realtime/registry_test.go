package realtime

import (
	"sync"
	"testing"

	domainuser "bazaar/internal/domain/user"
)

func newTestClient(userID domainuser.ID, sessionID string) *Client {
	return newClient(userID, sessionID, &fakeConn{}, 8)
}

func TestRegisterEvictsPreviousSession(t *testing.T) {
	reg := NewInMemoryRegistry()
	first := newTestClient("alice", "s1")
	second := newTestClient("alice", "s2")

	if evicted := reg.Register(first); evicted != nil {
		t.Fatalf("first register evicted %v", evicted.SessionID)
	}
	evicted := reg.Register(second)
	if evicted != first {
		t.Fatalf("expected first session evicted, got %v", evicted)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", reg.Len())
	}
	current, ok := reg.Lookup("alice")
	if !ok || current != second {
		t.Fatalf("registry does not point at the new session")
	}
}

func TestRegisterSameClientIsNoop(t *testing.T) {
	reg := NewInMemoryRegistry()
	client := newTestClient("alice", "s1")
	reg.Register(client)
	if evicted := reg.Register(client); evicted != nil {
		t.Fatalf("re-register of same client evicted %v", evicted.SessionID)
	}
}

func TestUnregisterOnlyRemovesOwnEntry(t *testing.T) {
	reg := NewInMemoryRegistry()
	first := newTestClient("alice", "s1")
	second := newTestClient("alice", "s2")

	reg.Register(first)
	reg.Register(second)

	// The evicted session's disconnect must not clobber the new entry.
	if reg.Unregister(first) {
		t.Fatalf("stale unregister removed the live entry")
	}
	if current, ok := reg.Lookup("alice"); !ok || current != second {
		t.Fatalf("live session lost after stale unregister")
	}

	if !reg.Unregister(second) {
		t.Fatalf("live session failed to unregister")
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
}

func TestRegisterIsAtomicUnderContention(t *testing.T) {
	reg := NewInMemoryRegistry()
	const sessions = 64

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := newTestClient("alice", "s")
			if evicted := reg.Register(client); evicted != nil {
				evicted.Close()
			}
		}()
	}
	wg.Wait()

	if reg.Len() != 1 {
		t.Fatalf("expected exactly one live session, got %d", reg.Len())
	}
	winner, ok := reg.Lookup("alice")
	if !ok {
		t.Fatalf("no winner registered")
	}
	select {
	case <-winner.Done():
		t.Fatalf("winning session was closed")
	default:
	}
}
