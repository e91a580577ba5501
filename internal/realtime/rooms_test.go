package realtime

import (
	"testing"
	"time"
)

func TestBroadcastReachesMembersOnly(t *testing.T) {
	rooms := NewRooms()
	a := newTestClient("alice", "s1")
	b := newTestClient("bob", "s2")
	c := newTestClient("carol", "s3")

	rooms.Join("room", a)
	rooms.Join("room", b)

	rooms.Broadcast("room", errorFrame("ping"), nil)

	for _, client := range []*Client{a, b} {
		select {
		case <-client.send:
		default:
			t.Fatalf("member %s missed broadcast", client.UserID)
		}
	}
	select {
	case <-c.send:
		t.Fatalf("non-member received broadcast")
	default:
	}
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	rooms := NewRooms()
	a := newTestClient("alice", "s1")
	b := newTestClient("bob", "s2")
	rooms.Join("room", a)
	rooms.Join("room", b)

	rooms.Broadcast("room", errorFrame("ping"), a)

	select {
	case <-a.send:
		t.Fatalf("excluded client received broadcast")
	default:
	}
	select {
	case <-b.send:
	default:
		t.Fatalf("other member missed broadcast")
	}
}

func TestBroadcastDropsOnFullQueue(t *testing.T) {
	rooms := NewRooms()
	client := newClient("alice", "s1", &fakeConn{}, 1)
	rooms.Join("room", client)

	rooms.Broadcast("room", errorFrame("one"), nil)
	// Queue is full now; this must not block.
	done := make(chan struct{})
	go func() {
		rooms.Broadcast("room", errorFrame("two"), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcast blocked on saturated client")
	}
}

func TestLeaveAllRemovesEveryMembership(t *testing.T) {
	rooms := NewRooms()
	client := newTestClient("alice", "s1")
	rooms.Join("a", client)
	rooms.Join("b", client)

	rooms.LeaveAll(client)

	if rooms.Contains("a", client) || rooms.Contains("b", client) {
		t.Fatalf("client still member after LeaveAll")
	}
}
