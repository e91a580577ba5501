package realtime

import (
	"sync"

	"bazaar/internal/domain/chat"
	domainuser "bazaar/internal/domain/user"
)

func userRoom(id domainuser.ID) string {
	return "user_" + string(id)
}

func conversationRoom(id chat.ConversationID) string {
	return "conversation_" + string(id)
}

// Rooms is the in-memory broadcast fan-out primitive: named rooms holding
// client memberships.
//
// Broadcast never blocks; slow members are skipped (bounded send queues).
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]map[*Client]struct{})}
}

func (r *Rooms) Join(room string, client *Client) {
	if client == nil || room == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}
	members[client] = struct{}{}
}

func (r *Rooms) Leave(room string, client *Client) {
	if client == nil || room == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// LeaveAll drops client from every room, used on disconnect.
func (r *Rooms) LeaveAll(client *Client) {
	if client == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for room, members := range r.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Broadcast fans a frame out to every member of room. A nil except sends to
// everyone; otherwise that client is skipped (typing relays exclude self).
func (r *Rooms) Broadcast(room string, frame Frame, except *Client) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for member := range r.rooms[room] {
		if member == except {
			continue
		}
		member.enqueue(frame)
	}
}

// Contains reports room membership, used by tests and the presence eviction
// path.
func (r *Rooms) Contains(room string, client *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][client]
	return ok
}
