package realtime

import (
	"sync"

	domainuser "bazaar/internal/domain/user"
)

// Registry maps a subject id to its single live connection. The invariant is
// at most one entry per subject at any instant; Register performs the
// evict-then-install swap atomically.
type Registry interface {
	// Register installs client as the live connection for its user and
	// returns the previous connection when one was evicted.
	Register(client *Client) (evicted *Client)
	// Unregister removes the entry only when it still points at client,
	// so a disconnect cannot clobber a newer session.
	Unregister(client *Client) bool
	Lookup(id domainuser.ID) (*Client, bool)
	Len() int
}

// InMemoryRegistry is correct for a single-instance deployment. Sharded
// gateways additionally need the broker presence channel to evict sessions
// living in other processes.
type InMemoryRegistry struct {
	mu      sync.Mutex
	clients map[domainuser.ID]*Client
}

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{clients: make(map[domainuser.ID]*Client)}
}

func (r *InMemoryRegistry) Register(client *Client) *Client {
	if client == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.clients[client.UserID]
	if old == client {
		return nil
	}
	r.clients[client.UserID] = client
	return old
}

func (r *InMemoryRegistry) Unregister(client *Client) bool {
	if client == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.clients[client.UserID]; !ok || current != client {
		return false
	}
	delete(r.clients, client.UserID)
	return true
}

func (r *InMemoryRegistry) Lookup(id domainuser.ID) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

func (r *InMemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
