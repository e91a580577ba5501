package realtime

import (
	"sync"
	"time"

	domainuser "bazaar/internal/domain/user"
)

// Conn is the subset of a websocket connection the gateway needs. It is
// satisfied by *gorilla/websocket.Conn and by scripted fakes in tests.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one authenticated realtime session.
//
// Send is never closed by broadcasters; shutdown is signalled through done so
// concurrent fan-out cannot panic on a closed channel.
type Client struct {
	UserID    domainuser.ID
	SessionID string

	conn Conn
	send chan Frame

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(userID domainuser.ID, sessionID string, conn Conn, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Client{
		UserID:    userID,
		SessionID: sessionID,
		conn:      conn,
		send:      make(chan Frame, queueSize),
		done:      make(chan struct{}),
	}
}

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close signals shutdown and closes the transport. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// enqueue offers a frame to the client's send queue without blocking.
// Frames for a closing or saturated client are dropped.
func (c *Client) enqueue(frame Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
