package ws

import "sync"

type identity struct {
	username string
	roomID   string
}

// Registry tracks which username and room each live connection is bound to.
// It owns only the connection→identity mapping; room membership itself lives
// in the Hub, and broadcasts are the caller's business.
type Registry struct {
	mu     sync.RWMutex
	idents map[*Client]identity
}

func NewRegistry() *Registry {
	return &Registry{idents: make(map[*Client]identity)}
}

// Bind associates a connection with a username and room. Idempotent per
// connection: the first successful bind wins and later calls are ignored, as
// are calls with an empty username or room.
func (r *Registry) Bind(c *Client, username, roomID string) bool {
	if username == "" || roomID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.idents[c]; ok {
		return false
	}
	r.idents[c] = identity{username: username, roomID: roomID}
	return true
}

// Unbind drops the connection's identity. Safe on an already-unbound
// connection.
func (r *Registry) Unbind(c *Client) {
	r.mu.Lock()
	delete(r.idents, c)
	r.mu.Unlock()
}

// Identity returns the bound (username, roomID); ok is false when the
// connection never completed a join.
func (r *Registry) Identity(c *Client) (username, roomID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idents[c]
	return id.username, id.roomID, ok
}

// Username returns the bound username, or "" for an unbound connection.
func (r *Registry) Username(c *Client) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.idents[c].username
}
