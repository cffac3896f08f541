package ws

import "sync"

type room struct {
	mu      sync.RWMutex
	members map[*Client]struct{}
}

func newRoom() *room { return &room{members: map[*Client]struct{}{}} }

func (r *room) add(c *Client) {
	r.mu.Lock()
	r.members[c] = struct{}{}
	r.mu.Unlock()
}

// remove deletes the member and reports how many remain.
func (r *room) remove(c *Client) int {
	r.mu.Lock()
	delete(r.members, c)
	n := len(r.members)
	r.mu.Unlock()
	return n
}

// snapshot copies the member set so callers never iterate live state while
// another connection joins or leaves.
func (r *room) snapshot() []*Client {
	r.mu.RLock()
	out := make([]*Client, 0, len(r.members))
	for c := range r.members {
		out = append(out, c)
	}
	r.mu.RUnlock()
	return out
}

func (r *room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
