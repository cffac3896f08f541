package ws

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Hub is the room directory: roomID → member set. Rooms come into existence
// on first join and are dropped again when the last member leaves, so the
// table never grows without bound.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub() *Hub { return &Hub{rooms: make(map[string]*room)} }

// Join adds the connection to the room, creating it if absent, and returns
// the member snapshot after the join. The add happens under h.mu: resolving
// the room and mutating its member set must be one atomic step, or a
// concurrent last-member Leave could reap the room between the two and leave
// the newcomer stranded in an unreachable set.
func (h *Hub) Join(roomID string, c *Client) []*Client {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = newRoom()
		h.rooms[roomID] = r
	}
	r.add(c)
	h.mu.Unlock()

	return r.snapshot()
}

// Leave removes the connection and returns the remaining member snapshot.
// ok is false when the room did not exist, which callers treat as a no-op.
// Remove and reap are likewise one atomic step under h.mu.
func (h *Hub) Leave(roomID string, c *Client) (remaining []*Client, ok bool) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return nil, false
	}
	if r.remove(c) == 0 {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()

	return r.snapshot(), true
}

// Members returns a copy of the room's current member set, empty when the
// room does not exist.
func (h *Hub) Members(roomID string) []*Client {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return r.snapshot()
}

// SnapshotUsernames resolves the room's members to their bound usernames,
// sorted so repeated snapshots of the same membership compare equal.
// Duplicate usernames are kept; the list is a multiset.
func (h *Hub) SnapshotUsernames(roomID string, reg *Registry) []string {
	members := h.Members(roomID)
	names := make([]string, 0, len(members))
	for _, c := range members {
		if u := reg.Username(c); u != "" {
			names = append(names, u)
		}
	}
	sort.Strings(names)
	return names
}

// Broadcast delivers one pre-serialized frame to every ready member. A
// failed recipient is logged and skipped, never aborting the rest.
func (h *Hub) Broadcast(roomID string, frame []byte) {
	for _, c := range h.Members(roomID) {
		if err := c.send(frame); err != nil {
			zap.L().Debug("ws.broadcast_send", zap.String("conn", c.ID()), zap.Error(err))
		}
	}
}

// RoomInfo is a read-only view for the presence REST surface.
type RoomInfo struct {
	ID      string
	Members int
}

// Rooms lists the live rooms with member counts, sorted by room ID.
func (h *Hub) Rooms() []RoomInfo {
	h.mu.Lock()
	out := make([]RoomInfo, 0, len(h.rooms))
	for id, r := range h.rooms {
		out = append(out, RoomInfo{ID: id, Members: r.size()})
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
