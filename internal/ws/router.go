package ws

import (
	"encoding/json"

	"go.uber.org/zap"
)

// BroadcastTap mirrors room broadcasts to peer relay instances. Subscribe and
// Unsubscribe are ref-counted per room by the implementation. Nil disables
// mirroring.
type BroadcastTap interface {
	Publish(roomID string, frame []byte)
	Subscribe(roomID string)
	Unsubscribe(roomID string)
}

// EventLog records membership changes for the audit trail. Nil disables it.
type EventLog interface {
	Record(roomID, username, kind string)
}

type handlerFunc func(c *Client, env Envelope)

// Router dispatches inbound envelopes by type. It holds no protocol state of
// its own: everything lives in the Registry and the Hub.
type Router struct {
	hub      *Hub
	reg      *Registry
	tap      BroadcastTap
	events   EventLog
	handlers map[string]handlerFunc
}

func NewRouter(hub *Hub, reg *Registry, tap BroadcastTap, events EventLog) *Router {
	rt := &Router{hub: hub, reg: reg, tap: tap, events: events}
	rt.handlers = map[string]handlerFunc{
		TypeJoin:      rt.handleJoin,
		TypeOffer:     rt.handleSignal,
		TypeAnswer:    rt.handleSignal,
		TypeCandidate: rt.handleSignal,
		TypeChat:      rt.handleChat,
		TypeLeave:     func(c *Client, _ Envelope) { rt.Disconnect(c) },
	}
	return rt
}

// Dispatch handles one raw inbound frame. Malformed JSON and unknown types
// are logged and dropped; the connection stays open and no error envelope is
// ever sent back, which is the wire contract existing clients rely on.
func (rt *Router) Dispatch(c *Client, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		zap.L().Warn("ws.bad_json", zap.String("conn", c.ID()), zap.Error(err))
		return
	}
	h, ok := rt.handlers[env.Type]
	if !ok {
		zap.L().Debug("ws.unknown_type", zap.String("conn", c.ID()), zap.String("type", env.Type))
		return
	}
	h(c, env)
}

// Disconnect runs the shared cleanup path for transport close and explicit
// leave: drop room membership, tell the remaining members, discard identity.
// Idempotent; a close after an explicit leave is a no-op.
func (rt *Router) Disconnect(c *Client) {
	username, roomID, ok := rt.reg.Identity(c)
	if !ok {
		return
	}
	rt.reg.Unbind(c)

	if _, existed := rt.hub.Leave(roomID, c); existed {
		rt.broadcastUsers(roomID)
	}
	if rt.tap != nil {
		rt.tap.Unsubscribe(roomID)
	}
	rt.record(roomID, username, "leave")
}

// ──────────────────────────── per-type handlers ──────────────────────────────

func (rt *Router) handleJoin(c *Client, env Envelope) {
	m, err := decodeJoin(env)
	if err != nil {
		return // malformed join is ignored, no reply
	}
	first := rt.reg.Bind(c, m.Username, m.RoomID)
	if !first {
		// Already bound: a repeated identical join is harmless, anything
		// else would put the connection in two rooms and is dropped.
		u, rid, ok := rt.reg.Identity(c)
		if !ok || u != m.Username || rid != m.RoomID {
			return
		}
	}

	rt.hub.Join(m.RoomID, c)
	if first {
		if rt.tap != nil {
			rt.tap.Subscribe(m.RoomID)
		}
		rt.record(m.RoomID, m.Username, "join")
	}
	rt.broadcastUsers(m.RoomID)
}

// handleSignal relays offer/answer/candidate to every member of the sender's
// room whose username matches the target. Usernames are not unique, so a
// shared name fans out to all holders.
func (rt *Router) handleSignal(c *Client, env Envelope) {
	m, err := decodeSignal(env)
	if err != nil {
		return
	}
	username, roomID, ok := rt.reg.Identity(c)
	if !ok {
		return // never joined
	}

	frame, err := signalFrame(m.Kind, username, m.Payload)
	if err != nil {
		zap.L().Warn("ws.signal_marshal", zap.Error(err))
		return
	}
	for _, peer := range rt.hub.Members(roomID) {
		if rt.reg.Username(peer) != m.To {
			continue
		}
		if err := peer.send(frame); err != nil {
			zap.L().Debug("ws.signal_send", zap.String("conn", peer.ID()), zap.Error(err))
		}
	}
}

// handleChat broadcasts to the whole room, sender included. Clients suppress
// their own locally-echoed copy by comparing (from, text); excluding the
// sender here would change wire behavior for existing clients.
func (rt *Router) handleChat(c *Client, env Envelope) {
	m := decodeChat(env)
	username, roomID, ok := rt.reg.Identity(c)
	if !ok {
		return
	}
	from := username
	if from == "" {
		if from = m.From; from == "" {
			from = "unknown"
		}
	}

	frame, err := chatFrame(from, m.Text)
	if err != nil {
		zap.L().Warn("ws.chat_marshal", zap.Error(err))
		return
	}
	rt.hub.Broadcast(roomID, frame)
	rt.publish(roomID, frame)
}

// ──────────────────────────── helpers ────────────────────────────────────────

func (rt *Router) broadcastUsers(roomID string) {
	frame, err := usersFrame(rt.hub.SnapshotUsernames(roomID, rt.reg))
	if err != nil {
		zap.L().Warn("ws.users_marshal", zap.Error(err))
		return
	}
	rt.hub.Broadcast(roomID, frame)
	rt.publish(roomID, frame)
}

func (rt *Router) publish(roomID string, frame []byte) {
	if rt.tap != nil {
		rt.tap.Publish(roomID, frame)
	}
}

func (rt *Router) record(roomID, username, kind string) {
	if rt.events != nil {
		rt.events.Record(roomID, username, kind)
	}
}
