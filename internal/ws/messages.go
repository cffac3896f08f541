package ws

import (
	"encoding/json"
	"errors"
)

// Envelope is the flat wire frame exchanged in both directions. Which fields
// are meaningful depends on Type; the decode* helpers validate per type.
type Envelope struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"roomId,omitempty"`
	Username string          `json:"username,omitempty"`
	To       string          `json:"to,omitempty"`
	From     string          `json:"from,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Text     string          `json:"text,omitempty"`
	Users    []string        `json:"users,omitempty"`
}

const (
	TypeJoin      = "join"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
	TypeChat      = "chat"
	TypeLeave     = "leave"
	TypeUsers     = "users"
)

var errMissingFields = errors.New("missing required fields")

// ──────────────────────────── Inbound variants ───────────────────────────────

// JoinMsg binds a connection to a room under a username.
type JoinMsg struct {
	RoomID   string
	Username string
}

// SignalMsg is an offer/answer/candidate relay request. Payload stays opaque.
type SignalMsg struct {
	Kind    string // offer | answer | candidate
	To      string
	Payload json.RawMessage
}

// ChatMsg carries room text chat.
type ChatMsg struct {
	From string // client hint, used only when the sender never joined
	Text string
}

func decodeJoin(env Envelope) (JoinMsg, error) {
	if env.RoomID == "" || env.Username == "" {
		return JoinMsg{}, errMissingFields
	}
	return JoinMsg{RoomID: env.RoomID, Username: env.Username}, nil
}

func decodeSignal(env Envelope) (SignalMsg, error) {
	if env.To == "" {
		return SignalMsg{}, errMissingFields
	}
	return SignalMsg{Kind: env.Type, To: env.To, Payload: env.Payload}, nil
}

// decodeChat resolves the text from payload.text when present, falling back
// to the legacy top-level text field, else "".
func decodeChat(env Envelope) ChatMsg {
	text := env.Text
	if len(env.Payload) > 0 {
		var body struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(env.Payload, &body); err == nil && body.Text != "" {
			text = body.Text
		}
	}
	return ChatMsg{From: env.From, Text: text}
}

// ──────────────────────────── Outbound frames ────────────────────────────────

// usersFrame serializes the membership snapshot broadcast once per room
// update. The users array is always present on the wire, even when empty.
func usersFrame(users []string) ([]byte, error) {
	if users == nil {
		users = []string{}
	}
	return json.Marshal(struct {
		Type  string   `json:"type"`
		Users []string `json:"users"`
	}{Type: TypeUsers, Users: users})
}

// signalFrame serializes a relayed negotiation envelope for the target(s).
func signalFrame(kind, from string, payload json.RawMessage) ([]byte, error) {
	return json.Marshal(Envelope{Type: kind, From: from, Payload: payload})
}

// chatFrame serializes a chat broadcast. "from" and "text" are always present
// on the wire, even when empty, so clients can de-duplicate on the pair.
func chatFrame(from, text string) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		From string `json:"from"`
		Text string `json:"text"`
	}{Type: TypeChat, From: from, Text: text})
}
