package ws

import (
	"encoding/json"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	reg := NewRegistry()
	srv := NewWsServer(hub, reg, NewRouter(hub, reg, nil, nil))

	engine := gin.New()
	engine.GET("/ws", srv.Handle)
	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialWs(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendWs(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

// The full signaling flow of one call: join, membership updates, targeted
// negotiation, room chat, disconnect.
func TestWsServer_SignalingScenario(t *testing.T) {
	req := require.New(t)
	url := startTestServer(t)

	alice := dialWs(t, url)
	sendWs(t, alice, `{"type":"join","roomId":"r1","username":"alice"}`)
	env := readEnvelope(t, alice)
	req.Equal(TypeUsers, env.Type)
	req.Equal([]string{"alice"}, env.Users)

	bob := dialWs(t, url)
	sendWs(t, bob, `{"type":"join","roomId":"r1","username":"bob"}`)
	for _, conn := range []*websocket.Conn{alice, bob} {
		env = readEnvelope(t, conn)
		req.Equal(TypeUsers, env.Type)
		req.ElementsMatch([]string{"alice", "bob"}, env.Users)
	}

	// alice → bob: targeted offer
	sendWs(t, alice, `{"type":"offer","roomId":"r1","to":"bob","payload":{"sdp":"v=0"}}`)
	env = readEnvelope(t, bob)
	req.Equal(TypeOffer, env.Type)
	req.Equal("alice", env.From)
	req.JSONEq(`{"sdp":"v=0"}`, string(env.Payload))

	// bob → room: chat, echoed back to bob as well
	sendWs(t, bob, `{"type":"chat","roomId":"r1","payload":{"text":"hi"}}`)
	for _, conn := range []*websocket.Conn{alice, bob} {
		env = readEnvelope(t, conn)
		req.Equal(TypeChat, env.Type)
		req.Equal("bob", env.From)
		req.Equal("hi", env.Text)
	}

	// alice disconnects; bob sees the shrunken room. The offer never went to
	// alice, so the chat really was her next and last frame.
	req.NoError(alice.Close())
	env = readEnvelope(t, bob)
	req.Equal(TypeUsers, env.Type)
	req.Equal([]string{"bob"}, env.Users)
}

func TestWsServer_MalformedFrameKeepsConnectionAlive(t *testing.T) {
	req := require.New(t)
	url := startTestServer(t)

	conn := dialWs(t, url)
	sendWs(t, conn, `{"type":"join","roomId":`)

	// The bad frame is dropped and the connection still accepts a join
	sendWs(t, conn, `{"type":"join","roomId":"r1","username":"alice"}`)
	env := readEnvelope(t, conn)
	req.Equal(TypeUsers, env.Type)
	req.Equal([]string{"alice"}, env.Users)
}

// Both per-connection goroutines must exit promptly on disconnect; the
// pinger in particular must not linger until its next tick.
func TestWsServer_DisconnectStopsConnectionGoroutines(t *testing.T) {
	req := require.New(t)
	url := startTestServer(t)

	time.Sleep(50 * time.Millisecond) // let server goroutines settle
	baseline := runtime.NumGoroutine()

	conns := make([]*websocket.Conn, 0, 4)
	for i := 0; i < 4; i++ {
		conn := dialWs(t, url)
		sendWs(t, conn, `{"type":"join","roomId":"g1","username":"u"}`)
		readEnvelope(t, conn)
		conns = append(conns, conn)
	}
	for _, conn := range conns {
		req.NoError(conn.Close())
	}

	req.Eventually(func() bool {
		return runtime.NumGoroutine() <= baseline+1
	}, 2*time.Second, 20*time.Millisecond,
		"reader/pinger goroutines still alive after disconnect")
}

func TestWsServer_ExplicitLeaveThenClose(t *testing.T) {
	req := require.New(t)
	url := startTestServer(t)

	alice := dialWs(t, url)
	sendWs(t, alice, `{"type":"join","roomId":"r1","username":"alice"}`)
	readEnvelope(t, alice)

	bob := dialWs(t, url)
	sendWs(t, bob, `{"type":"join","roomId":"r1","username":"bob"}`)
	readEnvelope(t, alice)
	readEnvelope(t, bob)

	// Explicit leave notifies bob once; the later transport close must not
	// produce a second users broadcast
	sendWs(t, alice, `{"type":"leave","roomId":"r1"}`)
	env := readEnvelope(t, bob)
	req.Equal([]string{"bob"}, env.Users)

	req.NoError(alice.Close())

	// bob's next frame is his own chat echo, not another users update
	sendWs(t, bob, `{"type":"chat","roomId":"r1","payload":{"text":"still here"}}`)
	env = readEnvelope(t, bob)
	req.Equal(TypeChat, env.Type)
	req.Equal("still here", env.Text)
}
