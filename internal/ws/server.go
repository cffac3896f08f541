package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10 // must be < pongWait
	maxFrameSize = 64 << 10
)

// WsServer accepts signaling connections and feeds their inbound frames to
// the Router. Identity binding happens via the join envelope, not at upgrade
// time, so the endpoint takes no query parameters.
type WsServer struct {
	hub    *Hub
	reg    *Registry
	router *Router

	mu   sync.Mutex
	live map[*Client]struct{}
}

func NewWsServer(hub *Hub, reg *Registry, router *Router) *WsServer {
	return &WsServer{
		hub:    hub,
		reg:    reg,
		router: router,
		live:   make(map[*Client]struct{}),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true }, // browsers pick origin; relay does no auth
}

// Handle is the gin entry-point for GET /ws.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}

	c := NewClient(uuid.NewString(), rawConn)
	s.track(c)
	zap.L().Debug("ws.connect", zap.String("conn", c.ID()))

	done := make(chan struct{})
	go s.reader(c, rawConn, done)
	go s.pinger(c, rawConn, done)
}

// Dispose closes every live connection; their reader loops run the normal
// cleanup path as they notice.
func (s *WsServer) Dispose() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.live))
	for c := range s.live {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (s *WsServer) track(c *Client) {
	s.mu.Lock()
	s.live[c] = struct{}{}
	s.mu.Unlock()
}

func (s *WsServer) untrack(c *Client) {
	s.mu.Lock()
	delete(s.live, c)
	s.mu.Unlock()
}

// reader pumps inbound frames into the router until the transport dies, then
// runs disconnect cleanup and stops the pinger. Each connection's frames are
// handled in arrival order; interleaving across connections is arbitrary.
func (s *WsServer) reader(c *Client, rawConn *websocket.Conn, done chan<- struct{}) {
	defer func() {
		close(done)
		s.router.Disconnect(c)
		c.close()
		s.untrack(c)
		zap.L().Debug("ws.disconnect", zap.String("conn", c.ID()))
	}()

	rawConn.SetReadLimit(maxFrameSize)
	_ = rawConn.SetReadDeadline(time.Now().Add(pongWait))
	rawConn.SetPongHandler(func(string) error {
		return rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := rawConn.ReadMessage()
		if err != nil {
			return // client closed or errored
		}
		s.router.Dispatch(c, data)
	}
}

func (s *WsServer) pinger(c *Client, rawConn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			err := rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err != nil {
				c.close()
				return
			}
		}
	}
}
