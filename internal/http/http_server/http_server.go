package http_server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"signalrelaygo/internal/http/roomhandler"
	"signalrelaygo/internal/services/presence"
	"signalrelaygo/internal/ws"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type httpServer struct {
	listenPort  uint16
	srv         http.Server
	ln          net.Listener
	presenceSvc presence.IPresenceService
	wsSrv       *ws.WsServer
	ctx         context.Context
}

func NewHttpServer(ctx context.Context, listenPort uint16, wsSrv *ws.WsServer, presenceSvc presence.IPresenceService) *httpServer {
	return &httpServer{
		listenPort:  listenPort,
		wsSrv:       wsSrv,
		presenceSvc: presenceSvc,
		ctx:         ctx,
	}
}

func (h *httpServer) Start() error {
	var err error
	listenAddr := fmt.Sprintf(":%d", h.listenPort)
	h.ln, err = net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}

	routerEngine := gin.New()

	// routerEngine.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	routerEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// websocket signaling endpoint
	routerEngine.GET("/ws", h.wsSrv.Handle)

	// REST presence API
	rh := roomhandler.New(h.presenceSvc)
	rh.Register(routerEngine)

	h.srv = http.Server{
		Handler: routerEngine,
	}

	return h.srv.Serve(h.ln)
}

// Dispose gracefully shuts the HTTP server down, then drops any websocket
// connections still open. It waits up to 10 s for in-flight requests.
func (h *httpServer) Dispose() error {
	ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		h.wsSrv.Dispose()
		return err
	}

	h.wsSrv.Dispose()
	return nil
}
