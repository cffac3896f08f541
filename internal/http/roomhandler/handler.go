package roomhandler

import (
	"errors"
	"net/http"

	"signalrelaygo/internal/services/presence"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc presence.IPresenceService
}

func New(svc presence.IPresenceService) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/rooms", h.list)
	r.GET("/rooms/:id", h.info)
}

// list returns every live room with its member count.
func (h *Handler) list(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ListRooms(c))
}

// info returns one room's username snapshot.
func (h *Handler) info(c *gin.Context) {
	dto, err := h.svc.GetRoom(c, c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, presence.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto)
}
