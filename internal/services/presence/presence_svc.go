package presence

import (
	"context"
	"errors"

	"signalrelaygo/internal/ws"
)

// RoomDTO is the read-only view of one live room.
type RoomDTO struct {
	ID      string   `json:"room_id"`
	Members int      `json:"members"`
	Users   []string `json:"users,omitempty"`
}

var ErrRoomNotFound = errors.New("room not found")

// IPresenceService exposes room membership to the REST surface. All data is
// in-memory state of this instance; rooms die with their last connection.
type IPresenceService interface {
	ListRooms(ctx context.Context) []RoomDTO
	GetRoom(ctx context.Context, id string) (*RoomDTO, error)
}

type presenceService struct {
	hub *ws.Hub
	reg *ws.Registry
}

var _ IPresenceService = (*presenceService)(nil)

func NewPresenceService(hub *ws.Hub, reg *ws.Registry) IPresenceService {
	return &presenceService{hub: hub, reg: reg}
}

func (svc *presenceService) ListRooms(_ context.Context) []RoomDTO {
	infos := svc.hub.Rooms()
	out := make([]RoomDTO, 0, len(infos))
	for _, ri := range infos {
		out = append(out, RoomDTO{ID: ri.ID, Members: ri.Members})
	}
	return out
}

func (svc *presenceService) GetRoom(_ context.Context, id string) (*RoomDTO, error) {
	members := svc.hub.Members(id)
	if len(members) == 0 {
		// Empty rooms are reaped on last leave, so no members means no room.
		return nil, ErrRoomNotFound
	}
	users := svc.hub.SnapshotUsernames(id, svc.reg)
	return &RoomDTO{ID: id, Members: len(members), Users: users}, nil
}
