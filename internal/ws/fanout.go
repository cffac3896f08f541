package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Fanout bridges room broadcasts between relay instances over Redis pub/sub,
// so clients of the same room spread across instances still see each other's
// users and chat frames. Targeted negotiation relay stays instance-local.
//
// Exactly one Redis subscription is held per "room:<id>:events" channel no
// matter how many local connections joined that room.
type Fanout struct {
	rdb    *redis.Client
	hub    *Hub
	origin string // instance ID, suppresses echo of our own publishes
	mu     sync.Mutex
	subs   map[string]*subEntry
}

type subEntry struct {
	refCnt int
	cancel context.CancelFunc
}

// fanoutMsg wraps a broadcast frame with its publishing instance.
type fanoutMsg struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

var _ BroadcastTap = (*Fanout)(nil)

func NewFanout(rdb *redis.Client, hub *Hub) *Fanout {
	return &Fanout{
		rdb:    rdb,
		hub:    hub,
		origin: uuid.NewString(),
		subs:   make(map[string]*subEntry),
	}
}

func channelFor(roomID string) string { return "room:" + roomID + ":events" }

// Publish mirrors one serialized broadcast frame to peer instances.
// Best-effort: a Redis failure is logged, local delivery already happened.
func (f *Fanout) Publish(roomID string, frame []byte) {
	data, err := json.Marshal(fanoutMsg{Origin: f.origin, Frame: frame})
	if err != nil {
		zap.L().Warn("fanout.marshal", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.rdb.Publish(ctx, channelFor(roomID), data).Err(); err != nil {
		zap.L().Warn("fanout.publish", zap.String("room", roomID), zap.Error(err))
	}
}

// Subscribe ensures the instance listens on the room's channel; subsequent
// calls for the same room only bump the ref-counter.
func (f *Fanout) Subscribe(roomID string) {
	f.mu.Lock()
	if e, ok := f.subs[roomID]; ok {
		e.refCnt++
		f.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps := f.rdb.Subscribe(ctx, channelFor(roomID))
	f.subs[roomID] = &subEntry{refCnt: 1, cancel: cancel}
	f.mu.Unlock()

	go f.pump(ctx, ps, roomID)
}

// Unsubscribe drops a reference and tears the Redis subscription down when
// the last local member of the room is gone.
func (f *Fanout) Unsubscribe(roomID string) {
	f.mu.Lock()
	e, ok := f.subs[roomID]
	if !ok {
		f.mu.Unlock()
		return
	}
	e.refCnt--
	if e.refCnt > 0 {
		f.mu.Unlock()
		return
	}
	delete(f.subs, roomID)
	f.mu.Unlock()

	e.cancel()
}

func (f *Fanout) pump(ctx context.Context, ps *redis.PubSub, roomID string) {
	defer ps.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ps.Channel():
			if !ok {
				return
			}
			f.deliver(roomID, []byte(m.Payload))
		}
	}
}

// deliver re-broadcasts one foreign-origin frame into the local room.
func (f *Fanout) deliver(roomID string, payload []byte) {
	var msg fanoutMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		zap.L().Warn("fanout.bad_payload", zap.String("room", roomID), zap.Error(err))
		return
	}
	if msg.Origin == f.origin {
		return // our own publish, already delivered locally
	}
	f.hub.Broadcast(roomID, msg.Frame)
}
