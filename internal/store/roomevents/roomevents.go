package roomevents

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// Event is one membership change in a room.
type Event struct {
	RoomID   string
	Username string
	Kind     string // "join" | "leave"
	At       time.Time
}

const (
	bufferSize  = 1024
	flushEvery  = 10 * time.Second
	flushBatch  = 256
	execTimeout = 1500 * time.Millisecond
)

// Recorder buffers membership events and mirrors them to Postgres in batches.
// Recording never blocks the signaling path: when the buffer is full the
// event is dropped, the audit trail is advisory.
type Recorder struct {
	db *sql.DB
	ch chan Event
}

// Run starts the flush worker. It drains and flushes once more on ctx cancel.
func Run(ctx context.Context, db *sql.DB) *Recorder {
	rec := &Recorder{db: db, ch: make(chan Event, bufferSize)}
	go rec.loop(ctx)
	return rec
}

// Record queues one event, dropping it when the buffer is full.
func (r *Recorder) Record(roomID, username, kind string) {
	e := Event{RoomID: roomID, Username: username, Kind: kind, At: time.Now().UTC()}
	select {
	case r.ch <- e:
	default:
		zap.L().Debug("roomevents.dropped", zap.String("room", roomID))
	}
}

func (r *Recorder) loop(ctx context.Context) {
	tk := time.NewTicker(flushEvery)
	defer tk.Stop()

	var pending []Event
	for {
		select {
		case <-ctx.Done():
			r.flush(append(pending, r.drain()...))
			return
		case e := <-r.ch:
			pending = append(pending, e)
			if len(pending) >= flushBatch {
				r.flush(pending)
				pending = nil
			}
		case <-tk.C:
			r.flush(pending)
			pending = nil
		}
	}
}

func (r *Recorder) drain() []Event {
	var out []Event
	for {
		select {
		case e := <-r.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func (r *Recorder) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		zap.L().Error("roomevents.tx_begin", zap.Error(err))
		return
	}
	defer tx.Rollback()

	const insert = `
	INSERT INTO room_events (room_id, username, kind, occurred_at)
	     VALUES ($1,$2,$3,$4)`

	for _, e := range batch {
		if _, err := tx.ExecContext(ctx, insert, e.RoomID, e.Username, e.Kind, e.At); err != nil {
			zap.L().Error("roomevents.insert", zap.String("room", e.RoomID), zap.Error(err))
		}
	}

	if err := tx.Commit(); err != nil {
		zap.L().Debug("roomevents.commit", zap.Error(err))
	}
}
