package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn records frames in memory in place of a real websocket connection.
type fakeConn struct {
	mu      sync.Mutex
	frames  [][]byte
	failing bool
	closed  bool
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("write on broken pipe")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// envelopes decodes every recorded frame.
func (f *fakeConn) envelopes(t *testing.T) []Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, 0, len(f.frames))
	for _, frame := range f.frames {
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("recorded frame is not valid JSON: %v", err)
		}
		out = append(out, env)
	}
	return out
}

// last returns the most recent envelope, failing when nothing was sent.
func (f *fakeConn) last(t *testing.T) Envelope {
	t.Helper()
	envs := f.envelopes(t)
	if len(envs) == 0 {
		t.Fatal("no frames recorded")
	}
	return envs[len(envs)-1]
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}
