package ws

import (
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/require"
)

func TestFanout_PublishMirrorsFrame(t *testing.T) {
	req := require.New(t)
	rdb, mock := redismock.NewClientMock()
	f := NewFanout(rdb, NewHub())
	f.origin = "origin-a"

	frame := []byte(`{"type":"chat","from":"alice","text":"hi"}`)
	payload, err := json.Marshal(fanoutMsg{Origin: "origin-a", Frame: frame})
	req.NoError(err)

	mock.ExpectPublish(channelFor("r1"), payload).SetVal(1)
	f.Publish("r1", frame)

	req.NoError(mock.ExpectationsWereMet())
}

func TestFanout_DeliverRebroadcastsForeignFrames(t *testing.T) {
	req := require.New(t)
	hub := NewHub()
	rdb, _ := redismock.NewClientMock()
	f := NewFanout(rdb, hub)
	f.origin = "origin-a"

	conn := &fakeConn{}
	hub.Join("r1", NewClient("c", conn))

	frame := json.RawMessage(`{"type":"chat","from":"bob","text":"from afar"}`)
	foreign, _ := json.Marshal(fanoutMsg{Origin: "origin-b", Frame: frame})
	f.deliver("r1", foreign)

	// The foreign frame reached the local room
	req.Equal(1, conn.count())
	req.Equal("from afar", conn.last(t).Text)
}

func TestFanout_DeliverSuppressesOwnEcho(t *testing.T) {
	req := require.New(t)
	hub := NewHub()
	rdb, _ := redismock.NewClientMock()
	f := NewFanout(rdb, hub)
	f.origin = "origin-a"

	conn := &fakeConn{}
	hub.Join("r1", NewClient("c", conn))

	frame := json.RawMessage(`{"type":"chat","from":"alice","text":"hi"}`)
	own, _ := json.Marshal(fanoutMsg{Origin: "origin-a", Frame: frame})
	f.deliver("r1", own)

	req.Equal(0, conn.count())
}

func TestFanout_DeliverDropsBadPayload(t *testing.T) {
	req := require.New(t)
	hub := NewHub()
	rdb, _ := redismock.NewClientMock()
	f := NewFanout(rdb, hub)

	conn := &fakeConn{}
	hub.Join("r1", NewClient("c", conn))

	f.deliver("r1", []byte(`not json`))

	req.Equal(0, conn.count())
}

func TestFanout_SubscribeRefCounting(t *testing.T) {
	req := require.New(t)
	rdb, _ := redismock.NewClientMock()
	f := NewFanout(rdb, NewHub())

	f.Subscribe("r1")
	f.Subscribe("r1")
	req.Len(f.subs, 1)
	req.Equal(2, f.subs["r1"].refCnt)

	f.Unsubscribe("r1")
	req.Len(f.subs, 1)

	f.Unsubscribe("r1")
	req.Empty(f.subs)

	// Extra unsubscribe for an unknown room is a no-op
	f.Unsubscribe("r1")
}
