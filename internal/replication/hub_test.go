package replication

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostround.io/internal/protocol"
)

func frame(tick uint64, events ...protocol.EventType) Frame {
	f := Frame{
		Tick: tick,
		State: protocol.StateMsg{
			Type:            protocol.TypeState,
			ProtocolVersion: protocol.Version,
			Tick:            tick,
		},
	}
	for i, t := range events {
		f.Events = append(f.Events, protocol.Event{Seq: tick*10 + uint64(i) + 1, Tick: tick, Type: t})
	}
	return f
}

func TestRecorderKeepsFramesAndEvents(t *testing.T) {
	r := NewRecorder()
	r.Publish(frame(1, protocol.EventPlayerJoined))
	r.Publish(frame(2))
	r.Publish(frame(3, protocol.EventRoundState, protocol.EventAgentSpawned))

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(3), last.Tick)
	assert.Len(t, r.Frames(), 3)
	assert.Len(t, r.Events(), 3)
	assert.Len(t, r.EventsOfType(protocol.EventRoundState), 1)

	r.Reset()
	_, ok = r.Last()
	assert.False(t, ok)
	assert.Empty(t, r.Events())
}

func TestRecorderMaxFrames(t *testing.T) {
	r := &Recorder{MaxFrames: 2}
	for i := uint64(1); i <= 5; i++ {
		r.Publish(frame(i, protocol.EventRoundState))
	}
	fs := r.Frames()
	require.Len(t, fs, 2)
	assert.Equal(t, uint64(4), fs[0].Tick)
	assert.Len(t, r.Events(), 5, "events are not bounded by MaxFrames")
}

func TestSessionStateIsLatestWins(t *testing.T) {
	s := NewSession("s1", "P1", protocol.JSON, 8)
	for i := uint64(1); i <= 5; i++ {
		s.Publish(frame(i))
	}
	require.Len(t, s.State(), 1)
	var m protocol.StateMsg
	require.NoError(t, json.Unmarshal(<-s.State(), &m))
	assert.Equal(t, uint64(5), m.Tick)
	assert.Empty(t, s.Events(), "frames without events enqueue nothing")
}

func TestSessionEventsAreOrderedAndReliable(t *testing.T) {
	s := NewSession("s1", "P1", protocol.JSON, 8)
	s.Publish(frame(1, protocol.EventPlayerJoined))
	s.Publish(frame(2, protocol.EventRoundState))

	var got []protocol.EventType
	for len(s.Events()) > 0 {
		var m protocol.EventsMsg
		require.NoError(t, json.Unmarshal(<-s.Events(), &m))
		for _, e := range m.Events {
			got = append(got, e.Type)
		}
	}
	assert.Equal(t, []protocol.EventType{protocol.EventPlayerJoined, protocol.EventRoundState}, got)
	assert.False(t, s.Overflowed())
}

func TestSessionOverflowCloses(t *testing.T) {
	s := NewSession("s1", "P1", protocol.JSON, 2)
	s.Publish(frame(1, protocol.EventRoundState))
	s.Publish(frame(2, protocol.EventRoundState))
	s.Publish(frame(3, protocol.EventRoundState))

	assert.True(t, s.Overflowed())
	select {
	case <-s.Done():
	default:
		t.Fatal("session should be closed after event overflow")
	}

	// Closed sessions ignore further frames.
	before := len(s.Events())
	s.Publish(frame(4, protocol.EventRoundState))
	assert.Equal(t, before, len(s.Events()))
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s := NewSession("s1", "", nil, 0)
	assert.Equal(t, protocol.CodecJSON, s.Codec().Name())
	s.Close()
	s.Close()
	<-s.Done()
	assert.False(t, s.Overflowed())
}

func TestSendLatestReplacesPending(t *testing.T) {
	ch := make(chan []byte, 1)
	sendLatest(ch, []byte("a"))
	sendLatest(ch, []byte("b"))
	sendLatest(ch, []byte("c"))
	assert.Equal(t, "c", string(<-ch))
	assert.Empty(t, ch)
}

func TestFanoutMixedCodecs(t *testing.T) {
	h := NewFanout()
	js := NewSession("a", "P1", protocol.JSON, 4)
	mp := NewSession("b", "P2", protocol.Msgpack, 4)
	h.Add(js)
	h.Add(mp)
	h.Add(js)
	require.Equal(t, 2, h.Len())

	h.Publish(frame(7, protocol.EventConsoleActivated))

	var jm protocol.StateMsg
	require.NoError(t, protocol.JSON.Unmarshal(<-js.State(), &jm))
	var mm protocol.StateMsg
	require.NoError(t, protocol.Msgpack.Unmarshal(<-mp.State(), &mm))
	assert.Equal(t, uint64(7), jm.Tick)
	assert.Equal(t, uint64(7), mm.Tick)

	var me protocol.EventsMsg
	require.NoError(t, protocol.Msgpack.Unmarshal(<-mp.Events(), &me))
	require.Len(t, me.Events, 1)
	assert.Equal(t, protocol.EventConsoleActivated, me.Events[0].Type)
	assert.Equal(t, protocol.TypeEvents, me.Type)
}

func TestFanoutRemoveAndOverflowed(t *testing.T) {
	h := NewFanout()
	slow := NewSession("slow", "P1", protocol.JSON, 1)
	fast := NewSession("fast", "P2", protocol.JSON, 16)
	h.Add(slow)
	h.Add(fast)

	h.Publish(frame(1, protocol.EventRoundState))
	h.Publish(frame(2, protocol.EventRoundState))
	assert.Equal(t, []string{"slow"}, h.Overflowed())

	assert.Same(t, slow, h.Remove("slow"))
	assert.Nil(t, h.Remove("slow"))
	assert.Nil(t, h.Get("slow"))
	assert.Same(t, fast, h.Get("fast"))
	assert.Empty(t, h.Overflowed())
	assert.Len(t, fast.Events(), 2)
}
