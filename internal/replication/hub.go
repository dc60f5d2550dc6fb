// Package replication carries authoritative world frames to observers.
//
// The world publishes one Frame per tick. STATE is latest-wins per session;
// EVENTS are reliable: a session that cannot keep up with its event queue is
// closed instead of silently losing notifications.
package replication

import (
	"sync"
	"sync/atomic"

	"ghostround.io/internal/protocol"
)

type Frame struct {
	Tick   uint64
	State  protocol.StateMsg
	Events []protocol.Event
}

// Observer receives frames on the world goroutine. Publish must not block.
type Observer interface {
	Publish(f Frame)
}

// Recorder keeps frames in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	frames []Frame
	events []protocol.Event
	// MaxFrames bounds retained frames; zero keeps all.
	MaxFrames int
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	if r.MaxFrames > 0 && len(r.frames) > r.MaxFrames {
		r.frames = append([]Frame(nil), r.frames[len(r.frames)-r.MaxFrames:]...)
	}
	r.events = append(r.events, f.Events...)
}

func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

func (r *Recorder) Last() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return Frame{}, false
	}
	return r.frames[len(r.frames)-1], true
}

func (r *Recorder) Events() []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Event(nil), r.events...)
}

func (r *Recorder) EventsOfType(t protocol.EventType) []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
	r.events = nil
}

// Session is the outbound side of one connection.
type Session struct {
	ID       string
	PlayerID string

	codec  protocol.Codec
	state  chan []byte
	events chan []byte

	done       chan struct{}
	closeOnce  sync.Once
	overflowed atomic.Bool
}

func NewSession(id, playerID string, codec protocol.Codec, eventQueue int) *Session {
	if codec == nil {
		codec = protocol.JSON
	}
	if eventQueue <= 0 {
		eventQueue = 64
	}
	return &Session{
		ID:       id,
		PlayerID: playerID,
		codec:    codec,
		state:    make(chan []byte, 1),
		events:   make(chan []byte, eventQueue),
		done:     make(chan struct{}),
	}
}

func (s *Session) Codec() protocol.Codec { return s.codec }
func (s *Session) State() <-chan []byte  { return s.state }
func (s *Session) Events() <-chan []byte { return s.events }
func (s *Session) Done() <-chan struct{} { return s.done }
func (s *Session) Overflowed() bool      { return s.overflowed.Load() }
func (s *Session) Close()                { s.closeOnce.Do(func() { close(s.done) }) }

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Publish encodes f with the session codec. Fanout avoids the per-session
// encode by calling deliver directly.
func (s *Session) Publish(f Frame) {
	st, ev, err := encodeFrame(s.codec, f)
	if err != nil {
		return
	}
	s.deliver(st, ev)
}

func (s *Session) deliver(state, events []byte) {
	if s.closed() {
		return
	}
	if events != nil {
		select {
		case s.events <- events:
		default:
			s.overflowed.Store(true)
			s.Close()
			return
		}
	}
	if state != nil {
		sendLatest(s.state, state)
	}
}

func encodeFrame(c protocol.Codec, f Frame) (state, events []byte, err error) {
	state, err = c.Marshal(f.State)
	if err != nil {
		return nil, nil, err
	}
	if len(f.Events) > 0 {
		events, err = c.Marshal(protocol.EventsMsg{
			Type:            protocol.TypeEvents,
			ProtocolVersion: protocol.Version,
			Tick:            f.Tick,
			Events:          f.Events,
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return state, events, nil
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

// Fanout delivers a frame to every registered session, encoding once per codec.
// It is owned by the world goroutine.
type Fanout struct {
	sessions map[string]*Session
	order    []string
}

func NewFanout() *Fanout { return &Fanout{sessions: map[string]*Session{}} }

func (h *Fanout) Add(s *Session) {
	if _, ok := h.sessions[s.ID]; !ok {
		h.order = append(h.order, s.ID)
	}
	h.sessions[s.ID] = s
}

func (h *Fanout) Remove(id string) *Session {
	s, ok := h.sessions[id]
	if !ok {
		return nil
	}
	delete(h.sessions, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	return s
}

func (h *Fanout) Get(id string) *Session { return h.sessions[id] }
func (h *Fanout) Len() int               { return len(h.sessions) }

func (h *Fanout) Publish(f Frame) {
	type enc struct {
		state, events []byte
		ok            bool
	}
	cache := map[string]enc{}
	for _, id := range h.order {
		s := h.sessions[id]
		name := s.codec.Name()
		e, hit := cache[name]
		if !hit {
			st, ev, err := encodeFrame(s.codec, f)
			e = enc{state: st, events: ev, ok: err == nil}
			cache[name] = e
		}
		if !e.ok {
			continue
		}
		s.deliver(e.state, e.events)
	}
}

// Overflowed returns the ids of sessions closed for falling behind on events.
func (h *Fanout) Overflowed() []string {
	var out []string
	for _, id := range h.order {
		if h.sessions[id].Overflowed() {
			out = append(out, id)
		}
	}
	return out
}
