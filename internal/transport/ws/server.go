package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"ghostround.io/internal/protocol"
	"ghostround.io/internal/replication"
	"ghostround.io/internal/sim/world"
)

// Stats counts what the transport drops before a request reaches the world.
type Stats struct {
	Connected       int64  `json:"connected"`
	BadRequest      uint64 `json:"bad_request"`
	RateLimited     uint64 `json:"rate_limited"`
	HandshakeFailed uint64 `json:"handshake_failed"`
}

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader

	reqRate  rate.Limit
	reqBurst int

	// waitTimeout bounds every hand-off to the world loop.
	waitTimeout time.Duration
	// onSession, when set, sees each session once its WELCOME is written.
	onSession func(*replication.Session)

	connected       atomic.Int64
	badRequest      atomic.Uint64
	rateLimited     atomic.Uint64
	handshakeFailed atomic.Uint64
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	t := w.Tuning()
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		reqRate:     rate.Inf,
		reqBurst:    t.Requests.Burst,
		waitTimeout: 5 * time.Second,
	}
	if t.Requests.RatePerSecond > 0 {
		s.reqRate = rate.Limit(t.Requests.RatePerSecond)
	}
	return s
}

func (s *Server) Stats() Stats {
	return Stats{
		Connected:       s.connected.Load(),
		BadRequest:      s.badRequest.Load(),
		RateLimited:     s.rateLimited.Load(),
		HandshakeFailed: s.handshakeFailed.Load(),
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		playerID, sess := s.handshake(conn)
		if playerID == "" {
			s.handshakeFailed.Add(1)
			return
		}
		s.connected.Add(1)
		defer s.connected.Add(-1)
		if s.onSession != nil {
			s.onSession(sess)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			s.writeLoop(ctx, cancel, conn, sess)
		}()

		// Reader loop.
		lim := rate.NewLimiter(s.reqRate, s.reqBurst)
		codec := sess.Codec()
		for ctx.Err() == nil {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			req, ok := decodeRequest(codec, msg)
			if !ok {
				s.badRequest.Add(1)
				continue
			}
			if !lim.Allow() {
				s.rateLimited.Add(1)
				continue
			}
			select {
			case s.world.Inbox() <- world.RequestEnvelope{PlayerID: playerID, Req: req}:
			case <-sess.Done():
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		cancel()

		// Cleanup. The world closes the session once the leave is applied.
		if !s.sendLeave(playerID) && s.log != nil {
			s.log.Printf("player %s: leave not accepted within %s", playerID, s.waitTimeout)
		}
		select {
		case <-writerDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// decodeRequest decodes and validates one inbound REQ. JSON payloads are
// schema-checked before decoding so unknown fields are rejected as sent.
func decodeRequest(c protocol.Codec, msg []byte) (protocol.ReqMsg, bool) {
	var req protocol.ReqMsg
	base, err := protocol.DecodeBaseWith(c, msg)
	if err != nil || base.Type != protocol.TypeReq || base.ProtocolVersion != protocol.Version {
		return req, false
	}
	if !c.Binary() {
		if err := protocol.ValidateRawRequest(msg); err != nil {
			return req, false
		}
		if err := json.Unmarshal(msg, &req); err != nil {
			return req, false
		}
		return req, true
	}
	if err := c.Unmarshal(msg, &req); err != nil {
		return req, false
	}
	if err := protocol.ValidateRequest(req); err != nil {
		return req, false
	}
	return req, true
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *replication.Session) {
	mt := websocket.TextMessage
	if sess.Codec().Binary() {
		mt = websocket.BinaryMessage
	}
	// stop unblocks the reader, which may sit in ReadMessage for a full read
	// deadline otherwise.
	stop := func() {
		cancel()
		_ = conn.SetReadDeadline(time.Now())
	}
	write := func(b []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(mt, b); err != nil {
			stop()
			return false
		}
		return true
	}
	for {
		// Events first: a state frame must never overtake the events of its tick.
		select {
		case b := <-sess.Events():
			if !write(b) {
				return
			}
			continue
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			reason := "bye"
			if sess.Overflowed() {
				reason = "event queue overflow"
			}
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason), time.Now().Add(time.Second))
			stop()
			return
		case b := <-sess.Events():
			if !write(b) {
				return
			}
		case b := <-sess.State():
			if !write(b) {
				return
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (playerID string, sess *replication.Session) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	name := strings.TrimSpace(hello.PlayerName)
	if len(name) > 32 {
		name = name[:32]
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 256
	}
	if maxQ < 16 {
		maxQ = 16
	}
	if maxQ > 4096 {
		maxQ = 4096
	}
	sess = replication.NewSession(uuid.NewString(), "", protocol.CodecByName(hello.Codec), maxQ)

	respCh := make(chan world.JoinResponse, 1)
	select {
	case s.world.Join() <- world.JoinRequest{Name: name, Session: sess, Resp: respCh}:
	case <-time.After(s.waitTimeout):
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
		return "", nil
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-time.After(s.waitTimeout):
		// The join may still land; undo it once it does.
		go s.undoJoin(respCh)
		return "", nil
	}

	// WELCOME is always JSON; later frames use the negotiated codec.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.sendLeave(resp.PlayerID)
		return "", nil
	}
	if s.log != nil {
		s.log.Printf("player %s joined (session=%s codec=%s)", resp.PlayerID, sess.ID, sess.Codec().Name())
	}
	return resp.PlayerID, sess
}

// sendLeave hands playerID to the world loop, giving up after waitTimeout so a
// stopped world cannot pin the calling goroutine.
func (s *Server) sendLeave(playerID string) bool {
	select {
	case s.world.Leave() <- playerID:
		return true
	case <-time.After(s.waitTimeout):
		return false
	}
}

// undoJoin waits for a late join response and leaves the player it created.
func (s *Server) undoJoin(respCh <-chan world.JoinResponse) bool {
	select {
	case resp := <-respCh:
		return s.sendLeave(resp.PlayerID)
	case <-time.After(s.waitTimeout):
		return false
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
