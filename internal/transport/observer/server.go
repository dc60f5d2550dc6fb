package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ghostround.io/internal/observerproto"
	"ghostround.io/internal/protocol"
	"ghostround.io/internal/replication"
	"ghostround.io/internal/sim/tuning"
	"ghostround.io/internal/sim/world"
)

// Server streams the same STATE/EVENTS frames players get to loopback
// spectators. Spectators never send requests.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		t := s.world.Tuning()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			GameProtocol:    protocol.Version,
			WorldID:         s.world.ID(),
			Tick:            s.world.CurrentTick(),
			WorldParams:     s.world.WorldParams(),
			ArenaHalfExtent: t.ArenaHalfExtent,
		}
		if st := t.Stations.Console; st != nil {
			resp.Stations = append(resp.Stations, station("console", st))
		}
		if st := t.Stations.Lab; st != nil {
			resp.Stations = append(resp.Stations, station("lab", st))
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func station(kind string, st *tuning.Station) observerproto.Station {
	return observerproto.Station{
		Kind:        kind,
		Center:      [3]float64{st.Center.X, st.Center.Y, st.Center.Z},
		HalfExtents: [3]float64{st.HalfExtents.X, st.HalfExtents.Y, st.HalfExtents.Z},
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}
		normalizeSubscribe(&sub)

		codec := protocol.CodecByName(sub.Codec)
		sess := replication.NewSession("O-"+uuid.NewString(), "", codec, sub.EventQueue)
		select {
		case s.world.SpectatorJoin() <- sess:
		default:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}
		defer func() {
			select {
			case s.world.SpectatorLeave() <- sess.ID:
			default:
				// World loop is stopping; nothing else to do.
				sess.Close()
			}
		}()

		b, _ := json.Marshal(observerproto.SubscribedMsg{
			Type:            observerproto.TypeSubscribed,
			ProtocolVersion: observerproto.Version,
			SessionID:       sess.ID,
			Codec:           codec.Name(),
		})
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
		if s.log != nil {
			s.log.Printf("spectator %s subscribed (codec=%s)", sess.ID, codec.Name())
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		mt := websocket.TextMessage
		if codec.Binary() {
			mt = websocket.BinaryMessage
		}

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			write := func(b []byte) error {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				return conn.WriteMessage(mt, b)
			}
			for {
				select {
				case b := <-sess.Events():
					if err := write(b); err != nil {
						writeErr <- err
						return
					}
					continue
				default:
				}
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case <-sess.Done():
					writeErr <- nil
					cancel()
					return
				case b := <-sess.Events():
					if err := write(b); err != nil {
						writeErr <- err
						return
					}
				case b := <-sess.State():
					if err := write(b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: only keeps the connection alive and notices the close.
		go func() {
			for {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				if _, _, err := conn.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		<-ctx.Done()
		reason := "bye"
		if sess.Overflowed() {
			reason = "event queue overflow"
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.EventQueue <= 0 {
		sub.EventQueue = 512
	}
	if sub.EventQueue > 8192 {
		sub.EventQueue = 8192
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
