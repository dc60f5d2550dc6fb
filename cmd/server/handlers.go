package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"ghostround.io/internal/persistence/indexdb"
	"ghostround.io/internal/sim/world"
	"ghostround.io/internal/transport/ws"
)

type statsResponse struct {
	WorldID string             `json:"world_id"`
	Tick    uint64             `json:"tick"`
	World   world.WorldMetrics `json:"world"`
	WS      ws.Stats           `json:"ws"`
	Index   *indexdb.Stats     `json:"index,omitempty"`
}

func statsHandler(w *world.World, wsSrv *ws.Server, idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := statsResponse{
			WorldID: w.ID(),
			Tick:    w.CurrentTick(),
			World:   w.Metrics(),
			WS:      wsSrv.Stats(),
		}
		if idx != nil {
			st := idx.Stats()
			resp.Index = &st
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func roundsHandler(idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit > 500 {
			limit = 500
		}
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		rows, err := idx.RecentRounds(ctx, limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		if rows == nil {
			rows = []indexdb.RoundRow{}
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"rounds": rows})
	}
}

// metricsHandler writes a minimal Prometheus exposition.
func metricsHandler(w *world.World, wsSrv *ws.Server) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		id := w.ID()
		m := w.Metrics()
		tick := w.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		fmt.Fprintf(rw, "# HELP ghostround_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE ghostround_world_tick gauge\n")
		fmt.Fprintf(rw, "ghostround_world_tick{world=%q} %d\n", id, tick)

		fmt.Fprintf(rw, "# HELP ghostround_round Current round number.\n")
		fmt.Fprintf(rw, "# TYPE ghostround_round gauge\n")
		fmt.Fprintf(rw, "ghostround_round{world=%q,state=%q} %d\n", id, m.RoundState, m.Round)

		fmt.Fprintf(rw, "# HELP ghostround_round_collected Resource collected this round.\n")
		fmt.Fprintf(rw, "# TYPE ghostround_round_collected gauge\n")
		fmt.Fprintf(rw, "ghostround_round_collected{world=%q} %d\n", id, m.Collected)
		fmt.Fprintf(rw, "ghostround_round_threshold{world=%q} %d\n", id, m.Threshold)
		fmt.Fprintf(rw, "ghostround_round_time_remaining_seconds{world=%q} %.3f\n", id, m.TimeRemaining)

		fmt.Fprintf(rw, "# HELP ghostround_world_entities Entity counts by kind.\n")
		fmt.Fprintf(rw, "# TYPE ghostround_world_entities gauge\n")
		fmt.Fprintf(rw, "ghostround_world_entities{world=%q,kind=%q} %d\n", id, "players", m.Players)
		fmt.Fprintf(rw, "ghostround_world_entities{world=%q,kind=%q} %d\n", id, "incapacitated", m.Incapacitated)
		fmt.Fprintf(rw, "ghostround_world_entities{world=%q,kind=%q} %d\n", id, "ghosts", m.Ghosts)
		fmt.Fprintf(rw, "ghostround_world_entities{world=%q,kind=%q} %d\n", id, "projectiles", m.Projectiles)
		fmt.Fprintf(rw, "ghostround_world_entities{world=%q,kind=%q} %d\n", id, "sessions", m.Sessions)

		fmt.Fprintf(rw, "# HELP ghostround_world_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE ghostround_world_queue_depth gauge\n")
		fmt.Fprintf(rw, "ghostround_world_queue_depth{world=%q,queue=%q} %d\n", id, "inbox", m.QueueDepths.Inbox)
		fmt.Fprintf(rw, "ghostround_world_queue_depth{world=%q,queue=%q} %d\n", id, "join", m.QueueDepths.Join)
		fmt.Fprintf(rw, "ghostround_world_queue_depth{world=%q,queue=%q} %d\n", id, "leave", m.QueueDepths.Leave)

		fmt.Fprintf(rw, "# HELP ghostround_world_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE ghostround_world_step_ms gauge\n")
		fmt.Fprintf(rw, "ghostround_world_step_ms{world=%q} %.3f\n", id, m.StepMS)

		fmt.Fprintf(rw, "# HELP ghostround_requests_total Requests by outcome.\n")
		fmt.Fprintf(rw, "# TYPE ghostround_requests_total counter\n")
		fmt.Fprintf(rw, "ghostround_requests_total{world=%q,outcome=%q} %d\n", id, "accepted", m.Requests.Accepted)
		reasons := make([]string, 0, len(m.Requests.Ignored))
		for k := range m.Requests.Ignored {
			reasons = append(reasons, k)
		}
		sort.Strings(reasons)
		for _, k := range reasons {
			fmt.Fprintf(rw, "ghostround_requests_total{world=%q,outcome=%q,reason=%q} %d\n", id, "ignored", k, m.Requests.Ignored[k])
		}

		fmt.Fprintf(rw, "# HELP ghostround_rounds_total Finished rounds by outcome.\n")
		fmt.Fprintf(rw, "# TYPE ghostround_rounds_total counter\n")
		fmt.Fprintf(rw, "ghostround_rounds_total{world=%q,outcome=%q} %d\n", id, "victory", m.Requests.Victories)
		fmt.Fprintf(rw, "ghostround_rounds_total{world=%q,outcome=%q} %d\n", id, "defeat", m.Requests.Defeats)

		s := wsSrv.Stats()
		fmt.Fprintf(rw, "# HELP ghostround_ws_connected Connected websocket players.\n")
		fmt.Fprintf(rw, "# TYPE ghostround_ws_connected gauge\n")
		fmt.Fprintf(rw, "ghostround_ws_connected %d\n", s.Connected)
		fmt.Fprintf(rw, "ghostround_ws_dropped_total{reason=%q} %d\n", "bad_request", s.BadRequest)
		fmt.Fprintf(rw, "ghostround_ws_dropped_total{reason=%q} %d\n", "rate_limited", s.RateLimited)
		fmt.Fprintf(rw, "ghostround_ws_handshake_failed_total %d\n", s.HandshakeFailed)
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiRoundLogger struct {
	a world.RoundLogger
	b world.RoundLogger
}

func (m multiRoundLogger) WriteRound(entry world.RoundLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteRound(entry)
	}
	if m.b != nil {
		_ = m.b.WriteRound(entry)
	}
	return nil
}
