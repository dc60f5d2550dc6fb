package replication

import (
	"sort"

	"ghostround.io/internal/protocol"
)

type ChangeKind string

const (
	ChangeRoundNumber         ChangeKind = "round_number"
	ChangeRoundState          ChangeKind = "round_state"
	ChangeCollected           ChangeKind = "collected"
	ChangeThreshold           ChangeKind = "threshold"
	ChangeTimeRemaining       ChangeKind = "time_remaining"
	ChangeHost                ChangeKind = "host"
	ChangePlayerAdded         ChangeKind = "player_added"
	ChangePlayerRemoved       ChangeKind = "player_removed"
	ChangePlayerHealth        ChangeKind = "player_health"
	ChangePlayerIncapacitated ChangeKind = "player_incapacitated"
	ChangeAgentAdded          ChangeKind = "agent_added"
	ChangeAgentRemoved        ChangeKind = "agent_removed"
	ChangeAgentState          ChangeKind = "agent_state"
	ChangePrompt              ChangeKind = "prompt"
)

type Change struct {
	Kind ChangeKind
	ID   string
	Old  any
	New  any
}

// RoundView is the replica's last applied round snapshot. Fields are applied
// independently, so a view can briefly mix values from adjacent writes.
type RoundView struct {
	Number        int
	State         string
	Collected     int
	Threshold     int
	TimeRemaining float64
}

// Replica is the client-side read-only projection of the world. It is not
// safe for concurrent use; feed it from one goroutine.
type Replica struct {
	round    RoundView
	versions struct {
		number, state, collected, threshold, time uint64
	}

	tick    uint64
	hostID  string
	players map[string]protocol.PlayerState
	agents  map[string]protocol.AgentState
	revives []protocol.ReviveState
	console *protocol.StationState
	lab     *protocol.StationState

	lastSeq uint64
	gaps    int
	prompt  string

	onChange []func(Change)
	onEvent  []func(protocol.Event)
}

func NewReplica() *Replica {
	return &Replica{
		players: map[string]protocol.PlayerState{},
		agents:  map[string]protocol.AgentState{},
	}
}

func (r *Replica) OnChange(fn func(Change))        { r.onChange = append(r.onChange, fn) }
func (r *Replica) OnEvent(fn func(protocol.Event)) { r.onEvent = append(r.onEvent, fn) }

func (r *Replica) emit(c Change) {
	for _, fn := range r.onChange {
		fn(c)
	}
}

func (r *Replica) Round() RoundView { return r.round }
func (r *Replica) Tick() uint64     { return r.tick }
func (r *Replica) HostID() string   { return r.hostID }
func (r *Replica) Prompt() string   { return r.prompt }
func (r *Replica) Gaps() int        { return r.gaps }
func (r *Replica) LastSeq() uint64  { return r.lastSeq }

func (r *Replica) Console() *protocol.StationState { return r.console }
func (r *Replica) Lab() *protocol.StationState     { return r.lab }
func (r *Replica) Revives() []protocol.ReviveState { return r.revives }

func (r *Replica) Player(id string) (protocol.PlayerState, bool) {
	p, ok := r.players[id]
	return p, ok
}

func (r *Replica) Agent(id string) (protocol.AgentState, bool) {
	a, ok := r.agents[id]
	return a, ok
}

func (r *Replica) Players() []protocol.PlayerState {
	out := make([]protocol.PlayerState, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Replica) Agents() []protocol.AgentState {
	out := make([]protocol.AgentState, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyState merges a STATE frame. Round fields are applied per version;
// entity lists are replaced wholesale unless the frame is older than the
// last one applied.
func (r *Replica) ApplyState(m protocol.StateMsg) {
	r.applyRound(m.Round)

	if m.Tick < r.tick {
		return
	}
	r.tick = m.Tick

	if m.HostID != r.hostID {
		old := r.hostID
		r.hostID = m.HostID
		r.emit(Change{Kind: ChangeHost, Old: old, New: m.HostID})
	}

	seen := make(map[string]bool, len(m.Players))
	for _, p := range m.Players {
		seen[p.ID] = true
		old, ok := r.players[p.ID]
		r.players[p.ID] = p
		if !ok {
			r.emit(Change{Kind: ChangePlayerAdded, ID: p.ID, New: p})
			continue
		}
		if old.Health != p.Health {
			r.emit(Change{Kind: ChangePlayerHealth, ID: p.ID, Old: old.Health, New: p.Health})
		}
		if old.Incapacitated != p.Incapacitated {
			r.emit(Change{Kind: ChangePlayerIncapacitated, ID: p.ID, Old: old.Incapacitated, New: p.Incapacitated})
		}
	}
	for id, p := range r.players {
		if !seen[id] {
			delete(r.players, id)
			r.emit(Change{Kind: ChangePlayerRemoved, ID: id, Old: p})
		}
	}

	seen = make(map[string]bool, len(m.Agents))
	for _, a := range m.Agents {
		seen[a.ID] = true
		old, ok := r.agents[a.ID]
		r.agents[a.ID] = a
		if !ok {
			r.emit(Change{Kind: ChangeAgentAdded, ID: a.ID, New: a})
			continue
		}
		if old.State != a.State {
			r.emit(Change{Kind: ChangeAgentState, ID: a.ID, Old: old.State, New: a.State})
		}
	}
	for id, a := range r.agents {
		if !seen[id] {
			delete(r.agents, id)
			r.emit(Change{Kind: ChangeAgentRemoved, ID: id, Old: a})
		}
	}

	r.revives = append(r.revives[:0], m.Revives...)
	r.console = m.Console
	r.lab = m.Lab
}

func (r *Replica) applyRound(s protocol.RoundSnapshot) {
	if s.Number.V > r.versions.number {
		r.versions.number = s.Number.V
		if old := r.round.Number; old != s.Number.Value {
			r.round.Number = s.Number.Value
			r.emit(Change{Kind: ChangeRoundNumber, Old: old, New: s.Number.Value})
		}
	}
	if s.State.V > r.versions.state {
		r.versions.state = s.State.V
		if old := r.round.State; old != s.State.Value {
			r.round.State = s.State.Value
			r.emit(Change{Kind: ChangeRoundState, Old: old, New: s.State.Value})
		}
	}
	if s.Collected.V > r.versions.collected {
		r.versions.collected = s.Collected.V
		if old := r.round.Collected; old != s.Collected.Value {
			r.round.Collected = s.Collected.Value
			r.emit(Change{Kind: ChangeCollected, Old: old, New: s.Collected.Value})
		}
	}
	if s.Threshold.V > r.versions.threshold {
		r.versions.threshold = s.Threshold.V
		if old := r.round.Threshold; old != s.Threshold.Value {
			r.round.Threshold = s.Threshold.Value
			r.emit(Change{Kind: ChangeThreshold, Old: old, New: s.Threshold.Value})
		}
	}
	if s.TimeRemaining.V > r.versions.time {
		r.versions.time = s.TimeRemaining.V
		if old := r.round.TimeRemaining; old != s.TimeRemaining.Value {
			r.round.TimeRemaining = s.TimeRemaining.Value
			r.emit(Change{Kind: ChangeTimeRemaining, Old: old, New: s.TimeRemaining.Value})
		}
	}
}

// ApplyEvents delivers new events in sequence order. Duplicates are dropped
// and skipped sequence numbers are counted as gaps.
func (r *Replica) ApplyEvents(m protocol.EventsMsg) {
	for _, e := range m.Events {
		if e.Seq != 0 && e.Seq <= r.lastSeq {
			continue
		}
		if r.lastSeq != 0 && e.Seq > r.lastSeq+1 {
			r.gaps++
		}
		if e.Seq != 0 {
			r.lastSeq = e.Seq
		}
		r.applyPrompt(e)
		for _, fn := range r.onEvent {
			fn(e)
		}
	}
}

func (r *Replica) applyPrompt(e protocol.Event) {
	next := r.prompt
	switch e.Type {
	case protocol.EventShowDefeatPrompt:
		next = "DEFEAT"
	case protocol.EventShowRoundCompletePrompt:
		next = "ROUND_COMPLETE"
	case protocol.EventHideAllPrompts, protocol.EventLeaveLobby:
		next = ""
	case protocol.EventEnterLobby:
		next = "LOBBY"
	default:
		return
	}
	if next != r.prompt {
		old := r.prompt
		r.prompt = next
		r.emit(Change{Kind: ChangePrompt, Old: old, New: next})
	}
}
