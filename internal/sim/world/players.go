package world

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ghostround.io/internal/protocol"
	"ghostround.io/internal/replication"
	"ghostround.io/internal/sim/geom"
	"ghostround.io/internal/sim/round"
	"ghostround.io/internal/sim/vitality"
)

type player struct {
	ID   string
	Name string

	Pos geom.Vec3
	Yaw float64

	vit *vitality.Vitality

	// carrying is the id of the captured agent this player holds.
	carrying     string
	lastMoveTick uint64

	session *replication.Session
}

func (w *World) joinPlayer(name string, s *replication.Session) JoinResponse {
	w.nextPlayerNum++
	id := fmt.Sprintf("P%d", w.nextPlayerNum)
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	p := &player{
		ID:           id,
		Name:         name,
		vit:          vitality.New(w.t.Player.MaxHealth),
		lastMoveTick: w.nowTick,
		session:      s,
	}
	w.players[id] = p
	w.placeAtSlot(p, w.slotOf(id))

	sessionID := ""
	codec := protocol.CodecJSON
	if s != nil {
		s.PlayerID = id
		sessionID = s.ID
		codec = s.Codec().Name()
		w.fanout.Add(s)
	}
	if w.hostID == "" {
		w.setHost(id)
	}
	w.emit(protocol.Event{Type: protocol.EventPlayerJoined, PlayerID: id})

	return JoinResponse{
		PlayerID: id,
		Welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       sessionID,
			PlayerID:        id,
			HostID:          w.hostID,
			Codec:           codec,
			WorldParams:     w.WorldParams(),
		},
	}
}

// WorldParams is static for the life of the world, so transports may call it
// from any goroutine.
func (w *World) WorldParams() protocol.WorldParams {
	return protocol.WorldParams{
		TickRateHz:          w.t.TickRateHz,
		CountdownIntervalMs: w.t.CountdownIntervalMs,
		ReviveHoldSeconds:   w.t.Revive.HoldSeconds,
		ReviveRange:         w.t.Revive.Range,
		PickupRange:         w.t.Ghost.PickupRange,
		PlayerMaxHealth:     w.t.Player.MaxHealth,
		Seed:                w.cfg.Seed,
	}
}

func (w *World) handleLeave(id string) {
	p := w.players[id]
	if p == nil {
		return
	}
	w.dropCarried(p)
	w.cancelRevivesInvolving(id, "disconnect")
	w.removeProjectileOf(id)
	delete(w.downed, id)
	delete(w.players, id)
	if p.session != nil {
		if s := w.fanout.Remove(p.session.ID); s != nil {
			s.Close()
		}
	}
	w.emit(protocol.Event{Type: protocol.EventPlayerLeft, PlayerID: id})

	if w.hostID == id {
		ids := w.sortedPlayerIDs()
		next := ""
		if len(ids) > 0 {
			next = ids[0]
		}
		w.setHost(next)
	}
	if w.round.State() == round.Playing {
		w.evaluateDefeat()
	}
}

func (w *World) setHost(id string) {
	if id == w.hostID {
		return
	}
	old := w.hostID
	w.hostID = id
	w.emit(protocol.Event{Type: protocol.EventHostChanged, From: old, To: id})
}

func (w *World) isHost(p *player) bool { return p != nil && p.ID == w.hostID }

// sortedPlayerIDs orders ids naturally, so P2 sorts before P10.
func (w *World) sortedPlayerIDs() []string {
	ids := make([]string, 0, len(w.players))
	for id := range w.players {
		ids = append(ids, id)
	}
	sortNatural(ids)
	return ids
}

func (w *World) sortedPlayers() []*player {
	ids := w.sortedPlayerIDs()
	out := make([]*player, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.players[id])
	}
	return out
}

func (w *World) slotOf(id string) int {
	for i, v := range w.sortedPlayerIDs() {
		if v == id {
			return i
		}
	}
	return 0
}

func (w *World) placeAtSlot(p *player, slot int) {
	spawns := w.t.Player.Spawns
	if len(spawns) == 0 {
		return
	}
	p.Pos = spawns[slot%len(spawns)]
	p.Yaw = 0
	p.lastMoveTick = w.nowTick
}

// placePlayers assigns every connected player its spawn slot.
func (w *World) placePlayers() {
	for i, p := range w.sortedPlayers() {
		w.placeAtSlot(p, i)
	}
}

func sortNatural(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return naturalLess(ids[i], ids[j]) })
}

func naturalLess(a, b string) bool {
	pa, na, oka := splitNum(a)
	pb, nb, okb := splitNum(b)
	if oka && okb && pa == pb {
		if na != nb {
			return na < nb
		}
		return a < b
	}
	return a < b
}

// splitNum splits "P12" into ("P", 12).
func splitNum(s string) (string, int, bool) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return s, 0, false
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return s, 0, false
	}
	return s[:i], n, true
}

// damagePlayer applies agent damage to a player's vitality.
func (w *World) damagePlayer(id string, amount float64) {
	p := w.players[id]
	if p == nil || w.round.State() != round.Playing {
		return
	}
	before := p.vit.Health()
	down := p.vit.TakeDamage(amount)
	if p.vit.Health() == before {
		return
	}
	if down {
		w.markIncapacitated(p)
	}
}

// markIncapacitated adds p to the defeat set and re-evaluates defeat.
func (w *World) markIncapacitated(p *player) {
	if w.downed[p.ID] {
		return
	}
	w.downed[p.ID] = true
	w.emit(protocol.Event{Type: protocol.EventPlayerIncapacitated, PlayerID: p.ID})
	w.dropCarried(p)
	if h := w.revives[p.ID]; h != nil {
		w.cancelRevive(h, "incapacitated")
	}
	w.removeProjectileOf(p.ID)
	w.evaluateDefeat()
}

func (w *World) markRevived(p *player, by string) {
	if !w.downed[p.ID] {
		return
	}
	delete(w.downed, p.ID)
	w.emit(protocol.Event{Type: protocol.EventPlayerRevived, PlayerID: p.ID, From: by, Health: p.vit.Health()})
}

// allDown reports whether every connected player is incapacitated. An empty
// roster is never all down.
func (w *World) allDown() bool {
	if len(w.players) == 0 {
		return false
	}
	for id := range w.players {
		if !w.downed[id] {
			return false
		}
	}
	return true
}

func (w *World) evaluateDefeat() {
	if w.allDown() {
		w.defeat()
	}
}
