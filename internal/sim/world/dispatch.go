package world

import (
	"math"

	"ghostround.io/internal/protocol"
	"ghostround.io/internal/sim/geom"
	"ghostround.io/internal/sim/ghost"
	"ghostround.io/internal/sim/round"
)

// dispatch validates one request from a connected player and applies it.
// Every refusal is silent towards clients and counted by reason.
func (w *World) dispatch(p *player, req protocol.ReqMsg) {
	if reason := w.apply(p, req); reason != "" {
		w.ignore(p.ID, req.Kind, reason)
		return
	}
	w.stats.Accepted++
}

func (w *World) apply(p *player, req protocol.ReqMsg) string {
	if !req.Kind.Valid() {
		return protocol.ErrUnknownKind
	}
	if req.Kind.HostOnly() && !w.isHost(p) {
		return protocol.ErrNoPermission
	}
	switch req.Kind {
	case protocol.KindDealDamage:
		return w.reqDealDamage(p, req)
	case protocol.KindRequestPickup:
		return w.reqPickup(p, req)
	case protocol.KindRequestDrop:
		return w.reqDrop(p, req)
	case protocol.KindRequestConvert:
		return w.reqConvert(p, req)
	case protocol.KindRequestRevive:
		return w.reqRevive(p, req)
	case protocol.KindReleaseRevive:
		h := w.revives[p.ID]
		if h == nil {
			return protocol.ErrStale
		}
		w.cancelRevive(h, "released")
	case protocol.KindRequestEndRound:
		if !w.endRound(true) {
			return protocol.ErrWrongState
		}
	case protocol.KindRequestAdvanceRound:
		if !w.advanceRound() {
			return protocol.ErrWrongState
		}
	case protocol.KindRequestReturnToIdle:
		if !w.returnToIdle() {
			return protocol.ErrWrongState
		}
	case protocol.KindRequestRestart:
		w.restart()
	case protocol.KindRequestStartRound:
		if !w.startFromLobby() {
			return protocol.ErrWrongState
		}
	case protocol.KindAddResource:
		amount := sanitize(req.Amount)
		if amount > math.MaxInt32 {
			amount = math.MaxInt32
		}
		if !w.addResource(int(amount)) {
			return protocol.ErrWrongState
		}
	case protocol.KindNotifyIncapacitated:
		return w.reqNotifyIncapacitated(p, req)
	case protocol.KindNotifyRevived:
		return w.reqNotifyRevived(p, req)
	case protocol.KindMove:
		return w.reqMove(p, req)
	case protocol.KindThrow:
		return w.reqThrow(p, req)
	default:
		return protocol.ErrUnknownKind
	}
	return ""
}

// sanitize maps NaN and negatives to zero.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func (w *World) requireActive(p *player) string {
	if w.round.State() != round.Playing {
		return protocol.ErrWrongState
	}
	if p.vit.Incapacitated() {
		return protocol.ErrIncapacitated
	}
	return ""
}

func (w *World) reqDealDamage(p *player, req protocol.ReqMsg) string {
	if reason := w.requireActive(p); reason != "" {
		return reason
	}
	a := w.pop.Get(req.TargetID)
	if a == nil {
		return protocol.ErrInvalidTarget
	}
	amount := math.Min(sanitize(req.Amount), w.t.Requests.MaxDamage)
	if amount <= 0 {
		return protocol.ErrBadRequest
	}
	if !w.damageAgent(a, amount, p.ID) {
		return protocol.ErrStale
	}
	return ""
}

func (w *World) reqPickup(p *player, req protocol.ReqMsg) string {
	if req.RequesterID != p.ID {
		return protocol.ErrNoPermission
	}
	if reason := w.requireActive(p); reason != "" {
		return reason
	}
	if p.carrying != "" {
		return protocol.ErrConflict
	}
	a := w.pop.Get(req.AgentID)
	if a == nil {
		return protocol.ErrInvalidTarget
	}
	if a.State() != ghost.Incapacitated {
		return protocol.ErrStale
	}
	if geom.Dist(p.Pos, a.Pos()) > w.t.Ghost.PickupRange+w.t.Requests.PickupLeeway {
		return protocol.ErrOutOfRange
	}
	if !w.pickup(p, a) {
		return protocol.ErrStale
	}
	return ""
}

func (w *World) reqDrop(p *player, req protocol.ReqMsg) string {
	if p.carrying == "" || (req.AgentID != "" && req.AgentID != p.carrying) {
		return protocol.ErrInvalidTarget
	}
	w.dropCarried(p)
	return ""
}

// reqConvert honors a convert only for a captured agent while the requester
// stands inside the lab, tested here against the server's own poses.
func (w *World) reqConvert(p *player, req protocol.ReqMsg) string {
	if reason := w.requireActive(p); reason != "" {
		return reason
	}
	lab, ok := w.labBox()
	if !ok {
		return protocol.ErrNotConfigured
	}
	a := w.pop.Get(req.AgentID)
	if a == nil {
		return protocol.ErrInvalidTarget
	}
	if a.State() != ghost.Captured {
		return protocol.ErrStale
	}
	if !lab.Contains(p.Pos) {
		return protocol.ErrOutOfRange
	}
	if !w.convert(a, p.ID) {
		return protocol.ErrStale
	}
	return ""
}

func (w *World) reqRevive(p *player, req protocol.ReqMsg) string {
	return w.beginRevive(p, req.TargetID)
}

func (w *World) reqNotifyIncapacitated(p *player, req protocol.ReqMsg) string {
	if req.PlayerID != p.ID {
		return protocol.ErrNoPermission
	}
	if !p.vit.Incapacitated() {
		return protocol.ErrStale
	}
	if w.downed[p.ID] {
		// Already consistent.
		return ""
	}
	if w.round.State() != round.Playing {
		return protocol.ErrWrongState
	}
	w.markIncapacitated(p)
	return ""
}

func (w *World) reqNotifyRevived(p *player, req protocol.ReqMsg) string {
	if req.PlayerID != p.ID {
		return protocol.ErrNoPermission
	}
	if p.vit.Incapacitated() {
		return protocol.ErrStale
	}
	w.markRevived(p, "")
	return ""
}

// reqMove accepts the client's own pose, clamped to what the player could
// have covered since its last accepted move.
func (w *World) reqMove(p *player, req protocol.ReqMsg) string {
	if req.Pos == nil || !req.Pos.Finite() || math.IsNaN(req.Yaw) || math.IsInf(req.Yaw, 0) {
		return protocol.ErrBadRequest
	}
	if p.vit.Incapacitated() {
		return protocol.ErrIncapacitated
	}
	ticks := w.nowTick - p.lastMoveTick
	if ticks == 0 {
		ticks = 1
	}
	maxStep := w.t.Player.MaxMoveSpeed*float64(ticks)*w.dt + w.t.Player.MoveSlack
	delta := req.Pos.Sub(p.Pos).ClampLen(maxStep)
	p.Pos = p.Pos.Add(delta)
	p.Yaw = req.Yaw
	p.lastMoveTick = w.nowTick
	return ""
}

func (w *World) reqThrow(p *player, req protocol.ReqMsg) string {
	if reason := w.requireActive(p); reason != "" {
		return reason
	}
	if req.Dir == nil || !req.Dir.Finite() || req.Dir.Len() < 1e-6 {
		return protocol.ErrBadRequest
	}
	w.throw(p, *req.Dir)
	return ""
}

func (w *World) ignore(playerID string, kind protocol.RequestKind, reason string) {
	w.stats.Ignored[reason]++
	if w.t.LogRejections {
		w.logger.Printf("ignored %s from %s: %s", kind, playerID, reason)
	}
}
