package world

import (
	"sort"

	"ghostround.io/internal/protocol"
	"ghostround.io/internal/sim/geom"
	"ghostround.io/internal/sim/round"
)

// reviveHold is one player holding the revive interaction on another.
type reviveHold struct {
	ReviverID string
	TargetID  string
	Elapsed   float64
}

func (w *World) reviveReach() float64 { return w.t.Revive.Range + w.t.Revive.Leeway }

// reviveInvalid returns the reason a hold cannot continue, or "" when it can.
func (w *World) reviveInvalid(reviverID, targetID string) string {
	if w.round.State() != round.Playing {
		return protocol.ErrWrongState
	}
	r := w.players[reviverID]
	if r == nil {
		return protocol.ErrNotConnected
	}
	if r.vit.Incapacitated() {
		return protocol.ErrIncapacitated
	}
	t := w.players[targetID]
	if t == nil || t.ID == r.ID || !t.vit.Incapacitated() {
		return protocol.ErrInvalidTarget
	}
	if geom.Dist(r.Pos, t.Pos) > w.reviveReach() {
		return protocol.ErrOutOfRange
	}
	return ""
}

func (w *World) beginRevive(r *player, targetID string) string {
	if reason := w.reviveInvalid(r.ID, targetID); reason != "" {
		return reason
	}
	if h := w.revives[r.ID]; h != nil {
		if h.TargetID == targetID {
			// Repeated request for the hold in progress.
			return protocol.ErrConflict
		}
		w.cancelRevive(h, "retarget")
	}
	h := &reviveHold{ReviverID: r.ID, TargetID: targetID}
	w.revives[r.ID] = h
	w.emit(protocol.Event{Type: protocol.EventReviveStarted, PlayerID: targetID, From: r.ID})
	if w.t.Revive.HoldSeconds <= 0 {
		w.completeRevive(h)
	}
	return ""
}

func (w *World) cancelRevive(h *reviveHold, reason string) {
	if w.revives[h.ReviverID] != h {
		return
	}
	delete(w.revives, h.ReviverID)
	w.emit(protocol.Event{Type: protocol.EventReviveCancelled, PlayerID: h.TargetID, From: h.ReviverID, Reason: reason})
}

func (w *World) cancelRevivesInvolving(id, reason string) {
	for _, h := range w.sortedRevives() {
		if h.ReviverID == id || h.TargetID == id {
			w.cancelRevive(h, reason)
		}
	}
}

func (w *World) cancelAllRevives(reason string) {
	for _, h := range w.sortedRevives() {
		w.cancelRevive(h, reason)
	}
}

// completeRevive re-validates proximity at the moment the hold finishes.
func (w *World) completeRevive(h *reviveHold) {
	if reason := w.reviveInvalid(h.ReviverID, h.TargetID); reason != "" {
		w.cancelRevive(h, reason)
		return
	}
	delete(w.revives, h.ReviverID)
	t := w.players[h.TargetID]
	if !t.vit.ReviveImmediate(w.t.Player.ReviveFraction) {
		return
	}
	w.markRevived(t, h.ReviverID)
	// Anyone else holding on the same target has nothing left to do.
	for _, o := range w.sortedRevives() {
		if o.TargetID == t.ID {
			w.cancelRevive(o, "revived")
		}
	}
}

func (w *World) systemRevives() {
	for _, h := range w.sortedRevives() {
		if w.revives[h.ReviverID] != h {
			continue
		}
		if reason := w.reviveInvalid(h.ReviverID, h.TargetID); reason != "" {
			w.cancelRevive(h, reason)
			continue
		}
		h.Elapsed += w.dt
		if h.Elapsed+1e-9 >= w.t.Revive.HoldSeconds {
			w.completeRevive(h)
		}
	}
}

func (w *World) sortedRevives() []*reviveHold {
	out := make([]*reviveHold, 0, len(w.revives))
	for _, h := range w.revives {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return naturalLess(out[i].ReviverID, out[j].ReviverID) })
	return out
}

func (w *World) reviveStates() []protocol.ReviveState {
	hs := w.sortedRevives()
	if len(hs) == 0 {
		return nil
	}
	out := make([]protocol.ReviveState, 0, len(hs))
	for _, h := range hs {
		progress := 1.0
		if w.t.Revive.HoldSeconds > 0 {
			progress = h.Elapsed / w.t.Revive.HoldSeconds
			if progress > 1 {
				progress = 1
			}
		}
		out = append(out, protocol.ReviveState{ReviverID: h.ReviverID, TargetID: h.TargetID, Progress: progress})
	}
	return out
}
