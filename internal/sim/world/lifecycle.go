package world

import (
	"math"

	"ghostround.io/internal/protocol"
	"ghostround.io/internal/sim/round"
)

func (w *World) setRoundState(s round.State) {
	from := w.round.State()
	w.round.SetState(s)
	w.emit(protocol.Event{Type: protocol.EventRoundState, From: from.String(), To: s.String(), Round: w.round.Number()})
}

// startRound clears the previous round and begins round Number.
func (w *World) startRound() {
	w.despawnAll("round_start")
	w.consoleActive = false
	w.round.SetCollected(0)
	w.round.Rescale(w.scaling)
	w.roundStartTick = w.nowTick
	w.roundConverted = 0

	// Players still down from the previous round get back up, so the new
	// round starts with an empty defeat set.
	for _, p := range w.sortedPlayers() {
		if p.vit.ReviveImmediate(w.t.Player.ReviveFraction) {
			w.markRevived(p, "")
		}
		delete(w.downed, p.ID)
	}
	w.placePlayers()

	w.setRoundState(round.Playing)
	w.emit(protocol.Event{Type: protocol.EventHideAllPrompts})

	env := agentEnv{w}
	for _, a := range w.pop.SpawnRound(w.round.Number(), env) {
		w.emit(protocol.Event{Type: protocol.EventAgentSpawned, AgentID: a.ID, Tier: a.Tier, Health: a.Health()})
		w.flushTransitions(a)
	}
	w.armCountdown()
	w.stats.Rounds++
	w.requestSnapshot("round_start")
}

// endRound leaves Playing for RoundEnded. It is a no-op in any other state,
// so a second call after the round ended or was lost does nothing.
func (w *World) endRound(victory bool) bool {
	if w.round.State() != round.Playing {
		return false
	}
	w.cancelCountdown()
	w.setRoundState(round.RoundEnded)
	w.despawnAll("round_end")
	w.consoleActive = false
	outcome := OutcomeEnded
	if victory {
		outcome = OutcomeVictory
		w.stats.Victories++
		w.emit(protocol.Event{Type: protocol.EventShowRoundCompletePrompt, Round: w.round.Number()})
	}
	w.logRound(outcome)
	w.requestSnapshot("round_end")
	return true
}

// defeat leaves Playing for Defeat. It is a no-op in any other state.
func (w *World) defeat() bool {
	if w.round.State() != round.Playing {
		return false
	}
	w.cancelCountdown()
	w.setRoundState(round.Defeat)
	w.despawnAll("defeat")
	w.consoleActive = false
	w.stats.Defeats++
	w.emit(protocol.Event{Type: protocol.EventShowDefeatPrompt, Round: w.round.Number()})
	w.logRound(OutcomeDefeat)
	w.requestSnapshot("defeat")
	return true
}

func (w *World) advanceRound() bool {
	if w.round.State() != round.RoundEnded {
		return false
	}
	w.round.SetNumber(w.round.Number() + 1)
	w.round.Rescale(w.scaling)
	w.startRound()
	return true
}

// returnToIdle goes back to the lobby. Defeat is only left through restart.
func (w *World) returnToIdle() bool {
	switch w.round.State() {
	case round.Defeat, round.Idle:
		return false
	case round.Playing:
		w.logRound(OutcomeAbandoned)
	}
	w.cancelCountdown()
	w.despawnAll("idle")
	w.consoleActive = false
	w.round.SetNumber(1)
	w.round.Rescale(w.scaling)
	w.round.SetCollected(0)
	w.setRoundState(round.Idle)
	w.emit(protocol.Event{Type: protocol.EventHideAllPrompts})
	w.emit(protocol.Event{Type: protocol.EventEnterLobby})
	w.requestSnapshot("idle")
	return true
}

// restart is valid in any state: back to round 1 with everyone at full health.
func (w *World) restart() {
	if w.round.State() == round.Playing {
		w.logRound(OutcomeAbandoned)
	}
	w.cancelCountdown()
	w.round.SetNumber(1)
	w.round.Rescale(w.scaling)
	for _, p := range w.sortedPlayers() {
		p.vit.FullHeal()
		w.markRevived(p, "")
	}
	w.startRound()
}

// startFromLobby begins round 1 from Idle.
func (w *World) startFromLobby() bool {
	if w.round.State() != round.Idle {
		return false
	}
	w.round.Rescale(w.scaling)
	w.emit(protocol.Event{Type: protocol.EventLeaveLobby})
	w.startRound()
	return true
}

// addResource credits amount (clamped to >= 0) while Playing or RoundEnded
// and activates the console once the threshold is reached.
func (w *World) addResource(amount int) bool {
	st := w.round.State()
	if st != round.Playing && st != round.RoundEnded {
		return false
	}
	if amount < 0 {
		amount = 0
	}
	c := w.round.Collected()
	if amount > math.MaxInt32-c {
		amount = math.MaxInt32 - c
	}
	w.round.SetCollected(c + amount)
	if w.round.Collected() >= w.round.Threshold() {
		w.activateConsole()
	}
	return true
}

func (w *World) activateConsole() {
	if w.consoleActive {
		return
	}
	if w.t.Stations.Console == nil {
		w.logger.Printf("console activation skipped: no console station configured")
		return
	}
	w.consoleActive = true
	w.emit(protocol.Event{Type: protocol.EventConsoleActivated, Round: w.round.Number()})
}

func (w *World) armCountdown()    { w.countdownAt = w.nowTick + w.countdownTicks }
func (w *World) cancelCountdown() { w.countdownAt = 0 }

func (w *World) systemCountdown() {
	if w.countdownAt == 0 || w.nowTick < w.countdownAt {
		return
	}
	if w.round.State() != round.Playing {
		w.cancelCountdown()
		return
	}
	w.countdownAt += w.countdownTicks
	w.countdown(float64(w.t.CountdownIntervalMs) / 1000)
}

// countdown is one countdown step of dt seconds.
func (w *World) countdown(dt float64) {
	if w.round.State() != round.Playing {
		return
	}
	w.round.SetTimeRemaining(w.round.TimeRemaining() - dt)
	if w.allDown() {
		w.defeat()
		return
	}
	if w.round.TimeRemaining() <= 0 {
		w.endRound(true)
	}
}

func (w *World) logRound(outcome string) {
	if w.roundLogger == nil {
		return
	}
	err := w.roundLogger.WriteRound(RoundLogEntry{
		WorldID:   w.cfg.ID,
		Number:    w.round.Number(),
		Outcome:   outcome,
		Collected: w.round.Collected(),
		Threshold: w.round.Threshold(),
		StartTick: w.roundStartTick,
		EndTick:   w.nowTick,
		Players:   len(w.players),
		Converted: w.roundConverted,
	})
	if err != nil {
		w.logger.Printf("round log: %v", err)
	}
}
