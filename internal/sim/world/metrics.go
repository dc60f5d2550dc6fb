package world

// Stats counts dispatcher outcomes and round results. It is owned by the
// world loop; readers get copies through Metrics.
type Stats struct {
	Accepted  uint64            `json:"accepted"`
	Ignored   map[string]uint64 `json:"ignored"`
	Rounds    uint64            `json:"rounds"`
	Victories uint64            `json:"victories"`
	Defeats   uint64            `json:"defeats"`
	Converts  uint64            `json:"converts"`
}

func (s Stats) clone() Stats {
	out := s
	out.Ignored = make(map[string]uint64, len(s.Ignored))
	for k, v := range s.Ignored {
		out.Ignored[k] = v
	}
	return out
}

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Round         int     `json:"round"`
	RoundState    string  `json:"round_state"`
	Collected     int     `json:"collected"`
	Threshold     int     `json:"threshold"`
	TimeRemaining float64 `json:"time_remaining"`

	Players       int `json:"players"`
	Incapacitated int `json:"incapacitated"`
	Ghosts        int `json:"ghosts"`
	Projectiles   int `json:"projectiles"`
	Sessions      int `json:"sessions"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Requests Stats `json:"requests"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

func (w *World) storeMetrics(nextTick uint64, stepMS float64) {
	w.metrics.Store(WorldMetrics{
		Tick:          nextTick,
		Round:         w.round.Number(),
		RoundState:    w.round.State().String(),
		Collected:     w.round.Collected(),
		Threshold:     w.round.Threshold(),
		TimeRemaining: w.round.TimeRemaining(),
		Players:       len(w.players),
		Incapacitated: len(w.downed),
		Ghosts:        w.pop.Len(),
		Projectiles:   len(w.projectiles),
		Sessions:      w.fanout.Len(),
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS:   stepMS,
		Requests: w.stats.clone(),
	})
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
