package world

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"ghostround.io/internal/persistence/snapshot"
	"ghostround.io/internal/protocol"
	"ghostround.io/internal/replication"
	"ghostround.io/internal/sim/nav"
	"ghostround.io/internal/sim/population"
	"ghostround.io/internal/sim/round"
	"ghostround.io/internal/sim/tuning"
)

// World is the round coordinator: a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	t   tuning.Tuning
	nav nav.Navigator
	rng *rand.Rand

	logger *log.Logger

	tick    atomic.Uint64
	metrics atomic.Value

	// Derived from tuning.
	dt             float64
	countdownTicks uint64

	round   *round.Round
	scaling round.Scaling
	pop     *population.Manager

	players map[string]*player
	hostID  string
	// downed is the defeat-aggregation set.
	downed map[string]bool

	consoleActive bool
	consoleIn     []string
	labIn         []string

	revives     map[string]*reviveHold
	projectiles map[string]*projectile

	roundStartTick uint64
	roundConverted int
	// countdownAt is the tick of the next countdown step; zero when disarmed.
	countdownAt uint64

	nowTick  uint64
	events   []protocol.Event
	eventSeq uint64

	fanout    *replication.Fanout
	observers []replication.Observer

	inbox          chan RequestEnvelope
	join           chan JoinRequest
	leave          chan string
	spectatorJoin  chan *replication.Session
	spectatorLeave chan string
	stop           chan struct{}
	stopOnce       sync.Once

	nextPlayerNum     uint64
	nextProjectileNum uint64

	// evictions are player ids applied as leaves at the start of the next step.
	evictions []string

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	roundLogger RoundLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink    chan<- snapshot.SnapshotV1
	snapshotPending string

	stats Stats
}

func New(cfg WorldConfig, t tuning.Tuning, navigator nav.Navigator) (*World, error) {
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if navigator == nil {
		navigator = nav.NewPlane(t.ArenaHalfExtent)
	}
	if cfg.ID == "" {
		cfg.ID = "arena"
	}
	scaling := round.ScalingFrom(t.Round)
	ct := uint64(t.CountdownIntervalMs*t.TickRateHz+500) / 1000
	if ct == 0 {
		ct = 1
	}
	w := &World{
		cfg:            cfg,
		t:              t,
		nav:            navigator,
		rng:            rand.New(rand.NewSource(cfg.Seed)),
		logger:         log.New(io.Discard, "", 0),
		dt:             1 / float64(t.TickRateHz),
		countdownTicks: ct,
		round:          round.New(scaling),
		scaling:        scaling,
		pop:            population.New(t),
		players:        map[string]*player{},
		downed:         map[string]bool{},
		revives:        map[string]*reviveHold{},
		projectiles:    map[string]*projectile{},
		fanout:         replication.NewFanout(),
		inbox:          make(chan RequestEnvelope, 1024),
		join:           make(chan JoinRequest, 64),
		leave:          make(chan string, 64),
		spectatorJoin:  make(chan *replication.Session, 16),
		spectatorLeave: make(chan string, 16),
		stop:           make(chan struct{}),
		stats:          Stats{Ignored: map[string]uint64{}},
	}
	return w, nil
}

func (w *World) SetLogger(l *log.Logger) {
	if l == nil {
		l = log.New(io.Discard, "", 0)
	}
	w.logger = l
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetRoundLogger(l RoundLogger)                  { w.roundLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

// AddObserver registers an in-process observer. Call before Run.
func (w *World) AddObserver(o replication.Observer) { w.observers = append(w.observers, o) }

func (w *World) Inbox() chan<- RequestEnvelope              { return w.inbox }
func (w *World) Join() chan<- JoinRequest                   { return w.join }
func (w *World) Leave() chan<- string                       { return w.leave }
func (w *World) SpectatorJoin() chan<- *replication.Session { return w.spectatorJoin }
func (w *World) SpectatorLeave() chan<- string              { return w.spectatorLeave }
func (w *World) ID() string                                 { return w.cfg.ID }
func (w *World) Seed() int64                                { return w.cfg.Seed }
func (w *World) TickRateHz() int                            { return w.t.TickRateHz }
func (w *World) Tuning() tuning.Tuning                      { return w.t }
func (w *World) CurrentTick() uint64                        { return w.tick.Load() }

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.t.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingReqs []RequestEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case s := <-w.spectatorJoin:
			w.fanout.Add(s)
		case id := <-w.spectatorLeave:
			if s := w.fanout.Remove(id); s != nil {
				s.Close()
			}
		case env := <-w.inbox:
			pendingReqs = append(pendingReqs, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingReqs)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingReqs = pendingReqs[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, reqs []RequestEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.step(joins, leaves, reqs)
	return tick, w.stateDigest(tick)
}

func (w *World) step(joins []JoinRequest, leaves []string, reqs []RequestEnvelope) {
	stepStart := time.Now()
	nowTick := w.tick.Load()
	w.nowTick = nowTick
	w.events = w.events[:0]
	// Reseeding per tick keeps a resumed snapshot on the same random stream.
	w.rng.Seed(mixSeed(w.cfg.Seed, nowTick))

	if len(w.evictions) > 0 {
		leaves = append(w.evictions, leaves...)
		w.evictions = nil
	}

	// Apply leaves and joins deterministically at tick boundary.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if _, ok := w.players[id]; ok {
			w.handleLeave(id)
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp := w.joinPlayer(req.Name, req.Session)
		if req.Resp != nil {
			req.Resp <- resp
		}
		recordedJoins = append(recordedJoins, RecordedJoin{PlayerID: resp.PlayerID, Name: req.Name})
	}

	// Apply requests in server receive order (the inbox order).
	recorded := make([]RecordedRequest, 0, len(reqs))
	for _, env := range reqs {
		p := w.players[env.PlayerID]
		if p == nil {
			w.ignore(env.PlayerID, env.Req.Kind, protocol.ErrNotConnected)
			continue
		}
		recorded = append(recorded, RecordedRequest{PlayerID: env.PlayerID, Req: env.Req})
		w.dispatch(p, env.Req)
	}

	// Systems: agents -> carry -> projectiles -> revives -> stations -> countdown.
	w.systemAgents()
	w.systemCarry()
	w.systemProjectiles()
	w.systemRevives()
	w.systemStations()
	w.systemCountdown()

	w.publish(nowTick)

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Joins: recordedJoins, Leaves: recordedLeaves, Requests: recorded, Digest: digest})
	}

	w.maybeSnapshot(nowTick)

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	w.storeMetrics(nextTick, stepMS)
}

func (w *World) publish(nowTick uint64) {
	f := replication.Frame{
		Tick:   nowTick,
		State:  w.buildState(nowTick),
		Events: append([]protocol.Event(nil), w.events...),
	}
	w.fanout.Publish(f)
	for _, o := range w.observers {
		o.Publish(f)
	}
	for _, id := range w.fanout.Overflowed() {
		w.fanout.Remove(id)
		w.logger.Printf("session %s closed: event queue overflow", id)
	}
}

func (w *World) maybeSnapshot(nowTick uint64) {
	reason := w.snapshotPending
	w.snapshotPending = ""
	if reason == "" && nowTick != 0 && w.t.SnapshotEveryTicks > 0 && nowTick%uint64(w.t.SnapshotEveryTicks) == 0 {
		reason = "periodic"
	}
	if reason == "" || w.snapshotSink == nil {
		return
	}
	snap := w.ExportSnapshot(nowTick, reason)
	select {
	case w.snapshotSink <- snap:
	default:
		// Drop snapshot if sink is backed up.
	}
}

func (w *World) requestSnapshot(reason string) {
	if w.snapshotPending == "" {
		w.snapshotPending = reason
	}
}

func (w *World) emit(e protocol.Event) {
	w.eventSeq++
	e.Seq = w.eventSeq
	e.Tick = w.nowTick
	w.events = append(w.events, e)
}

func (w *World) now() float64 { return float64(w.nowTick) * w.dt }

func (w *World) newProjectileID() string {
	w.nextProjectileNum++
	return fmt.Sprintf("B%06d", w.nextProjectileNum)
}

func mixSeed(seed int64, tick uint64) int64 {
	x := uint64(seed) ^ (tick * 0x9E3779B97F4A7C15)
	x ^= x >> 31
	x *= 0xBF58476D1CE4E5B9
	x ^= x >> 29
	return int64(x)
}
