package indexdb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"

	"ghostround.io/internal/persistence/snapshot"
	"ghostround.io/internal/sim/tuning"
	"ghostround.io/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index of the tick, round and snapshot
// logs. Writes are queued and applied by one goroutine; the sim never waits.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropRound    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqRound
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	round    roundRow
	snapshot snapshotRow
}

type roundRow struct {
	world.RoundLogEntry
	RecordedAt string
}

type snapshotRow struct {
	Tick    uint64
	Path    string
	Reason  string
	Seed    int64
	Round   int
	State   string
	Players int
	Ghosts  int
}

// Stats reports queue pressure; drops mean the index lags the JSONL logs.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropRoundTotal    uint64 `json:"drop_round_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

// RoundRow is one finished round as stored in the index.
type RoundRow struct {
	WorldID    string `json:"world_id"`
	Number     int    `json:"number"`
	Outcome    string `json:"outcome"`
	Collected  int    `json:"collected"`
	Threshold  int    `json:"threshold"`
	StartTick  uint64 `json:"start_tick"`
	EndTick    uint64 `json:"end_tick"`
	Players    int    `json:"players"`
	Converted  int    `json:"converted"`
	RecordedAt string `json:"recorded_at"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tuning (
			digest TEXT PRIMARY KEY,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			requests INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS joins (
			tick INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (tick, player_id)
		);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			tick INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			PRIMARY KEY (tick, player_id)
		);`,
		`CREATE TABLE IF NOT EXISTS requests (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			req_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_requests_player_tick ON requests(player_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_requests_kind_tick ON requests(kind, tick);`,
		`CREATE TABLE IF NOT EXISTS rounds (
			world_id TEXT NOT NULL,
			start_tick INTEGER NOT NULL,
			number INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			collected INTEGER NOT NULL,
			threshold INTEGER NOT NULL,
			end_tick INTEGER NOT NULL,
			players INTEGER NOT NULL,
			converted INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (world_id, start_tick)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_outcome ON rounds(outcome, end_tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			reason TEXT NOT NULL,
			seed INTEGER NOT NULL,
			round INTEGER NOT NULL,
			state TEXT NOT NULL,
			players INTEGER NOT NULL,
			ghosts INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropRoundTotal:    s.dropRound.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteRound(entry world.RoundLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	r := roundRow{RoundLogEntry: entry, RecordedAt: time.Now().UTC().Format(time.RFC3339Nano)}
	select {
	case s.ch <- req{kind: reqRound, round: r}:
	default:
		s.dropRound.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:    snap.Header.Tick,
		Path:    path,
		Reason:  snap.Header.Reason,
		Seed:    snap.Seed,
		Round:   snap.Round.Number,
		State:   snap.Round.State,
		Players: len(snap.Players),
		Ghosts:  len(snap.Ghosts),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertTuning stores the tuning values actually applied, keyed by digest.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) (string, error) {
	if s == nil {
		return "", nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(b)
	digest := hex.EncodeToString(sum[:])
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return "", err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('tuning_digest',?)`, digest); err != nil {
		return "", err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO tuning(digest,json,updated_at) VALUES(?,?,?)`, digest, string(b), now); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return digest, nil
}

// RecentRounds returns up to limit rounds, newest first.
func (s *SQLiteIndex) RecentRounds(ctx context.Context, limit int) ([]RoundRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT world_id,number,outcome,collected,threshold,start_tick,end_tick,players,converted,recorded_at
		FROM rounds ORDER BY end_tick DESC, start_tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []RoundRow
	for rows.Next() {
		var r RoundRow
		var start, end int64
		if err := rows.Scan(&r.WorldID, &r.Number, &r.Outcome, &r.Collected, &r.Threshold, &start, &end, &r.Players, &r.Converted, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		r.StartTick = uint64(start)
		r.EndTick = uint64(end)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,joins,leaves,requests,raw_json) VALUES(?,?,?,?,?,?)`)
	insertJoin, _ := s.db.Prepare(`INSERT OR REPLACE INTO joins(tick,player_id,name) VALUES(?,?,?)`)
	insertLeave, _ := s.db.Prepare(`INSERT OR REPLACE INTO leaves(tick,player_id) VALUES(?,?)`)
	insertRequest, _ := s.db.Prepare(`INSERT OR REPLACE INTO requests(tick,seq,player_id,kind,req_json) VALUES(?,?,?,?,?)`)
	insertRound, _ := s.db.Prepare(`INSERT OR REPLACE INTO rounds(world_id,start_tick,number,outcome,collected,threshold,end_tick,players,converted,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,reason,seed,round,state,players,ghosts) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertJoin, insertLeave, insertRequest, insertRound, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			b, _ := json.Marshal(t)
			if !exec(insertTick, int64(t.Tick), t.Digest, len(t.Joins), len(t.Leaves), len(t.Requests), string(b)) {
				continue
			}
			for _, j := range t.Joins {
				if !exec(insertJoin, int64(t.Tick), j.PlayerID, j.Name) {
					break
				}
			}
			for _, id := range t.Leaves {
				if !exec(insertLeave, int64(t.Tick), id) {
					break
				}
			}
			for i, rq := range t.Requests {
				reqJSON, _ := json.Marshal(rq.Req)
				if !exec(insertRequest, int64(t.Tick), i, rq.PlayerID, string(rq.Req.Kind), string(reqJSON)) {
					break
				}
			}

		case reqRound:
			ro := r.round
			exec(insertRound, ro.WorldID, int64(ro.StartTick), ro.Number, ro.Outcome, ro.Collected, ro.Threshold,
				int64(ro.EndTick), ro.Players, ro.Converted, ro.RecordedAt)

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Reason, sn.Seed, sn.Round, sn.State, sn.Players, sn.Ghosts)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
