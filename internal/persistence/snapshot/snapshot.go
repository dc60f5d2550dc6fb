package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	Reason  string `json:"reason,omitempty"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed     int64 `json:"seed"`
	TickRate int   `json:"tick_rate_hz"`

	Round   RoundV1 `json:"round"`
	HostID  string  `json:"host_id"`
	Console bool    `json:"console_active"`

	// Id counters, so ids stay unique across a resume.
	NextPlayerNum     uint64 `json:"next_player_num"`
	NextGhostNum      uint64 `json:"next_ghost_num"`
	NextProjectileNum uint64 `json:"next_projectile_num"`
	EventSeq          uint64 `json:"event_seq"`

	Players     []PlayerV1     `json:"players"`
	Ghosts      []GhostV1      `json:"ghosts"`
	Projectiles []ProjectileV1 `json:"projectiles,omitempty"`
	Revives     []ReviveV1     `json:"revives,omitempty"`

	Stats StatsV1 `json:"stats"`
}

type RoundV1 struct {
	Number        int     `json:"number"`
	State         string  `json:"state"`
	Collected     int     `json:"collected"`
	Threshold     int     `json:"threshold"`
	TimeRemaining float64 `json:"time_remaining"`
	StartTick     uint64  `json:"start_tick"`
	// CountdownAt is the tick of the next countdown step; zero when disarmed.
	CountdownAt uint64 `json:"countdown_at,omitempty"`
}

type PlayerV1 struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Pos       [3]float64 `json:"pos"`
	Yaw       float64    `json:"yaw"`
	Health    float64    `json:"health"`
	MaxHealth float64    `json:"max_health"`
	Carrying  string     `json:"carrying,omitempty"`
}

type GhostV1 struct {
	ID        string       `json:"id"`
	PrefabID  string       `json:"prefab_id"`
	Tier      int          `json:"tier"`
	Health    float64      `json:"health"`
	State     string       `json:"state"`
	Body      int          `json:"body"`
	Pos       [3]float64   `json:"pos"`
	Yaw       float64      `json:"yaw"`
	Home      [3]float64   `json:"home"`
	Route     [][3]float64 `json:"route,omitempty"`
	Waypoint  int          `json:"waypoint"`
	OnNav     bool         `json:"on_nav"`
	TargetID  string       `json:"target_id,omitempty"`
	CarrierID string       `json:"carrier_id,omitempty"`

	Dest         [3]float64 `json:"dest"`
	HasDest      bool       `json:"has_dest"`
	NextWanderAt float64    `json:"next_wander_at"`
	NextNavRetry float64    `json:"next_nav_retry"`
	NextAttackAt float64    `json:"next_attack_at"`
}

type ProjectileV1 struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	Pos       [3]float64 `json:"pos"`
	Vel       [3]float64 `json:"vel"`
	ExpiresAt uint64     `json:"expires_at"`
}

type ReviveV1 struct {
	ReviverID string  `json:"reviver_id"`
	TargetID  string  `json:"target_id"`
	Elapsed   float64 `json:"elapsed"`
}

type StatsV1 struct {
	Accepted  uint64            `json:"accepted"`
	Ignored   map[string]uint64 `json:"ignored,omitempty"`
	Rounds    uint64            `json:"rounds"`
	Victories uint64            `json:"victories"`
	Defeats   uint64            `json:"defeats"`
	Converts  uint64            `json:"converts"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is only for tools that want to peek; gob carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
