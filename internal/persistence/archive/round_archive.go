package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"ghostround.io/internal/persistence/snapshot"
)

type RoundArchiveMeta struct {
	Round     int    `json:"round"`
	Outcome   string `json:"outcome"`
	EndTick   uint64 `json:"end_tick"`
	StartTick uint64 `json:"start_tick"`
	Seed      int64  `json:"seed"`
	Collected int    `json:"collected"`
	Threshold int    `json:"threshold"`
	Players   int    `json:"players"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// Archivable reports whether snap closes a round.
func Archivable(snap snapshot.SnapshotV1) bool {
	switch snap.Header.Reason {
	case "round_end", "defeat":
		return true
	}
	return false
}

// ArchiveRoundSnapshot copies a round-closing snapshot into
// `worldDir/archives/round_<NNN>_t<tick>/`. Other snapshots are left alone.
func ArchiveRoundSnapshot(worldDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	if !Archivable(snap) || snap.Round.Number <= 0 {
		return "", false, nil
	}

	archiveDir := filepath.Join(worldDir, "archives", fmt.Sprintf("round_%03d_t%d", snap.Round.Number, snap.Header.Tick))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := RoundArchiveMeta{
		Round:     snap.Round.Number,
		Outcome:   snap.Round.State,
		EndTick:   snap.Header.Tick,
		StartTick: snap.Round.StartTick,
		Seed:      snap.Seed,
		Collected: snap.Round.Collected,
		Threshold: snap.Round.Threshold,
		Players:   len(snap.Players),
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
