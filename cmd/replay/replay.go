package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	persistlog "ghostround.io/internal/persistence/log"
	"ghostround.io/internal/sim/world"
)

var errStop = errors.New("stop")

type replayResult struct {
	StartTick uint64
	LastTick  uint64
	Checked   uint64
}

// replay feeds the recorded tick log into w and compares every digest from
// verifyFrom on. Entries before w's current tick are skipped.
func replay(w *world.World, ticksDir string, verifyFrom, toTick uint64) (replayResult, error) {
	res := replayResult{StartTick: w.CurrentTick()}
	if verifyFrom == 0 {
		verifyFrom = res.StartTick
	}

	files, err := persistlog.Files(ticksDir, "ticks")
	if err != nil {
		return res, err
	}
	if len(files) == 0 {
		return res, fmt.Errorf("no tick logs found in %s", ticksDir)
	}

	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var entry world.TickLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if entry.Tick < res.StartTick {
				return nil
			}
			if toTick != 0 && entry.Tick > toTick {
				return errStop
			}
			if entry.Tick != w.CurrentTick() {
				return fmt.Errorf("tick gap: want=%d got=%d (file=%s)", w.CurrentTick(), entry.Tick, filepath.Base(path))
			}

			joins := make([]world.JoinRequest, 0, len(entry.Joins))
			for _, j := range entry.Joins {
				joins = append(joins, world.JoinRequest{Name: j.Name})
			}
			reqs := make([]world.RequestEnvelope, 0, len(entry.Requests))
			for _, r := range entry.Requests {
				reqs = append(reqs, world.RequestEnvelope{PlayerID: r.PlayerID, Req: r.Req})
			}

			tick, digest := w.StepOnce(joins, entry.Leaves, reqs)
			res.LastTick = tick
			if tick >= verifyFrom {
				res.Checked++
				if digest != entry.Digest {
					return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
				}
			}
			return nil
		})
		if errors.Is(err, errStop) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

func printRounds(out io.Writer, roundsDir string) error {
	files, err := persistlog.Files(roundsDir, "rounds")
	if err != nil {
		return err
	}
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var e world.RoundLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			fmt.Fprintf(out, "round=%d outcome=%s collected=%d/%d ticks=%d..%d players=%d converted=%d\n",
				e.Number, e.Outcome, e.Collected, e.Threshold, e.StartTick, e.EndTick, e.Players, e.Converted)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
