package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"ghostround.io/internal/persistence/snapshot"
	"ghostround.io/internal/sim/tuning"
	"ghostround.io/internal/sim/world"
)

func main() {
	var (
		worldDir   = flag.String("world_dir", "", "world data dir containing ticks/ and rounds/")
		snapPath   = flag.String("snapshot", "", "path to .snap.zst to start from (default: fresh world)")
		worldID    = flag.String("world", "arena", "world id for a fresh replay")
		seed       = flag.Int64("seed", 1337, "seed for a fresh replay")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning.yaml the run used")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		rounds     = flag.Bool("rounds", false, "print the round log and exit")
	)
	flag.Parse()

	if *rounds {
		if *worldDir == "" {
			fmt.Fprintln(os.Stderr, "missing -world_dir")
			os.Exit(2)
		}
		if err := printRounds(os.Stdout, filepath.Join(*worldDir, "rounds")); err != nil {
			fmt.Fprintln(os.Stderr, "rounds:", err)
			os.Exit(1)
		}
		return
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	var w *world.World
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d world=%s tick=%d seed=%d round=%d state=%s players=%d ghosts=%d\n",
			snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Seed,
			snap.Round.Number, snap.Round.State, len(snap.Players), len(snap.Ghosts))
		w, err = world.New(world.WorldConfig{ID: snap.Header.WorldID, Seed: snap.Seed}, tune, nil)
		if err == nil {
			err = w.ImportSnapshot(snap)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "world:", err)
			os.Exit(1)
		}
	} else {
		w, err = world.New(world.WorldConfig{ID: *worldID, Seed: *seed}, tune, nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, "world:", err)
			os.Exit(1)
		}
	}

	if *worldDir == "" {
		return
	}
	res, err := replay(w, filepath.Join(*worldDir, "ticks"), *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from tick=%d to tick=%d)\n", res.Checked, res.StartTick, res.LastTick)
}
