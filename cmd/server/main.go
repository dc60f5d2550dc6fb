package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ghostround.io/internal/persistence/archive"
	"ghostround.io/internal/persistence/indexdb"
	persistlog "ghostround.io/internal/persistence/log"
	"ghostround.io/internal/persistence/snapshot"
	"ghostround.io/internal/sim/tuning"
	"ghostround.io/internal/sim/world"
	"ghostround.io/internal/transport/observer"
	"ghostround.io/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "arena", "world id")
		seed       = flag.Int64("seed", 1337, "world seed (used only when starting a fresh world)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (env GHOSTROUND_TUNING overrides)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (tick/round rows + snapshot metadata)")
		enableObs  = flag.Bool("observer", true, "serve loopback spectator endpoints under /v1/observe")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if v := strings.TrimSpace(os.Getenv("GHOSTROUND_TUNING")); v != "" {
		tp = v
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	// Optional read-model index (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if digest, err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		} else {
			logger.Printf("tuning digest=%s", digest[:12])
		}
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	w, err := buildWorld(*worldID, *seed, tune, snapshotToLoad)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if snapshotToLoad != "" {
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	}
	w.SetLogger(log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))

	tickLog := persistlog.NewTickLogger(worldDir)
	roundLog := persistlog.NewRoundLogger(worldDir)
	defer tickLog.Close()
	defer roundLog.Close()
	if idx != nil {
		w.SetTickLogger(multiTickLogger{tickLog, idx})
		w.SetRoundLogger(multiRoundLogger{roundLog, idx})
	} else {
		w.SetTickLogger(tickLog)
		w.SetRoundLogger(roundLog)
	}

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)

	wsSrv := ws.NewServer(w, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, wsSrv))
	mux.HandleFunc("/v1/stats", statsHandler(w, wsSrv, idx))
	if idx != nil {
		mux.HandleFunc("/v1/rounds", roundsHandler(idx))
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	if *enableObs {
		obsSrv := observer.NewServer(w, logger)
		mux.HandleFunc("/v1/observe/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/v1/observe", obsSrv.WSHandler())
	} else {
		logger.Printf("observer endpoints disabled (-observer=false)")
	}
	if envBool("GHOSTROUND_ENABLE_PPROF", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("world: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		writeSnapshots(gctx, worldDir, snapCh, idx, logger)
		return nil
	})
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})

	if err := g.Wait(); err != nil {
		logger.Printf("stopped: %v", err)
	}
}

func buildWorld(id string, seed int64, tune tuning.Tuning, snapPath string) (*world.World, error) {
	if snapPath == "" {
		return world.New(world.WorldConfig{ID: id, Seed: seed}, tune, nil)
	}
	snap, err := snapshot.ReadSnapshot(snapPath)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if snap.Header.WorldID != "" && snap.Header.WorldID != id {
		return nil, fmt.Errorf("snapshot world id mismatch: flag=%s snap=%s", id, snap.Header.WorldID)
	}
	w, err := world.New(world.WorldConfig{ID: id, Seed: snap.Seed}, tune, nil)
	if err != nil {
		return nil, err
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	// Nobody is connected yet; players have to rejoin.
	w.EvictRestoredPlayers()
	return w, nil
}

// writeSnapshots persists snapshots off the world loop. Round-ending
// snapshots are also archived.
func writeSnapshots(ctx context.Context, worldDir string, ch <-chan snapshot.SnapshotV1, idx *indexdb.SQLiteIndex, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("snapshot write: %v", err)
				continue
			}
			idx.RecordSnapshot(path, snap)
			if archived, ok, err := archive.ArchiveRoundSnapshot(worldDir, path, snap); err != nil {
				logger.Printf("archive round snapshot: %v", err)
			} else if ok {
				logger.Printf("archived round %d (%s) at %s", snap.Round.Number, snap.Header.Reason, archived)
			}
		}
	}
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
