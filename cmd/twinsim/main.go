// Command twinsim runs the two-companion needs and resonance simulation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/twinsim/internal/activity"
	"github.com/talgya/twinsim/internal/api"
	"github.com/talgya/twinsim/internal/config"
	"github.com/talgya/twinsim/internal/engine"
	"github.com/talgya/twinsim/internal/entities"
	"github.com/talgya/twinsim/internal/entropy"
	"github.com/talgya/twinsim/internal/persistence"
	"github.com/talgya/twinsim/internal/store"
	"github.com/talgya/twinsim/internal/wander"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func main() {
	var (
		cfgPath  = flag.String("config", envOr("TWINSIM_CONFIG", ""), "tuning YAML (defaults when empty)")
		dataDir  = flag.String("data", envOr("TWINSIM_DATA", "data"), "directory for the database and update streams")
		port     = flag.Int("port", int(envInt("TWINSIM_PORT", 8080)), "HTTP API port")
		seed     = flag.Int64("seed", envInt("TWINSIM_SEED", 0), "PRNG seed; 0 uses crypto/rand")
		fresh    = flag.Bool("fresh", false, "ignore any saved state")
		logLevel = flag.String("log-level", envOr("TWINSIM_LOG_LEVEL", "info"), "debug, info, warn or error")
	)
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger, *cfgPath, *dataDir, *port, *seed, *fresh); err != nil {
		slog.Error("twinsim failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, cfgPath, dataDir string, port int, seed int64, fresh bool) error {
	// ── Tuning ────────────────────────────────────────────────────────
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			return err
		}
		slog.Info("tuning loaded", "path", cfgPath)
	}

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "twinsim.db")
	db, err := persistence.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	// ── Load or spawn the pair ───────────────────────────────────────
	now := time.Now()
	st := store.New(cfg.ZoneList(), cfg.InitialResonance)
	startRes := cfg.InitialResonance

	var saved []entities.Entity
	if !fresh {
		if saved, err = db.LoadEntities(context.Background()); err != nil {
			return fmt.Errorf("load entities: %w", err)
		}
	}
	if len(saved) == len(entities.IDs) {
		for _, e := range saved {
			if err := st.Put(e); err != nil {
				return err
			}
		}
		if r, ok, err := db.LoadResonance(); err != nil {
			slog.Warn("saved resonance unreadable, using default", "error", err)
		} else if ok {
			startRes = r
		}
		slog.Info("pair restored", "resonance", fmt.Sprintf("%.1f", startRes))
	} else {
		for _, id := range entities.IDs {
			if err := st.Put(entities.New(id, cfg.SpawnPosition(id), now)); err != nil {
				return err
			}
		}
		slog.Info("pair spawned", "zones", len(cfg.Zones))
	}

	// ── Sinks ─────────────────────────────────────────────────────────
	stream := persistence.NewStreamWriter(filepath.Join(dataDir, "stream"), "updates")
	defer stream.Close()
	hub := api.NewHub(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rng := entropy.Select(os.Getenv("RANDOM_ORG_API_KEY"), seed)
	if c, ok := rng.(*entropy.Client); ok {
		go c.Run(ctx)
		slog.Info("entropy: random.org")
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(cfg, st, engine.MultiSink{st, db, stream, hub}, rng, logger)
	sim.SetResonance(startRes)

	walker := wander.New(cfg.Wander, activity.DefaultCatalog(), seed)

	eng := engine.NewEngine(cfg.TickInterval)
	eng.SetSpeed(cfg.GameSpeed)

	var lastMove time.Time
	eng.OnTick = func(ctx context.Context, tick uint64, now time.Time) {
		if !lastMove.IsZero() {
			if err := walker.Step(st, now.Sub(lastMove)); err != nil {
				slog.Warn("walker step failed", "error", err)
			}
		}
		lastMove = now
		if err := sim.Step(ctx, now, eng.Speed()); err != nil {
			slog.Warn("tick sink error", "tick", tick, "error", err)
		}
	}

	// Pending updates age out between ticks and while paused.
	eng.WakeEvery = cfg.Batch.MaxAge
	eng.OnWake = func(ctx context.Context, now time.Time) {
		if err := sim.FlushStale(ctx, now); err != nil {
			slog.Warn("stale flush sink error", "error", err)
		}
	}

	snapshot := func(ctx context.Context) {
		rep := sim.Report()
		if err := db.SaveSnapshot(ctx, persistence.Snapshot{
			RunID:     rep.RunID,
			Tick:      rep.Tick,
			Resonance: rep.Resonance,
			Entities:  st.Entities(),
		}); err != nil {
			slog.Error("snapshot failed", "error", err)
		}
	}

	// Snapshot roughly every minute of wall time.
	perMinute := uint64(time.Minute / cfg.TickInterval)
	eng.Every(perMinute, func(ctx context.Context, tick uint64) { snapshot(ctx) })

	// Status line every ten seconds.
	eng.Every(uint64(10*time.Second/cfg.TickInterval), func(ctx context.Context, tick uint64) {
		rep := sim.Report()
		_, applied := st.Applied()
		slog.Info("status",
			"game_time", rep.GameTime,
			"resonance", fmt.Sprintf("%.1f", rep.Resonance),
			"updates", humanize.Comma(int64(applied)),
			"stream_lines", humanize.Comma(int64(stream.Lines())),
			"observers", hub.Clients(),
		)
	})

	eng.OnStop = func(ctx context.Context) {
		if err := sim.Close(ctx); err != nil {
			slog.Error("final flush failed", "error", err)
		}
		snapshot(ctx)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("TWINSIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("TWINSIM_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}

	apiServer := &api.Server{
		Sim:      sim,
		Eng:      eng,
		Store:    st,
		DB:       db,
		Hub:      hub,
		Port:     port,
		AdminKey: adminKey,
		Started:  now,
	}
	apiErr := make(chan error, 1)
	go func() { apiErr <- apiServer.Start(ctx) }()

	// ── Start ─────────────────────────────────────────────────────────
	fmt.Printf("\nSol and Luna are awake. Resonance %.1f.\n", startRes)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", port)
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	slog.Info("simulation stopped", "tick", eng.Tick())

	stop()
	if err := <-apiErr; err != nil {
		slog.Error("api shutdown", "error", err)
	}

	fmt.Println("Simulation stopped. State saved.")
	return nil
}
