package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/plus3/arena/ecs"
	"github.com/plus3/arena/snapshot"
	"github.com/plus3/arena/snapshot/store"
)

// StressCommand runs the snapshotting simulation.
func StressCommand() *cli.Command {
	return &cli.Command{
		Name:  "stress",
		Usage: "Run a simulation that snapshots and restores the world as it goes",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "The total duration the test should run for",
				Value: 10 * time.Second,
			},
			&cli.IntFlag{
				Name:  "entities",
				Usage: "The number of entities to keep alive",
				Value: 10000,
			},
			&cli.IntFlag{
				Name:  "every",
				Usage: "Take and store a snapshot every N frames (0 disables)",
				Value: 60,
			},
			&cli.IntFlag{
				Name:  "restore-every",
				Usage: "Restore the latest stored snapshot every N frames (0 disables)",
				Value: 600,
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "Seed for the entity generator",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  "gc-pause-metrics",
				Usage: "Include GC pause metrics in the report",
			},
		},
		Action: runStress,
	}
}

type stressRun struct {
	logger  *slog.Logger
	store   store.Store
	manager *snapshot.Manager
	storage *ecs.Storage
	keep    int
	report  *Report
}

func runStress(c *cli.Context) (err error) {
	cfg := appConfig(c)
	logger := appLogger(c)

	if c.Int("every") < 0 || c.Int("restore-every") < 0 {
		return errors.New("--every and --restore-every must not be negative")
	}

	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer closeStore(s, &err)

	reg := prometheus.NewRegistry()
	metrics := snapshot.NewMetrics(reg)
	if cfg.Metrics.Listen != "" {
		srv := &http.Server{
			Addr:    cfg.Metrics.Listen,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", cfg.Metrics.Listen)
	}

	// 1. Setup Registry, Storage, and Scheduler
	rng := rand.New(rand.NewSource(c.Int64("seed")))
	storage := ecs.NewStorage(newRegistry())
	ecs.NewSingleton[SimClock](storage)

	scheduler := ecs.NewScheduler(storage)
	scheduler.Register(&MovementSystem{})
	scheduler.Register(&LifetimeSystem{})
	scheduler.Register(&RespawnSystem{Target: c.Int("entities"), Rand: rng})
	scheduler.Register(&ClockSystem{})

	// 2. Populate Storage with initial entities
	logger.Info("populating storage", "entities", c.Int("entities"))
	for i := 0; i < c.Int("entities"); i++ {
		spawnRandomEntity(storage, rng, rng.Intn(5)+1)
	}

	run := &stressRun{
		logger: logger,
		store:  s,
		manager: snapshot.New(storage,
			snapshot.WithVersion(cfg.Snapshot.Version),
			snapshot.WithLogger(logger),
			snapshot.WithMetrics(metrics)),
		storage: storage,
		keep:    cfg.Store.Keep,
		report: &Report{
			Duration:       c.Duration("duration"),
			Entities:       c.Int("entities"),
			SnapshotEvery:  c.Int("every"),
			RestoreEvery:   c.Int("restore-every"),
			Backend:        cfg.Store.Backend,
			SnapshotFormat: cfg.Snapshot.Version,
			GCPauseMetrics: c.Bool("gc-pause-metrics"),
		},
	}
	report := run.report
	runtime.ReadMemStats(&report.MemStatsStart)

	// 3. Run the simulation loop
	logger.Info("running simulation", "duration", report.Duration)
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, report.Duration)
	defer cancel()

	// Snapshots are taken and restored between frames, after commands flush.
	var hookErr error
	scheduler.AfterFrame(func(frame uint64) {
		if hookErr == nil {
			hookErr = run.afterFrame(ctx, frame)
		}
	})

	startTime := time.Now()
	lastFrameTime := time.Now()

Loop:
	for {
		select {
		case <-ctx.Done():
			break Loop
		default:
			deltaTime := time.Since(lastFrameTime)
			lastFrameTime = time.Now()

			updateStart := time.Now()
			scheduler.Once(deltaTime.Seconds())
			report.UpdateTime.Samples = append(report.UpdateTime.Samples, time.Since(updateStart))
			report.TotalUpdates++

			if hookErr != nil {
				return hookErr
			}
		}
	}

	report.TotalTime = time.Since(startTime)
	report.Scheduler = scheduler.GetStats()
	report.UpdateTime.Finalize()
	report.SnapshotTime.Finalize()
	report.StoreTime.Finalize()
	report.RestoreTime.Finalize()
	runtime.ReadMemStats(&report.MemStatsEnd)

	logger.Info("simulation finished", "updates", report.TotalUpdates)

	// 4. Generate Report to Console
	return report.Generate(c.App.Writer)
}

func (r *stressRun) afterFrame(ctx context.Context, frame uint64) error {
	if every := uint64(r.report.SnapshotEvery); every > 0 && frame%every == 0 {
		if err := r.snapshot(ctx, frame); err != nil {
			return err
		}
	}
	if every := uint64(r.report.RestoreEvery); every > 0 && frame%every == 0 {
		if err := r.restoreLatest(ctx); err != nil {
			return err
		}
	}
	return nil
}

// snapshot takes a snapshot, stores it and applies the retention limit.
func (r *stressRun) snapshot(ctx context.Context, frame uint64) error {
	start := time.Now()
	snap, err := r.manager.Snapshot(snapshot.Full)
	if err != nil {
		return err
	}
	r.report.SnapshotTime.Samples = append(r.report.SnapshotTime.Samples, time.Since(start))
	r.report.StateBytes = len(snap.State)

	rec, err := store.NewRecord(fmt.Sprintf("frame-%d", frame), snap)
	if err != nil {
		return err
	}

	start = time.Now()
	if err := r.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	r.report.StoreTime.Samples = append(r.report.StoreTime.Samples, time.Since(start))

	if r.keep > 0 {
		pruned, err := store.Prune(ctx, r.store, r.keep)
		if err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
		r.report.Pruned += pruned
	}
	return nil
}

// restoreLatest restores the newest stored snapshot and checks that an
// immediate re-snapshot reproduces the same state.
func (r *stressRun) restoreLatest(ctx context.Context) error {
	rec, err := r.store.Latest(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load latest snapshot: %w", err)
	}

	start := time.Now()
	if err := r.manager.Restore(rec.Snapshot); err != nil {
		return fmt.Errorf("restore %s: %w", rec.ID, err)
	}
	r.report.RestoreTime.Samples = append(r.report.RestoreTime.Samples, time.Since(start))

	check, err := r.manager.Snapshot(snapshot.Full)
	if err != nil {
		return err
	}
	if check.State != rec.Snapshot.State {
		r.report.RoundTripFails++
		r.logger.Warn("restored world differs from snapshot", "id", rec.ID.String())
	}
	return nil
}
