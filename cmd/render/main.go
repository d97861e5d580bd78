// Command render renders every pending Manim video once and exits.
//
//	render -quality l|m|h -limit 20
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"manimrender/internal/adapters/postgres"
	"manimrender/internal/adapters/supabase"
	"manimrender/internal/config"
	"manimrender/internal/pkg/errors"
	"manimrender/internal/pkg/logger"
	"manimrender/internal/pkg/shutdown"
	"manimrender/internal/ports"
	"manimrender/internal/storage"
	"manimrender/internal/worker"
	"manimrender/internal/worker/events"
	"manimrender/internal/worker/lock"
	"manimrender/internal/worker/media"
	"manimrender/internal/worker/metrics"
	"manimrender/internal/worker/renderer"
	"manimrender/internal/worker/util"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	quality := fs.String("quality", "l", "render quality: l (480p15), m (720p30) or h (1080p60)")
	limit := fs.Int("limit", 20, "maximum number of videos to render")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if !renderer.Quality(*quality).Valid() {
		fmt.Fprintf(stderr, "invalid value %q for flag -quality: must be l, m or h\n", *quality)
		fs.Usage()
		return 2
	}
	if *limit < 1 {
		fmt.Fprintf(stderr, "invalid value %d for flag -limit: must be positive\n", *limit)
		fs.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, userMessage(err))
		return errors.ExitCode(err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Output:      stderr,
		ServiceName: "manimrender",
	})

	runID := util.NewID("run")
	ctx := logger.ContextWithRunID(context.Background(), runID)

	mgr := shutdown.NewManager(log, 30*time.Second)
	defer mgr.Shutdown()

	ctx, cancel := mgr.NotifyContext(ctx)
	defer cancel()

	deps, err := wire(ctx, cfg, log, mgr)
	if err != nil {
		if errors.IsCode(err, errors.CodeLocked) {
			log.FromContext(ctx).Info("another render run is in progress, exiting", "key", cfg.RunLockKey)
			fmt.Fprintln(stdout, "Another render run is in progress.")
			return 0
		}
		log.LogError(ctx, "startup failed", err)
		fmt.Fprintln(stderr, userMessage(err))
		return errors.ExitCode(err)
	}
	deps.RunID = runID
	deps.Out = stdout

	if err := os.MkdirAll(cfg.RenderLogsDir, 0o755); err != nil {
		log.FromContext(ctx).Warn("cannot create render logs dir", "dir", cfg.RenderLogsDir, "error", err.Error())
	}

	log.FromContext(ctx).Info("render run starting",
		"quality", *quality,
		"limit", *limit,
		"job_store", cfg.JobStore,
		"storage", deps.Store.Provider(),
	)

	sum := worker.Run(ctx, deps, worker.Options{Quality: renderer.Quality(*quality), Limit: *limit})

	if sum.Found == 0 {
		fmt.Fprintln(stdout, "No videos to render.")
		return 0
	}

	fmt.Fprintln(stdout, "\n=== Summary ===")
	fmt.Fprintf(stdout, "Rendered: %d\n", sum.Rendered)
	fmt.Fprintf(stdout, "Failed: %d\n", sum.Failed)
	if sum.Skipped > 0 {
		fmt.Fprintf(stdout, "Skipped: %d\n", sum.Skipped)
	}
	return 0
}

// wire builds the run's dependencies and registers their cleanup with mgr.
func wire(ctx context.Context, cfg *config.Config, log *logger.Logger, mgr *shutdown.Manager) (worker.Deps, error) {
	sb := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.HTTPTimeout)

	var jobs ports.JobStore
	switch cfg.JobStore {
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return worker.Deps{}, err
		}
		mgr.RegisterSimple("postgres", pool.Close)
		jobs = postgres.NewVideoStore(pool, cfg.VideosTable)
	default:
		jobs = supabase.NewVideoStore(sb, cfg.VideosTable)
	}

	deps := worker.Deps{
		Jobs: jobs,
		Renderer: renderer.NewManim(renderer.Config{
			Bin:     cfg.ManimBin,
			Scene:   cfg.SceneName,
			Timeout: cfg.RenderTimeout,
			Log:     log,
		}),
		Prober: media.NewFFmpeg(media.Config{
			FFprobeBin:       cfg.FFprobeBin,
			FFmpegBin:        cfg.FFmpegBin,
			ProbeTimeout:     cfg.ProbeTimeout,
			ThumbnailTimeout: cfg.ThumbnailTimeout,
		}),
		Bucket:  cfg.StorageBucket,
		WorkDir: cfg.WorkDir,
		LogsDir: cfg.RenderLogsDir,
		Log:     log,
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return worker.Deps{}, errors.WrapWithCode(err, errors.CodeConfig, "redis.connect", "invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		mgr.Register("redis", func(ctx context.Context) error { return rdb.Close() })

		if err := rdb.Ping(ctx).Err(); err != nil {
			return worker.Deps{}, errors.WrapWithCode(err, errors.CodeUnavailable, "redis.connect", "redis unreachable")
		}

		l, err := lock.Acquire(ctx, rdb, cfg.RunLockKey, cfg.RunLockTTL)
		if err != nil {
			return worker.Deps{}, err
		}
		mgr.Register("run-lock", l.Release)
		deps.Lock = l

		if cfg.EventsList != "" {
			deps.Events = events.NewRedisPublisher(rdb, cfg.EventsList)
		}
	} else if cfg.EventsList != "" {
		log.FromContext(ctx).Warn("EVENTS_LIST is set without REDIS_URL, events disabled")
	}

	if cfg.PushGateway != "" {
		batch := metrics.New()
		deps.Metrics = batch
		host, _ := os.Hostname()
		mgr.Register("metrics-push", func(ctx context.Context) error {
			return batch.Push(ctx, cfg.PushGateway, host)
		})
	}

	store, err := storage.NewProvider(ctx, cfg, sb)
	if err != nil {
		return worker.Deps{}, err
	}
	deps.Store = store

	return deps, nil
}

// userMessage prefers the bare message of our own errors on the terminal.
func userMessage(err error) string {
	var e *errors.Error
	if errors.As(err, &e) && e.Err == nil {
		return e.Message
	}
	return err.Error()
}
