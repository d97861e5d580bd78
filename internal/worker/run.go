package worker

import (
	"context"
	"fmt"
	"io"
	"time"

	"manimrender/internal/models"
	"manimrender/internal/pkg/errors"
	"manimrender/internal/pkg/logger"
	"manimrender/internal/worker/processor"
)

// Run fetches up to opts.Limit pending videos and processes them one by
// one. Per-job failures never stop the batch; cancelling ctx or losing the
// run lock stops it before the next job.
func Run(ctx context.Context, d Deps, opts Options) Summary {
	start := time.Now()

	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	out := d.Out
	if out == nil {
		out = io.Discard
	}

	pd := processor.Deps{
		Jobs:     d.Jobs,
		Store:    d.Store,
		Renderer: d.Renderer,
		Prober:   d.Prober,
		Events:   d.Events,
		Quality:  opts.Quality,
		Bucket:   d.Bucket,
		WorkDir:  d.WorkDir,
		LogsDir:  d.LogsDir,
		RunID:    d.RunID,
		Log:      d.Log,
	}
	if d.Metrics != nil {
		pd.Metrics = d.Metrics
	}
	p := processor.New(pd)

	var sum Summary
	defer func() {
		if d.Metrics != nil {
			d.Metrics.RunFinished(sum.Found, time.Since(start), sum.FetchErr == nil)
		}
	}()

	t := time.Now()
	videos, err := d.Jobs.FetchPending(ctx, opts.Limit)
	if d.Metrics != nil {
		d.Metrics.ObserveStage("fetch", time.Since(t))
	}
	if err != nil {
		log.LogError(ctx, "fetching pending videos failed", err)
		sum.FetchErr = err
		return sum
	}

	sum.Found = len(videos)
	log.FromContext(ctx).Info("fetched pending videos", "count", sum.Found, "limit", opts.Limit, "quality", string(opts.Quality))
	if sum.Found == 0 {
		return sum
	}
	fmt.Fprintf(out, "Found %d videos to render.\n", sum.Found)

	for i, v := range videos {
		if ctx.Err() != nil {
			sum.Skipped = len(videos) - i
			log.FromContext(ctx).Warn("run interrupted, leaving remaining videos pending", "skipped", sum.Skipped)
			break
		}

		if d.Lock != nil {
			if err := d.Lock.Refresh(ctx); err != nil {
				if errors.IsCode(err, errors.CodeConflict) {
					sum.Skipped = len(videos) - i
					sum.LockLost = true
					log.LogError(ctx, "run lock lost, leaving remaining videos to the other run", err, "skipped", sum.Skipped)
					fmt.Fprintln(out, "\nRun lock lost, stopping.")
					break
				}
				log.FromContext(ctx).Warn("could not refresh run lock", "error", err.Error())
			}
		}

		jobCtx := logger.ContextWithJobID(ctx, v.ID)
		jobLog := log.FromContext(jobCtx)

		fmt.Fprintf(out, "\n--- Rendering %s ---\n", v.ID)
		jobLog.Info("processing video")

		res := p.ProcessJob(jobCtx, v)

		switch res.Status {
		case models.StatusReady:
			sum.Rendered++
			fmt.Fprintf(out, "  Rendered (%ds), uploaded\n", res.DurationSeconds)
			jobLog.Info("video ready",
				"duration_seconds", res.DurationSeconds,
				"thumbnail", res.ThumbnailURL != "",
				"elapsed_ms", res.Elapsed.Milliseconds(),
			)
		default:
			sum.Failed++
			fmt.Fprintf(out, "  Failed: %s\n", reason(res.Err))
			jobLog.Info("video failed", "elapsed_ms", res.Elapsed.Milliseconds())
		}
	}

	log.FromContext(ctx).Info("run finished",
		"found", sum.Found,
		"rendered", sum.Rendered,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return sum
}

func reason(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
