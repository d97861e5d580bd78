package worker

import (
	"context"
	"io"

	"manimrender/internal/pkg/logger"
	"manimrender/internal/ports"
	"manimrender/internal/worker/media"
	"manimrender/internal/worker/metrics"
	"manimrender/internal/worker/processor"
	"manimrender/internal/worker/renderer"
)

// LockKeeper keeps the run lock alive between jobs.
type LockKeeper interface {
	Refresh(ctx context.Context) error
}

type Deps struct {
	Jobs     ports.JobStore
	Store    ports.ObjectStore
	Renderer renderer.Renderer
	Prober   media.Prober
	// Events and Metrics are optional.
	Events  processor.EventPublisher
	Metrics *metrics.Batch
	// Lock is refreshed before every job when set.
	Lock LockKeeper

	Bucket  string
	WorkDir string
	LogsDir string
	RunID   string

	// Out receives the human-readable progress lines.
	Out io.Writer
	Log *logger.Logger
}

type Options struct {
	Quality renderer.Quality
	Limit   int
}

// Summary counts the jobs of one run. Rendered+Failed+Skipped == Found;
// Skipped is non-zero only when the run was interrupted or lost its lock.
type Summary struct {
	Found    int
	Rendered int
	Failed   int
	Skipped  int
	// LockLost is set when the run stopped because another run took over
	// the lock.
	LockLost bool
	// FetchErr is set when pending jobs could not be listed.
	FetchErr error
}
