package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"time"

	"manimrender/internal/models"
	"manimrender/internal/pkg/errors"
	"manimrender/internal/pkg/logger"
	"manimrender/internal/ports"
	"manimrender/internal/worker/events"
	"manimrender/internal/worker/media"
	"manimrender/internal/worker/renderer"
)

// statusWriteTimeout bounds the terminal status write, which runs even when
// the run's context has been cancelled.
const statusWriteTimeout = 30 * time.Second

type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

type Observer interface {
	ObserveStage(stage string, d time.Duration)
	JobFinished(status string)
}

type Deps struct {
	Jobs     ports.JobStore
	Store    ports.ObjectStore
	Renderer renderer.Renderer
	Prober   media.Prober
	// Events and Metrics are optional.
	Events  EventPublisher
	Metrics Observer

	Quality renderer.Quality
	Bucket  string
	WorkDir string
	LogsDir string
	RunID   string
	Log     *logger.Logger
}

type Processor struct {
	jobs    ports.JobStore
	prober  media.Prober
	events  EventPublisher
	metrics Observer
	logsDir string
	runID   string
	log     *logger.Logger

	inputHandler    *InputHandler
	rendererAdapter *RendererAdapter
	outputHandler   *OutputHandler
	cleanup         *Cleanup
}

// Outcome is what happened to one job.
type Outcome struct {
	VideoID         string
	Status          models.Status
	VideoURL        string
	ThumbnailURL    string
	DurationSeconds int
	// Err is why the job failed.
	Err error
	// UpdateErr is set when the terminal status could not be written.
	UpdateErr error
	Elapsed   time.Duration
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	p := &Processor{
		jobs:    d.Jobs,
		prober:  d.Prober,
		events:  d.Events,
		metrics: d.Metrics,
		logsDir: d.LogsDir,
		runID:   d.RunID,
		log:     log,
	}
	if p.metrics == nil {
		p.metrics = noopObserver{}
	}
	if p.logsDir == "" {
		p.logsDir = "render-logs"
	}

	p.inputHandler = NewInputHandler(d.WorkDir)
	p.rendererAdapter = NewRendererAdapter(d.Renderer, d.Quality)
	p.outputHandler = NewOutputHandler(d.Store, d.Bucket)
	p.cleanup = NewCleanup(log)

	return p
}

// attempt is the state of one ProcessJob call.
type attempt struct {
	v models.Video
	// written is set right before the terminal status write, after which
	// the job must not be failed again.
	written bool
	out     Outcome
}

// ProcessJob renders, probes and uploads one video and writes its terminal
// status. It never returns an error: every failure, panics included, ends in
// a failed status and is reported in the Outcome.
func (p *Processor) ProcessJob(ctx context.Context, v models.Video) (out Outcome) {
	start := time.Now()
	log := p.log.FromContext(ctx)
	a := &attempt{v: v}

	var workDir string
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing job", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			if a.written {
				out = a.out
			} else {
				out = p.failAfterPanic(ctx, a, errors.Newf(errors.CodeInternal, "panic: %v", r))
			}
		}
		p.cleanup.RemoveWorkspace(workDir)
		out.Elapsed = time.Since(start)
		p.report(ctx, out)
	}()

	// 1. Work dir
	var err error
	workDir, err = p.inputHandler.Workspace(v.ID)
	if err != nil {
		return p.failJob(ctx, a, err)
	}

	// 2. Render
	t := time.Now()
	videoPath, err := p.rendererAdapter.Render(ctx, v, workDir)
	p.observe(ctx, "render", time.Since(t))
	if err != nil {
		return p.failJob(ctx, a, errors.Wrap(err, "processor.render", "render failed"))
	}

	// 3. Duration
	t = time.Now()
	duration, err := p.prober.Duration(ctx, videoPath)
	p.observe(ctx, "probe", time.Since(t))
	if err != nil {
		log.Warn("could not read video duration, using 0", "error", err.Error())
		duration = 0
	}

	// 4. Thumbnail
	t = time.Now()
	thumbPath := filepath.Join(workDir, "thumb.jpg")
	hasThumb := true
	if err := p.prober.Thumbnail(ctx, videoPath, thumbPath); err != nil {
		log.Warn("thumbnail generation failed, continuing without", "error", err.Error())
		hasThumb = false
	}
	p.observe(ctx, "thumbnail", time.Since(t))

	// 5. Uploads
	keys := GenerateOutputKeys(v.ID)

	t = time.Now()
	videoURL, err := p.outputHandler.Upload(ctx, videoPath, keys.Video, "video/mp4")
	if err != nil {
		p.observe(ctx, "upload", time.Since(t))
		return p.failJob(ctx, a, err)
	}

	thumbURL := ""
	if hasThumb {
		thumbURL, err = p.outputHandler.Upload(ctx, thumbPath, keys.Thumb, "image/jpeg")
		if err != nil {
			log.Warn("thumbnail upload failed, ignoring", "error", err.Error())
			thumbURL = ""
		}
	}
	p.observe(ctx, "upload", time.Since(t))

	// 6. Ready
	return p.finish(ctx, a, models.Ready(videoURL, thumbURL, duration), nil)
}

func (p *Processor) failJob(ctx context.Context, a *attempt, cause error) Outcome {
	log := p.log.FromContext(ctx)

	var e *errors.Error
	if errors.As(cause, &e) {
		args := []any{"code", string(e.Code), "op", e.Op, "error", cause.Error()}
		if s, ok := errors.GetFields(cause)["stderr"].(string); ok && s != "" {
			args = append(args, "stderr", s)
		}
		log.Error("job failed", args...)
	} else if cause != nil {
		log.Error("job failed", "error", cause.Error())
	}

	if err := writeFailureNote(p.logsDir, a.v.ID, p.runID, cause); err != nil {
		log.Warn("could not write failure note", "dir", p.logsDir, "error", err.Error())
	}

	return p.finish(ctx, a, models.Failed(), cause)
}

// failAfterPanic fails the job from inside the recover of ProcessJob, where a
// second panic would escape the batch loop.
func (p *Processor) failAfterPanic(ctx context.Context, a *attempt, cause error) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.log.FromContext(ctx).Error("panic while failing job", "panic", fmt.Sprint(r))
			out = a.out
			if !a.written {
				out = Outcome{VideoID: a.v.ID, Status: models.StatusFailed, Err: cause}
			}
			if out.UpdateErr == nil {
				out.UpdateErr = errors.Newf(errors.CodeStatusUpdate, "panic: %v", r)
			}
		}
	}()
	return p.failJob(ctx, a, cause)
}

// finish writes the terminal status. A failed write is logged and reported
// in the Outcome; the job keeps the status it reached.
func (p *Processor) finish(ctx context.Context, a *attempt, u models.VideoUpdate, cause error) Outcome {
	a.out = Outcome{
		VideoID:         a.v.ID,
		Status:          u.Status,
		VideoURL:        u.VideoURL,
		ThumbnailURL:    u.ThumbnailURL,
		DurationSeconds: u.DurationSeconds,
		Err:             cause,
	}
	a.written = true

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	if err := p.updateStatus(writeCtx, a.v.ID, u); err != nil {
		a.out.UpdateErr = err
		p.log.FromContext(ctx).LogError(ctx, "status update failed", err, "status", string(u.Status))
	}
	return a.out
}

// updateStatus calls the job store once, turning a panic into an error.
func (p *Processor) updateStatus(ctx context.Context, id string, u models.VideoUpdate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.CodeStatusUpdate, "panic: %v", r)
		}
	}()
	return p.jobs.Update(ctx, id, u)
}

// report records the outcome in metrics and events. Both are best-effort and
// a panic in either is logged and dropped.
func (p *Processor) report(ctx context.Context, out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.log.FromContext(ctx).Error("panic while reporting job outcome", "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	p.metrics.JobFinished(string(out.Status))
	p.publish(ctx, out)
}

func (p *Processor) publish(ctx context.Context, out Outcome) {
	if p.events == nil {
		return
	}

	e := events.Event{
		VideoID:      out.VideoID,
		Status:       string(out.Status),
		VideoURL:     strPtr(out.VideoURL),
		ThumbnailURL: strPtr(out.ThumbnailURL),
		RunID:        p.runID,
		At:           time.Now().UTC(),
	}
	if out.Status == models.StatusReady {
		d := out.DurationSeconds
		e.DurationSeconds = &d
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}

	if err := p.events.Publish(ctx, e); err != nil {
		p.log.FromContext(ctx).Warn("event publish failed", "error", err.Error())
	}
}

func (p *Processor) observe(ctx context.Context, stage string, d time.Duration) {
	p.metrics.ObserveStage(stage, d)
	p.log.FromContext(ctx).Debug("stage finished", "stage", stage, "duration_ms", d.Milliseconds())
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration) {}
func (noopObserver) JobFinished(string)                 {}
