package worker

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manimrender/internal/adapters/supabase"
	"manimrender/internal/adapters/supabase/supabasetest"
	"manimrender/internal/models"
	"manimrender/internal/pkg/errors"
	"manimrender/internal/pkg/logger"
	"manimrender/internal/worker/metrics"
	"manimrender/internal/worker/renderer"
)

// scriptRenderer fails scripts containing FAIL and otherwise writes a fake mp4.
type scriptRenderer struct {
	onRender  func()
	qualities []renderer.Quality
}

func (r *scriptRenderer) Render(ctx context.Context, req renderer.Request) (renderer.Result, error) {
	r.qualities = append(r.qualities, req.Quality)
	if r.onRender != nil {
		r.onRender()
	}
	if strings.Contains(req.Script, "FAIL") {
		return renderer.Result{}, errors.New(errors.CodeRender, "manim failed").WithField("stderr", "SyntaxError")
	}
	path := filepath.Join(req.WorkDir, "out.mp4")
	if err := os.WriteFile(path, []byte("mp4"), 0o644); err != nil {
		return renderer.Result{}, err
	}
	return renderer.Result{VideoPath: path}, nil
}

type stubProber struct{}

func (stubProber) Duration(ctx context.Context, videoPath string) (int, error) { return 3, nil }

func (stubProber) Thumbnail(ctx context.Context, videoPath, outPath string) error {
	return os.WriteFile(outPath, []byte("jpg"), 0o644)
}

type fixture struct {
	srv     *supabasetest.Server
	deps    Deps
	out     *bytes.Buffer
	r       *scriptRenderer
	workDir string
	logsDir string
}

func newFixture(t *testing.T, videos ...models.Video) *fixture {
	t.Helper()
	srv := supabasetest.NewServer(videos...)
	t.Cleanup(srv.Close)

	c := supabase.NewClient(srv.URL, supabasetest.ServiceKey, 5*time.Second)
	f := &fixture{
		srv:     srv,
		out:     &bytes.Buffer{},
		r:       &scriptRenderer{},
		workDir: t.TempDir(),
		logsDir: filepath.Join(t.TempDir(), "render-logs"),
	}
	f.deps = Deps{
		Jobs:     supabase.NewVideoStore(c, "videos"),
		Store:    supabase.NewStorage(c),
		Renderer: f.r,
		Prober:   stubProber{},
		Bucket:   "videos",
		WorkDir:  f.workDir,
		LogsDir:  f.logsDir,
		RunID:    "run_test",
		Out:      f.out,
		Log:      logger.Discard(),
	}
	return f
}

func pending(id, script string) models.Video {
	return models.Video{ID: id, ManimScript: script, Status: models.StatusGenerating}
}

func TestRunEmptyFetch(t *testing.T) {
	f := newFixture(t, models.Video{ID: "done", ManimScript: "x", Status: models.StatusReady})

	sum := Run(context.Background(), f.deps, Options{Quality: renderer.QualityLow, Limit: 20})

	assert.Equal(t, Summary{}, sum)
	assert.Empty(t, f.srv.Uploads())
	assert.Empty(t, f.srv.Patches())
	assert.Empty(t, f.out.String())
}

func TestRunMixedBatch(t *testing.T) {
	f := newFixture(t,
		pending("v1", "class ExampleScene(Scene): pass"),
		pending("v2", "FAIL"),
		pending("v3", "class ExampleScene(Scene): pass"),
	)
	f.srv.FailUpload["v3.mp4"] = http.StatusInternalServerError
	f.deps.Metrics = metrics.New()

	sum := Run(context.Background(), f.deps, Options{Quality: renderer.QualityHigh, Limit: 20})

	assert.Equal(t, 3, sum.Found)
	assert.Equal(t, 1, sum.Rendered)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, sum.Found, sum.Rendered+sum.Failed+sum.Skipped)

	for _, id := range []string{"v1", "v2", "v3"} {
		assert.Len(t, f.srv.PatchesFor(id), 1, "exactly one status write for %s", id)
	}
	assert.Equal(t, models.StatusReady, f.srv.Status("v1"))
	assert.Equal(t, models.StatusFailed, f.srv.Status("v2"))
	assert.Equal(t, models.StatusFailed, f.srv.Status("v3"))

	ready := f.srv.PatchesFor("v1")[0].Body
	assert.Equal(t, f.srv.URL+"/storage/v1/object/public/videos/v1.mp4", ready["video_url"])
	assert.Equal(t, f.srv.URL+"/storage/v1/object/public/videos/v1_thumb.jpg", ready["thumbnail_url"])
	assert.Equal(t, float64(3), ready["duration_seconds"])

	for _, u := range f.srv.Uploads() {
		assert.NotEqual(t, "v2.mp4", u.Key, "failed render must not upload")
	}

	_, err := os.Stat(filepath.Join(f.logsDir, "v2.log"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(f.logsDir, "v3.log"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(f.logsDir, "v1.log"))
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	for _, q := range f.r.qualities {
		assert.Equal(t, renderer.QualityHigh, q)
	}

	assert.Contains(t, f.out.String(), "Found 3 videos to render.")
	assert.Contains(t, f.out.String(), "--- Rendering v2 ---")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.deps.Metrics.JobsTotal.WithLabelValues("ready")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.deps.Metrics.JobsTotal.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.deps.Metrics.JobsFound))
}

func TestRunRespectsLimit(t *testing.T) {
	f := newFixture(t, pending("a", "x"), pending("b", "x"), pending("c", "x"))

	sum := Run(context.Background(), f.deps, Options{Quality: renderer.QualityLow, Limit: 2})

	assert.Equal(t, 2, sum.Found)
	assert.Equal(t, 2, sum.Rendered)
	assert.Equal(t, models.StatusGenerating, f.srv.Status("c"))
}

func TestRunFetchError(t *testing.T) {
	f := newFixture(t, pending("v1", "x"))
	f.srv.FailFetch = http.StatusServiceUnavailable

	sum := Run(context.Background(), f.deps, Options{Quality: renderer.QualityLow, Limit: 20})

	assert.Equal(t, 0, sum.Found)
	require.Error(t, sum.FetchErr)
	assert.True(t, errors.IsCode(sum.FetchErr, errors.CodeFetch))
	assert.Empty(t, f.srv.Patches())
}

func TestRunStopsWhenCancelled(t *testing.T) {
	f := newFixture(t, pending("v1", "x"), pending("v2", "x"), pending("v3", "x"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.r.onRender = cancel

	sum := Run(ctx, f.deps, Options{Quality: renderer.QualityLow, Limit: 20})

	assert.Equal(t, 3, sum.Found)
	assert.Equal(t, 1, sum.Rendered+sum.Failed)
	assert.Equal(t, 2, sum.Skipped)

	assert.Len(t, f.srv.PatchesFor("v1"), 1, "the in-flight job still gets a terminal status")
	assert.Empty(t, f.srv.PatchesFor("v2"))
	assert.Equal(t, models.StatusGenerating, f.srv.Status("v3"))
}

// fakeLock starts failing with CONFLICT after okFor refreshes.
type fakeLock struct {
	okFor int
	err   error
	calls int
}

func (l *fakeLock) Refresh(ctx context.Context) error {
	l.calls++
	if l.calls > l.okFor {
		return l.err
	}
	return nil
}

func TestRunStopsWhenLockLost(t *testing.T) {
	f := newFixture(t, pending("v1", "x"), pending("v2", "x"), pending("v3", "x"))
	lk := &fakeLock{okFor: 1, err: errors.New(errors.CodeConflict, "lock manimrender:lock was lost")}
	f.deps.Lock = lk

	sum := Run(context.Background(), f.deps, Options{Quality: renderer.QualityLow, Limit: 20})

	assert.Equal(t, 3, sum.Found)
	assert.Equal(t, 1, sum.Rendered)
	assert.Equal(t, 2, sum.Skipped)
	assert.True(t, sum.LockLost)
	assert.Equal(t, 2, lk.calls)

	assert.Len(t, f.srv.PatchesFor("v1"), 1)
	assert.Empty(t, f.srv.PatchesFor("v2"))
	assert.Empty(t, f.srv.PatchesFor("v3"))
	assert.Equal(t, models.StatusGenerating, f.srv.Status("v2"))
	assert.Contains(t, f.out.String(), "Run lock lost, stopping.")
}

func TestRunContinuesWhenLockRefreshUnavailable(t *testing.T) {
	f := newFixture(t, pending("v1", "x"), pending("v2", "x"))
	lk := &fakeLock{err: errors.New(errors.CodeUnavailable, "redis down")}
	f.deps.Lock = lk

	sum := Run(context.Background(), f.deps, Options{Quality: renderer.QualityLow, Limit: 20})

	assert.Equal(t, 2, sum.Rendered)
	assert.False(t, sum.LockLost)
	assert.Equal(t, 2, lk.calls)
}
