// Package renderer runs Manim on a job's scene script and locates the video
// it produced.
package renderer

import (
	"bytes"
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"manimrender/internal/pkg/errors"
	"manimrender/internal/pkg/logger"
)

// ScriptFile is the file name the scene script is written to.
const ScriptFile = "scene.py"

const stderrTail = 500

type Request struct {
	Script  string
	Quality Quality
	// WorkDir must be a fresh directory owned by the job.
	WorkDir string
}

type Result struct {
	VideoPath string
	Elapsed   time.Duration
}

// Renderer turns a scene script into a video file.
type Renderer interface {
	Render(ctx context.Context, req Request) (Result, error)
}

type Config struct {
	Bin     string
	Scene   string
	Timeout time.Duration
	Log     *logger.Logger
}

type Manim struct {
	bin     string
	scene   string
	timeout time.Duration
	log     *logger.Logger
}

func NewManim(cfg Config) *Manim {
	m := &Manim{bin: cfg.Bin, scene: cfg.Scene, timeout: cfg.Timeout, log: cfg.Log}
	if m.bin == "" {
		m.bin = "manim"
	}
	if m.scene == "" {
		m.scene = "ExampleScene"
	}
	if m.timeout <= 0 {
		m.timeout = 5 * time.Minute
	}
	if m.log == nil {
		m.log = logger.NewDefault()
	}
	m.log = m.log.WithComponent("renderer")
	return m
}

// Render writes the script to WorkDir/scene.py and runs manim on it.
// Timeouts, non-zero exits and a missing output file are all errors; the
// first two carry the tail of manim's stderr in the "stderr" field.
func (m *Manim) Render(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if err := os.WriteFile(filepath.Join(req.WorkDir, ScriptFile), []byte(req.Script), 0o644); err != nil {
		return Result{}, errors.WrapWithCode(err, errors.CodeRender, "manim.render", "write scene script")
	}

	preset := req.Quality.Preset()
	if !req.Quality.Valid() {
		m.log.FromContext(ctx).Warn("unknown quality, using lowest preset", "quality", string(req.Quality))
	}

	runCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, m.bin, preset.Flag, ScriptFile, m.scene)
	cmd.Dir = req.WorkDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of manim may keep the pipes open after a kill.
	cmd.WaitDelay = 5 * time.Second

	m.log.FromContext(ctx).Debug("running manim", "flag", preset.Flag, "scene", m.scene)
	err := cmd.Run()
	if err != nil {
		tail := tail(stderr.String(), stderrTail)
		if stderrors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Result{}, errors.WrapWithCode(err, errors.CodeRenderTimeout, "manim.render",
				"render timed out after "+m.timeout.String()).WithField("stderr", tail)
		}
		e := errors.WrapWithCode(err, errors.CodeRender, "manim.render", "manim failed").WithField("stderr", tail)
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			e = e.WithField("exit_code", exitErr.ExitCode())
		}
		return Result{}, e
	}

	video, err := FindOutput(req.WorkDir)
	if err != nil {
		return Result{}, err
	}
	return Result{VideoPath: video, Elapsed: time.Since(start)}, nil
}

// partialDir holds manim's per-animation segments, never a finished video.
const partialDir = "partial_movie_files"

// FindOutput looks for the rendered mp4 under media/videos/scene/<res>/
// first, then anywhere below dir outside partial_movie_files. Matches are
// taken in lexical order.
func FindOutput(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "media", "videos", "scene", "*", "*.mp4"))
	if err == nil && len(matches) > 0 {
		return matches[0], nil
	}

	var found []string
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && d.Name() == partialDir {
			return fs.SkipDir
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".mp4") {
			found = append(found, path)
		}
		return nil
	})
	if walkErr != nil {
		return "", errors.WrapWithCode(walkErr, errors.CodeNoOutput, "manim.find_output", "scan work dir")
	}
	if len(found) == 0 {
		return "", errors.New(errors.CodeNoOutput, "manim exited cleanly but produced no mp4")
	}
	sort.Strings(found)
	return found[0], nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
