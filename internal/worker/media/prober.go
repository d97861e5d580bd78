// Package media reads the duration of a rendered video and cuts its
// thumbnail with the ffmpeg tool suite.
package media

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"manimrender/internal/pkg/errors"
)

// Prober extracts the metadata the videos table stores.
type Prober interface {
	// Duration returns whole seconds. On error the duration is 0.
	Duration(ctx context.Context, videoPath string) (int, error)
	// Thumbnail writes a JPEG still to outPath.
	Thumbnail(ctx context.Context, videoPath, outPath string) error
}

type Config struct {
	FFprobeBin       string
	FFmpegBin        string
	ProbeTimeout     time.Duration
	ThumbnailTimeout time.Duration
}

type FFmpeg struct {
	cfg Config
}

func NewFFmpeg(cfg Config) *FFmpeg {
	if cfg.FFprobeBin == "" {
		cfg.FFprobeBin = "ffprobe"
	}
	if cfg.FFmpegBin == "" {
		cfg.FFmpegBin = "ffmpeg"
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.ThumbnailTimeout <= 0 {
		cfg.ThumbnailTimeout = 30 * time.Second
	}
	return &FFmpeg{cfg: cfg}
}

func (f *FFmpeg) Duration(ctx context.Context, videoPath string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.cfg.FFprobeBin,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	cmd.WaitDelay = time.Second
	output, err := cmd.Output()
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeProbe, "ffprobe.duration", "ffprobe failed")
	}

	raw := strings.TrimSpace(string(output))
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeProbe, "ffprobe.duration", "parse duration").
			WithField("output", raw)
	}
	if seconds < 0 {
		return 0, errors.Newf(errors.CodeProbe, "negative duration %q", raw)
	}
	return int(seconds), nil
}

// Thumbnail grabs the frame at one second, scaled to 640px wide. The
// thumbnail only counts when ffmpeg leaves a non-empty file behind.
func (f *FFmpeg) Thumbnail(ctx context.Context, videoPath, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ThumbnailTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.cfg.FFmpegBin,
		"-y",
		"-i", videoPath,
		"-ss", "1",
		"-vframes", "1",
		"-vf", "scale=640:-1",
		outPath,
	)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	runErr := cmd.Run()

	st, statErr := os.Stat(outPath)
	if statErr == nil && st.Size() > 0 {
		return nil
	}

	if runErr != nil {
		msg := stderr.String()
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		return errors.WrapWithCode(runErr, errors.CodeProbe, "ffmpeg.thumbnail", "ffmpeg failed").
			WithField("stderr", msg)
	}
	return errors.New(errors.CodeProbe, "ffmpeg produced no thumbnail")
}
