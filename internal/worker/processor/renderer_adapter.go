package processor

import (
	"context"

	"manimrender/internal/models"
	"manimrender/internal/worker/renderer"
)

type RendererAdapter struct {
	r       renderer.Renderer
	quality renderer.Quality
}

func NewRendererAdapter(r renderer.Renderer, quality renderer.Quality) *RendererAdapter {
	return &RendererAdapter{r: r, quality: quality}
}

// Render renders the job's script inside workDir and returns the video path.
func (ra *RendererAdapter) Render(ctx context.Context, v models.Video, workDir string) (string, error) {
	res, err := ra.r.Render(ctx, renderer.Request{
		Script:  v.ManimScript,
		Quality: ra.quality,
		WorkDir: workDir,
	})
	if err != nil {
		return "", err
	}
	return res.VideoPath, nil
}
