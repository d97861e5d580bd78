package processor

import (
	"os"

	"manimrender/internal/pkg/errors"
)

// InputHandler prepares the scratch directory a job renders in.
type InputHandler struct {
	workRoot string
}

func NewInputHandler(workRoot string) *InputHandler {
	return &InputHandler{workRoot: workRoot}
}

// Workspace creates a fresh, empty directory for videoID under the work
// root. Directories are never reused between jobs.
func (ih *InputHandler) Workspace(videoID string) (string, error) {
	if ih.workRoot != "" {
		if err := os.MkdirAll(ih.workRoot, 0o755); err != nil {
			return "", errors.WrapWithCode(err, errors.CodeRender, "processor.workspace", "create work root")
		}
	}

	dir, err := os.MkdirTemp(ih.workRoot, "render-"+SanitizeFilename(videoID)+"-")
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeRender, "processor.workspace", "create work dir")
	}
	return dir, nil
}
