package processor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"manimrender/internal/pkg/errors"
)

// writeFailureNote leaves {logsDir}/{id}.log behind for a failed job. An
// existing note from an earlier run is replaced.
func writeFailureNote(logsDir, videoID, runID string, cause error) error {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Render failed for %s\n", videoID)
	fmt.Fprintf(&b, "run: %s\n", runID)
	fmt.Fprintf(&b, "at: %s\n", time.Now().UTC().Format(time.RFC3339))
	if cause != nil {
		fmt.Fprintf(&b, "code: %s\n", errors.GetCode(cause))
		fmt.Fprintf(&b, "error: %s\n", cause.Error())
		if s, ok := errors.GetFields(cause)["stderr"].(string); ok && s != "" {
			fmt.Fprintf(&b, "\nstderr (tail):\n%s\n", s)
		}
	}

	return os.WriteFile(filepath.Join(logsDir, SanitizeFilename(videoID)+".log"), []byte(b.String()), 0o644)
}
