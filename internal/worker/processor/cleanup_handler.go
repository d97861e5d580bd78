package processor

import (
	"os"

	"manimrender/internal/pkg/logger"
)

type Cleanup struct {
	log *logger.Logger
}

func NewCleanup(log *logger.Logger) *Cleanup {
	return &Cleanup{log: log}
}

// RemoveWorkspace deletes the job's work dir with everything manim left in it.
func (c *Cleanup) RemoveWorkspace(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		c.log.Warn("failed to remove work dir", "dir", dir, "error", err.Error())
	}
}
