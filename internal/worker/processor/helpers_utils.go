package processor

import (
	"fmt"
	"strings"
)

// OutputKeys holds the storage keys of a job's artifacts.
type OutputKeys struct {
	Video string
	Thumb string
}

// GenerateOutputKeys returns {id}.mp4 and {id}_thumb.jpg. Keys are
// deterministic so a re-render overwrites the previous artifacts.
func GenerateOutputKeys(videoID string) OutputKeys {
	return OutputKeys{
		Video: fmt.Sprintf("%s.mp4", videoID),
		Thumb: fmt.Sprintf("%s_thumb.jpg", videoID),
	}
}

// SanitizeFilename strips path separators so an id is safe as a file name.
func SanitizeFilename(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "..", "")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" {
		return "video"
	}
	return s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
