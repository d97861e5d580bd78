package util

import "github.com/google/uuid"

// NewID returns prefix_<uuid>, e.g. run_0b6f....
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
