package util

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewID(t *testing.T) {
	a, b := NewID("run"), NewID("run")
	if a == b {
		t.Fatal("expected distinct ids")
	}
	if !strings.HasPrefix(a, "run_") {
		t.Errorf("missing prefix: %s", a)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(a, "run_")); err != nil {
		t.Errorf("suffix is not a uuid: %v", err)
	}
}
