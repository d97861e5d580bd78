package localfs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"manimrender/internal/ports"
)

func put(t *testing.T, l *LocalFS, bucket, key, body string) ports.PutObjectOutput {
	t.Helper()
	out, err := l.PutObject(context.Background(), ports.PutObjectInput{
		Bucket:    bucket,
		ObjectKey: key,
		Body:      bytes.NewReader([]byte(body)),
		Size:      int64(len(body)),
	})
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	return out
}

func TestPutObjectWritesAndOverwrites(t *testing.T) {
	root := t.TempDir()
	l := New(root, "http://cdn.local/media/")

	out := put(t, l, "videos", "v1.mp4", "first")
	if out.URL != "http://cdn.local/media/videos/v1.mp4" {
		t.Errorf("unexpected URL %q", out.URL)
	}
	if out.Size != 5 {
		t.Errorf("expected size 5, got %d", out.Size)
	}

	put(t, l, "videos", "v1.mp4", "second")

	got, err := os.ReadFile(filepath.Join(root, "videos", "v1.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("expected overwrite, got %q", got)
	}

	entries, _ := os.ReadDir(filepath.Join(root, "videos"))
	if len(entries) != 1 {
		t.Errorf("expected only the object in the bucket dir, got %d entries", len(entries))
	}
}

func TestPutObjectFileURL(t *testing.T) {
	l := New(t.TempDir(), "")

	out := put(t, l, "videos", "v1_thumb.jpg", "jpg")
	if !strings.HasPrefix(out.URL, "file://") || !strings.HasSuffix(out.URL, "/videos/v1_thumb.jpg") {
		t.Errorf("unexpected URL %q", out.URL)
	}
}

func TestPutObjectStaysUnderRoot(t *testing.T) {
	root := t.TempDir()
	l := New(root, "")

	put(t, l, "videos", "../../escape.mp4", "x")

	if _, err := os.Stat(filepath.Join(root, "escape.mp4")); err != nil {
		t.Errorf("expected object clamped under root: %v", err)
	}
}

func TestPutObjectRequiresKey(t *testing.T) {
	l := New(t.TempDir(), "")
	_, err := l.PutObject(context.Background(), ports.PutObjectInput{Bucket: "videos", Body: bytes.NewReader(nil)})
	if err == nil {
		t.Fatal("expected error for empty key")
	}
}
