package localfs

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"manimrender/internal/pkg/errors"
	"manimrender/internal/ports"
)

// LocalFS implements ports.ObjectStore on the local filesystem.
// Objects land at {root}/{bucket}/{key}.
type LocalFS struct {
	root    string
	baseURL string
}

// New returns a store rooted at root. When baseURL is empty the returned
// URLs are file:// URLs of the written paths.
func New(root, baseURL string) *LocalFS {
	return &LocalFS{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

func (l *LocalFS) Provider() string { return "localfs" }

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.New(errors.CodeUpload, "object_key is required")
	}
	rel := path.Clean("/" + path.Join(in.Bucket, in.ObjectKey))

	dst := filepath.Join(l.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUpload, "localfs.put", "create directory")
	}

	// Write to a sibling temp file so a reader never sees a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUpload, "localfs.put", "create temp file")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, in.NewReader())
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUpload, "localfs.put", "write object")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUpload, "localfs.put", "move object into place")
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n, URL: l.url(rel, dst)}, nil
}

func (l *LocalFS) url(rel, dst string) string {
	if l.baseURL != "" {
		return l.baseURL + rel
	}
	abs, err := filepath.Abs(dst)
	if err != nil {
		abs = dst
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
