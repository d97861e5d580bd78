package ports

import (
	"context"
	"io"
)

// PutObjectInput describes one upload. Body is read through NewReader so
// that every attempt gets an independent reader over the same bytes.
type PutObjectInput struct {
	Bucket      string
	ObjectKey   string
	ContentType string
	Body        io.ReaderAt
	Size        int64
}

// NewReader returns a fresh reader over the first Size bytes of Body.
func (in PutObjectInput) NewReader() io.Reader {
	return io.NewSectionReader(in.Body, 0, in.Size)
}

type PutObjectOutput struct {
	// ObjectKey is the key the provider stored the object under. For gdrive
	// this is the Drive fileId, elsewhere it is the requested key.
	ObjectKey string
	Size      int64
	// URL is the public URL the object is served from.
	URL string
}

// ObjectStore: implementations (supabase, s3, gdrive, localfs).
// PutObject creates the object or overwrites an existing one at the same key.
type ObjectStore interface {
	Provider() string
	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
}
