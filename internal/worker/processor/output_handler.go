package processor

import (
	"context"
	"os"

	"manimrender/internal/pkg/errors"
	"manimrender/internal/ports"
)

// OutputHandler uploads rendered artifacts to the object store.
type OutputHandler struct {
	store  ports.ObjectStore
	bucket string
}

func NewOutputHandler(store ports.ObjectStore, bucket string) *OutputHandler {
	if bucket == "" {
		bucket = "videos"
	}
	return &OutputHandler{store: store, bucket: bucket}
}

// Upload sends the file at localPath under key and returns its public URL.
func (oh *OutputHandler) Upload(ctx context.Context, localPath, key, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUpload, "processor.upload", "open "+key)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUpload, "processor.upload", "stat "+key)
	}

	out, err := oh.store.PutObject(ctx, ports.PutObjectInput{
		Bucket:      oh.bucket,
		ObjectKey:   key,
		ContentType: contentType,
		Body:        f,
		Size:        st.Size(),
	})
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUpload, "processor.upload", "upload "+key)
	}
	return out.URL, nil
}
