package supabase

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"manimrender/internal/pkg/errors"
	"manimrender/internal/ports"
)

// Storage implements ports.ObjectStore on Supabase Storage.
type Storage struct {
	c *Client
}

func NewStorage(c *Client) *Storage {
	return &Storage{c: c}
}

func (s *Storage) Provider() string { return "supabase" }

// PublicURL follows the Supabase convention for objects in public buckets.
func (s *Storage) PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.c.baseURL, bucket, key)
}

// PutObject creates the object with POST. When that fails for any reason,
// typically 409 because the key already exists, it retries once with PUT,
// which overwrites in place. Each attempt reads the body through its own
// reader: the transport may still be draining the POST body after the
// response arrives.
func (s *Storage) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.Bucket == "" || in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.New(errors.CodeUpload, "bucket and object key are required")
	}
	if in.Body == nil {
		return ports.PutObjectOutput{}, errors.New(errors.CodeUpload, "upload body is required")
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.c.baseURL, in.Bucket, strings.TrimLeft(in.ObjectKey, "/"))

	createErr := s.send(ctx, http.MethodPost, url, in)
	if createErr == nil {
		return s.output(in), nil
	}

	if err := s.send(ctx, http.MethodPut, url, in); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUpload, "storage.put",
			"create and update both failed").
			WithField("create_error", createErr.Error()).
			WithField("key", in.ObjectKey)
	}
	return s.output(in), nil
}

func (s *Storage) send(ctx context.Context, method, url string, in ports.PutObjectInput) error {
	req, err := s.c.newRequest(ctx, method, url, in.NewReader())
	if err != nil {
		return err
	}
	req.ContentLength = in.Size
	if in.ContentType != "" {
		req.Header.Set("Content-Type", in.ContentType)
	}

	_, err = s.c.do(req, "storage."+strings.ToLower(method), http.StatusOK, http.StatusCreated)
	return err
}

func (s *Storage) output(in ports.PutObjectInput) ports.PutObjectOutput {
	return ports.PutObjectOutput{
		ObjectKey: in.ObjectKey,
		Size:      in.Size,
		URL:       s.PublicURL(in.Bucket, in.ObjectKey),
	}
}
