package gdrive

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"manimrender/internal/pkg/errors"
	"manimrender/internal/ports"
)

// Client implements ports.ObjectStore backed by Google Drive.
// The object key is used as the Drive file name inside the folder; the
// returned ObjectKey is the Drive fileId.
type Client struct {
	srv      *drive.Service
	folderID string
	public   bool
}

// NewClient wraps srv. When public is set every uploaded file gets an
// "anyone with the link" reader permission so its URL can be served.
func NewClient(srv *drive.Service, folderID string, public bool) *Client {
	return &Client{srv: srv, folderID: folderID, public: public}
}

func (c *Client) Provider() string { return "gdrive" }

const fileFields = "id, name, webContentLink, webViewLink"

// PutObject uploads a new file or replaces the content of the file that
// already has the same name in the folder.
func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.New(errors.CodeUpload, "object_key is required")
	}

	existingID, err := c.find(ctx, in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUpload, "gdrive.put", "lookup existing file")
	}

	opts := []googleapi.MediaOption{}
	if in.ContentType != "" {
		opts = append(opts, googleapi.ContentType(in.ContentType))
	}

	var f *drive.File
	if existingID != "" {
		f, err = c.srv.Files.Update(existingID, &drive.File{}).
			Media(in.NewReader(), opts...).
			SupportsAllDrives(true).
			Fields(fileFields).
			Context(ctx).
			Do()
	} else {
		file := &drive.File{Name: in.ObjectKey, MimeType: in.ContentType}
		if c.folderID != "" {
			file.Parents = []string{c.folderID}
		}
		f, err = c.srv.Files.Create(file).
			Media(in.NewReader(), opts...).
			SupportsAllDrives(true).
			Fields(fileFields).
			Context(ctx).
			Do()
	}
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUpload, "gdrive.put", "upload failed")
	}

	if c.public && existingID == "" {
		_, err := c.srv.Permissions.Create(f.Id, &drive.Permission{Type: "anyone", Role: "reader"}).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUpload, "gdrive.put", "share file")
		}
	}

	return ports.PutObjectOutput{ObjectKey: f.Id, Size: in.Size, URL: fileURL(f)}, nil
}

func (c *Client) find(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", escape(name))
	if c.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escape(c.folderID))
	}

	res, err := c.srv.Files.List().
		Q(q).
		Fields("files(id)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	if len(res.Files) == 0 {
		return "", nil
	}
	return res.Files[0].Id, nil
}

func fileURL(f *drive.File) string {
	switch {
	case f.WebContentLink != "":
		return f.WebContentLink
	case f.WebViewLink != "":
		return f.WebViewLink
	default:
		return "https://drive.google.com/uc?export=download&id=" + f.Id
	}
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
