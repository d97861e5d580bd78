package storage

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"manimrender/internal/adapters/storage/gdrive"
	"manimrender/internal/adapters/storage/localfs"
	"manimrender/internal/adapters/storage/s3"
	"manimrender/internal/adapters/supabase"
	"manimrender/internal/config"
	"manimrender/internal/pkg/errors"
)

// NewProvider builds the object store selected by STORAGE_PROVIDER. sb is
// used by the default supabase provider.
func NewProvider(ctx context.Context, cfg *config.Config, sb *supabase.Client) (Provider, error) {
	switch cfg.StorageProvider {
	case "", "supabase":
		return supabase.NewStorage(sb), nil

	case "localfs":
		return localfs.New(cfg.StorageLocalRoot, cfg.StorageLocalBaseURL), nil

	case "s3":
		st, err := s3.New(s3.Config{
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Region:        cfg.S3Region,
			UseSSL:        cfg.S3UseSSL,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		if err := st.EnsureBucket(ctx, cfg.StorageBucket); err != nil {
			return nil, err
		}
		return st, nil

	case "gdrive":
		return newGDriveProvider(ctx, cfg)

	default:
		return nil, errors.Newf(errors.CodeConfig, "unknown storage provider: %s", cfg.StorageProvider)
	}
}

func newGDriveProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	conf := &oauth2.Config{
		ClientID:     cfg.GDriveClientID,
		ClientSecret: cfg.GDriveClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}

	tok := &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken}
	httpClient := conf.Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfig, "storage.gdrive", "create drive service")
	}

	return gdrive.NewClient(srv, cfg.GDriveFolderID, cfg.GDriveSharePublic), nil
}
