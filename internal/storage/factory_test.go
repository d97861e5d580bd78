package storage

import (
	"context"
	"testing"

	"manimrender/internal/adapters/supabase"
	"manimrender/internal/config"
	"manimrender/internal/pkg/errors"
)

func TestNewProvider(t *testing.T) {
	sb := supabase.NewClient("https://abc.supabase.co", "key", 0)

	tests := []struct {
		name     string
		cfg      config.Config
		provider string
	}{
		{"default", config.Config{}, "supabase"},
		{"supabase", config.Config{StorageProvider: "supabase"}, "supabase"},
		{"localfs", config.Config{StorageProvider: "localfs", StorageLocalRoot: t.TempDir()}, "localfs"},
		{"gdrive", config.Config{
			StorageProvider:    "gdrive",
			GDriveClientID:     "id",
			GDriveClientSecret: "secret",
			GDriveRefreshToken: "refresh",
		}, "gdrive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(context.Background(), &tt.cfg, sb)
			if err != nil {
				t.Fatalf("NewProvider: %v", err)
			}
			if p.Provider() != tt.provider {
				t.Errorf("expected %s, got %s", tt.provider, p.Provider())
			}
		})
	}
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(context.Background(), &config.Config{StorageProvider: "ftp"}, nil)
	if !errors.IsCode(err, errors.CodeConfig) {
		t.Fatalf("expected CONFIG_ERROR, got %v", err)
	}
}
