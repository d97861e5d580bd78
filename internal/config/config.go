package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"manimrender/internal/pkg/errors"
)

type Config struct {
	SupabaseURL        string `env:"SUPABASE_URL,required,notEmpty"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY,required,notEmpty"`

	VideosTable   string `env:"VIDEOS_TABLE"   envDefault:"videos"`
	StorageBucket string `env:"STORAGE_BUCKET" envDefault:"videos"`

	JobStore    string `env:"JOB_STORE"    envDefault:"postgrest"`
	DatabaseURL string `env:"DATABASE_URL"`

	StorageProvider     string `env:"STORAGE_PROVIDER"       envDefault:"supabase"`
	S3Endpoint          string `env:"S3_ENDPOINT"`
	S3AccessKey         string `env:"S3_ACCESS_KEY"`
	S3SecretKey         string `env:"S3_SECRET_KEY"`
	S3Region            string `env:"S3_REGION"`
	S3UseSSL            bool   `env:"S3_USE_SSL"             envDefault:"true"`
	S3PublicBaseURL     string `env:"S3_PUBLIC_BASE_URL"`
	GDriveClientID      string `env:"GDRIVE_CLIENT_ID"`
	GDriveClientSecret  string `env:"GDRIVE_CLIENT_SECRET"`
	GDriveRefreshToken  string `env:"GDRIVE_REFRESH_TOKEN"`
	GDriveFolderID      string `env:"GDRIVE_FOLDER_ID"`
	GDriveSharePublic   bool   `env:"GDRIVE_SHARE_PUBLIC"    envDefault:"true"`
	StorageLocalRoot    string `env:"STORAGE_LOCAL_ROOT"     envDefault:"./storage"`
	StorageLocalBaseURL string `env:"STORAGE_LOCAL_BASE_URL"`

	RedisURL    string        `env:"REDIS_URL"`
	RunLockKey  string        `env:"RUN_LOCK_KEY" envDefault:"manimrender:lock"`
	RunLockTTL  time.Duration `env:"RUN_LOCK_TTL" envDefault:"30m"`
	EventsList  string        `env:"EVENTS_LIST"`
	PushGateway string        `env:"PUSHGATEWAY_URL"`

	ManimBin         string        `env:"MANIM_BIN"         envDefault:"manim"`
	FFmpegBin        string        `env:"FFMPEG_BIN"        envDefault:"ffmpeg"`
	FFprobeBin       string        `env:"FFPROBE_BIN"       envDefault:"ffprobe"`
	SceneName        string        `env:"SCENE_NAME"        envDefault:"ExampleScene"`
	RenderTimeout    time.Duration `env:"RENDER_TIMEOUT"    envDefault:"5m"`
	ProbeTimeout     time.Duration `env:"PROBE_TIMEOUT"     envDefault:"10s"`
	ThumbnailTimeout time.Duration `env:"THUMBNAIL_TIMEOUT" envDefault:"30s"`
	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT"      envDefault:"60s"`

	WorkDir       string `env:"WORK_DIR"`
	RenderLogsDir string `env:"RENDER_LOGS_DIR" envDefault:"render-logs"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file, then the environment. Missing
// credentials come back as a CONFIG_ERROR.
func Load() (*Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the configuration from the environment only.
func Parse() (*Config, error) {
	if strings.TrimSpace(os.Getenv("SUPABASE_URL")) == "" || strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_KEY")) == "" {
		return nil, errors.New(errors.CodeConfig, "Missing SUPABASE_URL or SUPABASE_SERVICE_KEY")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfig, "config.parse", "invalid environment")
	}

	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	cfg.SupabaseServiceKey = strings.TrimSpace(cfg.SupabaseServiceKey)
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.JobStore {
	case "postgrest":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New(errors.CodeConfig, "DATABASE_URL is required when JOB_STORE=postgres")
		}
	default:
		return errors.Newf(errors.CodeConfig, "unknown JOB_STORE: %s", c.JobStore)
	}

	switch c.StorageProvider {
	case "supabase", "localfs":
	case "s3":
		if c.S3Endpoint == "" || c.S3AccessKey == "" || c.S3SecretKey == "" {
			return errors.New(errors.CodeConfig, "S3_ENDPOINT, S3_ACCESS_KEY and S3_SECRET_KEY are required when STORAGE_PROVIDER=s3")
		}
	case "gdrive":
		if c.GDriveClientID == "" || c.GDriveClientSecret == "" || c.GDriveRefreshToken == "" {
			return errors.New(errors.CodeConfig, "GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN are required when STORAGE_PROVIDER=gdrive")
		}
	default:
		return errors.Newf(errors.CodeConfig, "unknown STORAGE_PROVIDER: %s", c.StorageProvider)
	}

	if c.RunLockTTL <= 0 {
		return errors.Newf(errors.CodeConfig, "RUN_LOCK_TTL must be positive, got %s", c.RunLockTTL)
	}
	// The lock is refreshed between jobs, so it has to survive one job.
	if c.RedisURL != "" && c.RunLockTTL <= c.JobBudget() {
		return errors.Newf(errors.CodeConfig, "RUN_LOCK_TTL (%s) must exceed the worst-case time of one job (%s)",
			c.RunLockTTL, c.JobBudget())
	}
	return nil
}

// JobBudget is the longest one job can take: render, probe, thumbnail, up to
// four upload requests and the status write.
func (c *Config) JobBudget() time.Duration {
	return c.RenderTimeout + c.ProbeTimeout + c.ThumbnailTimeout + 5*c.HTTPTimeout
}
