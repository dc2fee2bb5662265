package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	WatchDir       string `yaml:"watch_dir"`
	OutputDir      string `yaml:"output_dir"`
	FailedDir      string `yaml:"failed_dir"`
	PassthroughDir string `yaml:"passthrough_dir"`

	Patterns []string `yaml:"patterns"`

	Concurrency   int           `yaml:"concurrency"`
	Debounce      time.Duration `yaml:"debounce"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`

	DryRun      bool `yaml:"dry_run"`
	Passthrough bool `yaml:"passthrough"`

	HealthSocket string `yaml:"health_socket"`

	Rename  Rename  `yaml:"rename"`
	Split   Split   `yaml:"split"`
	Remote  Remote  `yaml:"remote"`
	Index   Index   `yaml:"index"`
	Archive Archive `yaml:"archive"`
}

type Rename struct {
	Apply         bool  `yaml:"apply"`
	MaxFileSizeMb int64 `yaml:"max_file_size_mb"`
}

type Split struct {
	Enabled         bool          `yaml:"enabled"`
	Mode            string        `yaml:"mode"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollAttempts int           `yaml:"max_poll_attempts"`
	DeleteSource    bool          `yaml:"delete_source"`
	MaxFileSizeMb   int64         `yaml:"max_file_size_mb"`
}

type Remote struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	APIKey  string        `yaml:"-"`
}

type Index struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   Redis         `yaml:"redis"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Archive struct {
	Enabled       bool  `yaml:"enabled"`
	QueueCapacity int   `yaml:"queue_capacity"`
	PoolSize      int   `yaml:"pool_size"`
	MaxRetries    int   `yaml:"max_retries"`
	MinIO         MinIO `yaml:"minio"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
	BasePath        string `yaml:"base_path"`
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	// Secrets come from the environment, optionally seeded by a .env file.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read file %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal yaml: %w", err)
	}

	cfg.Remote.APIKey = os.Getenv("DOCSORT_API_KEY")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Patterns:      []string{"*.pdf"},
		Concurrency:   4,
		Debounce:      2 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
		Rename: Rename{
			MaxFileSizeMb: 50,
		},
		Split: Split{
			Mode:            "auto",
			PollInterval:    2 * time.Second,
			MaxPollAttempts: 300,
			MaxFileSizeMb:   100,
		},
		Index: Index{
			TTL: 720 * time.Hour,
		},
	}
}

func (cfg *Config) validate() error {
	if cfg.WatchDir == "" {
		return fmt.Errorf("watch_dir is empty")
	}
	if cfg.OutputDir == "" {
		return fmt.Errorf("output_dir is empty")
	}
	if cfg.Concurrency < 1 || cfg.Concurrency > 10 {
		return fmt.Errorf("concurrency must be within [1, 10], got %d", cfg.Concurrency)
	}
	if cfg.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %s", cfg.Debounce)
	}
	if cfg.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must not be negative, got %d", cfg.RetryAttempts)
	}
	if cfg.RetryDelay <= 0 {
		return fmt.Errorf("retry_delay must be positive, got %s", cfg.RetryDelay)
	}
	if len(cfg.Patterns) == 0 {
		return fmt.Errorf("patterns is empty")
	}
	if cfg.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is empty")
	}
	if cfg.Split.Enabled {
		if cfg.Split.PollInterval <= 0 {
			return fmt.Errorf("split.poll_interval must be positive, got %s", cfg.Split.PollInterval)
		}
		if cfg.Split.MaxPollAttempts <= 0 {
			return fmt.Errorf("split.max_poll_attempts must be positive, got %d", cfg.Split.MaxPollAttempts)
		}
	}
	if cfg.Index.Enabled && cfg.Index.Redis.Addr == "" {
		return fmt.Errorf("index.redis.addr is empty")
	}
	if cfg.Archive.Enabled {
		if cfg.Archive.MinIO.Endpoint == "" {
			return fmt.Errorf("archive.minio.endpoint is empty")
		}
		if cfg.Archive.MinIO.Bucket == "" {
			return fmt.Errorf("archive.minio.bucket is empty")
		}
	}
	return nil
}
