package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the pipeline. Values come from an
// optional YAML file plus environment variables; environment variables
// win. Secrets come from the environment only.
type Config struct {
	Env string `yaml:"env" env:"ENVIRONMENT" env-default:"production"`

	Database  DatabaseConfig  `yaml:"database"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Extract   ExtractConfig   `yaml:"extract"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Web       WebConfig       `yaml:"web"`
}

// DatabaseConfig holds PostgreSQL settings. Variable names follow the
// standard PG* convention.
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User     string `yaml:"user" env:"PGUSER" env-default:"permitlink"`
	Password string `yaml:"-" env:"PGPASSWORD"`
	Database string `yaml:"database" env:"PGDATABASE" env-default:"permitlink"`
	SSLMode  string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	MaxOpenConns int `yaml:"max_open_conns" env:"PGMAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns int `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"10"`

	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// DSN builds the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// DiscoveryConfig tunes the service-directory walk.
type DiscoveryConfig struct {
	// Keywords is the case-insensitive vocabulary a service or layer
	// name must contain to be considered relevant.
	Keywords []string `yaml:"keywords" env:"DISCOVERY_KEYWORDS" env-separator:"," env-default:"septic,sewage,onsite,wastewater,perc,permit,environmental,health"`

	// Token is an optional access token appended to every request.
	Token string `yaml:"-" env:"PORTAL_TOKEN"`

	HTTPTimeout   time.Duration `yaml:"http_timeout" env:"DISCOVERY_HTTP_TIMEOUT" env-default:"30s"`
	FolderWorkers int           `yaml:"folder_workers" env:"DISCOVERY_FOLDER_WORKERS" env-default:"4"`
}

// ExtractConfig tunes paginated batch extraction.
type ExtractConfig struct {
	BatchSize       int           `yaml:"batch_size" env:"EXTRACT_BATCH_SIZE" env-default:"1000"`
	MaxAttempts     int           `yaml:"max_attempts" env:"EXTRACT_MAX_ATTEMPTS" env-default:"3"`
	RetryDelay      time.Duration `yaml:"retry_delay" env:"EXTRACT_RETRY_DELAY" env-default:"5s"`
	RateDelay       time.Duration `yaml:"rate_delay" env:"EXTRACT_RATE_DELAY" env-default:"500ms"`
	HTTPTimeout     time.Duration `yaml:"http_timeout" env:"EXTRACT_HTTP_TIMEOUT" env-default:"60s"`
	CheckpointEvery int           `yaml:"checkpoint_every" env:"EXTRACT_CHECKPOINT_EVERY" env-default:"50000"`
	LayerWorkers    int           `yaml:"layer_workers" env:"EXTRACT_LAYER_WORKERS" env-default:"4"`
}

// ArchiveConfig enables optional raw-batch archival to object storage.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ARCHIVE_ENABLED" env-default:"false"`
	Endpoint  string `yaml:"endpoint" env:"ARCHIVE_ENDPOINT" env-default:"localhost:9000"`
	AccessKey string `yaml:"-" env:"ARCHIVE_ACCESS_KEY"`
	SecretKey string `yaml:"-" env:"ARCHIVE_SECRET_KEY"`
	UseSSL    bool   `yaml:"use_ssl" env:"ARCHIVE_USE_SSL" env-default:"false"`
	Bucket    string `yaml:"bucket" env:"ARCHIVE_BUCKET" env-default:"raw-batches"`
}

// WebConfig holds the status/report API settings.
type WebConfig struct {
	Host string `yaml:"host" env:"WEB_HOST" env-default:"127.0.0.1"`
	Port int    `yaml:"port" env:"WEB_PORT" env-default:"8080"`
}

// Load reads configuration from the given YAML path (skipped when the
// file does not exist) and the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
			return &cfg, nil
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment config: %w", err)
	}
	return &cfg, nil
}
