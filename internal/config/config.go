// Package config provides the configuration structure for the scripture-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"

	"github.com/book-expert/scripture-service/internal/catalog"
)

// Cache backends.
const (
	BackendNATS   = "nats"
	BackendS3     = "s3"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Environment overrides for secrets kept out of the TOML file.
const (
	envSpeechAPIKey       = "SPEECH_API_KEY"
	envAWSAccessKeyID     = "AWS_ACCESS_KEY_ID"
	envAWSSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	envFile               = ".env"
)

// Upstream calls a text request may make in the worst case.
const textRequestUpstreamCalls = 4

var (
	// ErrMissingField indicates that a required configuration value is empty.
	ErrMissingField = errors.New("missing required configuration value")
	// ErrInvalidValue indicates that a configuration value is out of range.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                 string `toml:"url"`
	TextRequestSubject  string `toml:"text_request_subject"`
	AudioRequestSubject string `toml:"audio_request_subject"`
	QueueGroup          string `toml:"queue_group"`
	ObjectStoreBucket   string `toml:"object_store_bucket"`
	DefaultLanguage     string `toml:"default_language"`
}

// UpstreamConfig locates the third-party content source.
type UpstreamConfig struct {
	BaseURL        string `toml:"base_url"`
	LandingPath    string `toml:"landing_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	UserAgent      string `toml:"user_agent"`
}

// SpeechConfig holds the speech synthesis API settings.
type SpeechConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Format         string `toml:"format"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// NarrationConfig tunes the narration pipeline.
type NarrationConfig struct {
	ChunkLimit           int    `toml:"chunk_limit"`
	SynthesisConcurrency int    `toml:"synthesis_concurrency"`
	FFmpegPath           string `toml:"ffmpeg_path"`
	StagingDir           string `toml:"staging_dir"`
	RequestTimeoutSecs   int    `toml:"request_timeout_seconds"`
}

// S3Config holds the S3 backend settings.
type S3Config struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	ForcePathStyle  bool   `toml:"force_path_style"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

// SQLiteConfig holds the SQLite backend settings.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// CacheConfig selects and configures the object store behind the content cache.
type CacheConfig struct {
	Backend       string       `toml:"backend"`
	PublicBaseURL string       `toml:"public_base_url"`
	S3            S3Config     `toml:"s3"`
	SQLite        SQLiteConfig `toml:"sqlite"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS      NATSConfig      `toml:"nats"`
	Upstream  UpstreamConfig  `toml:"upstream"`
	Speech    SpeechConfig    `toml:"speech"`
	Narration NarrationConfig `toml:"narration"`
	Cache     CacheConfig     `toml:"cache"`
	Catalog   catalog.Tables  `toml:"catalog"`
	Paths     PathsConfig     `toml:"paths"`
}

// Load loads the configuration for the scripture-service. A .env file, when present, is
// read first so secrets can be supplied through the environment.
func Load(log *logger.Logger) (*Config, error) {
	envErr := godotenv.Load(envFile)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn("Failed to read %s: %v", envFile, envErr)
	}

	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyEnvironment()
	cfg.ApplyDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyEnvironment overrides secrets with values from the environment.
func (c *Config) ApplyEnvironment() {
	if value := os.Getenv(envSpeechAPIKey); value != "" {
		c.Speech.APIKey = value
	}

	if value := os.Getenv(envAWSAccessKeyID); value != "" {
		c.Cache.S3.AccessKeyID = value
	}

	if value := os.Getenv(envAWSSecretAccessKey); value != "" {
		c.Cache.S3.SecretAccessKey = value
	}
}

// ApplyDefaults fills optional values.
func (c *Config) ApplyDefaults() {
	if c.NATS.TextRequestSubject == "" {
		c.NATS.TextRequestSubject = "scripture.text.get"
	}

	if c.NATS.AudioRequestSubject == "" {
		c.NATS.AudioRequestSubject = "scripture.audio.get"
	}

	if c.NATS.QueueGroup == "" {
		c.NATS.QueueGroup = "scripture-workers"
	}

	if c.NATS.DefaultLanguage == "" {
		c.NATS.DefaultLanguage = "es"
	}

	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 30
	}

	if c.Speech.TimeoutSeconds == 0 {
		c.Speech.TimeoutSeconds = 120
	}

	if c.Narration.SynthesisConcurrency == 0 {
		c.Narration.SynthesisConcurrency = 4
	}

	if c.Narration.FFmpegPath == "" {
		c.Narration.FFmpegPath = "ffmpeg"
	}

	if c.Narration.StagingDir == "" {
		c.Narration.StagingDir = os.TempDir()
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendNATS
	}

	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = os.TempDir()
	}
}

// Validate checks required values for the configured backend.
func (c *Config) Validate() error {
	switch {
	case c.Upstream.BaseURL == "":
		return fmt.Errorf("%w: upstream.base_url", ErrMissingField)
	case c.Speech.BaseURL == "":
		return fmt.Errorf("%w: speech.base_url", ErrMissingField)
	case c.Narration.ChunkLimit < 0:
		return fmt.Errorf("%w: narration.chunk_limit must not be negative", ErrInvalidValue)
	case c.Narration.SynthesisConcurrency < 1:
		return fmt.Errorf("%w: narration.synthesis_concurrency must be positive", ErrInvalidValue)
	case len(c.Catalog.Versions) == 0:
		return fmt.Errorf("%w: catalog.versions", ErrMissingField)
	}

	switch c.Cache.Backend {
	case BackendNATS:
		if c.NATS.URL == "" || c.NATS.ObjectStoreBucket == "" {
			return fmt.Errorf("%w: nats.url and nats.object_store_bucket", ErrMissingField)
		}
	case BackendS3:
		if c.Cache.S3.Bucket == "" || c.Cache.S3.Region == "" {
			return fmt.Errorf("%w: cache.s3.bucket and cache.s3.region", ErrMissingField)
		}
	case BackendSQLite:
		if c.Cache.SQLite.Path == "" {
			return fmt.Errorf("%w: cache.sqlite.path", ErrMissingField)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown cache.backend %q", ErrInvalidValue, c.Cache.Backend)
	}

	return nil
}

// LandingURL is the page the address token is scraped from.
func (c *Config) LandingURL() string {
	return c.Upstream.BaseURL + c.Upstream.LandingPath
}

// UpstreamTimeout is the per request upstream deadline.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// TextRequestTimeout is the deadline for one text request. A stale token costs two landing
// page fetches and two chapter fetches, each bounded by the upstream timeout.
func (c *Config) TextRequestTimeout() time.Duration {
	return textRequestUpstreamCalls * c.UpstreamTimeout()
}

// SpeechTimeout is the per chunk synthesis deadline.
func (c *Config) SpeechTimeout() time.Duration {
	return time.Duration(c.Speech.TimeoutSeconds) * time.Second
}

// AudioRequestTimeout is the deadline for one narration request, zero for the worker default.
func (c *Config) AudioRequestTimeout() time.Duration {
	return time.Duration(c.Narration.RequestTimeoutSecs) * time.Second
}
