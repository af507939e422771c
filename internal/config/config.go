package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the crosspost server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Secrets   SecretsConfig
	Drive     DriveConfig
	Transcode TranscodeConfig
	Google    GoogleConfig
	Meta      MetaConfig
	YouTube   YouTubeConfig
	Instagram InstagramConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// SecretsConfig carries the key used to encrypt stored OAuth tokens.
type SecretsConfig struct {
	// CredentialKey is the raw 32-byte key decoded from
	// CREDENTIAL_ENCRYPTION_KEY (64 hex characters).
	CredentialKey []byte
}

type DriveConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type TranscodeConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

type MetaConfig struct {
	AppID         string
	AppSecret     string
	GraphURL      string
	VideoGraphURL string
	APIVersion    string
}

type YouTubeConfig struct {
	UploadURL string
	Timeout   time.Duration
}

type InstagramConfig struct {
	PollInterval  time.Duration
	MaxPollChecks int
}

type WorkerConfig struct {
	Count        int
	PollInterval time.Duration
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value is
// missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CROSSPOST_PORT", 8080),
			Env:  envString("CROSSPOST_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Drive: DriveConfig{
			BaseURL: os.Getenv("DRIVE_BASE_URL"),
			APIKey:  os.Getenv("DRIVE_API_KEY"),
			Timeout: envDuration("DRIVE_TIMEOUT", 60*time.Second),
		},
		Transcode: TranscodeConfig{
			BaseURL: os.Getenv("TRANSCODE_BASE_URL"),
			APIKey:  os.Getenv("TRANSCODE_API_KEY"),
			Timeout: envDuration("TRANSCODE_TIMEOUT", 120*time.Second),
		},
		Google: GoogleConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			TokenURL:     envString("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		},
		Meta: MetaConfig{
			AppID:         os.Getenv("META_APP_ID"),
			AppSecret:     os.Getenv("META_APP_SECRET"),
			GraphURL:      envString("META_GRAPH_URL", "https://graph.facebook.com"),
			VideoGraphURL: envString("META_VIDEO_GRAPH_URL", "https://graph-video.facebook.com"),
			APIVersion:    envString("META_API_VERSION", "v19.0"),
		},
		YouTube: YouTubeConfig{
			UploadURL: envString("YOUTUBE_UPLOAD_URL", "https://www.googleapis.com/upload/youtube/v3/videos"),
			Timeout:   envDuration("YOUTUBE_TIMEOUT", 10*time.Minute),
		},
		Instagram: InstagramConfig{
			PollInterval:  envDuration("INSTAGRAM_POLL_INTERVAL", 5*time.Second),
			MaxPollChecks: envInt("INSTAGRAM_MAX_POLL_CHECKS", 20),
		},
		Worker: WorkerConfig{
			Count:        envInt("WORKER_COUNT", 4),
			PollInterval: envDuration("WORKER_POLL_INTERVAL", time.Second),
		},
	}

	rawKey := os.Getenv("CREDENTIAL_ENCRYPTION_KEY")
	if rawKey != "" {
		key, err := hex.DecodeString(rawKey)
		if err != nil {
			return nil, fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY must be hex-encoded: %w", err)
		}
		cfg.Secrets.CredentialKey = key
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if len(c.Secrets.CredentialKey) != 32 {
		return fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY must be 64 hex characters (32 bytes)")
	}

	if c.Drive.BaseURL == "" {
		return fmt.Errorf("DRIVE_BASE_URL is required")
	}
	if !hasHTTPScheme(c.Drive.BaseURL) {
		return fmt.Errorf("DRIVE_BASE_URL must start with http:// or https://, got %q", c.Drive.BaseURL)
	}

	if c.Transcode.BaseURL == "" {
		return fmt.Errorf("TRANSCODE_BASE_URL is required")
	}
	if !hasHTTPScheme(c.Transcode.BaseURL) {
		return fmt.Errorf("TRANSCODE_BASE_URL must start with http:// or https://, got %q", c.Transcode.BaseURL)
	}

	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if c.Meta.AppID == "" || c.Meta.AppSecret == "" {
		return fmt.Errorf("META_APP_ID and META_APP_SECRET are required")
	}

	if c.Instagram.MaxPollChecks <= 0 {
		return fmt.Errorf("INSTAGRAM_MAX_POLL_CHECKS must be positive")
	}
	if c.Worker.Count <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive")
	}

	return nil
}

func hasHTTPScheme(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
