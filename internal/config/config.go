package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Camera   CameraConfig   `yaml:"camera"`
	Decoder  DecoderConfig  `yaml:"decoder"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Identity IdentityConfig `yaml:"identity"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// AnalysisConfig points at the remote ingredient analysis service.
// A zero Timeout leaves the deadline to the caller's context.
type AnalysisConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type CameraConfig struct {
	// Device is used when no facing-specific device is configured.
	// It may be a device path (/dev/video0), an avfoundation index or an
	// rtsp/http URL of a network camera.
	Device         string            `yaml:"device"`
	Devices        map[string]string `yaml:"devices"` // facing mode -> device
	InputFormat    string            `yaml:"input_format"`
	Facing         string            `yaml:"facing"`
	Width          int               `yaml:"width"`
	Height         int               `yaml:"height"`
	FPS            int               `yaml:"fps"`
	StartupTimeout time.Duration     `yaml:"startup_timeout"`
}

type DecoderConfig struct {
	Formats   []string `yaml:"formats"`
	TryHarder bool     `yaml:"try_harder"`
}

type StorageConfig struct {
	Driver     string `yaml:"driver"` // sqlite or postgres
	SQLitePath string `yaml:"sqlite_path"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether decoded-frame snapshots should be archived.
func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != ""
}

// IdentityConfig names the user the station signs in as at startup.
type IdentityConfig struct {
	UserID string `yaml:"user_id"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}
	switch c.Camera.Facing {
	case "environment", "user":
	default:
		return fmt.Errorf("unsupported camera facing mode: %s", c.Camera.Facing)
	}
	return nil
}

// DefaultFormats is the symbology order tried against every frame.
var DefaultFormats = []string{"ean_13", "ean_8", "upc_a", "upc_e", "code_128", "code_39"}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Analysis.BaseURL == "" {
		cfg.Analysis.BaseURL = "http://localhost:5000"
	}
	cfg.Analysis.BaseURL = strings.TrimRight(cfg.Analysis.BaseURL, "/")
	if cfg.Camera.Facing == "" {
		cfg.Camera.Facing = "environment"
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Camera.Height == 0 {
		cfg.Camera.Height = 480
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 10
	}
	if cfg.Camera.StartupTimeout == 0 {
		cfg.Camera.StartupTimeout = 5 * time.Second
	}
	if len(cfg.Decoder.Formats) == 0 {
		cfg.Decoder.Formats = append([]string(nil), DefaultFormats...)
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/dermascan.db"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "dermascan"
	}
	if cfg.Identity.UserID == "" {
		cfg.Identity.UserID = "guest"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DS_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("DS_ANALYSIS_URL"); v != "" {
		cfg.Analysis.BaseURL = v
	}
	if v := os.Getenv("DS_ANALYSIS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analysis.Timeout = d
		}
	}
	if v := os.Getenv("DS_CAMERA_DEVICE"); v != "" {
		cfg.Camera.Device = v
	}
	if v := os.Getenv("DS_CAMERA_FACING"); v != "" {
		cfg.Camera.Facing = v
	}
	if v := os.Getenv("DS_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("DS_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("DS_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DS_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DS_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("DS_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DS_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DS_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("DS_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("DS_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("DS_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("DS_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("DS_USER_ID"); v != "" {
		cfg.Identity.UserID = v
	}
	if v := os.Getenv("DS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
