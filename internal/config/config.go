package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Tracking TrackingConfig `yaml:"tracking"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
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

type IngestConfig struct {
	FrameWidth     int `yaml:"frame_width"`
	DefaultFPS     int `yaml:"default_fps"`
	MaxFPS         int `yaml:"max_fps"`
	FrameRetention int `yaml:"frame_retention"` // frames kept per stream by the cleanup pass
}

// TrackingConfig carries the engine policy thresholds plus the detector and
// flow parameters. Zero values fall back to the reference configuration.
type TrackingConfig struct {
	MaxFeatures          int     `yaml:"max_features"`
	TargetFeatures       int     `yaml:"target_features"`
	MinFeatures          int     `yaml:"min_features"`
	MinQuality           float64 `yaml:"min_quality"`
	MaxFlowError         float64 `yaml:"max_flow_error"`
	WindowSize           int     `yaml:"window_size"`
	PyramidLevels        int     `yaml:"pyramid_levels"`
	FilterThreshold      float64 `yaml:"filter_threshold"`
	FilterConfidence     float64 `yaml:"filter_confidence"`
	GuardRatio           float64 `yaml:"guard_ratio"`
	MaskRadius           int     `yaml:"mask_radius"`
	MaxBootstrapAttempts int     `yaml:"max_bootstrap_attempts"`
	WorkerCount          int     `yaml:"worker_count"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file and applies environment variable
// overrides.
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

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Ingest.FrameWidth == 0 {
		cfg.Ingest.FrameWidth = 640
	}
	if cfg.Ingest.DefaultFPS == 0 {
		cfg.Ingest.DefaultFPS = 10
	}
	if cfg.Ingest.MaxFPS == 0 {
		cfg.Ingest.MaxFPS = 30
	}
	if cfg.Ingest.FrameRetention == 0 {
		cfg.Ingest.FrameRetention = 50
	}
	if cfg.Tracking.MaxFeatures == 0 {
		cfg.Tracking.MaxFeatures = 1000
	}
	if cfg.Tracking.TargetFeatures == 0 {
		cfg.Tracking.TargetFeatures = 500
	}
	if cfg.Tracking.MinFeatures == 0 {
		cfg.Tracking.MinFeatures = 100
	}
	if cfg.Tracking.MinQuality == 0 {
		cfg.Tracking.MinQuality = 0.5
	}
	if cfg.Tracking.MaxFlowError == 0 {
		cfg.Tracking.MaxFlowError = 30.0
	}
	if cfg.Tracking.WindowSize == 0 {
		cfg.Tracking.WindowSize = 21
	}
	if cfg.Tracking.PyramidLevels == 0 {
		cfg.Tracking.PyramidLevels = 3
	}
	if cfg.Tracking.FilterThreshold == 0 {
		cfg.Tracking.FilterThreshold = 3.0
	}
	if cfg.Tracking.FilterConfidence == 0 {
		cfg.Tracking.FilterConfidence = 0.99
	}
	if cfg.Tracking.GuardRatio == 0 {
		cfg.Tracking.GuardRatio = 0.5
	}
	if cfg.Tracking.MaskRadius == 0 {
		cfg.Tracking.MaskRadius = 20
	}
	if cfg.Tracking.MaxBootstrapAttempts == 0 {
		cfg.Tracking.MaxBootstrapAttempts = 3
	}
	if cfg.Tracking.WorkerCount == 0 {
		cfg.Tracking.WorkerCount = 4
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ARTRACK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ARTRACK_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("ARTRACK_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("ARTRACK_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("ARTRACK_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("ARTRACK_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("ARTRACK_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("ARTRACK_FRAME_WIDTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.FrameWidth = n
		}
	}
	if v := os.Getenv("ARTRACK_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tracking.WorkerCount = n
		}
	}
}
