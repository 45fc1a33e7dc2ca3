package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	FileStore FileStoreConfig `yaml:"file_store"`
	Detector  DetectorConfig  `yaml:"detector"`
	Download  DownloadConfig  `yaml:"download"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Fusion    FusionConfig    `yaml:"fusion"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"9610"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"5m"`
}

// StorageConfig holds media blob storage configuration. Backend selects
// where downloaded media is persisted; local filesystem is the default.
type StorageConfig struct {
	Backend     string `yaml:"backend" envconfig:"STORAGE_BACKEND" default:"local"`
	BasePath    string `yaml:"base_path" envconfig:"STORAGE_PATH" default:"/data/media"`
	TempPath    string `yaml:"temp_path" envconfig:"STORAGE_TEMP_PATH" default:"/data/temp"`
	MaxFileSize int64  `yaml:"max_file_size" envconfig:"MAX_FILE_SIZE" default:"2147483648"` // 2GB

	S3 S3Config `yaml:"s3"`
}

// S3Config holds object-storage configuration for the s3 backend.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" envconfig:"S3_ENDPOINT"`
	AccessKey string `yaml:"access_key" envconfig:"S3_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" envconfig:"S3_SECRET_KEY"`
	Bucket    string `yaml:"bucket" envconfig:"S3_BUCKET" default:"slopdetect-media"`
	UseSSL    bool   `yaml:"use_ssl" envconfig:"S3_USE_SSL" default:"true"`
}

// DatabaseConfig holds the durable media record store configuration.
type DatabaseConfig struct {
	Path string `yaml:"path" envconfig:"DATABASE_PATH" default:"/data/slopdetect.db"`
}

// FileStoreConfig holds the external multimodal file-store configuration.
// Videos get a larger poll budget since remote processing scales with
// file size.
type FileStoreConfig struct {
	BaseURL           string        `yaml:"base_url" envconfig:"FILESTORE_BASE_URL" default:"https://filestore.googleapis.example/v1"`
	APIKey            string        `yaml:"api_key" envconfig:"FILESTORE_API_KEY"`
	UploadTimeout     time.Duration `yaml:"upload_timeout" envconfig:"FILESTORE_UPLOAD_TIMEOUT" default:"5m"`
	ImagePollInterval time.Duration `yaml:"image_poll_interval" envconfig:"FILESTORE_IMAGE_POLL_INTERVAL" default:"2s"`
	ImagePollAttempts int           `yaml:"image_poll_attempts" envconfig:"FILESTORE_IMAGE_POLL_ATTEMPTS" default:"15"`
	VideoPollInterval time.Duration `yaml:"video_poll_interval" envconfig:"FILESTORE_VIDEO_POLL_INTERVAL" default:"5s"`
	VideoPollAttempts int           `yaml:"video_poll_attempts" envconfig:"FILESTORE_VIDEO_POLL_ATTEMPTS" default:"60"`
}

// DetectorConfig holds the model-server configuration.
type DetectorConfig struct {
	BaseURL          string        `yaml:"base_url" envconfig:"DETECTOR_BASE_URL" default:"http://localhost:8501"`
	APIKey           string        `yaml:"api_key" envconfig:"DETECTOR_API_KEY"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"DETECTOR_TIMEOUT" default:"30s"`
	InferenceTimeout time.Duration `yaml:"inference_timeout" envconfig:"DETECTOR_INFERENCE_TIMEOUT" default:"120s"`
}

// DownloadConfig holds media download configuration.
type DownloadConfig struct {
	Timeout           time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"10m"`
	RetryDelay        time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"2s"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY" default:"30s"`
	MaxAttempts       int           `yaml:"max_attempts" envconfig:"DOWNLOAD_MAX_ATTEMPTS" default:"3"`
	UserAgent         string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
	MinVideoBytes     int64         `yaml:"min_video_bytes" envconfig:"DOWNLOAD_MIN_VIDEO_BYTES" default:"10240"`
	MaxImageBytes     int64         `yaml:"max_image_bytes" envconfig:"DOWNLOAD_MAX_IMAGE_BYTES" default:"52428800"` // 50MB
	MaxImageDimension int           `yaml:"max_image_dimension" envconfig:"DOWNLOAD_MAX_IMAGE_DIMENSION" default:"2048"`
	ExtractorPath     string        `yaml:"extractor_path" envconfig:"DOWNLOAD_EXTRACTOR_PATH" default:"yt-dlp"`
	ExtractorTimeout  time.Duration `yaml:"extractor_timeout" envconfig:"DOWNLOAD_EXTRACTOR_TIMEOUT" default:"5m"`
}

// AnalysisConfig caps concurrent heavy inference per modality.
type AnalysisConfig struct {
	MaxConcurrentImage int `yaml:"max_concurrent_image" envconfig:"ANALYSIS_MAX_CONCURRENT_IMAGE" default:"4"`
	MaxConcurrentVideo int `yaml:"max_concurrent_video" envconfig:"ANALYSIS_MAX_CONCURRENT_VIDEO" default:"2"`
}

// FusionConfig holds verdict thresholds. Scores at or below AIThreshold
// map to an AI-slop verdict, at or above HumanThreshold to human content,
// anything between to uncertain. Keeping HumanThreshold >= AIThreshold is
// the deployer's responsibility; fusion does not enforce it.
type FusionConfig struct {
	AIThreshold    float64 `yaml:"ai_threshold" envconfig:"FUSION_AI_THRESHOLD" default:"0.3"`
	HumanThreshold float64 `yaml:"human_threshold" envconfig:"FUSION_HUMAN_THRESHOLD" default:"0.5"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set. Missing
// credentials are fatal at startup rather than a silent degradation later.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if c.FileStore.APIKey == "" {
		return fmt.Errorf("FILESTORE_API_KEY is required")
	}
	if c.Storage.BasePath == "" {
		return fmt.Errorf("STORAGE_PATH is required")
	}
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3.Endpoint == "" || c.Storage.S3.AccessKey == "" || c.Storage.S3.SecretKey == "" {
			return fmt.Errorf("S3_ENDPOINT, S3_ACCESS_KEY and S3_SECRET_KEY are required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
