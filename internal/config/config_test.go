package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_KEY", "server-key")
	t.Setenv("FILESTORE_API_KEY", "store-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9610 {
		t.Errorf("port = %d, want 9610", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "local" {
		t.Errorf("backend = %q, want local", cfg.Storage.Backend)
	}
	if cfg.FileStore.VideoPollAttempts <= cfg.FileStore.ImagePollAttempts {
		t.Error("video poll attempts must exceed image poll attempts by default")
	}
	if cfg.Fusion.AIThreshold != 0.3 || cfg.Fusion.HumanThreshold != 0.5 {
		t.Errorf("fusion thresholds = %v/%v", cfg.Fusion.AIThreshold, cfg.Fusion.HumanThreshold)
	}
	if cfg.Download.ExtractorPath != "yt-dlp" {
		t.Errorf("extractor = %q", cfg.Download.ExtractorPath)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("API_KEY", "server-key")
	t.Setenv("FILESTORE_API_KEY", "store-key")

	yaml := `
server:
  port: 7777
download:
  max_attempts: 5
fusion:
  ai_threshold: 0.2
  human_threshold: 0.4
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Download.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", cfg.Download.MaxAttempts)
	}
	if cfg.Fusion.AIThreshold != 0.2 || cfg.Fusion.HumanThreshold != 0.4 {
		t.Errorf("fusion thresholds = %v/%v", cfg.Fusion.AIThreshold, cfg.Fusion.HumanThreshold)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("API_KEY", "server-key")
	t.Setenv("FILESTORE_API_KEY", "store-key")
	t.Setenv("SERVER_PORT", "8888")
	t.Setenv("DETECTOR_TIMEOUT", "45s")

	yaml := "server:\n  port: 7777\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8888 {
		t.Errorf("port = %d, want the env override 8888", cfg.Server.Port)
	}
	if cfg.Detector.Timeout != 45*time.Second {
		t.Errorf("detector timeout = %v, want 45s", cfg.Detector.Timeout)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:    ServerConfig{APIKey: "k"},
			FileStore: FileStoreConfig{APIKey: "fk"},
			Storage:   StorageConfig{Backend: "local", BasePath: "/data/media"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid local",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.Server.APIKey = "" },
			wantErr: "API_KEY",
		},
		{
			name:    "missing filestore key",
			mutate:  func(c *Config) { c.FileStore.APIKey = "" },
			wantErr: "FILESTORE_API_KEY",
		},
		{
			name:    "missing storage path",
			mutate:  func(c *Config) { c.Storage.BasePath = "" },
			wantErr: "STORAGE_PATH",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Storage.Backend = "ftp" },
			wantErr: "unknown storage backend",
		},
		{
			name:    "s3 without credentials",
			mutate:  func(c *Config) { c.Storage.Backend = "s3" },
			wantErr: "S3_ENDPOINT",
		},
		{
			name: "s3 with credentials",
			mutate: func(c *Config) {
				c.Storage.Backend = "s3"
				c.Storage.S3 = S3Config{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "s"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 9610}
	if got := s.Address(); got != "127.0.0.1:9610" {
		t.Errorf("address = %q", got)
	}
}
