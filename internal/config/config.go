package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	API        APIConfig        `yaml:"api"`
	Sync       SyncConfig       `yaml:"sync"`
	Photos     PhotosConfig     `yaml:"photos"`
	Inspection InspectionConfig `yaml:"inspection"`
}

// ServerConfig holds local agent settings
type ServerConfig struct {
	Listen  string `yaml:"listen"`
	DataDir string `yaml:"data_dir"`
	DBPath  string `yaml:"db_path"`
}

// APIConfig holds the remote inspection API settings
type APIConfig struct {
	BaseURL  string        `yaml:"base_url"`
	UseMocks bool          `yaml:"use_mocks"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SyncConfig holds outbound sync settings
type SyncConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Interval       time.Duration `yaml:"interval"`
	BatchSize      int           `yaml:"batch_size"`
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RetryFailed    bool          `yaml:"retry_failed"`
}

// PhotosConfig holds photo normalization and cache settings
type PhotosConfig struct {
	CacheDir     string `yaml:"cache_dir"`
	Root         string `yaml:"root"`
	MaxDimension int    `yaml:"max_dimension"`
	Quality      int    `yaml:"quality"`
	MaxBytes     int64  `yaml:"max_bytes"`
	MaxPixels    int    `yaml:"max_pixels"`
	FetchRetries int    `yaml:"fetch_retries"`
}

// InspectionConfig holds station and scoring settings
type InspectionConfig struct {
	CenterID            string        `yaml:"center_id"`
	PassThreshold       float64       `yaml:"pass_threshold"`
	CertificateValidity time.Duration `yaml:"certificate_validity"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:  "127.0.0.1:8765",
			DataDir: "/var/lib/vims",
			DBPath:  "",
		},
		API: APIConfig{
			BaseURL:  "http://localhost:3000",
			UseMocks: false,
			Timeout:  30 * time.Second,
		},
		Sync: SyncConfig{
			Enabled:        true,
			Interval:       60 * time.Second,
			BatchSize:      10,
			MaxRetries:     3,
			RequestTimeout: 30 * time.Second,
			RetryFailed:    true,
		},
		Photos: PhotosConfig{
			CacheDir:     "",
			Root:         "",
			MaxDimension: 1280,
			Quality:      85,
			MaxBytes:     10 << 20,
			MaxPixels:    40_000_000,
			FetchRetries: 3,
		},
		Inspection: InspectionConfig{
			CenterID:            "",
			PassThreshold:       70,
			CertificateValidity: 365 * 24 * time.Hour,
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"vims.yaml",
		"/etc/vims/vims.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "vims", "vims.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// LoadEnv loads dotenv files into the process environment. Missing files are
// skipped; variables already set in the environment are not overridden.
func LoadEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides config values from environment variables.
// VITE_* names are shared with the kiosk front-end build.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("VITE_API_URL"); v != "" {
		c.API.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := os.LookupEnv("VITE_API_USE_MOCKS"); ok {
		c.API.UseMocks = parseBool(v)
	}
	if v := os.Getenv("VIMS_DATA_DIR"); v != "" {
		c.Server.DataDir = v
	}
	if v := os.Getenv("VIMS_DB_PATH"); v != "" {
		c.Server.DBPath = v
	}
	if v := os.Getenv("VIMS_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("VIMS_CENTER_ID"); v != "" {
		c.Inspection.CenterID = v
	}
}

// DatabasePath returns the SQLite path, defaulting to a file in the data dir
func (c *Config) DatabasePath() string {
	if c.Server.DBPath != "" {
		return c.Server.DBPath
	}
	return filepath.Join(c.Server.DataDir, "vims.db")
}

// PhotoCacheDir returns the photo cache directory, defaulting under the data dir
func (c *Config) PhotoCacheDir() string {
	if c.Photos.CacheDir != "" {
		return c.Photos.CacheDir
	}
	return filepath.Join(c.Server.DataDir, "photo-cache")
}

// SessionPath returns where `vims auth login` keeps the inspector session
func (c *Config) SessionPath() string {
	return filepath.Join(c.Server.DataDir, "session.json")
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
