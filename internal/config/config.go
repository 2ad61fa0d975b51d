// Package config loads application configuration from environment variables
// (CLASSPULSE_ prefix) merged with an optional config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
	Store   StoreConfig   `yaml:"store" envconfig:"STORE"`
	Ingest  IngestConfig  `yaml:"ingest" envconfig:"INGEST"`
	Summary SummaryConfig `yaml:"summary" envconfig:"SUMMARY"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	// MaxUploadBytes bounds the multipart workbook size.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
	// AllowedOrigins is the CORS allow-list.
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"50"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"25"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/classpulse.log"`
}

// PathsConfig contains file system paths configuration.
type PathsConfig struct {
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	LogsDir string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// StoreConfig contains upload store configuration.
type StoreConfig struct {
	// HistoryCap bounds the upload history list.
	HistoryCap int `yaml:"history_cap" envconfig:"HISTORY_CAP" default:"20"`
}

// IngestConfig contains ingestion engine configuration. The header and
// sheet-name lists override the built-in vocabulary when non-empty, so new
// locales or synonyms can be added without touching the classifier.
type IngestConfig struct {
	NameHeaders    []string `yaml:"name_headers" envconfig:"NAME_HEADERS"`
	MetaHeaders    []string `yaml:"meta_headers" envconfig:"META_HEADERS"`
	CurrentSheets  []string `yaml:"current_sheets" envconfig:"CURRENT_SHEETS"`
	PreviousSheets []string `yaml:"previous_sheets" envconfig:"PREVIOUS_SHEETS"`
	MinScore       float64  `yaml:"min_score" envconfig:"MIN_SCORE" default:"0"`
	MaxScore       float64  `yaml:"max_score" envconfig:"MAX_SCORE" default:"100"`
}

// SummaryConfig contains AI summary configuration. An empty APIKey leaves
// the summary endpoint disabled.
type SummaryConfig struct {
	APIKey      string        `yaml:"api_key" envconfig:"API_KEY"`
	Model       string        `yaml:"model" envconfig:"MODEL" default:"gemini-2.0-flash"`
	MaxStudents int           `yaml:"max_students" envconfig:"MAX_STUDENTS" default:"200"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"30s"`
}

// Load loads configuration from environment variables and an optional
// config.yaml. Environment values take precedence over the file.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CLASSPULSE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := findConfigFile(); configFile != "" {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		mergeFromFile(&cfg, fileCfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFromFile fills fields the environment left empty. Fields with an
// envconfig default always carry a value, so only the defaultless ones are
// merged here.
func mergeFromFile(cfg, file *Config) {
	if len(cfg.Ingest.NameHeaders) == 0 {
		cfg.Ingest.NameHeaders = file.Ingest.NameHeaders
	}
	if len(cfg.Ingest.MetaHeaders) == 0 {
		cfg.Ingest.MetaHeaders = file.Ingest.MetaHeaders
	}
	if len(cfg.Ingest.CurrentSheets) == 0 {
		cfg.Ingest.CurrentSheets = file.Ingest.CurrentSheets
	}
	if len(cfg.Ingest.PreviousSheets) == 0 {
		cfg.Ingest.PreviousSheets = file.Ingest.PreviousSheets
	}
	if cfg.Summary.APIKey == "" {
		cfg.Summary.APIKey = file.Summary.APIKey
	}
}

// GetDataDir returns the resolved data directory path.
func (c *Config) GetDataDir() string {
	if filepath.IsAbs(c.Paths.DataDir) {
		return c.Paths.DataDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return c.Paths.DataDir
	}
	return filepath.Join(wd, c.Paths.DataDir)
}

// validate validates the configuration.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}
	if c.Store.HistoryCap <= 0 {
		return fmt.Errorf("store history cap must be positive")
	}
	if c.Ingest.MaxScore <= c.Ingest.MinScore {
		return fmt.Errorf("ingest score range is empty: [%g, %g]", c.Ingest.MinScore, c.Ingest.MaxScore)
	}
	if c.Summary.MaxStudents <= 0 {
		return fmt.Errorf("summary max students must be positive")
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "stdout" {
		c.Logging.Output = "both"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/classpulse.log"
	}

	return nil
}

// findConfigFile returns the path to the config file, if any.
func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  10 << 20,
			AllowedOrigins:  []string{"http://localhost:8080"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     50,
				Burst:   25,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/classpulse.log",
		},
		Paths: PathsConfig{
			DataDir: "data",
			LogsDir: "logs",
		},
		Store: StoreConfig{
			HistoryCap: 20,
		},
		Ingest: IngestConfig{
			MinScore: 0,
			MaxScore: 100,
		},
		Summary: SummaryConfig{
			Model:       "gemini-2.0-flash",
			MaxStudents: 200,
			Timeout:     30 * time.Second,
		},
	}
}
