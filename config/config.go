// Package config loads forward index settings from a YAML file.
//
//	language: nl
//	background:
//	  workers: 4
//	external:
//	  chunkSize: 1073741824
//	  writeReserve: 250000
//	integrated:
//	  blockCacheSize: 67108864
//	  compression: zstd
//	logging:
//	  level: info
//	  format: json
//
// Missing values keep their defaults. No environment variables are read.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Config is the top-level forward index configuration.
type Config struct {
	Language   string           `yaml:"language"`
	Background BackgroundConfig `yaml:"background"`
	External   ExternalConfig   `yaml:"external"`
	Integrated IntegratedConfig `yaml:"integrated"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// BackgroundConfig controls the initialization of annotation indexes at
// open time.
type BackgroundConfig struct {
	Disabled bool `yaml:"disabled"`
	Workers  int  `yaml:"workers"`
}

// ExternalConfig holds the settings of per-annotation index directories.
type ExternalConfig struct {
	ChunkSize     int64 `yaml:"chunkSize"`
	WriteReserve  int64 `yaml:"writeReserve"`
	TermBlockSize int   `yaml:"termBlockSize"`
	DisableTrie   bool  `yaml:"disableTrie"`
}

// IntegratedConfig holds the settings of segment-backed indexes.
type IntegratedConfig struct {
	BlockCacheSize     int64  `yaml:"blockCacheSize"`
	Compression        string `yaml:"compression"`
	TermBlockSize      int    `yaml:"termBlockSize"`
	IOLimitBytesPerSec int64  `yaml:"ioLimitBytesPerSec"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Language: "en",
		Background: BackgroundConfig{
			Workers: 2,
		},
		External: ExternalConfig{
			ChunkSize:     1 << 30,
			WriteReserve:  250_000,
			TermBlockSize: 1 << 30,
		},
		Integrated: IntegratedConfig{
			BlockCacheSize: 64 << 20,
			Compression:    "lz4",
			TermBlockSize:  64 << 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and validates the YAML file at path. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errList []error
	if _, err := language.Parse(c.Language); err != nil {
		errList = append(errList, fmt.Errorf("language %q: %w", c.Language, err))
	}
	if c.Background.Workers < 0 {
		errList = append(errList, fmt.Errorf("background.workers must not be negative, got %d", c.Background.Workers))
	}
	if c.External.ChunkSize <= 0 || c.External.ChunkSize%4 != 0 {
		errList = append(errList, fmt.Errorf("external.chunkSize must be a positive multiple of 4, got %d", c.External.ChunkSize))
	}
	if c.External.WriteReserve < 0 {
		errList = append(errList, fmt.Errorf("external.writeReserve must not be negative, got %d", c.External.WriteReserve))
	}
	if c.External.TermBlockSize <= 0 {
		errList = append(errList, fmt.Errorf("external.termBlockSize must be positive, got %d", c.External.TermBlockSize))
	}
	if c.Integrated.BlockCacheSize < 0 {
		errList = append(errList, fmt.Errorf("integrated.blockCacheSize must not be negative, got %d", c.Integrated.BlockCacheSize))
	}
	switch strings.ToLower(c.Integrated.Compression) {
	case "none", "lz4", "zstd":
	default:
		errList = append(errList, fmt.Errorf("integrated.compression must be none, lz4 or zstd, got %q", c.Integrated.Compression))
	}
	if c.Integrated.TermBlockSize <= 0 {
		errList = append(errList, fmt.Errorf("integrated.termBlockSize must be positive, got %d", c.Integrated.TermBlockSize))
	}
	if c.Integrated.IOLimitBytesPerSec < 0 {
		errList = append(errList, fmt.Errorf("integrated.ioLimitBytesPerSec must not be negative, got %d", c.Integrated.IOLimitBytesPerSec))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errList = append(errList, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errList = append(errList, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	return errors.Join(errList...)
}

// LanguageTag returns the parsed collation locale.
func (c *Config) LanguageTag() language.Tag {
	tag, err := language.Parse(c.Language)
	if err != nil {
		return language.English
	}
	return tag
}
