package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config contains runtime configuration for engram-mcp.
type Config struct {
	ServerName string `yaml:"server_name"`
	DBPath     string `yaml:"db_path"`
	LogLevel   string `yaml:"log_level"`

	// Breathing
	BreathIntervalSeconds int `yaml:"breath_interval_seconds"`

	// Consolidation
	HighStrengthThreshold   float64 `yaml:"high_strength_threshold"`
	MediumStrengthThreshold float64 `yaml:"medium_strength_threshold"`
	PatternMinCluster       int     `yaml:"pattern_min_cluster"`
	ArchiveMaxAgeDays       int     `yaml:"archive_max_age_days"`
	ConsolidationWatermark  int     `yaml:"consolidation_watermark"`

	// Retrieval
	SemanticThreshold  float64 `yaml:"semantic_threshold"`
	MaxSemanticResults int     `yaml:"max_semantic_results"`
	MaxTopicRecall     int     `yaml:"max_topic_recall"`
	MaxRecentThoughts  int     `yaml:"max_recent_thoughts"`

	// Auto-capture
	AutoCaptureMarkers []string `yaml:"auto_capture_markers"`

	// Maintenance worker
	MaintenanceIntervalSeconds int `yaml:"maintenance_interval_seconds"`

	// Embeddings (optional; empty model disables semantic search)
	EmbeddingModel string `yaml:"embedding_model"`
	OllamaHost     string `yaml:"ollama_host"`
}

// Default returns a Config populated with safe defaults.
func Default() Config {
	return Config{
		ServerName:                 "engram-mcp",
		DBPath:                     filepath.Join(userHomeDir(), ".engram-mcp", "engrams.db"),
		LogLevel:                   "info",
		BreathIntervalSeconds:      30,
		HighStrengthThreshold:      0.8,
		MediumStrengthThreshold:    0.4,
		PatternMinCluster:          3,
		ArchiveMaxAgeDays:          7,
		ConsolidationWatermark:     500,
		SemanticThreshold:          0.35,
		MaxSemanticResults:         20,
		MaxTopicRecall:             100,
		MaxRecentThoughts:          20,
		AutoCaptureMarkers:         DefaultCaptureMarkers(),
		MaintenanceIntervalSeconds: 21600,
	}
}

// DefaultCaptureMarkers returns the significance vocabulary used by auto-capture.
func DefaultCaptureMarkers() []string {
	return []string{
		"important", "significant", "critical", "learned",
		"realized", "discovered", "insight", "pattern",
		"decided", "understand",
	}
}

// Load loads config from disk; if path does not exist, default config is returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks configuration sanity.
func (c *Config) Validate() error {
	if c.ServerName == "" {
		return errors.New("server_name must not be empty")
	}
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if c.BreathIntervalSeconds < 1 {
		return errors.New("breath_interval_seconds must be >= 1")
	}
	if c.MediumStrengthThreshold <= 0 {
		return errors.New("medium_strength_threshold must be > 0")
	}
	if c.HighStrengthThreshold <= c.MediumStrengthThreshold {
		return errors.New("high_strength_threshold must be > medium_strength_threshold")
	}
	if c.HighStrengthThreshold > 1 {
		return errors.New("high_strength_threshold must be <= 1")
	}
	if c.PatternMinCluster < 2 {
		return errors.New("pattern_min_cluster must be >= 2")
	}
	if c.ArchiveMaxAgeDays <= 0 {
		return errors.New("archive_max_age_days must be > 0")
	}
	if c.SemanticThreshold < 0 || c.SemanticThreshold > 1 {
		return errors.New("semantic_threshold must be within [0,1]")
	}
	if c.MaxTopicRecall <= 0 {
		return errors.New("max_topic_recall must be > 0")
	}
	if c.MaxRecentThoughts <= 0 {
		return errors.New("max_recent_thoughts must be > 0")
	}
	if c.MaintenanceIntervalSeconds <= 0 {
		return errors.New("maintenance_interval_seconds must be > 0")
	}
	return nil
}

// EnsurePaths creates parent directories for config-managed paths.
func (c *Config) EnsurePaths() error {
	c.DBPath = ExpandPath(c.DBPath)
	parent := filepath.Dir(c.DBPath)
	if parent == "." {
		return nil
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create db parent dir: %w", err)
	}
	return nil
}

// ExpandPath expands "~/" to the current user's home directory.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p == "~" {
		return userHomeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(userHomeDir(), p[2:])
	}
	return p
}

func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
