package config

import "github.com/sambeau/aql/pkg/aql/parser"

// Config represents the complete aql configuration
type Config struct {
	BaseDir  string         `yaml:"-"` // Directory containing config file, for resolving relative paths
	Parser   parser.Limits  `yaml:"parser"`
	Registry RegistryConfig `yaml:"registry"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RegistryConfig holds settings for the parsed-query registry
type RegistryConfig struct {
	Enabled     bool   `yaml:"enabled"`     // Cache parse artifacts (default: true)
	Driver      string `yaml:"driver"`      // Persistent store: "", "sqlite", "postgres" or "mysql"
	DSN         string `yaml:"dsn"`         // Data source name (a file path for sqlite)
	Table       string `yaml:"table"`       // Table name (default: "aql_artifacts")
	MemorySize  int    `yaml:"memory_size"` // In-memory LRU entries (default: 1024)
	Compression string `yaml:"compression"` // Stored payload encoding: "zstd" or "none" (default: "zstd")
	MaxPayload  string `yaml:"max_payload"` // Largest artifact written to the store, e.g. "4MB" (default: no limit)
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Output string `yaml:"output"` // stderr, stdout, or file path
}

// Defaults returns a Config with sensible defaults
func Defaults() *Config {
	return &Config{
		Parser: parser.Limits{
			MaxQueryLength:  1 << 20,
			MaxNestingDepth: 1000,
			MaxNodes:        1 << 20,
		},
		Registry: RegistryConfig{
			Enabled:     true,
			Table:       "aql_artifacts",
			MemorySize:  1024,
			Compression: "zstd",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
		},
	}
}
