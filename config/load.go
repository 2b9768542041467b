package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from a file with ENV interpolation.
// If configPath is empty, it searches default locations.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	cfg, _, err := LoadWithPath(configPath, getenv)
	return cfg, err
}

// LoadWithPath reads configuration and returns both the config and the resolved path.
func LoadWithPath(configPath string, getenv func(string) string) (*Config, string, error) {
	path, err := resolveConfigPath(configPath, getenv)
	if err != nil {
		return nil, "", err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve config path: %w", err)
	}
	baseDir := filepath.Dir(absPath)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	data = interpolateEnv(data, getenv)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.BaseDir = baseDir

	// Resolve a relative sqlite database against the config directory
	if cfg.Registry.Driver == "sqlite" && isRelativeFile(cfg.Registry.DSN) {
		cfg.Registry.DSN = filepath.Join(baseDir, cfg.Registry.DSN)
	}

	// Resolve a relative log file the same way
	if out := cfg.Logging.Output; out != "" && out != "stdout" && out != "stderr" && !filepath.IsAbs(out) {
		cfg.Logging.Output = filepath.Join(baseDir, out)
	}

	if err := Validate(cfg); err != nil {
		return nil, "", err
	}

	return cfg, absPath, nil
}

func isRelativeFile(dsn string) bool {
	return dsn != "" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && !filepath.IsAbs(dsn)
}

// resolveConfigPath finds the config file to use.
// Search order: explicit path > AQL_CONFIG env > ./aql.yaml > ~/.config/aql/aql.yaml
func resolveConfigPath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	if envPath := getenv("AQL_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("AQL_CONFIG file not found: %s", envPath)
		}
		return envPath, nil
	}

	if _, err := os.Stat("aql.yaml"); err == nil {
		return "aql.yaml", nil
	}

	home, err := os.UserHomeDir()
	if err == nil {
		xdgPath := filepath.Join(home, ".config", "aql", "aql.yaml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath, nil
		}
	}

	return "", ErrNotFound
}

// ErrNotFound is returned when no path was given and no default config file exists.
var ErrNotFound = errors.New("no config file found (tried AQL_CONFIG, aql.yaml, ~/.config/aql/aql.yaml)")

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} patterns with environment values.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		value := getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}

		return []byte(value)
	})
}

// Validate checks the configuration for errors.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Parser.MaxQueryLength < 0 {
		errs = append(errs, fmt.Sprintf("parser.max_query_length: %d (must be 0 or positive)", cfg.Parser.MaxQueryLength))
	}
	if cfg.Parser.MaxNestingDepth < 0 {
		errs = append(errs, fmt.Sprintf("parser.max_nesting_depth: %d (must be 0 or positive)", cfg.Parser.MaxNestingDepth))
	}
	if cfg.Parser.MaxNodes < 0 {
		errs = append(errs, fmt.Sprintf("parser.max_nodes: %d (must be 0 or positive)", cfg.Parser.MaxNodes))
	}

	switch cfg.Registry.Driver {
	case "":
	case "sqlite", "postgres", "mysql":
		if cfg.Registry.DSN == "" {
			errs = append(errs, fmt.Sprintf("registry: driver %s requires a dsn", cfg.Registry.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("registry: unknown driver %q (supported: sqlite, postgres, mysql)", cfg.Registry.Driver))
	}
	if cfg.Registry.MemorySize < 0 {
		errs = append(errs, fmt.Sprintf("registry.memory_size: %d (must be 0 or positive)", cfg.Registry.MemorySize))
	}
	if c := cfg.Registry.Compression; c != "zstd" && c != "none" {
		errs = append(errs, fmt.Sprintf("registry.compression: %q (must be zstd or none)", c))
	}
	if _, err := ParseSize(cfg.Registry.MaxPayload); err != nil {
		errs = append(errs, "registry.max_payload: "+err.Error())
	}
	if !validTable(cfg.Registry.Table) {
		errs = append(errs, fmt.Sprintf("registry.table: %q (letters, digits and underscores only)", cfg.Registry.Table))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validTable guards the table name, which is spliced into SQL statements.
func validTable(name string) bool {
	return tablePattern.MatchString(name)
}

// Warnings returns non-fatal configuration issues that should be reported to the user.
func Warnings(cfg *Config) []string {
	var warnings []string

	if cfg.Parser.MaxNestingDepth == 0 {
		warnings = append(warnings, "parser.max_nesting_depth is 0 - deeply nested queries are bounded only by memory")
	}
	if cfg.Parser.MaxQueryLength == 0 && cfg.Parser.MaxNodes == 0 {
		warnings = append(warnings, "parser: no query length or node limit configured")
	}
	if !cfg.Registry.Enabled && cfg.Registry.Driver != "" {
		warnings = append(warnings, "registry: driver is set but the registry is disabled")
	}
	if cfg.Registry.Enabled && cfg.Registry.MemorySize == 0 && cfg.Registry.Driver == "" {
		warnings = append(warnings, "registry: memory_size is 0 and no driver is set - nothing will be cached")
	}

	return warnings
}

// ParseSize parses a size string like "10MB", "1GiB" or "500 kB" to bytes.
// Returns 0 for empty string.
func ParseSize(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size format: %s", s)
	}
	return int64(n), nil
}
