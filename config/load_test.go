package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func noenv(string) string { return "" }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aql.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Parser.MaxNestingDepth != 1000 {
		t.Errorf("expected default max_nesting_depth 1000, got %d", cfg.Parser.MaxNestingDepth)
	}
	if !cfg.Registry.Enabled {
		t.Error("expected registry to be enabled by default")
	}
	if cfg.Registry.Compression != "zstd" {
		t.Errorf("expected default compression 'zstd', got %q", cfg.Registry.Compression)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.Logging.Level)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestInterpolateEnv(t *testing.T) {
	getenv := func(key string) string {
		switch key {
		case "AQL_DB":
			return "postgres://localhost/aql"
		case "AQL_DEPTH":
			return "64"
		default:
			return ""
		}
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple substitution", "dsn: ${AQL_DB}", "dsn: postgres://localhost/aql"},
		{"with default (env set)", "depth: ${AQL_DEPTH:-10}", "depth: 64"},
		{"with default (env not set)", "depth: ${UNSET_VAR:-10}", "depth: 10"},
		{"unset without default", "dsn: ${UNSET_VAR}", "dsn: "},
		{"multiple substitutions", "x: ${AQL_DEPTH}/${AQL_DEPTH}", "x: 64/64"},
		{"no substitution needed", "static: value", "static: value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := string(interpolateEnv([]byte(tt.input), getenv))
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
parser:
  max_query_length: 4096
  max_nesting_depth: 32
registry:
  driver: sqlite
  dsn: cache/aql.db
  memory_size: 16
  compression: none
logging:
  level: debug
  output: stdout
`)

	cfg, resolved, err := LoadWithPath(path, noenv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Parser.MaxQueryLength != 4096 || cfg.Parser.MaxNestingDepth != 32 {
		t.Errorf("parser limits not loaded: %+v", cfg.Parser)
	}
	if cfg.Parser.MaxNodes != Defaults().Parser.MaxNodes {
		t.Errorf("unset max_nodes should keep its default, got %d", cfg.Parser.MaxNodes)
	}
	if cfg.Registry.MemorySize != 16 || cfg.Registry.Compression != "none" {
		t.Errorf("registry not loaded: %+v", cfg.Registry)
	}
	if cfg.Registry.Table != "aql_artifacts" {
		t.Errorf("expected default table, got %q", cfg.Registry.Table)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Output != "stdout" {
		t.Errorf("logging not loaded: %+v", cfg.Logging)
	}

	dir := filepath.Dir(resolved)
	if cfg.BaseDir != dir {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, dir)
	}
	if want := filepath.Join(dir, "cache", "aql.db"); cfg.Registry.DSN != want {
		t.Errorf("relative sqlite dsn = %q, want %q", cfg.Registry.DSN, want)
	}
}

func TestLoadKeepsSpecialDSNs(t *testing.T) {
	for _, dsn := range []string{":memory:", "file:aql.db?mode=memory"} {
		t.Run(dsn, func(t *testing.T) {
			path := writeConfig(t, "registry:\n  driver: sqlite\n  dsn: \""+dsn+"\"\n")
			cfg, err := Load(path, noenv)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Registry.DSN != dsn {
				t.Errorf("dsn = %q, want %q", cfg.Registry.DSN, dsn)
			}
		})
	}
}

func TestLoadWithEnvInterpolation(t *testing.T) {
	path := writeConfig(t, `
registry:
  driver: postgres
  dsn: ${AQL_DSN}
logging:
  level: ${AQL_LOG_LEVEL:-warn}
`)
	getenv := func(key string) string {
		if key == "AQL_DSN" {
			return "postgres://aql@db/aql?sslmode=disable"
		}
		return ""
	}

	cfg, err := Load(path, getenv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Registry.DSN != "postgres://aql@db/aql?sslmode=disable" {
		t.Errorf("dsn not interpolated: %q", cfg.Registry.DSN)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected default from interpolation, got %q", cfg.Logging.Level)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "parser: [", "failed to parse config"},
		{"negative depth", "parser:\n  max_nesting_depth: -1\n", "parser.max_nesting_depth"},
		{"unknown driver", "registry:\n  driver: oracle\n  dsn: x\n", "unknown driver"},
		{"driver without dsn", "registry:\n  driver: mysql\n", "requires a dsn"},
		{"bad compression", "registry:\n  compression: gzip\n", "registry.compression"},
		{"bad table", "registry:\n  table: \"drop table\"\n", "registry.table"},
		{"bad size", "registry:\n  max_payload: lots\n", "registry.max_payload"},
		{"bad level", "logging:\n  level: loud\n", "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), noenv)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Run("explicit path missing", func(t *testing.T) {
		_, err := resolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml"), noenv)
		if err == nil || !strings.Contains(err.Error(), "config file not found") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("env path", func(t *testing.T) {
		path := writeConfig(t, "")
		got, err := resolveConfigPath("", func(key string) string {
			if key == "AQL_CONFIG" {
				return path
			}
			return ""
		})
		if err != nil || got != path {
			t.Errorf("got %q, %v; want %q", got, err, path)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("HOME", t.TempDir())
		_, err := resolveConfigPath("", noenv)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestWarnings(t *testing.T) {
	cfg := Defaults()
	if w := Warnings(cfg); len(w) != 0 {
		t.Errorf("defaults should not warn, got %v", w)
	}

	cfg.Parser.MaxNestingDepth = 0
	cfg.Registry.Enabled = false
	cfg.Registry.Driver = "sqlite"
	w := Warnings(cfg)
	if len(w) != 2 {
		t.Fatalf("expected 2 warnings, got %v", w)
	}
	if !strings.Contains(w[0], "max_nesting_depth") || !strings.Contains(w[1], "disabled") {
		t.Errorf("unexpected warnings: %v", w)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
		err   bool
	}{
		{"", 0, false},
		{"512", 512, false},
		{"10KB", 10000, false},
		{"4MiB", 4 << 20, false},
		{"1 GB", 1000000000, false},
		{"lots", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.err {
				t.Fatalf("ParseSize(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
