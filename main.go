package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sambeau/aql/config"
	"github.com/sambeau/aql/pkg/aql/logger"
	"github.com/sambeau/aql/pkg/aql/registry"
	"github.com/sambeau/aql/pkg/aql/repl"
)

// Version is set at build time via -ldflags
var Version = "0.1.0-dev"

// errQueriesFailed is returned once every failing query has been reported.
var errQueriesFailed = errors.New("one or more queries failed to parse")

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point, designed for testability (Mat Ryer pattern)
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("aql", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		inline      = flags.String("e", "", "Parse the given query")
		check       = flags.Bool("check", false, "Only report whether queries parse")
		explain     = flags.Bool("explain", false, "Print the syntax tree as an outline")
		jsonErrors  = flags.Bool("json-errors", false, "Print parse errors as JSON lines")
		watchFiles  = flags.Bool("watch", false, "Re-parse files when they change")
		configPath  = flags.String("config", "", "Path to config file")
		maxDepth    = flags.Int("max-depth", -1, "Override parser.max_nesting_depth")
		showVersion = flags.Bool("version", false, "Show version")
		showHelp    = flags.Bool("help", false, "Show help")
	)

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *showHelp {
		printUsage(stdout)
		return nil
	}
	if *showVersion {
		fmt.Fprintf(stdout, "aql version %s\n", Version)
		return nil
	}

	files := flags.Args()
	if *watchFiles && len(files) == 0 {
		return errors.New("--watch needs at least one file")
	}
	if *check && *explain {
		return errors.New("--check and --explain are mutually exclusive")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(*configPath, getenv)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *maxDepth >= 0 {
		cfg.Parser.MaxNestingDepth = *maxDepth
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	log, closer, err := logger.Open(cfg.Logging.Output, cfg.Logging.Level, stdout, stderr)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer closer.Close()
	for _, w := range config.Warnings(cfg) {
		log.Warnf("config: %s", w)
	}

	opts, err := registryOptions(cfg, log)
	if err != nil {
		return err
	}
	reg, err := registry.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("opening registry: %w", err)
	}
	defer reg.Close()

	mode := outputJSON
	switch {
	case *check:
		mode = outputCheck
	case *explain:
		mode = outputExplain
	}
	c := &cli{reg: reg, limits: cfg.Parser, mode: mode, stdout: stdout, stderr: stderr, log: log, jsonErrors: *jsonErrors}

	switch {
	case *inline != "":
		if !c.parse(ctx, "-e", *inline) {
			return errQueriesFailed
		}
		return nil
	case *watchFiles:
		return c.watch(ctx, files)
	case len(files) > 0:
		return c.parseFiles(ctx, files)
	}

	s := repl.NewSession(reg, cfg.Parser, stdout)
	if *explain {
		s.Handle(ctx, ":explain")
	} else if *check {
		s.Handle(ctx, ":check")
	}
	repl.Start(ctx, s, Version)
	return nil
}

// loadConfig loads the config file, falling back to defaults when no path
// was given and none of the default locations exist.
func loadConfig(path string, getenv func(string) string) (*config.Config, error) {
	cfg, err := config.Load(path, getenv)
	if errors.Is(err, config.ErrNotFound) {
		return config.Defaults(), nil
	}
	return cfg, err
}

func registryOptions(cfg *config.Config, log logger.Logger) (registry.Options, error) {
	opts := registry.Options{Limits: cfg.Parser, Logger: log}
	if !cfg.Registry.Enabled {
		return opts, nil
	}

	maxPayload, err := config.ParseSize(cfg.Registry.MaxPayload)
	if err != nil {
		return opts, fmt.Errorf("registry.max_payload: %w", err)
	}
	opts.MemorySize = cfg.Registry.MemorySize
	opts.Driver = cfg.Registry.Driver
	opts.DSN = cfg.Registry.DSN
	opts.Table = cfg.Registry.Table
	opts.Compression = cfg.Registry.Compression
	opts.MaxPayload = maxPayload
	return opts, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `aql - A query-language front end

Usage:
  aql [options] [file...]

Options:
  -e QUERY         Parse QUERY instead of reading files
  --check          Only report whether queries parse (exit status 1 if not)
  --explain        Print the syntax tree as an outline instead of JSON
  --json-errors    Print parse errors as JSON, one object per line
  --watch          Re-parse the files whenever they change
  --config PATH    Path to config file (default: auto-detect)
  --max-depth N    Override parser.max_nesting_depth (0 disables the limit)
  --version        Show version
  --help           Show this help

With no query and no files, aql starts an interactive shell.

Config Resolution:
  1. --config flag
  2. AQL_CONFIG environment variable
  3. ./aql.yaml
  4. ~/.config/aql/aql.yaml
  5. built-in defaults

Examples:
  aql -e 'FOR u IN users RETURN u'        Print the artifact as JSON
  aql --check queries/*.aql               Validate a set of query files
  aql --explain --watch report.aql        Show the tree each time the file is saved

`)
}
