package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	perrors "github.com/sambeau/aql/pkg/aql/errors"
	"github.com/sambeau/aql/pkg/aql/logger"
	"github.com/sambeau/aql/pkg/aql/parser"
	"github.com/sambeau/aql/pkg/aql/registry"
	"github.com/sambeau/aql/pkg/aql/watch"
)

type outputMode int

const (
	outputJSON outputMode = iota
	outputExplain
	outputCheck
)

// cli parses queries from the command line and files.
type cli struct {
	reg    *registry.Registry
	limits parser.Limits
	mode   outputMode
	stdout io.Writer
	stderr io.Writer
	log    logger.Logger

	// jsonErrors prints each failure as one line of JSON.
	jsonErrors bool
}

// parse parses one query and reports the result. It returns false if the
// query was rejected.
func (c *cli) parse(ctx context.Context, name, query string) bool {
	e, err := c.reg.Parse(ctx, query)
	if err != nil {
		c.report(name, err)
		return false
	}
	c.log.Debugf("%s: %s (%s, %s)", name, e.Source, e.Key[:12], humanize.Bytes(uint64(len(e.JSON))))

	switch c.mode {
	case outputCheck:
		if e.Collection != "" {
			fmt.Fprintf(c.stdout, "%s: OK (%s %s)\n", name, e.Type, e.Collection)
		} else {
			fmt.Fprintf(c.stdout, "%s: OK (%s)\n", name, e.Type)
		}
	case outputExplain:
		art := e.Artifact
		if art == nil {
			if art, err = parser.Parse(query, parser.WithLimits(c.limits)); err != nil {
				fmt.Fprintf(c.stderr, "%s: %v\n", name, err)
				return false
			}
		}
		io.WriteString(c.stdout, art.Dump())
	default:
		c.stdout.Write(e.JSON)
		io.WriteString(c.stdout, "\n")
	}

	for _, w := range e.Warnings {
		fmt.Fprintf(c.stderr, "%s: %s\n", name, w)
	}
	return true
}

// report prints a failed parse to stderr.
func (c *cli) report(name string, err error) {
	qe, ok := perrors.As(err)
	switch {
	case ok && c.jsonErrors:
		source, _ := json.Marshal(name)
		data, jerr := qe.ToJSON()
		if jerr != nil {
			fmt.Fprintf(c.stderr, "%s: %v\n", name, err)
			return
		}
		fmt.Fprintf(c.stderr, "{\"source\":%s,\"error\":%s}\n", source, data)
	case ok:
		fmt.Fprintf(c.stderr, "%s: %s", name, qe.PrettyString())
	default:
		fmt.Fprintf(c.stderr, "%s: %v\n", name, err)
	}
}

func (c *cli) parseFile(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("reading query: %w", err)
	}
	return c.parse(ctx, path, string(data)), nil
}

// parseFiles parses every file, reporting all failures before returning.
func (c *cli) parseFiles(ctx context.Context, files []string) error {
	start := time.Now()
	failed := 0
	for _, path := range files {
		ok, err := c.parseFile(ctx, path)
		if err != nil {
			return err
		}
		if !ok {
			failed++
		}
	}

	st := c.reg.Stats()
	c.log.Infof("%s queries in %s: %s parsed, %s cached, %s failed",
		humanize.Comma(int64(len(files))), time.Since(start).Round(time.Microsecond),
		humanize.Comma(st.Parses), humanize.Comma(st.Memory+st.Store), humanize.Comma(int64(failed)))

	if failed > 0 {
		return errQueriesFailed
	}
	return nil
}

// watch parses the files once, then again whenever one of them changes,
// until ctx is cancelled.
func (c *cli) watch(ctx context.Context, files []string) error {
	w, err := watch.New(files, c.log)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Close()

	for _, path := range files {
		if _, err := c.parseFile(ctx, path); err != nil {
			c.log.Errorf("%v", err)
		}
	}
	c.log.Infof("watching %s files, Ctrl+C to stop", humanize.Comma(int64(len(files))))

	return w.Run(ctx, func(path string) {
		c.log.Infof("changed: %s", path)
		if _, err := c.parseFile(ctx, path); err != nil {
			c.log.Errorf("%v", err)
		}
	})
}
