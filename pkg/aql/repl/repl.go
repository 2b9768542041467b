// Package repl is an interactive shell that parses queries as they are
// typed and prints their artifacts.
package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/peterh/liner"

	perrors "github.com/sambeau/aql/pkg/aql/errors"
	"github.com/sambeau/aql/pkg/aql/parser"
	"github.com/sambeau/aql/pkg/aql/registry"
)

const PROMPT = "aql> "
const PROMPT_EXPLAIN = "ast> "
const CONTINUATION_PROMPT = "...> "

// Mode selects what is printed for a successful parse.
type Mode int

const (
	ModeJSON Mode = iota
	ModeExplain
	ModeCheck
)

func (m Mode) String() string {
	switch m {
	case ModeExplain:
		return "explain"
	case ModeCheck:
		return "check"
	}
	return "json"
}

// Session holds the state of one interactive session. The line editor
// is kept out of it so sessions can be driven directly.
type Session struct {
	reg    *registry.Registry
	limits parser.Limits
	out    io.Writer
	mode   Mode
	last   string
	quit   bool
}

// NewSession creates a session parsing through reg with the given limits.
// The limits must be the ones reg was opened with.
func NewSession(reg *registry.Registry, limits parser.Limits, out io.Writer) *Session {
	return &Session{reg: reg, limits: limits, out: out}
}

// Mode returns the current output mode.
func (s *Session) Mode() Mode { return s.mode }

// Done reports whether the user asked to leave.
func (s *Session) Done() bool { return s.quit }

// Prompt returns the prompt for the current mode.
func (s *Session) Prompt() string {
	if s.mode == ModeExplain {
		return PROMPT_EXPLAIN
	}
	return PROMPT
}

// Handle processes one complete input: a ':' command, exit, or a query.
func (s *Session) Handle(ctx context.Context, input string) {
	trimmed := strings.TrimSpace(input)
	switch {
	case trimmed == "":
		return
	case trimmed == "exit" || trimmed == "quit":
		fmt.Fprintln(s.out, "Goodbye!")
		s.quit = true
	case strings.HasPrefix(trimmed, ":"):
		s.command(ctx, trimmed)
	default:
		s.query(ctx, input)
	}
}

func (s *Session) query(ctx context.Context, q string) {
	s.last = q
	e, err := s.reg.Parse(ctx, q)
	if err != nil {
		if qe, ok := perrors.As(err); ok {
			io.WriteString(s.out, qe.PrettyString())
		} else {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		return
	}

	switch s.mode {
	case ModeCheck:
		fmt.Fprintf(s.out, "OK (%s)\n", describe(e))
	case ModeExplain:
		art := e.Artifact
		if art == nil {
			// Stored entries carry bytes only; rebuild the tree for display.
			if art, err = parser.Parse(q, parser.WithLimits(s.limits)); err != nil {
				fmt.Fprintf(s.out, "error: %v\n", err)
				return
			}
		}
		io.WriteString(s.out, art.Dump())
	default:
		var buf bytes.Buffer
		if json.Indent(&buf, e.JSON, "", "  ") == nil {
			buf.WriteByte('\n')
			s.out.Write(buf.Bytes())
		} else {
			s.out.Write(e.JSON)
			io.WriteString(s.out, "\n")
		}
	}

	for _, w := range e.Warnings {
		fmt.Fprintln(s.out, w.String())
	}
}

func describe(e *registry.Entry) string {
	if e.Collection != "" {
		return e.Type + " " + e.Collection
	}
	return e.Type
}

// command handles REPL meta-commands that start with ':'
func (s *Session) command(ctx context.Context, cmd string) {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ":help", ":h", ":?":
		fmt.Fprintln(s.out, "REPL Commands:")
		fmt.Fprintln(s.out, "  :help, :h, :?   Show this help")
		fmt.Fprintln(s.out, "  :json           Print the artifact as JSON (default)")
		fmt.Fprintln(s.out, "  :explain        Print the syntax tree as an outline")
		fmt.Fprintln(s.out, "  :check          Only report whether the query parses")
		fmt.Fprintln(s.out, "  :limits         Show the parser limits")
		fmt.Fprintln(s.out, "  :stats          Show registry statistics")
		fmt.Fprintln(s.out, "  :forget         Drop the last query from the registry")
		fmt.Fprintln(s.out, "  :purge          Empty the registry")
		fmt.Fprintln(s.out, "  exit, quit      Exit the REPL")

	case ":json":
		s.mode = ModeJSON
		fmt.Fprintln(s.out, "Output mode: json")
	case ":explain":
		s.mode = ModeExplain
		fmt.Fprintln(s.out, "Output mode: explain")
	case ":check":
		s.mode = ModeCheck
		fmt.Fprintln(s.out, "Output mode: check")

	case ":limits":
		fmt.Fprintf(s.out, "  max query length:  %s\n", limitString(s.limits.MaxQueryLength, humanize.IBytes(uint64(s.limits.MaxQueryLength))))
		fmt.Fprintf(s.out, "  max nesting depth: %s\n", limitString(s.limits.MaxNestingDepth, humanize.Comma(int64(s.limits.MaxNestingDepth))))
		fmt.Fprintf(s.out, "  max nodes:         %s\n", limitString(s.limits.MaxNodes, humanize.Comma(int64(s.limits.MaxNodes))))

	case ":stats":
		st := s.reg.Stats()
		fmt.Fprintf(s.out, "  parsed:        %s\n", humanize.Comma(st.Parses))
		fmt.Fprintf(s.out, "  memory hits:   %s\n", humanize.Comma(st.Memory))
		fmt.Fprintf(s.out, "  store hits:    %s\n", humanize.Comma(st.Store))
		fmt.Fprintf(s.out, "  failed:        %s\n", humanize.Comma(st.Failed))
		fmt.Fprintf(s.out, "  cached:        %s\n", humanize.Comma(int64(st.Entries)))
		if store := s.reg.Store(); store != nil {
			n, size, stored, err := store.Count(ctx)
			if err != nil {
				fmt.Fprintf(s.out, "  store: %v\n", err)
				return
			}
			fmt.Fprintf(s.out, "  stored:        %s (%s, %s on disk)\n",
				humanize.Comma(int64(n)), humanize.Bytes(uint64(size)), humanize.Bytes(uint64(stored)))
		}

	case ":forget":
		if s.last == "" {
			fmt.Fprintln(s.out, "No query to forget")
			return
		}
		if err := s.reg.Forget(ctx, s.last); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return
		}
		fmt.Fprintln(s.out, "Forgotten")

	case ":purge":
		if err := s.reg.Purge(ctx); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return
		}
		fmt.Fprintln(s.out, "Registry purged")

	default:
		if match := perrors.FindClosestMatch(fields[0], commands); match != "" {
			fmt.Fprintf(s.out, "Unknown command: %s (did you mean %s?)\n", fields[0], match)
			return
		}
		fmt.Fprintf(s.out, "Unknown command: %s (type :help for commands)\n", fields[0])
	}
}

func limitString(n int, formatted string) string {
	if n == 0 {
		return "unlimited"
	}
	return formatted
}

// Start runs the REPL with line editing, history, and tab completion
func Start(ctx context.Context, s *Session, version string) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(filterCompletions)

	historyFile := filepath.Join(os.TempDir(), ".aql_history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintln(s.out, "aql", version)
	fmt.Fprintln(s.out, "Type 'exit' or Ctrl+D to quit, ':help' for commands")
	fmt.Fprintln(s.out, "")

	var inputBuffer strings.Builder
	for !s.Done() {
		prompt := s.Prompt()
		if inputBuffer.Len() > 0 {
			prompt = CONTINUATION_PROMPT
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted {
				if inputBuffer.Len() > 0 {
					fmt.Fprintln(s.out, "^C (cleared)")
				} else {
					fmt.Fprintln(s.out, "^C")
				}
				inputBuffer.Reset()
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(s.out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(s.out, "Error reading input: %v\n", err)
			continue
		}

		if inputBuffer.Len() == 0 && strings.TrimSpace(input) == "" {
			continue
		}
		if inputBuffer.Len() > 0 {
			inputBuffer.WriteString("\n")
		}
		inputBuffer.WriteString(input)

		full := inputBuffer.String()
		if needsMoreInput(full) {
			continue
		}
		line.AppendHistory(full)
		inputBuffer.Reset()

		s.Handle(ctx, full)
	}
}
