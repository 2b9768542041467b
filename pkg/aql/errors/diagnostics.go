package errors

import (
	"fmt"
	"strings"
)

// RegionFunc extracts the part of the query text starting at line/column.
type RegionFunc func(line, column int) string

// Pointer builds the caret line placed under the query text: column spaces
// followed by two carets.
func Pointer(column int) string {
	if column < 0 {
		column = 0
	}
	return strings.Repeat(" ", column) + "^^"
}

// Render produces the user-visible text of a positioned diagnostic.
// Columns are 0-based internally and reported 1-based.
func Render(message, region, query string, line, column int) string {
	return fmt.Sprintf("%s near '%s' at position %d:%d:\n%s\n%s\n",
		message, region, line, column+1, query, Pointer(column))
}

// Diagnostics collects the outcome of one parse session. The first error
// wins; later reports are ignored. Warnings accumulate separately.
type Diagnostics struct {
	query    string
	region   RegionFunc
	err      *QueryError
	warnings []Warning
}

// NewDiagnostics creates a sink for the given query text.
func NewDiagnostics(query string, region RegionFunc) *Diagnostics {
	if region == nil {
		region = func(int, int) string { return "" }
	}
	return &Diagnostics{query: query, region: region}
}

// Report records an error with an already formatted message and returns
// the recorded error, which is the earlier one if an error was already
// reported.
func (d *Diagnostics) Report(code Code, message string, line, column int, hints ...string) *QueryError {
	if d.err != nil {
		return d.err
	}

	kind := KindSyntax
	if def, ok := Catalog[code]; ok {
		kind = def.Kind
	}

	d.err = &QueryError{
		Code:    code,
		Kind:    kind,
		Detail:  message,
		Message: Render(message, d.region(line, column), d.query, line, column),
		Hints:   hints,
		Line:    line,
		Column:  column,
	}
	return d.err
}

// Reportf substitutes data into a format with exactly one %s, then reports.
func (d *Diagnostics) Reportf(code Code, format, data string, line, column int) *QueryError {
	return d.Report(code, fmt.Sprintf(format, data), line, column)
}

// ReportCode reports an error whose message and hints come from the catalog.
func (d *Diagnostics) ReportCode(code Code, data map[string]any, line, column int) *QueryError {
	_, msg, hints := Describe(code, data)
	return d.Report(code, msg, line, column, hints...)
}

// Warn records a non-fatal diagnostic using the catalog message for code.
func (d *Diagnostics) Warn(code Code, line, column int) {
	_, msg, _ := Describe(code, nil)
	d.warnings = append(d.warnings, Warning{
		Code:    code,
		Message: msg,
		Line:    line,
		Column:  column,
	})
}

// Err returns the first recorded error, or nil.
func (d *Diagnostics) Err() *QueryError {
	return d.err
}

// Failed reports whether an error has been recorded.
func (d *Diagnostics) Failed() bool {
	return d.err != nil
}

// Warnings returns the accumulated warnings in report order.
func (d *Diagnostics) Warnings() []Warning {
	if len(d.warnings) == 0 {
		return nil
	}
	out := make([]Warning, len(d.warnings))
	copy(out, d.warnings)
	return out
}

// ProgrammerError signals a grammar or driver defect rather than bad input.
// It is raised with panic and is never converted into a QueryError.
type ProgrammerError struct {
	Message string
}

func (e *ProgrammerError) Error() string {
	return "internal error: " + e.Message
}

// Assert panics with a *ProgrammerError when cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(&ProgrammerError{Message: fmt.Sprintf(format, args...)})
	}
}
