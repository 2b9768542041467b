// Package errors provides structured diagnostics for the AQL front end.
//
// Every error a parse can produce is a *QueryError carrying a numeric code,
// a kind, the source position and a rendered multi-line message that points
// at the offending region of the query. Non-fatal findings are reported as
// Warning values attached to a successful parse.
package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// Kind categorizes errors for filtering and display.
type Kind string

const (
	KindLexical  Kind = "lexical"  // Token source cannot tokenize further
	KindSyntax   Kind = "syntax"   // Grammar rejects the token stream
	KindSemantic Kind = "semantic" // Grammar accepts, legality rules reject
	KindLimit    Kind = "limit"    // A configured resource limit was reached
)

// Code is the numeric error code reported to callers.
type Code int

const (
	CodeParse              Code = 1501
	CodeEmptyQuery         Code = 1502
	CodeLexical            Code = 1503
	CodeNumberOutOfRange   Code = 1504
	CodeVariableRedeclared Code = 1511
	CodeVariableUnknown    Code = 1512
	CodeMultiModify        Code = 1573
	CodeModifyInSubquery   Code = 1574
	CodeCompileTimeOptions Code = 1575
	CodeLimitExceeded      Code = 1580
)

// QueryError is the single structured error returned by a failed parse.
type QueryError struct {
	Code    Code     `json:"code"`
	Kind    Kind     `json:"kind"`
	Detail  string   `json:"detail"`          // Message before rendering
	Message string   `json:"message"`         // Rendered multi-line message
	Hints   []string `json:"hints,omitempty"` // Suggestions for fixing
	Line    int      `json:"line"`            // 1-based line
	Column  int      `json:"column"`          // 0-based column
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Message == "" {
		return e.Detail
	}
	return e.Message
}

// PrettyString returns the rendered message followed by any hints.
func (e *QueryError) PrettyString() string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	for i, hint := range e.Hints {
		if i == 0 {
			sb.WriteString("hint: ")
		} else {
			sb.WriteString("  or: ")
		}
		sb.WriteString(hint)
		sb.WriteString("\n")
	}
	return sb.String()
}

// ToJSON returns the error as JSON bytes.
func (e *QueryError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// As extracts a *QueryError from err.
func As(err error) (*QueryError, bool) {
	var qe *QueryError
	if stderrors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

// HasCode reports whether err is a *QueryError with the given code.
func HasCode(err error, code Code) bool {
	qe, ok := As(err)
	return ok && qe.Code == code
}

// Warning is a non-fatal diagnostic attached to a successful parse.
type Warning struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

func (w Warning) String() string {
	return fmt.Sprintf("warning %d at position %d:%d: %s", w.Code, w.Line, w.Column+1, w.Message)
}

// Def defines an entry in the catalog.
type Def struct {
	Kind     Kind
	Template string   // Message template with {{.placeholders}}
	Hints    []string // Hint templates (may use {{.placeholders}})
}

// Catalog maps error codes to their definitions.
var Catalog = map[Code]Def{
	CodeParse: {
		Kind:     KindSyntax,
		Template: "syntax error, unexpected {{.Got}}{{if .Expected}}, expecting {{.Expected}}{{end}}",
	},
	CodeEmptyQuery: {
		Kind:     KindSyntax,
		Template: "query is empty",
	},
	CodeLexical: {
		Kind:     KindLexical,
		Template: "{{.Reason}}",
	},
	CodeNumberOutOfRange: {
		Kind:     KindSyntax,
		Template: "number out of range: {{.Literal}}",
	},
	CodeVariableRedeclared: {
		Kind:     KindSemantic,
		Template: "variable '{{.Name}}' is assigned multiple times",
		Hints:    []string{"rename one of the '{{.Name}}' declarations, or move it into a subquery"},
	},
	CodeVariableUnknown: {
		Kind:     KindSemantic,
		Template: "unknown variable '{{.Name}}'",
		Hints:    []string{"OLD is set by UPDATE, REPLACE, REMOVE and UPSERT, NEW by INSERT, UPDATE, REPLACE and UPSERT"},
	},
	CodeMultiModify: {
		Kind:     KindSemantic,
		Template: "multi-modify query: a query can contain at most one data-modification operation",
	},
	CodeModifyInSubquery: {
		Kind:     KindSemantic,
		Template: "data-modification operation not allowed in a subquery",
	},
	CodeCompileTimeOptions: {
		Kind:     KindSemantic,
		Template: "query options must be readable at query compile time",
	},
	CodeLimitExceeded: {
		Kind:     KindLimit,
		Template: "{{.Limit}} of {{.Max}} exceeded",
	},
}

// Describe renders the catalog message and hints for code. Unknown codes
// produce a generic syntax-kind message.
func Describe(code Code, data map[string]any) (Kind, string, []string) {
	def, ok := Catalog[code]
	if !ok {
		return KindSyntax, fmt.Sprintf("error %d", code), nil
	}

	msg := renderTemplate(def.Template, data)

	var hints []string
	for _, hintTmpl := range def.Hints {
		if rendered := renderTemplate(hintTmpl, data); rendered != "" {
			hints = append(hints, rendered)
		}
	}
	return def.Kind, msg, hints
}

// renderTemplate renders a Go template with the given data.
func renderTemplate(tmplStr string, data map[string]any) string {
	if data == nil {
		return tmplStr
	}

	tmpl, err := template.New("").Option("missingkey=zero").Parse(tmplStr)
	if err != nil {
		return tmplStr
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return tmplStr
	}

	return strings.ReplaceAll(buf.String(), "<no value>", "")
}

// ============================================================================
// Fuzzy Matching - "Did you mean?" suggestions
// ============================================================================

// levenshteinDistance computes the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// threshold returns the maximum edit distance accepted for an input of the
// given length.
func threshold(n int) int {
	switch {
	case n >= 7:
		return 3
	case n >= 4:
		return 2
	default:
		return 1
	}
}

// FindClosestMatch finds the closest candidate to input, ignoring case.
// Exact matches and matches beyond the length-based threshold yield "".
func FindClosestMatch(input string, candidates []string) string {
	if len(input) == 0 || len(candidates) == 0 {
		return ""
	}

	inputLower := strings.ToLower(input)

	var bestMatch string
	bestDistance := -1
	for _, candidate := range candidates {
		dist := levenshteinDistance(inputLower, strings.ToLower(candidate))
		if bestDistance == -1 || dist < bestDistance {
			bestDistance = dist
			bestMatch = candidate
		}
	}

	if bestDistance <= 0 || bestDistance > threshold(len(input)) {
		return ""
	}
	return bestMatch
}

// FindTopMatches returns up to n candidates within the threshold, closest first.
func FindTopMatches(input string, candidates []string, n int) []string {
	if len(input) == 0 || len(candidates) == 0 || n <= 0 {
		return nil
	}

	type match struct {
		value    string
		distance int
	}

	inputLower := strings.ToLower(input)
	var matches []match
	for _, candidate := range candidates {
		if dist := levenshteinDistance(inputLower, strings.ToLower(candidate)); dist > 0 {
			matches = append(matches, match{candidate, dist})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	limit := threshold(len(input))
	var result []string
	for i := 0; i < len(matches) && i < n; i++ {
		if matches[i].distance <= limit {
			result = append(result, matches[i].value)
		}
	}
	return result
}

// Keywords are the reserved words of the query language, used for typo hints.
var Keywords = []string{
	"FOR", "IN", "FILTER", "LET", "SORT", "ASC", "DESC", "LIMIT", "COLLECT",
	"INTO", "WITH", "RETURN", "DISTINCT", "INSERT", "UPDATE", "REPLACE",
	"REMOVE", "UPSERT", "OPTIONS", "AND", "OR", "NOT", "LIKE", "NULL",
	"TRUE", "FALSE",
}
