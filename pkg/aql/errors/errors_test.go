package errors

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		region   string
		query    string
		line     int
		column   int
		expected string
	}{
		{
			name:     "end of input",
			message:  "syntax error, unexpected end of query",
			query:    "FOR x IN",
			line:     1,
			column:   8,
			expected: "syntax error, unexpected end of query near '' at position 1:9:\nFOR x IN\n        ^^\n",
		},
		{
			name:     "column zero",
			message:  "syntax error, unexpected identifier",
			region:   "RETRUN 1",
			query:    "RETRUN 1",
			line:     1,
			column:   0,
			expected: "syntax error, unexpected identifier near 'RETRUN 1' at position 1:1:\nRETRUN 1\n^^\n",
		},
		{
			name:     "second line",
			message:  "boom",
			region:   "x",
			query:    "LET a = 1\nRETURN x",
			line:     2,
			column:   7,
			expected: "boom near 'x' at position 2:8:\nLET a = 1\nRETURN x\n       ^^\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.message, tt.region, tt.query, tt.line, tt.column)
			if got != tt.expected {
				t.Errorf("Render() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPointer(t *testing.T) {
	if got := Pointer(0); got != "^^" {
		t.Errorf("Pointer(0) = %q, want %q", got, "^^")
	}
	if got := Pointer(3); got != "   ^^" {
		t.Errorf("Pointer(3) = %q, want %q", got, "   ^^")
	}
	if got := Pointer(-2); got != "^^" {
		t.Errorf("Pointer(-2) = %q, want %q", got, "^^")
	}
}

func TestDiagnostics_FirstErrorWins(t *testing.T) {
	d := NewDiagnostics("RETURN 1", func(line, column int) string { return "1" })

	first := d.Report(CodeParse, "first", 1, 7)
	second := d.Report(CodeMultiModify, "second", 1, 0)

	if first != second {
		t.Fatal("expected the second report to return the first error")
	}
	if d.Err().Detail != "first" {
		t.Errorf("Detail = %q, want %q", d.Err().Detail, "first")
	}
	if d.Err().Kind != KindSyntax {
		t.Errorf("Kind = %q, want %q", d.Err().Kind, KindSyntax)
	}
	if !strings.HasPrefix(d.Err().Error(), "first near '1' at position 1:8:") {
		t.Errorf("unexpected message %q", d.Err().Error())
	}
}

func TestDiagnostics_Reportf(t *testing.T) {
	d := NewDiagnostics("LET x = 1 LET x = 2 RETURN x", nil)
	err := d.Reportf(CodeVariableRedeclared, "variable '%s' is assigned multiple times", "x", 1, 14)

	if err.Detail != "variable 'x' is assigned multiple times" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if err.Kind != KindSemantic {
		t.Errorf("Kind = %q, want %q", err.Kind, KindSemantic)
	}
}

func TestDiagnostics_ReportCode(t *testing.T) {
	d := NewDiagnostics("FOR x IN", nil)
	err := d.ReportCode(CodeParse, map[string]any{"Got": "end of query"}, 1, 8)

	if err.Detail != "syntax error, unexpected end of query" {
		t.Errorf("Detail = %q", err.Detail)
	}

	d = NewDiagnostics("FOR x IN", nil)
	err = d.ReportCode(CodeParse, map[string]any{"Got": "'('", "Expected": "identifier"}, 1, 4)
	if err.Detail != "syntax error, unexpected '(', expecting identifier" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestDiagnostics_Warnings(t *testing.T) {
	d := NewDiagnostics("q", nil)
	d.Warn(CodeCompileTimeOptions, 1, 4)

	ws := d.Warnings()
	if len(ws) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(ws))
	}
	if ws[0].Code != CodeCompileTimeOptions {
		t.Errorf("Code = %d", ws[0].Code)
	}
	if d.Failed() {
		t.Error("warnings must not mark the session as failed")
	}
	if !strings.Contains(ws[0].String(), "1:5") {
		t.Errorf("String() = %q", ws[0].String())
	}
}

func TestAs(t *testing.T) {
	d := NewDiagnostics("q", nil)
	var err error = d.Report(CodeMultiModify, "m", 1, 0)

	qe, ok := As(err)
	if !ok || qe.Code != CodeMultiModify {
		t.Fatalf("As() = %v, %v", qe, ok)
	}
	if !HasCode(err, CodeMultiModify) {
		t.Error("HasCode() = false")
	}
	if HasCode(err, CodeParse) {
		t.Error("HasCode() matched the wrong code")
	}
}

func TestQueryError_ToJSON(t *testing.T) {
	err := &QueryError{Code: CodeParse, Kind: KindSyntax, Detail: "d", Message: "m", Line: 1, Column: 2}
	data, jerr := err.ToJSON()
	if jerr != nil {
		t.Fatal(jerr)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["code"] != float64(1501) {
		t.Errorf("code = %v", decoded["code"])
	}
	if _, ok := decoded["hints"]; ok {
		t.Error("empty hints should be omitted")
	}
}

func TestAssert(t *testing.T) {
	defer func() {
		r := recover()
		pe, ok := r.(*ProgrammerError)
		if !ok {
			t.Fatalf("expected *ProgrammerError panic, got %v", r)
		}
		if pe.Message != "arity 3 > 2" {
			t.Errorf("Message = %q", pe.Message)
		}
	}()
	Assert(false, "arity %d > %d", 3, 2)
}

func TestFindClosestMatch(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"FITLER", "FILTER"},
		{"retrun", "RETURN"},
		{"FOR", ""},
		{"zzzzzzzzzz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := FindClosestMatch(tt.input, Keywords); got != tt.expected {
				t.Errorf("FindClosestMatch(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFindTopMatches(t *testing.T) {
	got := FindTopMatches("INTOO", []string{"INTO", "INSERT", "INTOXX", "FOR"}, 2)
	if len(got) != 2 || got[0] != "INTO" {
		t.Errorf("FindTopMatches() = %v", got)
	}
}

func TestDescribe_LimitTemplate(t *testing.T) {
	kind, msg, _ := Describe(CodeLimitExceeded, map[string]any{"Limit": "maximum nesting depth", "Max": "1,000"})
	if kind != KindLimit {
		t.Errorf("kind = %q", kind)
	}
	if msg != "maximum nesting depth of 1,000 exceeded" {
		t.Errorf("msg = %q", msg)
	}
}

func TestCatalogKinds(t *testing.T) {
	tests := []struct {
		code Code
		kind Kind
	}{
		{CodeParse, KindSyntax},
		{CodeEmptyQuery, KindSyntax},
		{CodeLexical, KindLexical},
		{CodeNumberOutOfRange, KindSyntax},
		{CodeVariableRedeclared, KindSemantic},
		{CodeVariableUnknown, KindSemantic},
		{CodeMultiModify, KindSemantic},
		{CodeModifyInSubquery, KindSemantic},
		{CodeCompileTimeOptions, KindSemantic},
		{CodeLimitExceeded, KindLimit},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			kind, _, _ := Describe(tt.code, nil)
			if kind != tt.kind {
				t.Errorf("Describe(%d) kind = %q, want %q", tt.code, kind, tt.kind)
			}
		})
	}

	d := NewDiagnostics("RETURN [[1]]", nil)
	err := d.ReportCode(CodeLimitExceeded, map[string]any{"Limit": "maximum nesting depth", "Max": "1"}, 1, 8)
	if err.Kind != KindLimit {
		t.Errorf("reported limit error kind = %q, want %q", err.Kind, KindLimit)
	}
}
