package parser

import (
	"encoding/json"

	perrors "github.com/sambeau/aql/pkg/aql/errors"
)

// AST returns the canonical JSON form of the syntax tree.
func (a *Artifact) AST() []byte {
	return a.Arena.Serialize(a.Root)
}

// Tree returns the syntax tree as nested maps and slices.
func (a *Artifact) Tree() map[string]any {
	return a.Arena.ToTree(a.Root)
}

// Dump returns an indented outline of the syntax tree.
func (a *Artifact) Dump() string {
	return a.Arena.Dump(a.Root)
}

// NumNodes returns the number of nodes allocated by the parse.
func (a *Artifact) NumNodes() int {
	return a.Arena.Len()
}

// artifactHeader holds the flat fields of the artifact. They are encoded
// with encoding/json; the tree is spliced in separately since its depth is
// unbounded.
type artifactHeader struct {
	Type           string            `json:"type"`
	Collection     string            `json:"collection,omitempty"`
	BindParameters []string          `json:"bindParameters"`
	Collections    []string          `json:"collections"`
	Warnings       []perrors.Warning `json:"warnings,omitempty"`
}

// MarshalJSON encodes the artifact canonically: identical query text
// always produces identical bytes.
func (a *Artifact) MarshalJSON() ([]byte, error) {
	header, err := json.Marshal(artifactHeader{
		Type:           a.Classification.Type.String(),
		Collection:     a.Classification.Collection,
		BindParameters: nonNil(a.BindParameters),
		Collections:    nonNil(a.Collections),
		Warnings:       a.Warnings,
	})
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, len(header)+64*a.Arena.Len())
	buf = append(buf, header[:len(header)-1]...)
	buf = append(buf, `,"ast":`...)
	buf = a.Arena.AppendJSON(buf, a.Root)
	return append(buf, '}'), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
