package parser

import "errors"

// QueryType classifies what a query does to the data it touches.
type QueryType uint8

const (
	QueryRead QueryType = iota
	QueryInsert
	QueryUpdate
	QueryReplace
	QueryRemove
	QueryUpsert
)

var queryTypeNames = [...]string{
	QueryRead:    "read",
	QueryInsert:  "insert",
	QueryUpdate:  "update",
	QueryReplace: "replace",
	QueryRemove:  "remove",
	QueryUpsert:  "upsert",
}

func (t QueryType) String() string {
	if int(t) < len(queryTypeNames) {
		return queryTypeNames[t]
	}
	return "unknown"
}

// Classification is the read/write verdict on a parsed query.
type Classification struct {
	Type       QueryType
	Collection string // modified collection, empty for reads
}

// IsWrite reports whether the query modifies data.
func (c Classification) IsWrite() bool {
	return c.Type != QueryRead
}

var (
	// ErrModifyInSubquery is returned for a data-modification clause nested
	// in a subquery.
	ErrModifyInSubquery = errors.New("data-modification operation in subquery")

	// ErrMultipleModify is returned for the second data-modification clause
	// of a query.
	ErrMultipleModify = errors.New("multiple data-modification operations in one query")
)

// Options describes the OPTIONS clause of a modification.
type Options uint8

const (
	OptionsNone Options = iota
	OptionsConstant
	OptionsDynamic
)

// WriteAttempt is one data-modification clause presented to the guard.
type WriteAttempt struct {
	Type       QueryType
	Collection string
	InSubquery bool
	Options    Options
}

// WriteGuard allows at most one data modification per top-level query.
type WriteGuard struct {
	state Classification
}

// Attempt checks a modification and, if legal, records it. The returned
// bool is true when the options cannot be evaluated at compile time; that
// is reported as a warning and does not stop the write from being recorded.
func (g *WriteGuard) Attempt(w WriteAttempt) (bool, error) {
	if w.InSubquery {
		return false, ErrModifyInSubquery
	}
	if g.state.IsWrite() {
		return false, ErrMultipleModify
	}

	dynamicOptions := w.Options == OptionsDynamic
	g.state = Classification{Type: w.Type, Collection: w.Collection}
	return dynamicOptions, nil
}

// Classification returns the current verdict.
func (g *WriteGuard) Classification() Classification {
	return g.state
}
