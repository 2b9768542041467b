// Package registry caches parse results keyed by query text.
//
// A query is parsed at most once per set of parser limits: the canonical
// artifact bytes are kept in an in-memory LRU and, optionally, in a SQL
// table shared between processes. Queries that fail to parse are never
// cached, so every submission of a bad query reports its error.
package registry

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"

	perrors "github.com/sambeau/aql/pkg/aql/errors"
	"github.com/sambeau/aql/pkg/aql/logger"
	"github.com/sambeau/aql/pkg/aql/parser"
)

// Source tells where an entry was found.
type Source int

const (
	SourceParse Source = iota
	SourceMemory
	SourceStore
)

func (s Source) String() string {
	switch s {
	case SourceParse:
		return "parse"
	case SourceMemory:
		return "memory"
	case SourceStore:
		return "store"
	}
	return "unknown"
}

// Entry is a cached parse result. Entries are shared between callers and
// must not be modified.
type Entry struct {
	Key        string
	Type       string
	Collection string
	JSON       []byte
	Warnings   []perrors.Warning

	// Artifact is nil when the entry was loaded from the persistent store.
	Artifact *parser.Artifact
	Source   Source
}

// Options configures a Registry.
type Options struct {
	Limits      parser.Limits
	MemorySize  int
	Driver      string // "" keeps entries in memory only
	DSN         string
	Table       string
	Compression string
	MaxPayload  int64 // artifacts larger than this are not stored; 0 means no limit
	Logger      logger.Logger
}

// Stats reports registry activity since it was opened.
type Stats struct {
	Parses  int64
	Memory  int64
	Store   int64
	Failed  int64
	Entries int
}

// Registry parses queries through a two-level cache. It is safe for
// concurrent use.
type Registry struct {
	opts  Options
	log   logger.Logger
	mem   *memory
	store *Store

	parses, memHits, storeHits, failed atomic.Int64
}

// Open creates a registry, connecting to the persistent store if a driver
// is configured.
func Open(ctx context.Context, opts Options) (*Registry, error) {
	r := &Registry{opts: opts, log: opts.Logger}
	if r.log == nil {
		r.log = logger.Nop()
	}
	if opts.MemorySize > 0 {
		r.mem = newMemory(opts.MemorySize)
	}
	if opts.Driver != "" {
		table := opts.Table
		if table == "" {
			table = "aql_artifacts"
		}
		s, err := OpenStore(ctx, opts.Driver, opts.DSN, table, opts.Compression)
		if err != nil {
			return nil, err
		}
		r.store = s
		r.log.Debugf("registry: using %s table %s", opts.Driver, table)
	}
	return r, nil
}

// Key returns the registry key of a query: a BLAKE2b-256 digest of the
// limits and the query text. The limits are part of the key because they
// decide whether a query parses at all.
func Key(query string, limits parser.Limits) string {
	var head [24]byte
	binary.BigEndian.PutUint64(head[0:], uint64(limits.MaxQueryLength))
	binary.BigEndian.PutUint64(head[8:], uint64(limits.MaxNestingDepth))
	binary.BigEndian.PutUint64(head[16:], uint64(limits.MaxNodes))

	h, _ := blake2b.New256(nil)
	h.Write(head[:])
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

// Parse returns the artifact of query, parsing it only on a cache miss.
// Parse errors are returned as-is and never cached. A failing store is
// logged and bypassed.
func (r *Registry) Parse(ctx context.Context, query string) (*Entry, error) {
	key := Key(query, r.opts.Limits)

	if r.mem != nil {
		if e, ok := r.mem.get(key); ok {
			r.memHits.Add(1)
			hit := *e
			hit.Source = SourceMemory
			return &hit, nil
		}
	}

	if r.store != nil {
		e, ok, err := r.store.Get(ctx, key)
		if err != nil {
			r.log.Warnf("registry: %v", err)
		} else if ok {
			r.storeHits.Add(1)
			if r.mem != nil {
				r.mem.set(key, e)
			}
			return e, nil
		}
	}

	art, err := parser.Parse(query, parser.WithLimits(r.opts.Limits), parser.WithLogger(r.log))
	if err != nil {
		r.failed.Add(1)
		return nil, err
	}
	data, err := art.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding artifact: %w", err)
	}
	r.parses.Add(1)

	e := &Entry{
		Key:        key,
		Type:       art.Classification.Type.String(),
		Collection: art.Classification.Collection,
		JSON:       data,
		Warnings:   art.Warnings,
		Artifact:   art,
		Source:     SourceParse,
	}
	if r.mem != nil {
		r.mem.set(key, e)
	}
	if r.store != nil {
		if max := r.opts.MaxPayload; max > 0 && int64(len(data)) > max {
			r.log.Debugf("registry: artifact %s is %d bytes, not stored", key[:12], len(data))
		} else if err := r.store.Put(ctx, e); err != nil {
			r.log.Warnf("registry: %v", err)
		}
	}
	return e, nil
}

// Forget removes a query from both cache levels.
func (r *Registry) Forget(ctx context.Context, query string) error {
	key := Key(query, r.opts.Limits)
	if r.mem != nil {
		r.mem.remove(key)
	}
	if r.store != nil {
		return r.store.Delete(ctx, key)
	}
	return nil
}

// Purge empties both cache levels.
func (r *Registry) Purge(ctx context.Context) error {
	if r.mem != nil {
		r.mem.clear()
	}
	if r.store != nil {
		return r.store.Purge(ctx)
	}
	return nil
}

// Stats returns activity counters and the number of entries held in memory.
func (r *Registry) Stats() Stats {
	s := Stats{
		Parses: r.parses.Load(),
		Memory: r.memHits.Load(),
		Store:  r.storeHits.Load(),
		Failed: r.failed.Load(),
	}
	if r.mem != nil {
		s.Entries = r.mem.len()
	}
	return s
}

// Store returns the persistent store, or nil when entries live only in memory.
func (r *Registry) Store() *Store {
	return r.store
}

// Close releases the persistent store.
func (r *Registry) Close() error {
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}
