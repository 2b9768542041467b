package registry

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	perrors "github.com/sambeau/aql/pkg/aql/errors"

	// Drivers register themselves with database/sql.
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver (pure Go, no CGO required)
)

// dialect captures the SQL differences between the supported databases.
type dialect struct {
	driverName string
	keyType    string
	blobType   string
	numbered   bool   // $1, $2 placeholders instead of ?
	upsert     string // conflict clause appended to the insert
}

var dialects = map[string]dialect{
	"sqlite": {
		driverName: "sqlite",
		keyType:    "TEXT",
		blobType:   "BLOB",
		upsert:     "ON CONFLICT (artifact_key) DO UPDATE SET %s",
	},
	"postgres": {
		driverName: "postgres",
		keyType:    "VARCHAR(64)",
		blobType:   "BYTEA",
		numbered:   true,
		upsert:     "ON CONFLICT (artifact_key) DO UPDATE SET %s",
	},
	"mysql": {
		driverName: "mysql",
		keyType:    "VARCHAR(64)",
		blobType:   "LONGBLOB",
		upsert:     "ON DUPLICATE KEY UPDATE %s",
	},
}

// placeholders returns n bind markers for the dialect.
func (d dialect) placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		if d.numbered {
			marks[i] = fmt.Sprintf("$%d", i+1)
		} else {
			marks[i] = "?"
		}
	}
	return strings.Join(marks, ", ")
}

// assign returns the update assignment for col in the conflict clause.
func (d dialect) assign(col string) string {
	if d.driverName == "mysql" {
		return fmt.Sprintf("%s = VALUES(%s)", col, col)
	}
	return fmt.Sprintf("%s = excluded.%s", col, col)
}

const (
	encodingZstd = "zstd"
	encodingNone = "none"
)

var storeColumns = []string{"artifact_key", "query_type", "collection", "encoding", "size", "payload", "created_at"}

// Store persists canonical artifact bytes in a SQL database.
type Store struct {
	db       *sql.DB
	dialect  dialect
	table    string
	encoding string
	enc      *zstd.Encoder
	dec      *zstd.Decoder

	selectSQL string
	upsertSQL string
	deleteSQL string

	closeOnce sync.Once
	closeErr  error
}

// OpenStore connects to the database and creates the artifact table if
// it does not exist. Payloads are written zstd-compressed unless
// compression is "none"; either encoding is readable.
func OpenStore(ctx context.Context, driver, dsn, table, compression string) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unknown registry driver %q", driver)
	}

	if driver == "sqlite" {
		var err error
		if dsn, err = sqliteDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to registry database: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	s := &Store{
		db:       db,
		dialect:  d,
		table:    table,
		encoding: encodingZstd,
		enc:      enc,
		dec:      dec,
	}
	if compression == encodingNone {
		s.encoding = encodingNone
	}
	s.prepareSQL()

	if err := s.createSchema(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("creating registry schema: %w", err)
	}
	return s, nil
}

// sqliteDSN creates the database directory and enables WAL mode for
// plain file paths.
func sqliteDSN(dsn string) (string, error) {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, "?") {
		return dsn, nil
	}
	if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
		return "", fmt.Errorf("creating registry directory: %w", err)
	}
	return dsn + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
}

func (s *Store) prepareSQL() {
	d := s.dialect
	s.selectSQL = fmt.Sprintf("SELECT query_type, collection, encoding, size, payload FROM %s WHERE artifact_key = %s",
		s.table, d.placeholders(1))
	s.deleteSQL = fmt.Sprintf("DELETE FROM %s WHERE artifact_key = %s", s.table, d.placeholders(1))

	var sets []string
	for _, col := range storeColumns[1:] {
		sets = append(sets, d.assign(col))
	}
	s.upsertSQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		s.table, strings.Join(storeColumns, ", "), d.placeholders(len(storeColumns)),
		fmt.Sprintf(d.upsert, strings.Join(sets, ", ")))
}

func (s *Store) createSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		artifact_key %s PRIMARY KEY,
		query_type VARCHAR(16) NOT NULL,
		collection VARCHAR(255) NOT NULL,
		encoding VARCHAR(8) NOT NULL,
		size BIGINT NOT NULL,
		payload %s NOT NULL,
		created_at BIGINT NOT NULL
	)`, s.table, s.dialect.keyType, s.dialect.blobType)
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Get loads the entry stored under key. ok is false when there is none.
func (s *Store) Get(ctx context.Context, key string) (e *Entry, ok bool, err error) {
	var (
		typ, collection, encoding string
		size                      int64
		payload                   []byte
	)
	err = s.db.QueryRowContext(ctx, s.selectSQL, key).Scan(&typ, &collection, &encoding, &size, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading artifact %s: %w", key, err)
	}

	data, err := s.decode(encoding, payload, size)
	if err != nil {
		return nil, false, fmt.Errorf("decoding artifact %s: %w", key, err)
	}
	warnings, err := headerWarnings(data)
	if err != nil {
		return nil, false, fmt.Errorf("decoding artifact %s: %w", key, err)
	}
	return &Entry{
		Key:        key,
		Type:       typ,
		Collection: collection,
		JSON:       data,
		Warnings:   warnings,
		Source:     SourceStore,
	}, true, nil
}

// headerWarnings reads the warnings of a serialized artifact. The header
// fields precede the tree, so decoding stops at the "ast" key.
func headerWarnings(data []byte) ([]perrors.Warning, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok != json.Delim('{') {
		return nil, errors.New("artifact is not a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch tok {
		case "warnings":
			var warnings []perrors.Warning
			if err := dec.Decode(&warnings); err != nil {
				return nil, err
			}
			return warnings, nil
		case "ast":
			return nil, nil
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// Put writes or replaces the entry.
func (s *Store) Put(ctx context.Context, e *Entry) error {
	payload := e.JSON
	if s.encoding == encodingZstd {
		payload = s.enc.EncodeAll(e.JSON, make([]byte, 0, len(e.JSON)/4))
	}
	_, err := s.db.ExecContext(ctx, s.upsertSQL,
		e.Key, e.Type, e.Collection, s.encoding, int64(len(e.JSON)), payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("writing artifact %s: %w", e.Key, err)
	}
	return nil
}

func (s *Store) decode(encoding string, payload []byte, size int64) ([]byte, error) {
	var data []byte
	switch encoding {
	case encodingNone:
		data = payload
	case encodingZstd:
		var err error
		if data, err = s.dec.DecodeAll(payload, make([]byte, 0, size)); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: stored %d, decoded %d", size, len(data))
	}
	return data, nil
}

// Delete removes the entry stored under key, if any.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.deleteSQL, key); err != nil {
		return fmt.Errorf("deleting artifact %s: %w", key, err)
	}
	return nil
}

// Purge removes every stored entry.
func (s *Store) Purge(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table); err != nil {
		return fmt.Errorf("purging registry: %w", err)
	}
	return nil
}

// Count returns the number of stored entries and their total uncompressed
// and stored sizes.
func (s *Store) Count(ctx context.Context) (n int, size, stored int64, err error) {
	q := fmt.Sprintf("SELECT COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(LENGTH(payload)), 0) FROM %s", s.table)
	if err := s.db.QueryRowContext(ctx, q).Scan(&n, &size, &stored); err != nil {
		return 0, 0, 0, fmt.Errorf("counting artifacts: %w", err)
	}
	return n, size, stored, nil
}

// Close releases the database connection and codec resources.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.enc.Close()
		s.dec.Close()
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
