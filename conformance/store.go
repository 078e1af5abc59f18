// Package conformance pins coercion behavior against recordings of a
// reference runtime.
//
// The conversion rules live on the far side of the runtime boundary, so
// the only trustworthy definition of, say, what Float64 3.9 becomes as
// Int32 is what the real runtime did. A Recorder captures every coercion a
// runtime performs into a SQLite store; Verify replays the stored
// coercions against another runtime and reports divergence. Fixtures
// recorded against a native automation runtime can thus pin the portable
// oleauto implementation.
package conformance

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/chazu/comvar/variant"
)

// Row is one observed coercion: the source block, the requested target,
// and the outcome (result payload or error kind).
type Row struct {
	From        variant.Type
	FromPayload [variant.PayloadOffset]byte
	To          variant.Type
	OK          bool
	ToPayload   [variant.PayloadOffset]byte
	ErrKind     string
}

// Store is a SQLite-backed set of recorded coercions.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) a conformance store. Use ":memory:" for
// a transient store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS coercions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_type INTEGER NOT NULL,
		from_payload BLOB NOT NULL,
		to_type INTEGER NOT NULL,
		ok INTEGER NOT NULL,
		to_payload BLOB NOT NULL,
		err_kind TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one observed coercion.
func (s *Store) Record(r Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO coercions (from_type, from_payload, to_type, ok, to_payload, err_kind)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		int(r.From), r.FromPayload[:], int(r.To), boolToInt(r.OK), r.ToPayload[:], r.ErrKind,
	)
	if err != nil {
		return fmt.Errorf("recording coercion: %w", err)
	}
	return nil
}

// Rows returns every recorded coercion in insertion order.
func (s *Store) Rows() ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT from_type, from_payload, to_type, ok, to_payload, err_kind
		 FROM coercions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying coercions: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r                    Row
			fromType, toType, ok int
			fromP, toP           []byte
		)
		if err := rows.Scan(&fromType, &fromP, &toType, &ok, &toP, &r.ErrKind); err != nil {
			return nil, fmt.Errorf("scanning coercion: %w", err)
		}
		r.From = variant.Type(fromType)
		r.To = variant.Type(toType)
		r.OK = ok != 0
		copy(r.FromPayload[:], fromP)
		copy(r.ToPayload[:], toP)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of recorded coercions.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM coercions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting coercions: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
