// Package store provides atomic parameterized statements and multi-statement
// transactions against the host's single embedded SQLite database file.
// No component other than the Schema Engine and the Host API issues SQL
// directly against it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a single *sqlx.DB whose pool is capped at one open
// connection (see Open), so statements run one at a time; writes
// that span multiple statements also serialize behind writeMu so a
// multi-statement Transaction observes no interleaving from another
// writer, matching the single-writer-mutex concurrency rule.
type Store struct {
	db      *sqlx.DB
	writeMu sync.Mutex
}

// Row is a single result row, column name to value.
type Row = map[string]any

// Open opens (creating if absent) the SQLite file at path and enables
// foreign key enforcement, which SQLite otherwise leaves off by default.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging store %s: %w", path, err)
	}
	// SQLite allows exactly one writer at a time; a single *sql.DB
	// connection keeps the driver from trying to multiplex writers and
	// tripping "database is locked".
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sqlx.DB for components (the Schema Engine)
// that need to build statements the Store's narrower surface doesn't
// cover, such as DDL.
func (s *Store) DB() *sqlx.DB { return s.db }

// Exec runs a single parameterized statement outside of an explicit
// transaction and returns the number of affected rows.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Query runs a parameterized SELECT and returns every row as a
// column-name-to-value map, including columns added by schema extensions
// — the caller never has to know the table's shape in advance.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row := make(Row)
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		out = append(out, normalizeRow(row))
	}
	return out, rows.Err()
}

// normalizeRow converts the driver's []byte values (SQLite returns TEXT
// columns as []byte via database/sql) into strings so callers serializing
// to JSON don't get base64-encoded blobs for ordinary text.
func normalizeRow(row Row) Row {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
	return row
}

// Tx is a handle passed into Transaction's callback. It exposes the same
// Exec/Query shape as Store so callers don't need two APIs.
type Tx struct {
	tx *sqlx.Tx
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := t.tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row := make(Row)
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		out = append(out, normalizeRow(row))
	}
	return out, rows.Err()
}

// Transaction runs fn within a single database transaction, serialized
// against every other writer via writeMu. fn's returned error rolls the
// transaction back; a nil return commits. Any panic inside fn is
// recovered, the transaction rolled back, and the panic re-raised — a
// plugin-triggered schema failure must never leave a half-applied
// transaction committed.
func (s *Store) Transaction(ctx context.Context, fn func(*Tx) error) (err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ErrNoRows re-exports sql.ErrNoRows so callers outside this package don't
// need to import database/sql just to check it.
var ErrNoRows = sql.ErrNoRows
