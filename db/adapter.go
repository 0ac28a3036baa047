// Package db provides a uniform query/transaction interface over the two
// interchangeable relational backends: an embedded SQLite file and a managed
// Postgres service. Queries throughout the codebase are written with "?"
// placeholders; the Postgres backend rewrites them to "$n" before execution.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Kind string

const (
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
)

// Queryer is the subset of database/sql shared by *sql.DB and *sql.Tx that
// the repositories use.
type Queryer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Backend abstracts the two storage backends. WithConn scopes a connection
// to the callback; Transaction additionally wraps the callback in
// begin/commit with rollback on any error. Both guarantee release of the
// underlying handle on every exit path.
type Backend interface {
	Kind() Kind
	WithConn(fn func(q Queryer) error) error
	Transaction(fn func(q Queryer) error) error
	Ping() error
	Close() error
}

// NewBackend builds a backend for the configured kind. The sqlite path and
// postgres DSN come from configuration resolved at process start.
func NewBackend(kind Kind, sqlitePath, postgresDSN string) (Backend, error) {
	switch kind {
	case KindSQLite:
		return NewSQLite(sqlitePath), nil
	case KindPostgres:
		pool, err := sql.Open("postgres", postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres pool: %w", err)
		}
		return NewPostgres(pool), nil
	default:
		return nil, fmt.Errorf("unsupported backend kind %q", kind)
	}
}

// Rebind rewrites "?" placeholders to the "$n" form Postgres expects.
func Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// reboundQueryer rebinds every statement before handing it to the driver, so
// repository code stays placeholder-agnostic.
type reboundQueryer struct {
	q Queryer
}

func (r reboundQueryer) Exec(query string, args ...interface{}) (sql.Result, error) {
	return r.q.Exec(Rebind(query), args...)
}

func (r reboundQueryer) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return r.q.Query(Rebind(query), args...)
}

func (r reboundQueryer) QueryRow(query string, args ...interface{}) *sql.Row {
	return r.q.QueryRow(Rebind(query), args...)
}

// sqliteBackend opens a fresh handle per call and always closes it. The file
// serializes writers, so holding a handle open across calls only widens the
// lock window.
type sqliteBackend struct {
	path string
}

func NewSQLite(path string) Backend {
	return &sqliteBackend{path: path}
}

func (b *sqliteBackend) Kind() Kind { return KindSQLite }

func (b *sqliteBackend) open() (*sql.DB, error) {
	dsn := "file:" + b.path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", b.path, err)
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}

func (b *sqliteBackend) WithConn(fn func(q Queryer) error) error {
	conn, err := b.open()
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func (b *sqliteBackend) Transaction(fn func(q Queryer) error) error {
	conn, err := b.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (b *sqliteBackend) Ping() error {
	conn, err := b.open()
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Ping()
}

func (b *sqliteBackend) Close() error { return nil }

// postgresBackend runs everything through one pooled *sql.DB.
type postgresBackend struct {
	pool *sql.DB
}

func NewPostgres(pool *sql.DB) Backend {
	return &postgresBackend{pool: pool}
}

func (b *postgresBackend) Kind() Kind { return KindPostgres }

func (b *postgresBackend) WithConn(fn func(q Queryer) error) error {
	return fn(reboundQueryer{q: b.pool})
}

func (b *postgresBackend) Transaction(fn func(q Queryer) error) error {
	tx, err := b.pool.Begin()
	if err != nil {
		return err
	}
	if err := fn(reboundQueryer{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (b *postgresBackend) Ping() error { return b.pool.Ping() }

func (b *postgresBackend) Close() error { return b.pool.Close() }
