package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY NOT NULL,
	value TEXT NOT NULL
)`

// SQLiteAdapter stores values in a SQLite database file. Session scopes use a
// private in-memory database that ends with the handle.
type SQLiteAdapter struct {
	dir   string
	quota int
}

// NewSQLiteAdapter returns an adapter keeping its database under dir, or
// under the default data directory when dir is empty. A positive quota
// bounds the encoded size of each value.
func NewSQLiteAdapter(dir string, quota int) *SQLiteAdapter {
	return &SQLiteAdapter{dir: dir, quota: quota}
}

// Name implements Adapter.
func (a *SQLiteAdapter) Name() string { return "sqlite" }

// Init implements Adapter.
func (a *SQLiteAdapter) Init(namespace string) bool {
	h, err := a.Create(namespace, true)
	if err != nil {
		return false
	}
	defer h.Close()
	return probe(h) == nil
}

// Create implements Adapter.
func (a *SQLiteAdapter) Create(namespace string, persistent bool) (Handle, error) {
	if namespace == "" {
		return nil, fmt.Errorf("sqlite: namespace cannot be empty")
	}
	dsn := ":memory:"
	if persistent {
		root, err := resolveDir(a.dir)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, fmt.Errorf("sqlite: failed to create directory: %w", err)
		}
		dsn = filepath.Join(root, "turnkeeper.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	m, err := openSQLite(dsn)
	if err != nil {
		return nil, err
	}
	return newHandle(a.Name(), namespace, persistent, UTF16Codec{}, a.quota, m), nil
}

type sqliteMedium struct {
	db *sql.DB
}

func openSQLite(dsn string) (*sqliteMedium, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// a :memory: database lives only as long as its connection
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &sqliteMedium{db: db}, nil
}

func (m *sqliteMedium) read(key string) (string, bool, error) {
	var text string
	err := m.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (m *sqliteMedium) write(key, text string) error {
	_, err := m.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, text,
	)
	return err
}

func (m *sqliteMedium) remove(key string) error {
	_, err := m.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (m *sqliteMedium) list(prefix string) ([]string, error) {
	// range scan on the primary key; LIKE would treat _ and % in namespaces
	// as wildcards
	rows, err := m.db.Query(`SELECT key FROM kv WHERE key >= ? ORDER BY key`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		if !strings.HasPrefix(k, prefix) {
			break
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (m *sqliteMedium) close() error {
	return m.db.Close()
}

var _ Adapter = (*SQLiteAdapter)(nil)
