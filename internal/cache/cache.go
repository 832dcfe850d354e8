// Package cache is the local key/value store the dashboard falls back to when
// the remote ordering collection cannot be used. Calls are synchronous.
package cache

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"taskdeck/internal/db"
)

type Cache interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// Key builds "<purpose>_<ownerID>", with "_<scope>" appended when scope is set.
func Key(purpose, ownerID, scope string) string {
	parts := []string{purpose, ownerID}
	if scope != "" {
		parts = append(parts, scope)
	}
	return strings.Join(parts, "_")
}

// Memory is a process-local cache.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: map[string]string{}}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// SQLite persists entries in a kv table of its own database file.
type SQLite struct {
	DB *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	conn, err := db.OpenFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS kv(key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		conn.Close()
		return nil, err
	}
	return &SQLite{DB: conn}, nil
}

func (s *SQLite) Get(key string) (string, bool) {
	var v string
	err := s.DB.QueryRowContext(context.Background(), `SELECT value FROM kv WHERE key=?`, key).Scan(&v)
	if err != nil {
		return "", false
	}
	return v, true
}

func (s *SQLite) Set(key, value string) error {
	_, err := s.DB.ExecContext(context.Background(),
		`INSERT INTO kv(key,value) VALUES (?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

func (s *SQLite) Remove(key string) error {
	_, err := s.DB.ExecContext(context.Background(), `DELETE FROM kv WHERE key=?`, key)
	return err
}

func (s *SQLite) Close() error {
	return s.DB.Close()
}
