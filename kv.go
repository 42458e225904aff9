package costar

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"
)

// KVStore is the appliance's persisted preference storage, a namespaced
// key/value table in a local SQLite file. It stands in for the NVS
// partition the panel firmware would use.
type KVStore struct {
	db *sql.DB
}

// ErrNotFound is returned by typed getters when a key is absent.
var ErrNotFound = errors.New("kv: not found")

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv (
	ns    TEXT NOT NULL,
	key   TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (ns, key)
);`

// OpenKVStore opens (creating if needed) the store at path. Use ":memory:"
// for tests.
func OpenKVStore(path string) (*KVStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("kv open: %w", err)
	}
	// single writer keeps SQLite happy on flash storage
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(kvSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv schema: %w", err)
	}
	return &KVStore{db: db}, nil
}

// Close releases the underlying database.
func (s *KVStore) Close() error {
	return s.db.Close()
}

// Get returns the raw value for ns/key.
func (s *KVStore) Get(ns, key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE ns = ? AND key = ?`, ns, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("kv get %s/%s: %w", ns, key, err)
	}
	return value, nil
}

// Put stores a raw value for ns/key, replacing any existing one.
func (s *KVStore) Put(ns, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (ns, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (ns, key) DO UPDATE SET value = excluded.value`,
		ns, key, value)
	if err != nil {
		return fmt.Errorf("kv put %s/%s: %w", ns, key, err)
	}
	return nil
}

// Delete removes ns/key. Missing keys are not an error.
func (s *KVStore) Delete(ns, key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE ns = ? AND key = ?`, ns, key)
	if err != nil {
		return fmt.Errorf("kv delete %s/%s: %w", ns, key, err)
	}
	return nil
}

// GetString returns the value or def when absent.
func (s *KVStore) GetString(ns, key, def string) string {
	v, err := s.Get(ns, key)
	if err != nil {
		return def
	}
	return v
}

// GetInt returns the value parsed as an int, or def.
func (s *KVStore) GetInt(ns, key string, def int) int {
	v, err := s.Get(ns, key)
	if err != nil {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// PutInt stores an int.
func (s *KVStore) PutInt(ns, key string, value int) error {
	return s.Put(ns, key, strconv.Itoa(value))
}

// GetFloat returns the value parsed as a float64, or def.
func (s *KVStore) GetFloat(ns, key string, def float64) float64 {
	v, err := s.Get(ns, key)
	if err != nil {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// PutFloat stores a float64.
func (s *KVStore) PutFloat(ns, key string, value float64) error {
	return s.Put(ns, key, strconv.FormatFloat(value, 'g', -1, 64))
}

// GetBool returns the value parsed as a bool, or def.
func (s *KVStore) GetBool(ns, key string, def bool) bool {
	v, err := s.Get(ns, key)
	if err != nil {
		return def
	}
	switch v {
	case "1", "true":
		return true
	case "0", "false":
		return false
	}
	return def
}

// PutBool stores a bool.
func (s *KVStore) PutBool(ns, key string, value bool) error {
	if value {
		return s.Put(ns, key, "true")
	}
	return s.Put(ns, key, "false")
}
