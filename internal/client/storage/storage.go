// Package storage is the client's local key/value store, persisted as a JSON
// file. It plays the role browser localStorage plays for the web storefront:
// only small values such as the token pair and the last order id live here.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFile is used when no path is configured.
const DefaultFile = "storage.json"

// LocalStorage is safe for concurrent use. Mutations live in memory until Save.
type LocalStorage struct {
	path   string
	mu     sync.Mutex
	values map[string]json.RawMessage
}

// New returns an empty store bound to path.
func New(path string) *LocalStorage {
	if path == "" {
		path = DefaultFile
	}
	return &LocalStorage{path: path, values: make(map[string]json.RawMessage)}
}

// Path reports the backing file.
func (ls *LocalStorage) Path() string { return ls.path }

// Load replaces the in-memory values with the file contents.
// A missing file yields an empty store.
func (ls *LocalStorage) Load() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	f, err := os.Open(ls.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			ls.values = make(map[string]json.RawMessage)
			return nil
		}
		return err
	}
	defer f.Close()

	values := make(map[string]json.RawMessage)
	if err := json.NewDecoder(f).Decode(&values); err != nil {
		return fmt.Errorf("decode %s: %w", ls.path, err)
	}
	ls.values = values
	return nil
}

// Save writes every value to the backing file with owner-only permissions.
func (ls *LocalStorage) Save() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if dir := filepath.Dir(ls.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(ls.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(ls.values)
}

// Get returns the raw JSON stored under key.
func (ls *LocalStorage) Get(key string) (json.RawMessage, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	v, ok := ls.values[key]
	return v, ok
}

// GetInto decodes the value stored under key into dst. It reports false for
// missing keys and for values that no longer decode.
func (ls *LocalStorage) GetInto(key string, dst any) bool {
	raw, ok := ls.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// Set stores v under key.
func (ls *LocalStorage) Set(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.values == nil {
		ls.values = make(map[string]json.RawMessage)
	}
	ls.values[key] = b
	return nil
}

// Remove deletes key and reports whether it was present.
func (ls *LocalStorage) Remove(key string) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if _, ok := ls.values[key]; !ok {
		return false
	}
	delete(ls.values, key)
	return true
}
