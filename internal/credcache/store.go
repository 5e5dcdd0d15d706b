package credcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const storeVersion = 1

// entry is the durable representation of one cached credential. All secret
// material is inside Ciphertext; Tag and IV are the AEAD parameters.
type entry struct {
	Site       string    `json:"site"`
	Ciphertext []byte    `json:"ciphertext"`
	Tag        []byte    `json:"tag"`
	IV         []byte    `json:"iv"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type storeFile struct {
	Version int     `json:"version"`
	Entries []entry `json:"entries"`
}

// fileStore keeps the cache in a single JSON file with owner-only
// permissions. Every rewrite drops expired entries, bounding growth.
type fileStore struct {
	path    string
	entries map[string]entry
}

func newFileStore(path string) (*fileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("cache path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir cache dir: %w", err)
	}

	s := &fileStore{path: path, entries: make(map[string]entry)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		// An unreadable file is discarded, not decrypted into garbage.
		return s, nil
	}
	for _, e := range f.Entries {
		s.entries[e.Site] = e
	}
	return s, nil
}

func (s *fileStore) lookup(site string) (entry, bool) {
	e, ok := s.entries[site]
	return e, ok
}

func (s *fileStore) upsert(e entry, now time.Time) error {
	s.entries[e.Site] = e
	return s.rewrite(now)
}

func (s *fileStore) remove(site string, now time.Time) error {
	delete(s.entries, site)
	return s.rewrite(now)
}

func (s *fileStore) clear() error {
	s.entries = make(map[string]entry)
	return s.rewrite(time.Time{})
}

// rewrite persists the live entries, garbage-collecting anything expired.
func (s *fileStore) rewrite(now time.Time) error {
	f := storeFile{Version: storeVersion}
	for site, e := range s.entries {
		if !now.IsZero() && !e.ExpiresAt.After(now) {
			delete(s.entries, site)
			continue
		}
		f.Entries = append(f.Entries, e)
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal cache file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
