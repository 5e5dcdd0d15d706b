package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/browsegate/browsegate/pkg/types"
)

// Store is the durable, append-only audit log: one finalized session record
// per line.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir audit dir: %w", err)
	}
	return &Store{path: path}, nil
}

// Append writes one record as a single line.
func (s *Store) Append(record types.AuditSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return f.Sync()
}

// ReadAll returns every record in append order. Unparseable lines are
// skipped: a half-written trailing line must not hide the rest of the log.
func (s *Store) ReadAll() ([]types.AuditSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAllLocked()
}

func (s *Store) readAllLocked() ([]types.AuditSession, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var out []types.AuditSession
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec types.AuditSession
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return out, nil
}

// BySession returns the record with the given session id.
func (s *Store) BySession(id string) (types.AuditSession, bool, error) {
	records, err := s.ReadAll()
	if err != nil {
		return types.AuditSession{}, false, err
	}
	for _, rec := range records {
		if rec.SessionID == id {
			return rec, true, nil
		}
	}
	return types.AuditSession{}, false, nil
}

// LastChainHash returns the chain hash of the newest record, or "" on a
// clean store.
func (s *Store) LastChainHash() (string, error) {
	records, err := s.ReadAll()
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}
	return records[len(records)-1].ChainHash, nil
}

// Rotate drops records whose session started before the retention window.
// The retained suffix is kept as written: rotation does not re-chain it, so
// chain verification after rotation only holds for the records that remain
// contiguous.
func (s *Store) Rotate(retention time.Duration, now time.Time) (dropped int, err error) {
	if retention <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAllLocked()
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-retention)

	var kept []types.AuditSession
	for _, rec := range records {
		if rec.StartedAt.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, rec)
	}
	if dropped == 0 {
		return 0, nil
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("open rotation temp: %w", err)
	}
	for _, rec := range kept {
		b, err := json.Marshal(rec)
		if err != nil {
			f.Close()
			return 0, fmt.Errorf("marshal audit record: %w", err)
		}
		if _, err := f.Write(append(b, '\n')); err != nil {
			f.Close()
			return 0, fmt.Errorf("write rotation temp: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close rotation temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return 0, fmt.Errorf("replace audit log: %w", err)
	}
	return dropped, nil
}
