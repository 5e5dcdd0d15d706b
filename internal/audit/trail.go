// Package audit keeps a tamper-evident, append-only record of every action
// taken in a session. Each finalized session is bound to its predecessor by a
// chain hash, so retroactive edits are detectable by recomputation.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/browsegate/browsegate/pkg/types"
)

// GenesisMarker anchors the chain of a clean store: the first session's chain
// hash depends only on this constant.
const GenesisMarker = "browsegate-audit-genesis"

var (
	// ErrNoSession means Log or Finalize was called outside a session.
	ErrNoSession = errors.New("no audit session in progress")
	// ErrSessionOpen means StartSession was called twice without Finalize.
	ErrSessionOpen = errors.New("audit session already in progress")
)

// Sink receives finalized session records. Delivery is best-effort; a sink
// failure never fails the local append, which has already succeeded.
type Sink interface {
	Deliver(ctx context.Context, record types.AuditSession) error
}

// Trail buffers entries for the in-flight session and finalizes them into the
// durable store.
type Trail struct {
	mu        sync.Mutex
	store     *Store
	sink      Sink
	logger    *slog.Logger
	prevChain string

	open      bool
	sessionID string
	site      string
	startedAt time.Time
	entries   []types.AuditEntry
}

// NewTrail creates a trail over the given store. The prior chain hash is
// recovered from the last durable record, or the genesis marker on a clean
// store. The sink is optional.
func NewTrail(store *Store, sink Sink, logger *slog.Logger) (*Trail, error) {
	if logger == nil {
		logger = slog.Default()
	}
	prev, err := store.LastChainHash()
	if err != nil {
		return nil, fmt.Errorf("recover chain state: %w", err)
	}
	if prev == "" {
		prev = GenesisMarker
	}
	return &Trail{
		store:     store,
		sink:      sink,
		logger:    logger,
		prevChain: prev,
	}, nil
}

// StartSession resets the entry buffer and opens a session record.
func (t *Trail) StartSession(sessionID, site string, startedAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		return ErrSessionOpen
	}
	t.open = true
	t.sessionID = sessionID
	t.site = site
	t.startedAt = startedAt.UTC()
	t.entries = nil
	return nil
}

// Log appends one entry to the in-memory buffer. Logging outside a session is
// an error: entries must belong to exactly one record.
func (t *Trail) Log(action string, details map[string]any, approval *types.ApprovalInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return ErrNoSession
	}
	e := types.AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Details:   details,
	}
	if approval != nil {
		e.Required = approval.Required
		e.Approved = approval.Approved
		e.Token = approval.Token
	}
	if details != nil {
		if shot, ok := details["screenshot"].(string); ok {
			e.Screenshot = shot
		}
	}
	t.entries = append(t.entries, e)
	return nil
}

// Finalize computes the chain hash, appends the record to the durable store,
// and best-effort delivers it to the sink. After Finalize the trail is ready
// for the next StartSession.
func (t *Trail) Finalize(ctx context.Context, duration time.Duration, cleanupOK bool) (types.AuditSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return types.AuditSession{}, ErrNoSession
	}

	record := types.AuditSession{
		SessionID:     t.sessionID,
		Site:          t.site,
		StartedAt:     t.startedAt,
		Duration:      duration,
		CleanupOK:     cleanupOK,
		Entries:       t.entries,
		PrevChainHash: t.prevChain,
	}

	chain, err := ChainHash(t.prevChain, record)
	if err != nil {
		return types.AuditSession{}, err
	}
	record.ChainHash = chain

	if err := t.store.Append(record); err != nil {
		return types.AuditSession{}, fmt.Errorf("append audit record: %w", err)
	}

	// The local append is the source of truth; delivery is fire-and-forget so
	// a dead endpoint cannot block session teardown.
	if t.sink != nil {
		go t.deliver(context.WithoutCancel(ctx), record)
	}

	t.prevChain = chain
	t.open = false
	t.entries = nil
	return record, nil
}

func (t *Trail) deliver(ctx context.Context, record types.AuditSession) {
	if err := t.sink.Deliver(ctx, record); err != nil {
		t.logger.Warn("audit sink delivery failed", "session_id", record.SessionID, "error", err)
	}
}

// ChainHash computes the tamper-evidence digest for a record:
// SHA-256(prev | session id | start timestamp | SHA-256(entries)).
func ChainHash(prev string, record types.AuditSession) (string, error) {
	if prev == "" {
		prev = GenesisMarker
	}
	serialized, err := json.Marshal(record.Entries)
	if err != nil {
		return "", fmt.Errorf("serialize entries: %w", err)
	}
	entriesDigest := sha256.Sum256(serialized)

	h := sha256.New()
	h.Write([]byte(prev))
	h.Write([]byte("|"))
	h.Write([]byte(record.SessionID))
	h.Write([]byte("|"))
	h.Write([]byte(record.StartedAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte("|"))
	h.Write(entriesDigest[:])
	return hex.EncodeToString(h.Sum(nil)), nil
}
