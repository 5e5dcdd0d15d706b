// Package session owns the lifecycle of the single in-flight browsing
// session and is the only component with authority to drive the network
// validator, approval gate, credential cache and audit trail.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/browsegate/browsegate/internal/audit"
	"github.com/browsegate/browsegate/internal/config"
	"github.com/browsegate/browsegate/pkg/types"
)

var (
	// ErrSessionActive means a session is already in flight; starts are
	// rejected outright, never queued.
	ErrSessionActive = errors.New("a session is already active")
	// ErrNoSession means no session is in flight.
	ErrNoSession = errors.New("no active session")
	// ErrSessionExpired means the session hit its time budget or was closed.
	ErrSessionExpired = errors.New("session has expired")
	// ErrSessionSuspended means the session is paused.
	ErrSessionSuspended = errors.New("session is suspended")
)

// session is the one shared mutable resource. The Manager is its sole
// writer; the watcher only touches the elapsed/state fields under mu.
type session struct {
	id          string
	site        string
	state       types.SessionState
	startedAt   time.Time // shifted forward on resume to exclude suspended time
	suspendedAt time.Time
	maxDuration time.Duration
	workdir     string
	warned      bool
}

// Manager holds the session as owned state; collaborators receive read-only
// snapshots or request mutation through its API.
type Manager struct {
	cfg    config.SessionsConfig
	trail  *audit.Trail
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sess     *session
	stopWatch chan struct{}
	watchDone chan struct{}
}

func NewManager(cfg config.SessionsConfig, trail *audit.Trail, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		trail:  trail,
		logger: logger,
		now:    time.Now,
	}
}

// Start creates the session. It fails with ErrSessionActive while another
// session is in flight, leaving that session untouched.
func (m *Manager) Start(site string, maxDuration time.Duration) (types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess != nil && !m.sess.state.IsTerminal() {
		return types.Session{}, ErrSessionActive
	}

	if maxDuration <= 0 {
		maxDuration = m.cfg.MaxDuration.Duration
	}

	id := "session-" + uuid.NewString()
	workdir := filepath.Join(m.cfg.WorkdirRoot, id)
	if err := os.MkdirAll(workdir, 0o700); err != nil {
		return types.Session{}, fmt.Errorf("create session workdir: %w", err)
	}

	now := m.now().UTC()
	if err := m.trail.StartSession(id, site, now); err != nil {
		_ = os.RemoveAll(workdir)
		return types.Session{}, fmt.Errorf("start audit session: %w", err)
	}

	m.sess = &session{
		id:          id,
		site:        site,
		state:       types.SessionStateActive,
		startedAt:   now,
		maxDuration: maxDuration,
		workdir:     workdir,
	}
	m.stopWatch = make(chan struct{})
	m.watchDone = make(chan struct{})
	go m.watch(m.stopWatch, m.watchDone)

	m.logger.Info("session started", "session_id", id, "site", site, "max_duration", maxDuration)
	return m.snapshotLocked(), nil
}

// Suspend freezes the elapsed-time clock.
func (m *Manager) Suspend() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireLocked(types.SessionStateActive); err != nil {
		return err
	}
	m.sess.state = types.SessionStateSuspended
	m.sess.suspendedAt = m.now().UTC()
	m.logger.Info("session suspended", "session_id", m.sess.id)
	return nil
}

// Resume shifts the recorded start time forward by exactly the suspended
// duration, so suspended wall-clock time never counts against the budget,
// and re-arms the one-time warning.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return ErrNoSession
	}
	if m.sess.state != types.SessionStateSuspended {
		return fmt.Errorf("resume from state %q: %w", m.sess.state, ErrNoSession)
	}
	suspended := m.now().UTC().Sub(m.sess.suspendedAt)
	m.sess.startedAt = m.sess.startedAt.Add(suspended)
	m.sess.suspendedAt = time.Time{}
	m.sess.state = types.SessionStateActive
	m.sess.warned = false
	m.logger.Info("session resumed", "session_id", m.sess.id, "suspended_for", suspended)
	return nil
}

// Close tears the session down explicitly. Timeout-triggered teardown
// converges on the same path.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil || m.sess.state.IsTerminal() {
		return ErrNoSession
	}
	return m.teardownLocked(ctx, "closed")
}

// Current returns a read-only snapshot of the session, if any.
func (m *Manager) Current() (types.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return types.Session{}, false
	}
	return m.snapshotLocked(), true
}

// watch is the timeout watcher. It wakes on a fixed interval and only ever
// mutates the elapsed/state accounting under the manager's lock; every other
// transition goes through the Manager's own call path.
func (m *Manager) watch(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := m.cfg.TickInterval.Duration
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if m.tick() {
				return
			}
		}
	}
}

// tick returns true once the session has been torn down.
func (m *Manager) tick() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil || m.sess.state.IsTerminal() {
		return true
	}
	if m.sess.state != types.SessionStateActive {
		return false // suspended: the clock is frozen
	}

	elapsed := m.now().UTC().Sub(m.sess.startedAt)

	if elapsed >= m.sess.maxDuration {
		m.logger.Warn("session timed out", "session_id", m.sess.id, "elapsed", elapsed)
		if err := m.teardownLocked(context.Background(), "timeout"); err != nil {
			m.logger.Error("timeout teardown failed", "session_id", m.sess.id, "error", err)
		}
		return true
	}

	warnAt := m.sess.maxDuration - m.cfg.WarningMargin.Duration
	if !m.sess.warned && m.cfg.WarningMargin.Duration > 0 && elapsed >= warnAt {
		m.sess.warned = true
		m.logger.Warn("session nearing time budget",
			"session_id", m.sess.id,
			"elapsed", elapsed,
			"remaining", m.sess.maxDuration-elapsed)
	}
	return false
}

// teardownLocked is the single finalize path for explicit close and timeout:
// stop the watcher, wipe working storage, finalize the audit trail, and reset
// so a new session may start. Callers hold m.mu.
func (m *Manager) teardownLocked(ctx context.Context, cause string) error {
	sess := m.sess

	var elapsed time.Duration
	switch sess.state {
	case types.SessionStateSuspended:
		elapsed = sess.suspendedAt.Sub(sess.startedAt)
	default:
		elapsed = m.now().UTC().Sub(sess.startedAt)
	}

	sess.state = types.SessionStateExpired

	if m.stopWatch != nil {
		close(m.stopWatch)
		m.stopWatch = nil
	}

	// Secure cleanup is best-effort: a failure is logged and reported to the
	// audit record, never fatal to teardown.
	cleanupOK := true
	if err := secureWipe(sess.workdir); err != nil {
		cleanupOK = false
		m.logger.Error("secure cleanup failed", "session_id", sess.id, "workdir", sess.workdir, "error", err)
	}

	record, err := m.trail.Finalize(ctx, elapsed, cleanupOK)
	if err != nil {
		m.logger.Error("audit finalize failed", "session_id", sess.id, "error", err)
	} else {
		m.logger.Info("session finalized",
			"session_id", sess.id, "cause", cause,
			"duration", elapsed, "chain_hash", record.ChainHash)
	}

	m.sess = nil
	return err
}

func (m *Manager) requireLocked(state types.SessionState) error {
	if m.sess == nil {
		return ErrNoSession
	}
	switch m.sess.state {
	case state:
		return nil
	case types.SessionStateExpired:
		return ErrSessionExpired
	case types.SessionStateSuspended:
		return ErrSessionSuspended
	default:
		return fmt.Errorf("session in state %q", m.sess.state)
	}
}

func (m *Manager) snapshotLocked() types.Session {
	s := m.sess
	var elapsed time.Duration
	switch s.state {
	case types.SessionStateActive:
		elapsed = m.now().UTC().Sub(s.startedAt)
	case types.SessionStateSuspended:
		elapsed = s.suspendedAt.Sub(s.startedAt)
	}
	return types.Session{
		ID:          s.id,
		State:       s.state,
		Site:        s.site,
		CreatedAt:   s.startedAt,
		MaxDuration: s.maxDuration,
		Elapsed:     elapsed,
		Workdir:     s.workdir,
	}
}
