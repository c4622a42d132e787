package reconnect

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Record tracks one mid-session disconnect of a durable identity. Keyed
// by the identity id, not the transient connection id, so a returning
// player is found regardless of their new connection.
type Record struct {
	SessionID      string
	IdentityID     string
	Username       string
	OldConnID      string
	OpponentConnID string
	DisconnectedAt time.Time
}

// ExpireFunc is invoked when a record's grace period elapses unclaimed.
// It runs on the timer goroutine; callers are expected to hand the event
// back to their own loop.
type ExpireFunc func(rec Record)

// Manager owns disconnection records and their grace timers. Deleting a
// record (via Claim or Drop) implicitly cancels its timer.
type Manager struct {
	mu      sync.Mutex
	records map[string]*Record // identity id -> record
	timers  map[string]*time.Timer
	window  time.Duration
	expire  ExpireFunc
	logger  *zap.Logger

	now func() time.Time // test hook
}

// NewManager creates a reconnection manager with the given grace window.
func NewManager(window time.Duration, expire ExpireFunc, logger *zap.Logger) *Manager {
	return &Manager{
		records: make(map[string]*Record),
		timers:  make(map[string]*time.Timer),
		window:  window,
		expire:  expire,
		logger:  logger,
		now:     time.Now,
	}
}

// Window returns the configured grace period.
func (m *Manager) Window() time.Duration {
	return m.window
}

// Track records a mid-session disconnect and starts the grace timer.
// Tracking the same identity twice is a no-op; the first record and its
// timer stand. Returns false when the disconnect was already tracked.
func (m *Manager) Track(rec Record) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.IdentityID]; exists {
		return false
	}
	if rec.DisconnectedAt.IsZero() {
		rec.DisconnectedAt = m.now()
	}

	stored := rec
	m.records[rec.IdentityID] = &stored
	m.timers[rec.IdentityID] = time.AfterFunc(m.window, func() {
		m.fire(rec.IdentityID)
	})

	m.logger.Info("disconnect tracked",
		zap.String("identity_id", rec.IdentityID),
		zap.String("session_id", rec.SessionID),
		zap.Duration("window", m.window),
	)
	return true
}

// Claim removes and returns the record for a returning identity. The
// grace timer is cancelled; a timer that already fired has deleted the
// record, so a late claim simply misses.
func (m *Manager) Claim(identityID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[identityID]
	if !ok {
		return Record{}, false
	}
	m.deleteLocked(identityID)
	return *rec, true
}

// Drop discards a record without treating it as claimed, e.g. when its
// session was torn down by other means.
func (m *Manager) Drop(identityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(identityID)
}

// Pending reports whether an unexpired record exists for the identity.
func (m *Manager) Pending(identityID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[identityID]
	return ok
}

// PendingForConn reports whether any record still references the given
// (old) connection id. Used by the orphan sweep to treat a disconnected
// seat inside its grace period as live.
func (m *Manager) PendingForConn(connID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.OldConnID == connID {
			return true
		}
	}
	return false
}

// SweepStale drops records whose session no longer exists. The timer
// path already handles expiry; this covers sessions torn down behind the
// record's back.
func (m *Manager) SweepStale(sessionExists func(sessionID string) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for id, rec := range m.records {
		if !sessionExists(rec.SessionID) {
			m.deleteLocked(id)
			dropped++
		}
	}
	return dropped
}

func (m *Manager) fire(identityID string) {
	m.mu.Lock()
	rec, ok := m.records[identityID]
	if !ok {
		m.mu.Unlock()
		return
	}
	snapshot := *rec
	m.deleteLocked(identityID)
	m.mu.Unlock()

	m.logger.Info("reconnection window expired",
		zap.String("identity_id", identityID),
		zap.String("session_id", snapshot.SessionID),
	)
	m.expire(snapshot)
}

func (m *Manager) deleteLocked(identityID string) {
	if t, ok := m.timers[identityID]; ok {
		t.Stop()
		delete(m.timers, identityID)
	}
	delete(m.records, identityID)
}
