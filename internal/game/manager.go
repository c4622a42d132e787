package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duelforge/duel-server-go/internal/auth"
	"github.com/duelforge/duel-server-go/internal/catalog"
)

// Seat names one side of a new session.
type Seat struct {
	Identity auth.Identity
	ConnID   string
}

// Manager owns the session table. It is the sole mutator of sessions;
// other components reach session state only through its operations.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byConn   map[string]string // connection id -> session id

	rngMu sync.Mutex
	rng   *rand.Rand

	catalog *catalog.Catalog
	logger  *zap.Logger
}

// NewManager creates a session manager over the given catalog.
func NewManager(cat *catalog.Catalog, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byConn:   make(map[string]string),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		catalog:  cat,
		logger:   logger,
	}
}

// SetRandSeed reseeds deck dealing. Test hook.
func (m *Manager) SetRandSeed(seed int64) {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	m.rng = rand.New(rand.NewSource(seed))
}

// CreateSession deals fresh decks for both seats and registers the
// session. Neither connection may already own a session.
func (m *Manager) CreateSession(a, b Seat) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, seat := range []Seat{a, b} {
		if sid, ok := m.byConn[seat.ConnID]; ok {
			return nil, fmt.Errorf("connection %s already in session %s", seat.ConnID, sid)
		}
	}

	m.rngMu.Lock()
	pa, errA := newParticipant(a.Identity, a.ConnID, m.catalog, m.rng)
	pb, errB := newParticipant(b.Identity, b.ConnID, m.catalog, m.rng)
	m.rngMu.Unlock()
	if errA != nil {
		return nil, errA
	}
	if errB != nil {
		return nil, errB
	}

	s := &Session{
		ID:           uuid.New().String(),
		CreatedAt:    time.Now(),
		participants: [2]*Participant{pa, pb},
		catalog:      m.catalog,
		winner:       NoWinner,
	}

	m.sessions[s.ID] = s
	m.byConn[a.ConnID] = s.ID
	m.byConn[b.ConnID] = s.ID

	m.logger.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("player_a", a.Identity.Username),
		zap.String("player_b", b.Identity.Username),
	)
	return s, nil
}

// Session retrieves a session by id.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// SessionByConn retrieves the session a connection participates in.
func (m *Manager) SessionByConn(connID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sid, ok := m.byConn[connID]
	if !ok {
		return nil, false
	}
	s, ok := m.sessions[sid]
	return s, ok
}

// HasSession reports whether a connection currently owns a seat.
func (m *Manager) HasSession(connID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byConn[connID]
	return ok
}

// Remove drops a session and its connection mappings.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	for _, conn := range s.ConnIDs() {
		if m.byConn[conn] == sessionID {
			delete(m.byConn, conn)
		}
	}
	delete(m.sessions, sessionID)

	m.logger.Info("session removed", zap.String("session_id", sessionID))
}

// Rebind swaps a seat's connection id, the one cross-cutting mutation the
// reconnection flow is allowed to make.
func (m *Manager) Rebind(sessionID, oldConnID, newConnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	idx := s.ParticipantIndex(oldConnID)
	if idx < 0 {
		return fmt.Errorf("connection %s has no seat in session %s", oldConnID, sessionID)
	}

	s.rebind(idx, newConnID)
	delete(m.byConn, oldConnID)
	m.byConn[newConnID] = sessionID

	m.logger.Info("session rebound",
		zap.String("session_id", sessionID),
		zap.String("old_conn", oldConnID),
		zap.String("new_conn", newConnID),
	)
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SweepOrphans removes and returns sessions where neither seat's
// connection is still accounted for. The predicate decides liveness;
// connections with a pending reconnection record count as live.
func (m *Manager) SweepOrphans(live func(connID string) bool) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var orphans []*Session
	for id, s := range m.sessions {
		conns := s.ConnIDs()
		if live(conns[0]) || live(conns[1]) {
			continue
		}
		orphans = append(orphans, s)
		delete(m.sessions, id)
		for _, conn := range conns {
			if m.byConn[conn] == id {
				delete(m.byConn, conn)
			}
		}
		m.logger.Warn("orphaned session removed", zap.String("session_id", id))
	}
	return orphans
}
