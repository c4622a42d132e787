package matchmaking

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyPlaying rejects a join from a connection that is mid-match or
// already seated in a session.
var ErrAlreadyPlaying = errors.New("connection already in a match")

// Probes let the queue judge entry validity without reaching into other
// components' state.
type Probes struct {
	Connected func(connID string) bool
	InSession func(connID string) bool
}

type entry struct {
	connID     string
	enqueuedAt time.Time
}

// Queue is the ordered waiting list of connections seeking an opponent.
// Dequeueing is a FIFO scan with skip: stale entries never block fresher
// ones.
type Queue struct {
	mu       sync.Mutex
	entries  []entry
	matching map[string]bool
	probes   Probes
	logger   *zap.Logger
}

// NewQueue creates an empty matchmaking queue.
func NewQueue(probes Probes, logger *zap.Logger) *Queue {
	return &Queue{
		matching: make(map[string]bool),
		probes:   probes,
		logger:   logger,
	}
}

// TryMatch attempts to pair the connection with a waiting opponent.
// When no valid opponent is waiting the connection is enqueued and
// queued=true is returned. On a pairing, both connections are marked as
// matching until the caller settles the match with FinishMatch or
// AbortMatch; the mark blocks concurrent re-entry during session
// construction.
func (q *Queue) TryMatch(connID string) (opponent string, queued bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.matching[connID] || q.probes.InSession(connID) {
		return "", false, ErrAlreadyPlaying
	}

	q.cleanupLocked()

	for len(q.entries) > 0 {
		head := q.entries[0]
		q.entries = q.entries[1:]

		if head.connID == connID ||
			q.matching[head.connID] ||
			!q.probes.Connected(head.connID) ||
			q.probes.InSession(head.connID) {
			continue
		}

		q.matching[connID] = true
		q.matching[head.connID] = true
		q.logger.Debug("paired waiting opponent",
			zap.String("opponent", head.connID),
			zap.Duration("waited", time.Since(head.enqueuedAt)))
		return head.connID, false, nil
	}

	q.enqueueLocked(connID)
	return "", true, nil
}

// FinishMatch clears the in-matchmaking marks after a session was built.
func (q *Queue) FinishMatch(connIDs ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range connIDs {
		delete(q.matching, id)
	}
}

// AbortMatch clears the marks and returns both candidates to the back of
// the queue: a transient session-construction failure never drops a
// connected player from matchmaking.
func (q *Queue) AbortMatch(connIDs ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range connIDs {
		delete(q.matching, id)
		if q.probes.Connected(id) {
			q.enqueueLocked(id)
		}
	}
}

// Remove drops a connection from the queue, typically on disconnect.
func (q *Queue) Remove(connID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.matching, connID)
	for i, e := range q.entries {
		if e.connID == connID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// Sweep drops entries for connections that vanished or got seated without
// going through the queue. Safe to run on every maintenance tick.
func (q *Queue) Sweep() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	before := len(q.entries)
	q.cleanupLocked()
	dropped := before - len(q.entries)
	if dropped > 0 {
		q.logger.Debug("queue sweep dropped stale entries", zap.Int("dropped", dropped))
	}
	return dropped
}

// Len returns the number of waiting entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) enqueueLocked(connID string) {
	for _, e := range q.entries {
		if e.connID == connID {
			return // duplicate join requests are idempotent
		}
	}
	q.entries = append(q.entries, entry{connID: connID, enqueuedAt: time.Now()})
}

func (q *Queue) cleanupLocked() {
	kept := q.entries[:0]
	for _, e := range q.entries {
		if q.probes.Connected(e.connID) && !q.probes.InSession(e.connID) {
			kept = append(kept, e)
		}
	}
	q.entries = kept
}
