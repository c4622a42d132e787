package reconnect

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type expiry struct {
	mu   sync.Mutex
	recs []Record
	ch   chan Record
}

func newExpiry() *expiry {
	return &expiry{ch: make(chan Record, 8)}
}

func (e *expiry) fn(rec Record) {
	e.mu.Lock()
	e.recs = append(e.recs, rec)
	e.mu.Unlock()
	e.ch <- rec
}

func (e *expiry) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.recs)
}

func testRecord() Record {
	return Record{
		SessionID:      "sess-1",
		IdentityID:     "id-ada",
		Username:       "Ada",
		OldConnID:      "conn-old",
		OpponentConnID: "conn-opp",
	}
}

func TestTrackAndClaim(t *testing.T) {
	e := newExpiry()
	m := NewManager(time.Hour, e.fn, zap.NewNop())

	require.True(t, m.Track(testRecord()))
	assert.True(t, m.Pending("id-ada"))
	assert.True(t, m.PendingForConn("conn-old"))
	assert.False(t, m.PendingForConn("conn-opp"))

	rec, ok := m.Claim("id-ada")
	require.True(t, ok)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.False(t, rec.DisconnectedAt.IsZero())
	assert.False(t, m.Pending("id-ada"))

	// Claim removed the record; the timer never fires.
	_, ok = m.Claim("id-ada")
	assert.False(t, ok)
	assert.Equal(t, 0, e.count())
}

func TestTrackIsIdempotent(t *testing.T) {
	e := newExpiry()
	m := NewManager(time.Hour, e.fn, zap.NewNop())

	first := testRecord()
	require.True(t, m.Track(first))

	dup := testRecord()
	dup.OldConnID = "conn-other"
	assert.False(t, m.Track(dup), "replayed disconnect must be a no-op")

	rec, ok := m.Claim("id-ada")
	require.True(t, ok)
	assert.Equal(t, "conn-old", rec.OldConnID, "first record stands")
}

func TestExpiryFiresOnce(t *testing.T) {
	e := newExpiry()
	m := NewManager(20*time.Millisecond, e.fn, zap.NewNop())

	require.True(t, m.Track(testRecord()))

	select {
	case rec := <-e.ch:
		assert.Equal(t, "id-ada", rec.IdentityID)
	case <-time.After(2 * time.Second):
		t.Fatal("expiry callback never fired")
	}

	assert.False(t, m.Pending("id-ada"))
	_, ok := m.Claim("id-ada")
	assert.False(t, ok)

	// No second firing.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, e.count())
}

func TestClaimCancelsTimer(t *testing.T) {
	e := newExpiry()
	m := NewManager(30*time.Millisecond, e.fn, zap.NewNop())

	require.True(t, m.Track(testRecord()))
	_, ok := m.Claim("id-ada")
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, e.count(), "claimed record must not expire")
}

func TestDrop(t *testing.T) {
	e := newExpiry()
	m := NewManager(30*time.Millisecond, e.fn, zap.NewNop())

	require.True(t, m.Track(testRecord()))
	m.Drop("id-ada")
	assert.False(t, m.Pending("id-ada"))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, e.count())
}

func TestSweepStale(t *testing.T) {
	e := newExpiry()
	m := NewManager(time.Hour, e.fn, zap.NewNop())

	require.True(t, m.Track(testRecord()))
	other := testRecord()
	other.IdentityID = "id-ben"
	other.SessionID = "sess-2"
	require.True(t, m.Track(other))

	dropped := m.SweepStale(func(sessionID string) bool { return sessionID == "sess-2" })
	assert.Equal(t, 1, dropped)
	assert.False(t, m.Pending("id-ada"))
	assert.True(t, m.Pending("id-ben"))
}
