package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duelforge/duel-server-go/internal/auth"
	"github.com/duelforge/duel-server-go/internal/catalog"
	"github.com/duelforge/duel-server-go/internal/game"
	"github.com/duelforge/duel-server-go/internal/reconnect"
)

func newTestHub(t *testing.T, rateLimit int) *Hub {
	t.Helper()
	sessions := game.NewManager(catalog.Default(), zap.NewNop())
	sessions.SetRandSeed(99)
	return NewHub(HubConfig{
		ReconnectWindow:     time.Hour,
		MaintenanceInterval: time.Minute,
		RateLimitActions:    rateLimit,
		RateLimitWindow:     time.Second,
	}, sessions, nil, zap.NewNop())
}

func newTestClient(identity auth.Identity) *Client {
	return &Client{
		id:       uuid.New().String(),
		identity: identity,
		send:     make(chan []byte, 64),
		logger:   zap.NewNop(),
	}
}

func durable(name string) auth.Identity {
	return auth.Identity{ID: "id-" + name, Username: name}
}

func guest(name string) auth.Identity {
	return auth.Identity{ID: uuid.New().String(), Username: name, Guest: true}
}

func envelope(t *testing.T, eventType string, payload any) Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return Envelope{Type: eventType, Data: data}
}

// nextEvent pops the next buffered outbound message from a client.
func nextEvent(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case raw := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	default:
		t.Fatal("no buffered message")
		return Envelope{}
	}
}

func decodeAs[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected message: %s", raw)
	default:
	}
}

// matchUp registers both clients and runs them through matchmaking.
func matchUp(t *testing.T, h *Hub, a, b *Client) (MatchFoundPayload, MatchFoundPayload) {
	t.Helper()
	h.handleRegister(a)
	h.handleRegister(b)

	h.handleInbound(a, envelope(t, EventJoinQueue, JoinQueuePayload{Username: a.identity.Username}))
	assertNoEvent(t, a)

	h.handleInbound(b, envelope(t, EventJoinQueue, JoinQueuePayload{Username: b.identity.Username}))

	envA := nextEvent(t, a)
	require.Equal(t, EventMatchFound, envA.Type)
	envB := nextEvent(t, b)
	require.Equal(t, EventMatchFound, envB.Type)

	return decodeAs[MatchFoundPayload](t, envA), decodeAs[MatchFoundPayload](t, envB)
}

func TestMatchmakingPairsTwoClients(t *testing.T) {
	h := newTestHub(t, 100)
	a := newTestClient(durable("Ada"))
	b := newTestClient(durable("Ben"))

	foundA, foundB := matchUp(t, h, a, b)

	assert.Equal(t, foundA.SessionID, foundB.SessionID)
	assert.Equal(t, 0, foundA.SelfIndex)
	assert.Equal(t, 1, foundA.OpponentIndex)
	assert.Equal(t, 1, foundB.SelfIndex)
	assert.Equal(t, 0, foundB.OpponentIndex)
	assert.Equal(t, "Ben", foundA.OpponentName)
	assert.Equal(t, "Ada", foundB.OpponentName)

	// The first joiner holds seat 0 and the opening turn.
	assert.Equal(t, 0, foundA.InitialState.TurnIndex)
	assert.Equal(t, "Ada", foundA.InitialState.Participants[0].Username)
	assert.Equal(t, 1, h.sessions.Count())
}

func TestJoinQueueRejectsBadUsername(t *testing.T) {
	h := newTestHub(t, 100)
	a := newTestClient(durable("Ada"))
	h.handleRegister(a)

	h.handleInbound(a, envelope(t, EventJoinQueue, JoinQueuePayload{Username: "x"}))

	env := nextEvent(t, a)
	require.Equal(t, EventRejected, env.Type)
	assert.Equal(t, "invalid username", decodeAs[RejectedPayload](t, env).Reason)
}

func TestJoinQueueRejectsWhileInSession(t *testing.T) {
	h := newTestHub(t, 100)
	a := newTestClient(durable("Ada"))
	b := newTestClient(durable("Ben"))
	matchUp(t, h, a, b)

	h.handleInbound(a, envelope(t, EventJoinQueue, JoinQueuePayload{Username: "Ada"}))
	env := nextEvent(t, a)
	require.Equal(t, EventRejected, env.Type)
	assert.Equal(t, "already in a match", decodeAs[RejectedPayload](t, env).Reason)
}

func TestAttackFlowBroadcastsResultsAndState(t *testing.T) {
	h := newTestHub(t, 100)
	a := newTestClient(durable("Ada"))
	b := newTestClient(durable("Ben"))
	foundA, _ := matchUp(t, h, a, b)

	h.handleInbound(a, envelope(t, EventAttack, AttackPayload{
		SessionID:    foundA.SessionID,
		AttackerSlot: 1,
		OpponentSlot: 1,
		StatName:     "attack",
	}))

	resA := nextEvent(t, a)
	require.Equal(t, EventAttackResult, resA.Type)
	resultA := decodeAs[AttackResultPayload](t, resA)
	assert.Equal(t, 1, resultA.SelfSlot)
	assert.Equal(t, 1, resultA.OpponentSlot)
	assert.Positive(t, resultA.Damage)
	assert.Equal(t, "physical", resultA.AttackCategory)

	resB := nextEvent(t, b)
	require.Equal(t, EventAttackResult, resB.Type)
	resultB := decodeAs[AttackResultPayload](t, resB)
	assert.Equal(t, resultA.OpponentSlot, resultB.SelfSlot)
	assert.Equal(t, resultA.SelfSlot, resultB.OpponentSlot)
	assert.Equal(t, resultA.Damage, resultB.Damage)

	syncA := nextEvent(t, a)
	require.Equal(t, EventStateSync, syncA.Type)
	syncB := nextEvent(t, b)
	require.Equal(t, EventStateSync, syncB.Type)

	// No last-action flag: the turn stays with seat 0.
	state := decodeAs[game.SessionView](t, syncA)
	assert.Equal(t, 0, state.TurnIndex)
}

func TestAttackOutOfTurnIsRejected(t *testing.T) {
	h := newTestHub(t, 100)
	a := newTestClient(durable("Ada"))
	b := newTestClient(durable("Ben"))
	foundA, _ := matchUp(t, h, a, b)

	h.handleInbound(b, envelope(t, EventAttack, AttackPayload{
		SessionID:    foundA.SessionID,
		AttackerSlot: 1,
		OpponentSlot: 1,
		StatName:     "attack",
	}))

	env := nextEvent(t, b)
	require.Equal(t, EventRejected, env.Type)
	assert.Equal(t, "invalid action", decodeAs[RejectedPayload](t, env).Reason)
	assertNoEvent(t, a)
}

func TestDrawMoveFlipsTurnAndSyncs(t *testing.T) {
	h := newTestHub(t, 100)
	a := newTestClient(durable("Ada"))
	b := newTestClient(durable("Ben"))
	foundA, _ := matchUp(t, h, a, b)

	h.handleInbound(a, envelope(t, EventDrawMove, DrawMovePayload{SessionID: foundA.SessionID}))

	syncA := nextEvent(t, a)
	require.Equal(t, EventStateSync, syncA.Type)
	state := decodeAs[game.SessionView](t, syncA)
	assert.Equal(t, 1, state.TurnIndex)

	syncB := nextEvent(t, b)
	require.Equal(t, EventStateSync, syncB.Type)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	h := newTestHub(t, 2)
	a := newTestClient(durable("Ada"))
	h.handleRegister(a)

	for i := 0; i < 2; i++ {
		h.handleInbound(a, Envelope{Type: "bogus"})
		env := nextEvent(t, a)
		require.Equal(t, EventRejected, env.Type)
		assert.Equal(t, "unknown event", decodeAs[RejectedPayload](t, env).Reason)
	}

	h.handleInbound(a, Envelope{Type: "bogus"})
	env := nextEvent(t, a)
	require.Equal(t, EventRejected, env.Type)
	assert.Equal(t, "rate limit exceeded", decodeAs[RejectedPayload](t, env).Reason)
}

func TestMalformedPayloadIsRejected(t *testing.T) {
	h := newTestHub(t, 100)
	a := newTestClient(durable("Ada"))
	h.handleRegister(a)

	h.handleInbound(a, Envelope{Type: EventAttack, Data: json.RawMessage(`"nonsense"`)})
	env := nextEvent(t, a)
	require.Equal(t, EventRejected, env.Type)
	assert.Equal(t, "malformed payload", decodeAs[RejectedPayload](t, env).Reason)

	h.handleInbound(a, Envelope{Type: EventAttack, Data: nil})
	env = nextEvent(t, a)
	require.Equal(t, EventRejected, env.Type)
}

func TestDurableDisconnectStartsGracePeriod(t *testing.T) {
	h := newTestHub(t, 100)
	a := newTestClient(durable("Ada"))
	b := newTestClient(durable("Ben"))
	matchUp(t, h, a, b)

	h.handleUnregister(a)

	env := nextEvent(t, b)
	require.Equal(t, EventOpponentDisconnected, env.Type)
	p := decodeAs[OpponentDisconnectedPayload](t, env)
	assert.True(t, p.CanReconnect)
	assert.Equal(t, 3600, p.TimeoutSeconds)

	// The session survives the grace period.
	assert.Equal(t, 1, h.sessions.Count())
	assert.True(t, h.recon.Pending("id-Ada"))

	// A replayed disconnect is a no-op: no second notification.
	h.handleUnregister(a)
	assertNoEvent(t, b)
}

func TestReconnectRestoresSession(t *testing.T) {
	h := newTestHub(t, 100)
	a := newTestClient(durable("Ada"))
	b := newTestClient(durable("Ben"))
	foundA, _ := matchUp(t, h, a, b)

	s, ok := h.sessions.Session(foundA.SessionID)
	require.True(t, ok)
	before := s.Snapshot()

	h.handleUnregister(a)
	nextEvent(t, b) // opponent-disconnected

	// Same durable identity, fresh connection.
	a2 := newTestClient(durable("Ada"))
	h.handleRegister(a2)

	env := nextEvent(t, a2)
	require.Equal(t, EventReconnected, env.Type)
	p := decodeAs[ReconnectedPayload](t, env)
	assert.Equal(t, foundA.SessionID, p.SessionID)
	assert.Equal(t, 0, p.SelfIndex)
	assert.Equal(t, before, p.State, "state is identical modulo connection id")

	env = nextEvent(t, b)
	require.Equal(t, EventOpponentReconnected, env.Type)
	assert.Equal(t, "Ada", decodeAs[OpponentReconnectedPayload](t, env).Username)

	assert.False(t, h.recon.Pending("id-Ada"), "record is deleted on claim")

	// The rebound seat can act.
	h.handleInbound(a2, envelope(t, EventAttack, AttackPayload{
		SessionID:    foundA.SessionID,
		AttackerSlot: 1,
		OpponentSlot: 1,
		StatName:     "speed",
	}))
	assert.Equal(t, EventAttackResult, nextEvent(t, a2).Type)
}

func TestGuestDisconnectForfeitsImmediately(t *testing.T) {
	h := newTestHub(t, 100)
	a := newTestClient(guest("Gus"))
	b := newTestClient(durable("Ben"))
	matchUp(t, h, a, b)

	h.handleUnregister(a)

	env := nextEvent(t, b)
	require.Equal(t, EventOpponentDisconnected, env.Type)
	p := decodeAs[OpponentDisconnectedPayload](t, env)
	assert.False(t, p.CanReconnect)
	assert.Zero(t, p.TimeoutSeconds)

	env = nextEvent(t, b)
	require.Equal(t, EventGameOver, env.Type)
	over := decodeAs[GameOverPayload](t, env)
	assert.Equal(t, "Ben", over.WinnerName)
	assert.Equal(t, "forfeit", over.Reason)

	assert.Equal(t, 0, h.sessions.Count())

	// The opponent is immediately eligible for matchmaking again.
	h.handleInbound(b, envelope(t, EventJoinQueue, JoinQueuePayload{Username: "Ben"}))
	assertNoEvent(t, b)
	assert.Equal(t, 1, h.queue.Len())
}

func TestExpiredGracePeriodForfeits(t *testing.T) {
	h := newTestHub(t, 100)
	a := newTestClient(durable("Ada"))
	b := newTestClient(durable("Ben"))
	foundA, _ := matchUp(t, h, a, b)

	h.handleUnregister(a)
	nextEvent(t, b) // opponent-disconnected

	h.handleExpiredRecord(reconnect.Record{
		SessionID:      foundA.SessionID,
		IdentityID:     "id-Ada",
		Username:       "Ada",
		OldConnID:      a.id,
		OpponentConnID: b.id,
	})

	env := nextEvent(t, b)
	require.Equal(t, EventGameOver, env.Type)
	over := decodeAs[GameOverPayload](t, env)
	assert.Equal(t, "Ben", over.WinnerName)
	assert.Equal(t, "forfeit", over.Reason)
	assert.Equal(t, 0, h.sessions.Count())

	// A later return by the same identity gets a fresh setup.
	a2 := newTestClient(durable("Ada"))
	h.handleRegister(a2)
	assertNoEvent(t, a2)
}

func TestMaintenanceRemovesOrphanedSessions(t *testing.T) {
	h := newTestHub(t, 100)

	// A session referencing connections the registry has never seen.
	_, err := h.sessions.CreateSession(
		game.Seat{Identity: durable("Ghost1"), ConnID: "ghost-conn-1"},
		game.Seat{Identity: durable("Ghost2"), ConnID: "ghost-conn-2"},
	)
	require.NoError(t, err)

	h.runMaintenance()
	assert.Equal(t, 0, h.sessions.Count())

	// Idempotent under repeated runs.
	h.runMaintenance()
}

func TestMaintenanceKeepsSessionInGracePeriod(t *testing.T) {
	h := newTestHub(t, 100)
	a := newTestClient(durable("Ada"))
	b := newTestClient(durable("Ben"))
	matchUp(t, h, a, b)

	h.handleUnregister(a)
	nextEvent(t, b)

	// Ada's seat is disconnected but inside the grace window; Ben is live.
	h.runMaintenance()
	assert.Equal(t, 1, h.sessions.Count())
}
