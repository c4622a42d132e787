package server

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/duelforge/duel-server-go/internal/auth"
	"github.com/duelforge/duel-server-go/internal/game"
	"github.com/duelforge/duel-server-go/internal/matchmaking"
	"github.com/duelforge/duel-server-go/internal/ratelimit"
	"github.com/duelforge/duel-server-go/internal/reconnect"
)

// StatsRecorder persists win/loss results for durable identities. A nil
// recorder disables persistence.
type StatsRecorder interface {
	RecordResult(ctx context.Context, userID string, won bool) error
}

// HubConfig carries the tunables the hub needs.
type HubConfig struct {
	ReconnectWindow     time.Duration
	MaintenanceInterval time.Duration
	RateLimitActions    int
	RateLimitWindow     time.Duration
}

type inboundMessage struct {
	client *Client
	env    Envelope
}

// Hub owns the connection registry and dispatches every transport event
// (connect, disconnect, message, reconnect expiry, maintenance tick) on a
// single loop. Handlers run to completion before the next event, which
// keeps per-session message handling in strict arrival order.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage
	expired    chan reconnect.Record
	done       chan struct{}

	clients  map[string]*Client // connection id -> client; hub-loop only
	queue    *matchmaking.Queue
	sessions *game.Manager
	recon    *reconnect.Manager
	guard    *ratelimit.Guard
	stats    StatsRecorder

	maintenanceInterval time.Duration
	logger              *zap.Logger
}

// NewHub wires the matchmaking queue, reconnection manager and abuse
// guard around the given session manager.
func NewHub(cfg HubConfig, sessions *game.Manager, stats StatsRecorder, logger *zap.Logger) *Hub {
	h := &Hub{
		register:            make(chan *Client, 16),
		unregister:          make(chan *Client, 16),
		inbound:             make(chan inboundMessage, 256),
		expired:             make(chan reconnect.Record, 16),
		done:                make(chan struct{}),
		clients:             make(map[string]*Client),
		sessions:            sessions,
		stats:               stats,
		maintenanceInterval: cfg.MaintenanceInterval,
		logger:              logger,
	}

	h.queue = matchmaking.NewQueue(matchmaking.Probes{
		Connected: func(connID string) bool {
			_, ok := h.clients[connID]
			return ok
		},
		InSession: sessions.HasSession,
	}, logger)

	h.recon = reconnect.NewManager(cfg.ReconnectWindow, func(rec reconnect.Record) {
		select {
		case h.expired <- rec:
		case <-h.done:
		}
	}, logger)

	h.guard = ratelimit.NewGuard(cfg.RateLimitActions, cfg.RateLimitWindow)

	return h
}

// Register hands a freshly authenticated connection to the hub loop.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister reports a dropped connection to the hub loop.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Inbound hands one parsed envelope to the hub loop.
func (h *Hub) Inbound(c *Client, env Envelope) {
	select {
	case h.inbound <- inboundMessage{client: c, env: env}:
	case <-h.done:
	}
}

// Run processes events until the context is cancelled. It is the single
// writer for the connection registry and the only caller of the queue,
// session and reconnection mutators.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.maintenanceInterval)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub stopping", zap.Int("open_connections", len(h.clients)))
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case msg := <-h.inbound:
			h.handleInbound(msg.client, msg.env)
		case rec := <-h.expired:
			h.handleExpiredRecord(rec)
		case <-ticker.C:
			h.runMaintenance()
		}
	}
}

// ==================== Connection lifecycle ====================

func (h *Hub) handleRegister(c *Client) {
	h.clients[c.id] = c
	h.logger.Info("client connected",
		zap.String("conn_id", c.id),
		zap.String("username", c.identity.Username),
		zap.Bool("guest", c.identity.Guest),
	)

	if !c.identity.Durable() {
		return
	}

	// A durable identity with an unexpired record bypasses the queue and
	// resumes its session.
	rec, ok := h.recon.Claim(c.identity.ID)
	if !ok {
		return
	}

	s, exists := h.sessions.Session(rec.SessionID)
	if !exists {
		// Session vanished while the record stood: fresh setup instead.
		h.logger.Info("stale reconnection record ignored",
			zap.String("identity_id", c.identity.ID),
			zap.String("session_id", rec.SessionID),
		)
		return
	}

	if err := h.sessions.Rebind(rec.SessionID, rec.OldConnID, c.id); err != nil {
		h.logger.Error("rebind failed", zap.String("session_id", rec.SessionID), zap.Error(err))
		return
	}

	selfIndex := s.ParticipantIndex(c.id)
	h.sendEvent(c, EventReconnected, ReconnectedPayload{
		SessionID: s.ID,
		SelfIndex: selfIndex,
		State:     s.Snapshot(),
	})
	h.sendToConn(rec.OpponentConnID, EventOpponentReconnected, OpponentReconnectedPayload{
		Username: c.identity.Username,
	})

	h.logger.Info("participant reconnected",
		zap.String("session_id", s.ID),
		zap.String("username", c.identity.Username),
	)
}

func (h *Hub) handleUnregister(c *Client) {
	// Replayed disconnects for a connection id are no-ops.
	if current, ok := h.clients[c.id]; !ok || current != c {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.guard.Forget(c.id)
	h.queue.Remove(c.id)

	h.logger.Info("client disconnected", zap.String("conn_id", c.id))

	s, ok := h.sessions.SessionByConn(c.id)
	if !ok {
		return
	}
	if over, _ := s.Over(); over {
		h.sessions.Remove(s.ID)
		return
	}

	idx := s.ParticipantIndex(c.id)
	opponentConn, _, _, _ := s.Seat(1 - idx)

	if c.identity.Durable() {
		tracked := h.recon.Track(reconnect.Record{
			SessionID:      s.ID,
			IdentityID:     c.identity.ID,
			Username:       c.identity.Username,
			OldConnID:      c.id,
			OpponentConnID: opponentConn,
		})
		if tracked {
			h.sendToConn(opponentConn, EventOpponentDisconnected, OpponentDisconnectedPayload{
				CanReconnect:   true,
				TimeoutSeconds: int(h.recon.Window().Seconds()),
			})
		}
		return
	}

	// Guests get no grace period: immediate forfeit.
	h.sendToConn(opponentConn, EventOpponentDisconnected, OpponentDisconnectedPayload{
		CanReconnect: false,
	})
	h.finishSession(s, 1-idx, "forfeit")
}

func (h *Hub) handleExpiredRecord(rec reconnect.Record) {
	s, ok := h.sessions.Session(rec.SessionID)
	if !ok {
		return
	}
	idx := s.ParticipantIndex(rec.OldConnID)
	if idx < 0 {
		// The seat was rebound after the record fired; nothing to forfeit.
		return
	}
	if over, _ := s.Over(); over {
		h.sessions.Remove(s.ID)
		return
	}

	h.logger.Info("grace period elapsed, forfeiting session",
		zap.String("session_id", s.ID),
		zap.String("username", rec.Username),
	)
	h.finishSession(s, 1-idx, "forfeit")
}

// ==================== Inbound messages ====================

func (h *Hub) handleInbound(c *Client, env Envelope) {
	if _, ok := h.clients[c.id]; !ok {
		return // raced with disconnect
	}

	// The abuse guard runs before any state-mutating message is
	// evaluated, independent of turn ownership.
	if !h.guard.Allow(c.id) {
		h.sendEvent(c, EventRejected, RejectedPayload{Reason: "rate limit exceeded"})
		return
	}

	switch env.Type {
	case EventJoinQueue:
		var p JoinQueuePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			h.reject(c, "malformed payload")
			return
		}
		h.handleJoinQueue(c, p)
	case EventAttack:
		var p AttackPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			h.reject(c, "malformed payload")
			return
		}
		h.handleAttack(c, p)
	case EventDrawMove:
		var p DrawMovePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			h.reject(c, "malformed payload")
			return
		}
		h.handleDraw(c, p)
	default:
		h.reject(c, "unknown event")
	}
}

func (h *Hub) handleJoinQueue(c *Client, p JoinQueuePayload) {
	if err := auth.ValidateUsername(p.Username); err != nil {
		h.reject(c, "invalid username")
		return
	}
	c.identity.Username = p.Username

	opponentID, queued, err := h.queue.TryMatch(c.id)
	if err != nil {
		h.reject(c, "already in a match")
		return
	}
	if queued {
		h.logger.Debug("queued for matchmaking", zap.String("conn_id", c.id))
		return
	}

	opponent, ok := h.clients[opponentID]
	if !ok {
		h.queue.AbortMatch(c.id, opponentID)
		return
	}

	s, err := h.sessions.CreateSession(
		game.Seat{Identity: opponent.identity, ConnID: opponent.id},
		game.Seat{Identity: c.identity, ConnID: c.id},
	)
	if err != nil {
		// Transient construction failure: both candidates go back to the
		// queue rather than being dropped.
		h.logger.Error("session construction failed", zap.Error(err))
		h.queue.AbortMatch(c.id, opponentID)
		return
	}
	h.queue.FinishMatch(c.id, opponentID)

	state := s.Snapshot()
	h.sendEvent(opponent, EventMatchFound, MatchFoundPayload{
		SessionID:     s.ID,
		InitialState:  state,
		OpponentName:  c.identity.Username,
		SelfIndex:     0,
		OpponentIndex: 1,
	})
	h.sendEvent(c, EventMatchFound, MatchFoundPayload{
		SessionID:     s.ID,
		InitialState:  state,
		OpponentName:  opponent.identity.Username,
		SelfIndex:     1,
		OpponentIndex: 0,
	})
}

func (h *Hub) handleAttack(c *Client, p AttackPayload) {
	s, ok := h.sessions.Session(p.SessionID)
	if !ok {
		h.reject(c, "unknown session")
		return
	}

	out, err := s.Attack(c.id, game.AttackInput{
		AttackerSlot: p.AttackerSlot,
		DefenderSlot: p.OpponentSlot,
		Stat:         p.StatName,
		LastAction:   p.IsLastAction,
	})
	if err != nil {
		h.logger.Debug("attack rejected",
			zap.String("conn_id", c.id),
			zap.String("session_id", p.SessionID),
			zap.Error(err),
		)
		h.reject(c, "invalid action")
		return
	}

	conns := s.ConnIDs()
	result := AttackResultPayload{
		Killed:         out.Killed,
		AttackerName:   out.AttackerName,
		DefenderName:   out.DefenderName,
		Stat:           out.Stat,
		Damage:         out.Damage,
		AttackCategory: attackCategory(out.Stat),
	}

	// Attacker sees their own slot as selfSlot; the defender sees the
	// mirrored variant.
	attackerView := result
	attackerView.SelfSlot = out.AttackerSlot
	attackerView.OpponentSlot = out.DefenderSlot
	h.sendToConn(conns[out.AttackerIndex], EventAttackResult, attackerView)

	defenderView := result
	defenderView.SelfSlot = out.DefenderSlot
	defenderView.OpponentSlot = out.AttackerSlot
	h.sendToConn(conns[out.DefenderIndex], EventAttackResult, defenderView)

	h.broadcastState(s)

	if out.WinnerIndex != game.NoWinner {
		h.finishSession(s, out.WinnerIndex, "victory")
	}
}

func (h *Hub) handleDraw(c *Client, p DrawMovePayload) {
	s, ok := h.sessions.Session(p.SessionID)
	if !ok {
		h.reject(c, "unknown session")
		return
	}

	if _, err := s.DrawMove(c.id); err != nil {
		h.logger.Debug("draw rejected",
			zap.String("conn_id", c.id),
			zap.String("session_id", p.SessionID),
			zap.Error(err),
		)
		h.reject(c, "invalid action")
		return
	}

	h.broadcastState(s)
}

// ==================== Session teardown ====================

// finishSession ends a session, notifies both seats, persists win/loss
// counters and removes the session from the table.
func (h *Hub) finishSession(s *game.Session, winnerIndex int, reason string) {
	s.Forfeit(1 - winnerIndex) // no-op when already terminal

	_, winnerName, winnerID, winnerGuest := s.Seat(winnerIndex)
	_, _, loserID, loserGuest := s.Seat(1 - winnerIndex)

	payload := GameOverPayload{WinnerName: winnerName, Reason: reason}
	for _, conn := range s.ConnIDs() {
		h.sendToConn(conn, EventGameOver, payload)
	}

	// A pending record for either seat is moot once the session is gone.
	h.recon.Drop(winnerID)
	h.recon.Drop(loserID)
	h.sessions.Remove(s.ID)

	if h.stats == nil {
		return
	}
	// Persistence happens off the hub loop; a failure is logged, never
	// fatal to the session flow.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if !winnerGuest {
			if err := h.stats.RecordResult(ctx, winnerID, true); err != nil {
				h.logger.Warn("record win failed", zap.String("user_id", winnerID), zap.Error(err))
			}
		}
		if !loserGuest {
			if err := h.stats.RecordResult(ctx, loserID, false); err != nil {
				h.logger.Warn("record loss failed", zap.String("user_id", loserID), zap.Error(err))
			}
		}
	}()
}

// ==================== Maintenance ====================

// runMaintenance is the periodic sweep: stale queue entries, orphaned
// sessions, dangling reconnection records and idle rate-limit state.
// Every step is idempotent.
func (h *Hub) runMaintenance() {
	h.queue.Sweep()

	h.recon.SweepStale(func(sessionID string) bool {
		_, ok := h.sessions.Session(sessionID)
		return ok
	})

	orphans := h.sessions.SweepOrphans(func(connID string) bool {
		if _, ok := h.clients[connID]; ok {
			return true
		}
		return h.recon.PendingForConn(connID)
	})
	for _, s := range orphans {
		for _, conn := range s.ConnIDs() {
			h.sendToConn(conn, EventGameOver, GameOverPayload{Reason: "session terminated"})
		}
	}

	h.guard.Sweep(10 * h.maintenanceInterval)
}

// ==================== Delivery ====================

func (h *Hub) reject(c *Client, reason string) {
	h.sendEvent(c, EventRejected, RejectedPayload{Reason: reason})
}

func (h *Hub) sendToConn(connID string, eventType string, payload any) {
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	h.sendEvent(c, eventType, payload)
}

func (h *Hub) sendEvent(c *Client, eventType string, payload any) {
	msg, err := encodeEvent(eventType, payload)
	if err != nil {
		h.logger.Error("encode event failed", zap.String("event", eventType), zap.Error(err))
		return
	}
	select {
	case c.send <- msg:
	default:
		// A slow client never blocks the hub loop.
		h.logger.Warn("send buffer full, dropping message",
			zap.String("conn_id", c.id),
			zap.String("event", eventType),
		)
	}
}

func (h *Hub) broadcastState(s *game.Session) {
	view := s.Snapshot()
	for _, conn := range s.ConnIDs() {
		h.sendToConn(conn, EventStateSync, view)
	}
}
