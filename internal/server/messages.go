package server

import (
	"encoding/json"
	"fmt"

	"github.com/duelforge/duel-server-go/internal/game"
)

// Wire event names. Inbound events mutate state and pass through the
// abuse guard; outbound events are notifications and snapshots.
const (
	EventJoinQueue = "join-queue"
	EventAttack    = "attack"
	EventDrawMove  = "draw-move"

	EventMatchFound           = "match-found"
	EventStateSync            = "state-sync"
	EventAttackResult         = "attack-result"
	EventOpponentDisconnected = "opponent-disconnected"
	EventOpponentReconnected  = "opponent-reconnected"
	EventReconnected          = "reconnected"
	EventGameOver             = "game-over"
	EventRejected             = "rejected"
)

// Envelope is the outer shape of every wire message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinQueuePayload requests matchmaking entry.
type JoinQueuePayload struct {
	Username string `json:"username"`
}

// AttackPayload requests one attack action.
type AttackPayload struct {
	SessionID    string `json:"sessionId"`
	AttackerSlot int    `json:"attackerSlot"`
	OpponentSlot int    `json:"opponentSlot"`
	StatName     string `json:"statName"`
	IsLastAction bool   `json:"isLastAction"`
}

// DrawMovePayload requests a voluntary draw, ending the turn.
type DrawMovePayload struct {
	SessionID string `json:"sessionId"`
}

// MatchFoundPayload announces a pairing to one participant.
type MatchFoundPayload struct {
	SessionID     string           `json:"sessionId"`
	InitialState  game.SessionView `json:"initialState"`
	OpponentName  string           `json:"opponentName"`
	SelfIndex     int              `json:"selfIndex"`
	OpponentIndex int              `json:"opponentIndex"`
}

// AttackResultPayload reports one resolved attack. Slot indices are from
// the recipient's point of view, so the two participants receive mirrored
// variants.
type AttackResultPayload struct {
	SelfSlot       int    `json:"selfSlot"`
	OpponentSlot   int    `json:"opponentSlot"`
	Killed         bool   `json:"killed"`
	AttackerName   string `json:"attackerName"`
	DefenderName   string `json:"defenderName"`
	Stat           string `json:"stat"`
	Damage         int    `json:"damage"`
	AttackCategory string `json:"attackCategory"`
}

// OpponentDisconnectedPayload starts (or denies) a reconnection grace
// period after a mid-session disconnect.
type OpponentDisconnectedPayload struct {
	CanReconnect   bool `json:"canReconnect"`
	TimeoutSeconds int  `json:"timeoutSeconds,omitempty"`
}

// OpponentReconnectedPayload notifies that the opponent resumed.
type OpponentReconnectedPayload struct {
	Username string `json:"username"`
}

// ReconnectedPayload restores a returning participant with a full
// snapshot.
type ReconnectedPayload struct {
	SessionID string           `json:"sessionId"`
	SelfIndex int              `json:"selfIndex"`
	State     game.SessionView `json:"state"`
}

// GameOverPayload is the terminal notification.
type GameOverPayload struct {
	WinnerName string `json:"winnerName"`
	Reason     string `json:"reason"`
}

// RejectedPayload answers a validation or rate-limit failure.
type RejectedPayload struct {
	Reason string `json:"reason"`
}

// encodeEvent wraps a payload in an envelope and marshals it.
func encodeEvent(eventType string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		data = raw
	}
	return json.Marshal(Envelope{Type: eventType, Data: data})
}

// attackCategory derives the result category from the stat used.
func attackCategory(stat string) string {
	switch stat {
	case "attack":
		return "physical"
	case "magic":
		return "magical"
	default:
		return stat
	}
}
