package game

import (
	"errors"
	"sync"
	"time"

	"github.com/duelforge/duel-server-go/internal/catalog"
)

// Validation failures for attack and draw actions. The transport layer
// treats these as protocol violations: the action is dropped or answered
// with a generic rejection, never a crash.
var (
	ErrSessionOver  = errors.New("session is over")
	ErrNotInSession = errors.New("connection does not own a participant in this session")
	ErrNotYourTurn  = errors.New("not the turn owner")
	ErrInvalidSlot  = errors.New("slot index out of range")
	ErrEmptySlot    = errors.New("no card in slot")
	ErrUnknownStat  = errors.New("unknown combat stat")
	ErrDefenderDead = errors.New("defender already at zero HP")
)

// NoWinner marks an outcome that did not end the session.
const NoWinner = -1

// Session is one authoritative two-player match. All mutation happens
// through Attack, DrawMove and Forfeit under the session lock.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	participants [2]*Participant
	turnIndex    int
	catalog      *catalog.Catalog
	over         bool
	winner       int
}

// AttackInput carries one validated attack request.
type AttackInput struct {
	AttackerSlot int
	DefenderSlot int
	Stat         string
	LastAction   bool
}

// AttackOutcome describes one resolved attack for broadcasting.
type AttackOutcome struct {
	AttackerIndex int
	DefenderIndex int
	AttackerSlot  int
	DefenderSlot  int
	AttackerName  string
	DefenderName  string
	Stat          string
	Damage        int
	Killed        bool
	ForcedDraw    bool
	ForcedSlot    int
	WinnerIndex   int // NoWinner unless the attack ended the session
	TurnIndex     int // turn owner after the action
}

// DrawOutcome describes one resolved draw move.
type DrawOutcome struct {
	Drawn     bool
	Slot      int
	TurnIndex int
}

// ParticipantIndex returns the seat owned by a connection, or -1.
func (s *Session) ParticipantIndex(connID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(connID)
}

func (s *Session) indexOf(connID string) int {
	for i, p := range s.participants {
		if p.ConnID == connID {
			return i
		}
	}
	return -1
}

// ConnIDs returns the current connection ids of both seats.
func (s *Session) ConnIDs() [2]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return [2]string{s.participants[0].ConnID, s.participants[1].ConnID}
}

// Seat returns a participant's identity and connection id.
func (s *Session) Seat(index int) (connID string, username string, durableID string, guest bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.participants[index]
	return p.ConnID, p.Identity.Username, p.Identity.ID, p.Identity.Guest
}

// TurnIndex returns the current turn owner.
func (s *Session) TurnIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnIndex
}

// Over reports whether the session has reached a terminal state and, if
// so, the winning seat.
func (s *Session) Over() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.over, s.winner
}

// Forfeit ends the session with the given seat as loser. It is a no-op on
// an already-terminal session and reports whether it took effect.
func (s *Session) Forfeit(loserIndex int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.over || loserIndex < 0 || loserIndex > 1 {
		return false
	}
	s.over = true
	s.winner = 1 - loserIndex
	return true
}

// Attack validates and resolves one attack by the connection's seat.
func (s *Session) Attack(connID string, in AttackInput) (AttackOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.over {
		return AttackOutcome{}, ErrSessionOver
	}

	idx := s.indexOf(connID)
	if idx < 0 {
		return AttackOutcome{}, ErrNotInSession
	}
	if idx != s.turnIndex {
		return AttackOutcome{}, ErrNotYourTurn
	}
	if in.AttackerSlot < 0 || in.AttackerSlot >= BattlefieldSlots ||
		in.DefenderSlot < 0 || in.DefenderSlot >= BattlefieldSlots {
		return AttackOutcome{}, ErrInvalidSlot
	}

	attacker := s.participants[idx]
	defender := s.participants[1-idx]

	atkCard := attacker.Battlefield[in.AttackerSlot]
	defCard := defender.Battlefield[in.DefenderSlot]
	if atkCard == nil || defCard == nil {
		return AttackOutcome{}, ErrEmptySlot
	}

	statValue, ok := s.catalog.Stat(atkCard.CatalogIndex, in.Stat)
	if !ok {
		return AttackOutcome{}, ErrUnknownStat
	}
	if defCard.CurrentHP <= 0 {
		return AttackOutcome{}, ErrDefenderDead
	}

	atkDef, _ := s.catalog.Card(atkCard.CatalogIndex)
	defDef, _ := s.catalog.Card(defCard.CatalogIndex)

	out := AttackOutcome{
		AttackerIndex: idx,
		DefenderIndex: 1 - idx,
		AttackerSlot:  in.AttackerSlot,
		DefenderSlot:  in.DefenderSlot,
		AttackerName:  atkDef.Name,
		DefenderName:  defDef.Name,
		Stat:          in.Stat,
		Damage:        statValue,
		WinnerIndex:   NoWinner,
	}

	defCard.CurrentHP -= statValue
	if defCard.CurrentHP <= 0 {
		defCard.CurrentHP = 0
		out.Killed = true

		// Eviction: the slot empties before the card enters the dead
		// pile, so a card is never in both places.
		defender.Battlefield[in.DefenderSlot] = nil
		defender.DeadPile = append(defender.DeadPile, *defCard)

		if defender.Battlefield.IsEmpty() {
			if len(defender.Deck) == 0 {
				// Terminal check precedes the forced draw.
				s.over = true
				s.winner = idx
				out.WinnerIndex = idx
				out.TurnIndex = s.turnIndex
				return out, nil
			}
			if slot, drew := defender.drawToField(); drew {
				out.ForcedDraw = true
				out.ForcedSlot = slot
			}
		}
	}

	if in.LastAction {
		s.turnIndex = 1 - s.turnIndex
	}
	out.TurnIndex = s.turnIndex
	return out, nil
}

// DrawMove resolves a voluntary draw by the connection's seat. The turn
// passes to the opponent whether or not a card could be drawn.
func (s *Session) DrawMove(connID string) (DrawOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.over {
		return DrawOutcome{}, ErrSessionOver
	}

	idx := s.indexOf(connID)
	if idx < 0 {
		return DrawOutcome{}, ErrNotInSession
	}
	if idx != s.turnIndex {
		return DrawOutcome{}, ErrNotYourTurn
	}

	out := DrawOutcome{}
	if slot, drew := s.participants[idx].drawToField(); drew {
		out.Drawn = true
		out.Slot = slot
	}

	s.turnIndex = 1 - s.turnIndex
	out.TurnIndex = s.turnIndex
	return out, nil
}

// rebind points a seat at a new connection id. Used only by the session
// manager on behalf of the reconnection flow.
func (s *Session) rebind(index int, newConnID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[index].ConnID = newConnID
}
