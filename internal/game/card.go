package game

import "github.com/duelforge/duel-server-go/internal/auth"

// BattlefieldSlots is the fixed number of in-play positions per participant.
const BattlefieldSlots = 4

// CardInstance is one dealt card inside a session. It exists only for the
// session's lifetime; CatalogIndex points back at the static definition.
type CardInstance struct {
	CatalogIndex int
	CurrentHP    int
}

// Deck is an ordered pile of card instances. Draws pop from the front and
// are the only way a card enters play.
type Deck []CardInstance

// Pop removes and returns the front card. ok is false on an empty deck.
func (d *Deck) Pop() (CardInstance, bool) {
	if len(*d) == 0 {
		return CardInstance{}, false
	}
	card := (*d)[0]
	*d = (*d)[1:]
	return card, true
}

// Battlefield is the fixed-size sparse array of in-play cards. A nil slot
// is empty; an occupied slot always holds a card with CurrentHP > 0.
type Battlefield [BattlefieldSlots]*CardInstance

// LowestEmptySlot returns the first empty slot index.
func (b *Battlefield) LowestEmptySlot() (int, bool) {
	for i, c := range b {
		if c == nil {
			return i, true
		}
	}
	return 0, false
}

// IsEmpty reports whether no card is in play.
func (b *Battlefield) IsEmpty() bool {
	for _, c := range b {
		if c != nil {
			return false
		}
	}
	return true
}

// Participant is one player's session-scoped state bound to a connection.
type Participant struct {
	Identity    auth.Identity
	ConnID      string
	Deck        Deck
	Battlefield Battlefield
	DeadPile    []CardInstance
}

// drawToField pops the deck front into the lowest empty battlefield slot.
// It returns the slot used, or ok=false when the deck is empty or the
// battlefield is full.
func (p *Participant) drawToField() (int, bool) {
	slot, ok := p.Battlefield.LowestEmptySlot()
	if !ok {
		return 0, false
	}
	card, ok := p.Deck.Pop()
	if !ok {
		return 0, false
	}
	p.Battlefield[slot] = &card
	return slot, true
}

// defeated reports whether the participant has nothing left to fight with.
func (p *Participant) defeated() bool {
	return p.Battlefield.IsEmpty() && len(p.Deck) == 0
}
