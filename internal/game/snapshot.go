package game

// CardView is the wire shape of one in-play or dead card.
type CardView struct {
	CatalogIndex int            `json:"catalogIndex"`
	Name         string         `json:"name"`
	Rarity       string         `json:"rarity"`
	CurrentHP    int            `json:"currentHP"`
	MaxHP        int            `json:"maxHP"`
	Stats        map[string]int `json:"stats"`
}

// ParticipantView is the wire shape of one seat's visible state.
type ParticipantView struct {
	Username    string                      `json:"username"`
	DeckCount   int                         `json:"deckCount"`
	Battlefield [BattlefieldSlots]*CardView `json:"battlefield"`
	DeadPile    []CardView                  `json:"deadPile"`
}

// SessionView is the full authoritative snapshot sent on every state sync.
type SessionView struct {
	SessionID    string             `json:"sessionId"`
	TurnIndex    int                `json:"turnIndex"`
	Over         bool               `json:"over"`
	Participants [2]ParticipantView `json:"participants"`
}

// Snapshot returns a consistent copy of the session for broadcasting.
func (s *Session) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := SessionView{
		SessionID: s.ID,
		TurnIndex: s.turnIndex,
		Over:      s.over,
	}
	for i, p := range s.participants {
		pv := ParticipantView{
			Username:  p.Identity.Username,
			DeckCount: len(p.Deck),
			DeadPile:  make([]CardView, 0, len(p.DeadPile)),
		}
		for slot, c := range p.Battlefield {
			if c != nil {
				cv := s.cardView(*c)
				pv.Battlefield[slot] = &cv
			}
		}
		for _, c := range p.DeadPile {
			pv.DeadPile = append(pv.DeadPile, s.cardView(c))
		}
		view.Participants[i] = pv
	}
	return view
}

func (s *Session) cardView(c CardInstance) CardView {
	def, _ := s.catalog.Card(c.CatalogIndex)
	return CardView{
		CatalogIndex: c.CatalogIndex,
		Name:         def.Name,
		Rarity:       def.Rarity.String(),
		CurrentHP:    c.CurrentHP,
		MaxHP:        def.Rarity.HP(),
		Stats:        def.Stats,
	}
}
