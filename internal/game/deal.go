package game

import (
	"fmt"
	"math/rand"

	"github.com/duelforge/duel-server-go/internal/auth"
	"github.com/duelforge/duel-server-go/internal/catalog"
)

// DeckSize is the number of cards dealt to each participant.
const DeckSize = 8

// deckQuota is the per-rarity draw count for a fresh deck.
var deckQuota = []struct {
	rarity catalog.Rarity
	count  int
}{
	{catalog.RarityLegendary, 1},
	{catalog.RarityEpic, 1},
	{catalog.RarityUltraRare, 1},
	{catalog.RarityRare, 1},
	{catalog.RarityUncommon, 2},
	{catalog.RarityCommon, 2},
}

// DeckQuota returns the rarity quota a catalog must satisfy.
func DeckQuota() map[catalog.Rarity]int {
	q := make(map[catalog.Rarity]int, len(deckQuota))
	for _, e := range deckQuota {
		q[e.rarity] = e.count
	}
	return q
}

// DealDeck draws a fresh deck: each quota entry sampled uniformly without
// replacement from its rarity bucket, HP fixed by rarity, then the whole
// deck shuffled. An exhausted bucket is an error, never a short deck.
func DealDeck(cat *catalog.Catalog, rng *rand.Rand) (Deck, error) {
	deck := make(Deck, 0, DeckSize)

	for _, q := range deckQuota {
		bucket := cat.ByRarity(q.rarity)
		if len(bucket) < q.count {
			return nil, fmt.Errorf("deal deck: rarity %s exhausted (%d of %d)", q.rarity, len(bucket), q.count)
		}

		picks := rng.Perm(len(bucket))[:q.count]
		for _, p := range picks {
			deck = append(deck, CardInstance{
				CatalogIndex: bucket[p],
				CurrentHP:    q.rarity.HP(),
			})
		}
	}

	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	return deck, nil
}

// newParticipant deals a deck and sets up the opening battlefield:
// slots 1 and 2 from the deck front, slots 0 and 3 empty.
func newParticipant(identity auth.Identity, connID string, cat *catalog.Catalog, rng *rand.Rand) (*Participant, error) {
	deck, err := DealDeck(cat, rng)
	if err != nil {
		return nil, err
	}

	p := &Participant{
		Identity: identity,
		ConnID:   connID,
		Deck:     deck,
	}
	for _, slot := range []int{1, 2} {
		card, ok := p.Deck.Pop()
		if !ok {
			return nil, fmt.Errorf("deal deck: too short for opening battlefield")
		}
		p.Battlefield[slot] = &card
	}
	return p, nil
}
