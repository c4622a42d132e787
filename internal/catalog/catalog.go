package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Rarity classifies a card and determines its starting HP.
type Rarity int

const (
	RarityCommon Rarity = iota
	RarityUncommon
	RarityRare
	RarityUltraRare
	RarityEpic
	RarityLegendary
)

func (r Rarity) String() string {
	switch r {
	case RarityCommon:
		return "COMMON"
	case RarityUncommon:
		return "UNCOMMON"
	case RarityRare:
		return "RARE"
	case RarityUltraRare:
		return "ULTRA_RARE"
	case RarityEpic:
		return "EPIC"
	case RarityLegendary:
		return "LEGENDARY"
	default:
		return "UNKNOWN"
	}
}

// HP returns the fixed starting hit points for a rarity class.
func (r Rarity) HP() int {
	switch r {
	case RarityCommon:
		return 100
	case RarityUncommon:
		return 120
	case RarityRare:
		return 150
	case RarityUltraRare:
		return 175
	case RarityEpic:
		return 200
	case RarityLegendary:
		return 250
	default:
		return 0
	}
}

// ParseRarity maps a catalog-file rarity string to a Rarity.
func ParseRarity(s string) (Rarity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "COMMON":
		return RarityCommon, nil
	case "UNCOMMON":
		return RarityUncommon, nil
	case "RARE":
		return RarityRare, nil
	case "ULTRA_RARE", "ULTRARARE":
		return RarityUltraRare, nil
	case "EPIC":
		return RarityEpic, nil
	case "LEGENDARY":
		return RarityLegendary, nil
	default:
		return 0, fmt.Errorf("unknown rarity %q", s)
	}
}

// Card is one static catalog definition. Combat stats are free-form named
// integers; the attack message names the stat to use.
type Card struct {
	Name   string         `json:"name"`
	Rarity Rarity         `json:"-"`
	Flavor string         `json:"flavor,omitempty"`
	Stats  map[string]int `json:"stats"`
}

// Catalog is an immutable, indexed card table with per-rarity buckets.
type Catalog struct {
	cards   []Card
	buckets map[Rarity][]int
}

// New builds a catalog from the given card definitions.
func New(cards []Card) *Catalog {
	c := &Catalog{
		cards:   make([]Card, len(cards)),
		buckets: make(map[Rarity][]int),
	}
	copy(c.cards, cards)
	for i, card := range c.cards {
		c.buckets[card.Rarity] = append(c.buckets[card.Rarity], i)
	}
	return c
}

// Len returns the number of card definitions.
func (c *Catalog) Len() int { return len(c.cards) }

// Card returns the definition at the given catalog index.
func (c *Catalog) Card(index int) (Card, bool) {
	if index < 0 || index >= len(c.cards) {
		return Card{}, false
	}
	return c.cards[index], true
}

// Stat resolves a named combat stat on the card at the given index.
func (c *Catalog) Stat(index int, name string) (int, bool) {
	if index < 0 || index >= len(c.cards) {
		return 0, false
	}
	v, ok := c.cards[index].Stats[name]
	return v, ok
}

// ByRarity returns the catalog indices of all cards in a rarity bucket.
// The returned slice must not be mutated.
func (c *Catalog) ByRarity(r Rarity) []int {
	return c.buckets[r]
}

// Validate checks that every rarity bucket can satisfy the deck quota.
// A thin bucket is a fatal configuration error, caught at startup rather
// than failing silently during matchmaking.
func (c *Catalog) Validate(quota map[Rarity]int) error {
	for r, n := range quota {
		if got := len(c.buckets[r]); got < n {
			return fmt.Errorf("catalog: rarity %s has %d cards, deck quota needs %d", r, got, n)
		}
	}
	return nil
}

// fileCard is the JSON shape of one catalog-file entry.
type fileCard struct {
	Name   string         `json:"name"`
	Rarity string         `json:"rarity"`
	Flavor string         `json:"flavor,omitempty"`
	Stats  map[string]int `json:"stats"`
}

// LoadFile reads a JSON card catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var entries []fileCard
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	cards := make([]Card, 0, len(entries))
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("catalog entry %d: missing name", i)
		}
		r, err := ParseRarity(e.Rarity)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d (%s): %w", i, e.Name, err)
		}
		if len(e.Stats) == 0 {
			return nil, fmt.Errorf("catalog entry %d (%s): no combat stats", i, e.Name)
		}
		cards = append(cards, Card{Name: e.Name, Rarity: r, Flavor: e.Flavor, Stats: e.Stats})
	}

	return New(cards), nil
}
