package catalog

// Default returns the built-in card set used when no catalog file is
// configured. Every rarity bucket is large enough for the deck quota.
func Default() *Catalog {
	return New([]Card{
		// Common
		{Name: "Mudfang Scrapper", Rarity: RarityCommon, Flavor: "First in, last standing.", Stats: map[string]int{"attack": 30, "magic": 10, "speed": 25}},
		{Name: "Cinder Rat", Rarity: RarityCommon, Flavor: "Small. Flammable. Angry.", Stats: map[string]int{"attack": 25, "magic": 15, "speed": 35}},
		{Name: "Bog Sentry", Rarity: RarityCommon, Stats: map[string]int{"attack": 20, "magic": 20, "speed": 15}},
		{Name: "Gutter Imp", Rarity: RarityCommon, Stats: map[string]int{"attack": 28, "magic": 18, "speed": 30}},
		{Name: "Stonebound Whelp", Rarity: RarityCommon, Stats: map[string]int{"attack": 32, "magic": 8, "speed": 12}},
		{Name: "Thornback Crawler", Rarity: RarityCommon, Stats: map[string]int{"attack": 26, "magic": 12, "speed": 22}},
		// Uncommon
		{Name: "Ashveil Duelist", Rarity: RarityUncommon, Flavor: "Two blades, one grudge.", Stats: map[string]int{"attack": 38, "magic": 20, "speed": 34}},
		{Name: "Riverwarden", Rarity: RarityUncommon, Stats: map[string]int{"attack": 30, "magic": 32, "speed": 26}},
		{Name: "Howling Skirmisher", Rarity: RarityUncommon, Stats: map[string]int{"attack": 36, "magic": 14, "speed": 40}},
		{Name: "Lanternbound Shade", Rarity: RarityUncommon, Stats: map[string]int{"attack": 24, "magic": 40, "speed": 28}},
		{Name: "Ironquill Archivist", Rarity: RarityUncommon, Stats: map[string]int{"attack": 22, "magic": 38, "speed": 20}},
		// Rare
		{Name: "Pale Court Assassin", Rarity: RarityRare, Flavor: "The invitation was the warning.", Stats: map[string]int{"attack": 48, "magic": 26, "speed": 50}},
		{Name: "Gravemarsh Oracle", Rarity: RarityRare, Stats: map[string]int{"attack": 30, "magic": 52, "speed": 28}},
		{Name: "Sunforged Vanguard", Rarity: RarityRare, Stats: map[string]int{"attack": 50, "magic": 24, "speed": 32}},
		{Name: "Mistral Corsair", Rarity: RarityRare, Stats: map[string]int{"attack": 42, "magic": 34, "speed": 46}},
		// Ultra-rare
		{Name: "Vorathi Stormcaller", Rarity: RarityUltraRare, Flavor: "She does not summon the storm. She dismisses the calm.", Stats: map[string]int{"attack": 44, "magic": 60, "speed": 42}},
		{Name: "Obsidian Juggernaut", Rarity: RarityUltraRare, Stats: map[string]int{"attack": 62, "magic": 20, "speed": 24}},
		{Name: "Night Chorus Weaver", Rarity: RarityUltraRare, Stats: map[string]int{"attack": 38, "magic": 58, "speed": 48}},
		// Epic
		{Name: "Emberlord Kazrith", Rarity: RarityEpic, Flavor: "Kneel, or be kindling.", Stats: map[string]int{"attack": 70, "magic": 56, "speed": 44}},
		{Name: "Warden of the Deep Gate", Rarity: RarityEpic, Stats: map[string]int{"attack": 58, "magic": 66, "speed": 36}},
		{Name: "Seraph of Broken Oaths", Rarity: RarityEpic, Stats: map[string]int{"attack": 64, "magic": 62, "speed": 52}},
		// Legendary
		{Name: "Aureline, Dawn Eternal", Rarity: RarityLegendary, Flavor: "Every ending she has witnessed. None were hers.", Stats: map[string]int{"attack": 78, "magic": 82, "speed": 60}},
		{Name: "Nhargoth the Hollow King", Rarity: RarityLegendary, Flavor: "His crown remembers what his skull forgot.", Stats: map[string]int{"attack": 86, "magic": 74, "speed": 48}},
	})
}
