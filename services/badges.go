package services

import "github.com/greenloop/ecotrack/models"

// badgeCatalog is the process-wide badge definition set. Order matters: when
// several thresholds are crossed by one update, unlocks are reported in
// catalog order.
var badgeCatalog = []models.Badge{
	{ID: "sprout", Name: "Sprout", Description: "Earn your first 10 points", Icon: "🌱", Threshold: 10},
	{ID: "sapling", Name: "Sapling", Description: "Reach 50 points", Icon: "🌿", Threshold: 50},
	{ID: "bloom", Name: "Bloom", Description: "Reach 100 points", Icon: "🌸", Threshold: 100},
	{ID: "grove", Name: "Grove", Description: "Reach 250 points", Icon: "🌳", Threshold: 250},
	{ID: "forest", Name: "Forest", Description: "Reach 500 points", Icon: "🌲", Threshold: 500},
	{ID: "guardian", Name: "Guardian", Description: "Reach 1000 points", Icon: "🌍", Threshold: 1000},
}

// BadgeCatalog returns a copy of the static badge definitions.
func BadgeCatalog() []models.Badge {
	out := make([]models.Badge, len(badgeCatalog))
	copy(out, badgeCatalog)
	return out
}

// NewlyUnlocked returns the catalog badges whose threshold is satisfied by
// totalPoints and whose id is not already in unlocked, in catalog order.
// Unlocks are monotonic: a badge already in unlocked is never re-evaluated,
// so no threshold is ever re-checked downward.
func NewlyUnlocked(totalPoints int, unlocked map[string]bool) []models.Badge {
	var out []models.Badge
	for _, b := range badgeCatalog {
		if unlocked[b.ID] {
			continue
		}
		if totalPoints >= b.Threshold {
			out = append(out, b)
		}
	}
	return out
}

// BadgeState pairs a catalog definition with a user's unlock flag.
type BadgeState struct {
	models.Badge
	Unlocked bool `json:"unlocked"`
}

// BadgeStates projects the static catalog against a user's unlocked set.
func BadgeStates(unlocked map[string]bool) []BadgeState {
	out := make([]BadgeState, 0, len(badgeCatalog))
	for _, b := range badgeCatalog {
		out = append(out, BadgeState{Badge: b, Unlocked: unlocked[b.ID]})
	}
	return out
}
