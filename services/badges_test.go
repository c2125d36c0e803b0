package services

import (
	"testing"

	"github.com/greenloop/ecotrack/models"
)

func unlockIDs(badges []models.Badge) []string {
	out := make([]string, len(badges))
	for i, b := range badges {
		out[i] = b.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewlyUnlocked(t *testing.T) {
	cases := []struct {
		name     string
		points   int
		unlocked map[string]bool
		want     []string
	}{
		{"below first threshold", 9, nil, nil},
		{"exactly at threshold", 10, nil, []string{"sprout"}},
		{"skips already unlocked", 60, map[string]bool{"sprout": true}, []string{"sapling"}},
		{"multiple crossed at once, catalog order", 120, nil, []string{"sprout", "sapling", "bloom"}},
		{"nothing new when all below are held", 120, map[string]bool{"sprout": true, "sapling": true, "bloom": true}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := unlockIDs(NewlyUnlocked(tc.points, tc.unlocked))
			if !equalIDs(got, tc.want) {
				t.Fatalf("NewlyUnlocked(%d) = %v, want %v", tc.points, got, tc.want)
			}
		})
	}
}

// Crossing 100 by going from 90 to 105 unlocks the 100-point badge exactly once.
func TestNewlyUnlockedSingleCrossing(t *testing.T) {
	unlocked := map[string]bool{"sprout": true, "sapling": true}

	if got := NewlyUnlocked(90, unlocked); len(got) != 0 {
		t.Fatalf("at 90 points expected no unlocks, got %v", unlockIDs(got))
	}

	first := NewlyUnlocked(105, unlocked)
	if !equalIDs(unlockIDs(first), []string{"bloom"}) {
		t.Fatalf("at 105 points expected [bloom], got %v", unlockIDs(first))
	}
	for _, b := range first {
		unlocked[b.ID] = true
	}

	// Re-evaluating at the same total must not report it again.
	if again := NewlyUnlocked(105, unlocked); len(again) != 0 {
		t.Fatalf("second evaluation re-reported %v", unlockIDs(again))
	}
}

// Once a badge id is in the unlocked set it is never returned again, even if
// the total were to drop below its threshold.
func TestNewlyUnlockedMonotonic(t *testing.T) {
	unlocked := map[string]bool{}
	for _, b := range NewlyUnlocked(55, unlocked) {
		unlocked[b.ID] = true
	}
	if !unlocked["sprout"] || !unlocked["sapling"] {
		t.Fatalf("expected sprout and sapling unlocked, got %v", unlocked)
	}

	if got := NewlyUnlocked(5, unlocked); len(got) != 0 {
		t.Fatalf("lower total must not re-unlock, got %v", unlockIDs(got))
	}
}

func TestBadgeStatesCoversCatalogInOrder(t *testing.T) {
	states := BadgeStates(map[string]bool{"sapling": true})
	catalog := BadgeCatalog()

	if len(states) != len(catalog) {
		t.Fatalf("got %d states, want %d", len(states), len(catalog))
	}
	for i, s := range states {
		if s.ID != catalog[i].ID {
			t.Fatalf("state %d is %s, want %s", i, s.ID, catalog[i].ID)
		}
		wantUnlocked := s.ID == "sapling"
		if s.Unlocked != wantUnlocked {
			t.Fatalf("badge %s unlocked = %v, want %v", s.ID, s.Unlocked, wantUnlocked)
		}
	}
}
