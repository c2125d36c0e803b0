package store

import (
	"strings"
	"time"

	"github.com/greenloop/ecotrack/models"
)

// The adapter owns field defaults: every optional field missing from a stored
// record is filled here, both when loading and before creating, so the rest of
// the system never sees a zero-value habit or user.

// NormalizeUser fills defaults for optional user fields absent from storage.
func NormalizeUser(u *models.User) {
	if u == nil {
		return
	}
	if u.AvatarSymbol == "" {
		u.AvatarSymbol = models.DefaultAvatarSymbol
	}
	if u.TotalPoints < 0 {
		u.TotalPoints = 0
	}
	if u.CurrentStreak < 0 {
		u.CurrentStreak = 0
	}
	if u.LongestStreak < u.CurrentStreak {
		u.LongestStreak = u.CurrentStreak
	}
}

// NormalizeHabit fills defaults for optional habit fields absent from storage.
// The reference instant is used for habits stored without a date.
func NormalizeHabit(h *models.Habit, now time.Time) {
	if h == nil {
		return
	}
	h.Title = strings.TrimSpace(h.Title)
	if h.Title == "" {
		h.Title = "Untitled habit"
	}
	if h.Points <= 0 {
		h.Points = models.DefaultHabitPoints
	}
	if !models.ValidCategory(h.Category) {
		h.Category = models.CategoryOther
	}
	if h.Date.IsZero() {
		h.Date = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}
}
