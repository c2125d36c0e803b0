package models

import "time"

// Badge is a static achievement definition. The catalog lives in code and is
// identical for every user; per-user unlock state is stored as BadgeUnlock rows.
type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Threshold   int    `json:"threshold"`
}

// BadgeUnlock records that a user crossed a badge's point threshold.
// A row is written once and never deleted; unlocks are monotonic.
type BadgeUnlock struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index:idx_badge_user,unique;not null" json:"user_id"`
	BadgeID    string    `gorm:"index:idx_badge_user,unique;size:64;not null" json:"badge_id"`
	UnlockedAt time.Time `json:"unlocked_at"`
	CreatedAt  time.Time `json:"created_at"`
}
