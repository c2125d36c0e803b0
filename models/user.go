package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultAvatarSymbol is applied when a stored user has no avatar symbol.
const DefaultAvatarSymbol = "🌱"

// User represents an EcoTrack account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Username      string         `gorm:"size:64;not null" json:"username"`
	Email         string         `gorm:"size:255" json:"email"`
	PasswordHash  string         `gorm:"size:255" json:"-"`
	Provider      string         `gorm:"size:32" json:"provider"`
	ProviderID    string         `gorm:"size:255" json:"provider_id"`
	RegisterIP    string         `gorm:"size:45" json:"-"`
	AvatarSymbol  string         `gorm:"size:16" json:"avatar_symbol"`
	Goal          string         `gorm:"size:255" json:"goal"`
	TotalPoints   int            `gorm:"default:0" json:"total_points"`
	CurrentStreak int            `gorm:"default:0" json:"current_streak"`
	LongestStreak int            `gorm:"default:0" json:"longest_streak"`
	ShowCompleted bool           `gorm:"default:true" json:"show_completed"`
	CreatedAt     time.Time      `json:"joined_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	Habits        []Habit        `json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.AvatarSymbol == "" {
		u.AvatarSymbol = DefaultAvatarSymbol
	}
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
