package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultHabitPoints is the point value assumed when a stored habit has none.
const DefaultHabitPoints = 10

// Habit categories form a fixed enumeration; anything else is normalized to
// CategoryOther when a record is loaded or created.
const (
	CategoryRecycling = "recycling"
	CategoryEnergy    = "energy"
	CategoryWater     = "water"
	CategoryTransport = "transport"
	CategoryFood      = "food"
	CategoryWaste     = "waste"
	CategoryNature    = "nature"
	CategoryOther     = "other"
)

// HabitCategories lists valid categories in display order.
var HabitCategories = []string{
	CategoryRecycling,
	CategoryEnergy,
	CategoryWater,
	CategoryTransport,
	CategoryFood,
	CategoryWaste,
	CategoryNature,
	CategoryOther,
}

// ValidCategory reports whether c belongs to the fixed category enumeration.
func ValidCategory(c string) bool {
	for _, v := range HabitCategories {
		if c == v {
			return true
		}
	}
	return false
}

// Habit is a trackable action scheduled on a calendar day. Habits are keyed by
// opaque string ids so clients never depend on storage-level numbering.
type Habit struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Category    string    `gorm:"size:32;default:'other'" json:"category"`
	Points      int       `gorm:"default:10" json:"points"`
	Date        time.Time `gorm:"index;not null" json:"date"`
	Completed   bool      `gorm:"default:false" json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not provide one.
func (h *Habit) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}
