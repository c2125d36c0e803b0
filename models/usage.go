package models

import "time"

// UsageDay stores one row per user per calendar day with an API request count.
// It feeds the daily-active figure on the stats endpoint.
type UsageDay struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Date      time.Time `gorm:"index:idx_usage_date_user,unique;type:date;not null" json:"date"`
	UserID    uint      `gorm:"index;index:idx_usage_date_user,unique;not null" json:"user_id"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
