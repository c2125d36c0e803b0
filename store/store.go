package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/greenloop/ecotrack/models"
	"github.com/greenloop/ecotrack/utils"
)

// Store adapts domain entities to and from the relational document store.
// All failures are typed: missing ids become NotFoundError, everything else
// becomes TransientError. Errors are logged here and reported upward, never
// swallowed.
type Store struct {
	db *gorm.DB
}

// New creates a Store over an initialized gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UserByID loads a user and fills defaults for absent optional fields.
func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, s.fail("load user", "user", fmt.Sprint(id), err)
	}
	NormalizeUser(&user)
	return &user, nil
}

// UserByEmail loads a user by email address.
func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, s.fail("load user", "user", email, err)
	}
	NormalizeUser(&user)
	return &user, nil
}

// UserByProvider loads a user by OAuth provider identity.
func (s *Store) UserByProvider(ctx context.Context, provider, providerID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("provider = ? AND provider_id = ?", provider, providerID).First(&user).Error
	if err != nil {
		return nil, s.fail("load user", "user", provider+"/"+providerID, err)
	}
	NormalizeUser(&user)
	return &user, nil
}

// CreateUser persists a new user record.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	NormalizeUser(u)
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return s.fail("create user", "user", u.Email, err)
	}
	return nil
}

// SaveUser persists the full user record.
func (s *Store) SaveUser(ctx context.Context, u *models.User) error {
	NormalizeUser(u)
	res := s.db.WithContext(ctx).Save(u)
	if res.Error != nil {
		return s.fail("save user", "user", fmt.Sprint(u.ID), res.Error)
	}
	return nil
}

// HabitsByUser returns the user's habits ordered by date descending, with
// defaults filled for every record.
func (s *Store) HabitsByUser(ctx context.Context, userID uint) ([]models.Habit, error) {
	var habits []models.Habit
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date DESC").
		Find(&habits).Error
	if err != nil {
		return nil, s.fail("list habits", "user", fmt.Sprint(userID), err)
	}
	now := time.Now()
	for i := range habits {
		NormalizeHabit(&habits[i], now)
	}
	return habits, nil
}

// HabitByID loads a single habit.
func (s *Store) HabitByID(ctx context.Context, id string) (*models.Habit, error) {
	var habit models.Habit
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&habit).Error; err != nil {
		return nil, s.fail("load habit", "habit", id, err)
	}
	NormalizeHabit(&habit, time.Now())
	return &habit, nil
}

// CreateHabit persists a new habit, returning the generated id via h.ID.
func (s *Store) CreateHabit(ctx context.Context, h *models.Habit) error {
	NormalizeHabit(h, time.Now())
	if err := s.db.WithContext(ctx).Create(h).Error; err != nil {
		return s.fail("create habit", "habit", h.Title, err)
	}
	return nil
}

// UpdateHabit replaces the stored record with h. The habit must exist.
func (s *Store) UpdateHabit(ctx context.Context, h *models.Habit) error {
	NormalizeHabit(h, time.Now())
	res := s.db.WithContext(ctx).Model(&models.Habit{}).Where("id = ?", h.ID).Updates(map[string]interface{}{
		"title":       h.Title,
		"description": h.Description,
		"category":    h.Category,
		"points":      h.Points,
		"date":        h.Date,
		"completed":   h.Completed,
	})
	if res.Error != nil {
		return s.fail("update habit", "habit", h.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Kind: "habit", ID: h.ID}
	}
	return nil
}

// DeleteHabit removes a habit by id. Deleting a missing id is an error.
func (s *Store) DeleteHabit(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Habit{})
	if res.Error != nil {
		return s.fail("delete habit", "habit", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Kind: "habit", ID: id}
	}
	return nil
}

// UnlockedBadgeIDs returns the set of badge ids the user has unlocked.
func (s *Store) UnlockedBadgeIDs(ctx context.Context, userID uint) (map[string]bool, error) {
	var rows []models.BadgeUnlock
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error
	if err != nil {
		return nil, s.fail("list badge unlocks", "user", fmt.Sprint(userID), err)
	}
	unlocked := make(map[string]bool, len(rows))
	for _, r := range rows {
		unlocked[r.BadgeID] = true
	}
	return unlocked, nil
}

// SaveBadgeUnlocks records newly unlocked badges. Existing rows are left
// untouched so unlocks stay monotonic even when called twice.
func (s *Store) SaveBadgeUnlocks(ctx context.Context, userID uint, badgeIDs []string) error {
	if len(badgeIDs) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]models.BadgeUnlock, 0, len(badgeIDs))
	for _, id := range utils.UniqueStrings(badgeIDs) {
		rows = append(rows, models.BadgeUnlock{UserID: userID, BadgeID: id, UnlockedAt: now})
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return s.fail("save badge unlocks", "user", fmt.Sprint(userID), err)
	}
	return nil
}

// fail logs and converts a gorm error to the store taxonomy.
func (s *Store) fail(op, kind, id string, err error) error {
	wrapped := wrap(op, kind, id, err)
	if utils.Sugar != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Sugar.Warnf("%s failed for %s %s: %v", op, kind, id, err)
	}
	return wrapped
}
