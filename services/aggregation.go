package services

import (
	"time"

	"github.com/greenloop/ecotrack/models"
)

// The aggregation functions are pure over an in-memory habit collection plus
// a reference instant, so the orchestrator (and tests) can evaluate them
// against any clock.

// DayStat is one entry of the weekly completion series.
type DayStat struct {
	Date           time.Time `json:"date"`
	CompletedCount int       `json:"completed_count"`
	TotalCount     int       `json:"total_count"`
}

// TodayStats summarizes the reference day.
type TodayStats struct {
	Date           time.Time `json:"date"`
	TotalCount     int       `json:"total_count"`
	CompletedCount int       `json:"completed_count"`
	PointsEarned   int       `json:"points_earned"`
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// HabitsOnDate returns the habits whose date falls on the given calendar day,
// ignoring time of day. A habit dated in the future or past relative to the
// reference day appears only in the bucket matching its own date field.
func HabitsOnDate(habits []models.Habit, date time.Time) []models.Habit {
	var out []models.Habit
	for _, h := range habits {
		if sameDay(h.Date, date) {
			out = append(out, h)
		}
	}
	return out
}

// TodaysHabits returns the habits dated on the reference day.
func TodaysHabits(habits []models.Habit, now time.Time) []models.Habit {
	return HabitsOnDate(habits, now)
}

// CompletedCountToday counts today's habits with the completion flag set.
func CompletedCountToday(habits []models.Habit, now time.Time) int {
	count := 0
	for _, h := range TodaysHabits(habits, now) {
		if h.Completed {
			count++
		}
	}
	return count
}

// PointsEarnedToday sums point values over today's completed habits.
func PointsEarnedToday(habits []models.Habit, now time.Time) int {
	points := 0
	for _, h := range TodaysHabits(habits, now) {
		if h.Completed {
			points += h.Points
		}
	}
	return points
}

// WeeklySeries produces exactly 7 entries covering the inclusive range
// [now-6 days, now], oldest first.
func WeeklySeries(habits []models.Habit, now time.Time) []DayStat {
	series := make([]DayStat, 0, 7)
	for offset := 6; offset >= 0; offset-- {
		day := now.AddDate(0, 0, -offset)
		stat := DayStat{Date: time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())}
		for _, h := range habits {
			if !sameDay(h.Date, day) {
				continue
			}
			stat.TotalCount++
			if h.Completed {
				stat.CompletedCount++
			}
		}
		series = append(series, stat)
	}
	return series
}

// Today computes the reference day's summary in one pass.
func Today(habits []models.Habit, now time.Time) TodayStats {
	stats := TodayStats{Date: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())}
	for _, h := range TodaysHabits(habits, now) {
		stats.TotalCount++
		if h.Completed {
			stats.CompletedCount++
			stats.PointsEarned += h.Points
		}
	}
	return stats
}

// CurrentStreak counts consecutive days with at least one completed habit,
// walking back from the reference day. A day with no completion yet today
// does not break the streak; the count then starts at yesterday.
func CurrentStreak(habits []models.Habit, now time.Time) int {
	completed := make(map[string]bool)
	for _, h := range habits {
		if h.Completed {
			completed[h.Date.Format("2006-01-02")] = true
		}
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !completed[day.Format("2006-01-02")] {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for completed[day.Format("2006-01-02")] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}
