package services

import (
	"testing"
	"time"

	"github.com/greenloop/ecotrack/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testHabit(id string, date time.Time, completed bool, points int) models.Habit {
	return models.Habit{ID: id, Title: id, Date: date, Completed: completed, Points: points}
}

func TestWeeklySeriesShape(t *testing.T) {
	now := time.Date(2024, 3, 15, 17, 42, 0, 0, time.UTC)
	series := WeeklySeries(nil, now)

	if len(series) != 7 {
		t.Fatalf("got %d entries, want 7", len(series))
	}
	for i := 1; i < len(series); i++ {
		if !series[i].Date.After(series[i-1].Date) {
			t.Fatalf("dates not strictly increasing at index %d: %v then %v", i, series[i-1].Date, series[i].Date)
		}
	}
	if !sameDay(series[6].Date, now) {
		t.Fatalf("last entry %v is not the reference day %v", series[6].Date, now)
	}
	if !sameDay(series[0].Date, now.AddDate(0, 0, -6)) {
		t.Fatalf("first entry %v is not six days before the reference day", series[0].Date)
	}
}

// A habit dated 2024-01-01 must not leak into a week ending 2024-01-08; the
// window is the seven days [2024-01-02, 2024-01-08].
func TestWeeklySeriesBucketing(t *testing.T) {
	now := day(2024, 1, 8)
	habits := []models.Habit{
		testHabit("old", day(2024, 1, 1), true, 10),
		testHabit("today", day(2024, 1, 8), true, 10),
		testHabit("midweek", day(2024, 1, 5), false, 10),
	}

	series := WeeklySeries(habits, now)

	var total, completed int
	for _, s := range series {
		total += s.TotalCount
		completed += s.CompletedCount
	}
	if total != 2 {
		t.Fatalf("window counted %d habits, want 2 (the 2024-01-01 habit is outside)", total)
	}
	if completed != 1 {
		t.Fatalf("window counted %d completions, want 1", completed)
	}

	last := series[6]
	if last.TotalCount != 1 || last.CompletedCount != 1 {
		t.Fatalf("2024-01-08 bucket = %d/%d, want 1/1", last.CompletedCount, last.TotalCount)
	}
}

func TestTodayIgnoresTimeOfDay(t *testing.T) {
	now := time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC)
	habits := []models.Habit{
		testHabit("morning", time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC), true, 15),
		testHabit("noon", time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), false, 10),
		testHabit("tomorrow", day(2024, 3, 16), true, 50),
	}

	stats := Today(habits, now)
	if stats.TotalCount != 2 {
		t.Fatalf("TotalCount = %d, want 2", stats.TotalCount)
	}
	if stats.CompletedCount != 1 {
		t.Fatalf("CompletedCount = %d, want 1", stats.CompletedCount)
	}
	if stats.PointsEarned != 15 {
		t.Fatalf("PointsEarned = %d, want 15 (incomplete and future habits earn nothing)", stats.PointsEarned)
	}
}

func TestPointsEarnedTodayOnlyCountsCompleted(t *testing.T) {
	now := day(2024, 3, 15)
	habits := []models.Habit{
		testHabit("a", now, true, 10),
		testHabit("b", now, true, 25),
		testHabit("c", now, false, 100),
	}
	if got := PointsEarnedToday(habits, now); got != 35 {
		t.Fatalf("PointsEarnedToday = %d, want 35", got)
	}
}

func TestCurrentStreak(t *testing.T) {
	now := day(2024, 3, 15)

	cases := []struct {
		name   string
		habits []models.Habit
		want   int
	}{
		{"no habits", nil, 0},
		{"only incomplete", []models.Habit{testHabit("a", now, false, 10)}, 0},
		{"single day today", []models.Habit{testHabit("a", now, true, 10)}, 1},
		{
			"three consecutive days",
			[]models.Habit{
				testHabit("a", now, true, 10),
				testHabit("b", now.AddDate(0, 0, -1), true, 10),
				testHabit("c", now.AddDate(0, 0, -2), true, 10),
			},
			3,
		},
		{
			"incomplete today does not break yesterday's streak",
			[]models.Habit{
				testHabit("a", now, false, 10),
				testHabit("b", now.AddDate(0, 0, -1), true, 10),
				testHabit("c", now.AddDate(0, 0, -2), true, 10),
			},
			2,
		},
		{
			"gap resets the count",
			[]models.Habit{
				testHabit("a", now, true, 10),
				testHabit("b", now.AddDate(0, 0, -2), true, 10),
				testHabit("c", now.AddDate(0, 0, -3), true, 10),
			},
			1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CurrentStreak(tc.habits, now); got != tc.want {
				t.Fatalf("CurrentStreak = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestHabitsOnDate(t *testing.T) {
	habits := []models.Habit{
		testHabit("jan1", day(2024, 1, 1), true, 10),
		testHabit("jan8", day(2024, 1, 8), false, 10),
	}

	on1 := HabitsOnDate(habits, day(2024, 1, 1))
	if len(on1) != 1 || on1[0].ID != "jan1" {
		t.Fatalf("2024-01-01 bucket = %v, want only jan1", on1)
	}
	on8 := HabitsOnDate(habits, day(2024, 1, 8))
	if len(on8) != 1 || on8[0].ID != "jan8" {
		t.Fatalf("2024-01-08 bucket = %v, want only jan8", on8)
	}
	if empty := HabitsOnDate(habits, day(2024, 1, 4)); len(empty) != 0 {
		t.Fatalf("empty day returned %v", empty)
	}
}
