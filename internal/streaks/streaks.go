// Package streaks scores logging consistency: consecutive-day streaks,
// points, levels, and medication adherence.
package streaks

import (
	"time"

	"github.com/glucolog/glucolog/internal/entries"
)

const (
	pointsPerDay = 10

	// streakBonus is added once for every full week of an unbroken streak.
	streakBonus = 25

	dayFormat = "2006-01-02"
)

// levelThresholds maps cumulative points to levels. Level 1 starts at 0.
var levelThresholds = []int{0, 100, 300, 700, 1500, 3000}

// State is the gamification snapshot returned by the API.
type State struct {
	CurrentStreak int     `json:"current_streak"`
	LongestStreak int     `json:"longest_streak"`
	Points        int     `json:"points"`
	Level         int     `json:"level"`
	NextLevelAt   int     `json:"next_level_at"`
	ActiveDays    int     `json:"active_days"`
	Adherence     float64 `json:"medication_adherence"`
}

// Compute derives the gamification state from the set of active days
// (YYYY-MM-DD keys, as produced by the entries store) relative to today.
// A streak counts as current if the latest active day is today or yesterday.
func Compute(days map[string]int, today time.Time) State {
	state := State{ActiveDays: len(days)}

	current, longest := streakLengths(days, today)
	state.CurrentStreak = current
	state.LongestStreak = longest

	state.Points = len(days)*pointsPerDay + (longest/7)*streakBonus
	state.Level, state.NextLevelAt = levelFor(state.Points)
	return state
}

func streakLengths(days map[string]int, today time.Time) (current, longest int) {
	if len(days) == 0 {
		return 0, 0
	}

	day := today
	if days[day.Format(dayFormat)] == 0 {
		// No entry yet today; a streak ending yesterday still counts.
		day = day.AddDate(0, 0, -1)
	}
	for days[day.Format(dayFormat)] > 0 {
		current++
		day = day.AddDate(0, 0, -1)
	}

	// Longest streak scans every run in the window.
	seen := make(map[string]bool, len(days))
	for d := range days {
		seen[d] = true
	}
	for d := range seen {
		t, err := time.ParseInLocation(dayFormat, d, today.Location())
		if err != nil {
			continue
		}
		if seen[t.AddDate(0, 0, -1).Format(dayFormat)] {
			continue // not the start of a run
		}
		run := 0
		for seen[t.Format(dayFormat)] {
			run++
			t = t.AddDate(0, 0, 1)
		}
		if run > longest {
			longest = run
		}
	}
	return current, longest
}

func levelFor(points int) (level, nextAt int) {
	level = 1
	for i, threshold := range levelThresholds {
		if points >= threshold {
			level = i + 1
		}
	}
	if level < len(levelThresholds) {
		return level, levelThresholds[level]
	}
	return level, 0
}

// Adherence computes the taken rate over medication entries that reached a
// terminal or scheduled state. Entries still scheduled count against the
// rate only once marked missed by the reminder sweep.
func Adherence(meds []entries.Entry) float64 {
	taken, total := 0, 0
	for _, m := range meds {
		switch m.Status {
		case entries.StatusTaken:
			taken++
			total++
		case entries.StatusMissed, entries.StatusSkipped:
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(taken) / float64(total) * 100
}
