// Package streak holds the points and day-streak accrual rule.
//
// Everything here is pure: storage layers read a State, call Rules.Apply
// with the memory's timestamp and persist the returned State in the same
// transaction.
package streak

import "time"

const (
	DefaultPointsPerMemory = 5
	DefaultBonusEvery      = 7
	DefaultBonusPoints     = 20
)

type Rules struct {
	PointsPerMemory int
	BonusEvery      int
	BonusPoints     int
}

func DefaultRules() Rules {
	return Rules{
		PointsPerMemory: DefaultPointsPerMemory,
		BonusEvery:      DefaultBonusEvery,
		BonusPoints:     DefaultBonusPoints,
	}
}

// State is the per-user accrual state. A nil LastEntry means the user has
// never logged a memory.
type State struct {
	Streak    int
	Points    int
	LastEntry *time.Time
}

type Outcome struct {
	StreakChanged bool `json:"streak_changed"`
	Awarded       int  `json:"awarded"`
	Bonus         int  `json:"bonus"`
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b (UTC).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// Apply accrues one logged memory at now.
//
// Same day (or a clock that went backwards) keeps the streak, the next day
// extends it, anything else restarts it at 1. Points only ever grow.
func (r Rules) Apply(s State, now time.Time) (State, Outcome) {
	today := Day(now)
	next := s
	var out Outcome

	switch {
	case s.LastEntry == nil:
		next.Streak = 1
		out.StreakChanged = true
	default:
		switch gap := DaysBetween(*s.LastEntry, today); {
		case gap <= 0:
		case gap == 1:
			next.Streak = s.Streak + 1
			out.StreakChanged = true
		default:
			next.Streak = 1
			out.StreakChanged = true
		}
	}

	if out.StreakChanged {
		next.LastEntry = &today
		if r.BonusEvery > 0 && r.BonusPoints > 0 && next.Streak%r.BonusEvery == 0 {
			out.Bonus = r.BonusPoints
		}
	}

	if r.PointsPerMemory > 0 {
		out.Awarded = r.PointsPerMemory
	}
	out.Awarded += out.Bonus
	next.Points = s.Points + out.Awarded

	return next, out
}

// Current is the streak as seen on now: it reads 0 once a full day has been
// missed, without touching stored state.
func Current(s State, now time.Time) int {
	if s.LastEntry == nil {
		return 0
	}
	if DaysBetween(*s.LastEntry, now) > 1 {
		return 0
	}
	return s.Streak
}
