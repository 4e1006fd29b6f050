package streak

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestApply(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		name        string
		state       State
		now         time.Time
		wantStreak  int
		wantPoints  int
		wantChanged bool
		wantBonus   int
	}{
		{
			name:        "first memory ever",
			state:       State{},
			now:         day("2024-03-10 09:00"),
			wantStreak:  1,
			wantPoints:  5,
			wantChanged: true,
		},
		{
			name:       "second memory same day",
			state:      State{Streak: 3, Points: 40, LastEntry: ptr(day("2024-03-10 00:00"))},
			now:        day("2024-03-10 23:59"),
			wantStreak: 3,
			wantPoints: 45,
		},
		{
			name:        "next day extends",
			state:       State{Streak: 3, Points: 40, LastEntry: ptr(day("2024-03-10 00:00"))},
			now:         day("2024-03-11 00:01"),
			wantStreak:  4,
			wantPoints:  45,
			wantChanged: true,
		},
		{
			name:        "missed a day resets",
			state:       State{Streak: 12, Points: 300, LastEntry: ptr(day("2024-03-10 00:00"))},
			now:         day("2024-03-12 08:00"),
			wantStreak:  1,
			wantPoints:  305,
			wantChanged: true,
		},
		{
			name:        "seventh day earns bonus",
			state:       State{Streak: 6, Points: 30, LastEntry: ptr(day("2024-03-10 00:00"))},
			now:         day("2024-03-11 12:00"),
			wantStreak:  7,
			wantPoints:  55,
			wantChanged: true,
			wantBonus:   20,
		},
		{
			name:       "bonus not repeated on the same day",
			state:      State{Streak: 7, Points: 55, LastEntry: ptr(day("2024-03-11 00:00"))},
			now:        day("2024-03-11 18:00"),
			wantStreak: 7,
			wantPoints: 60,
		},
		{
			name:       "clock going backwards keeps the streak",
			state:      State{Streak: 4, Points: 20, LastEntry: ptr(day("2024-03-11 00:00"))},
			now:        day("2024-03-09 10:00"),
			wantStreak: 4,
			wantPoints: 25,
		},
		{
			name:        "month boundary",
			state:       State{Streak: 2, Points: 10, LastEntry: ptr(day("2024-02-29 00:00"))},
			now:         day("2024-03-01 07:00"),
			wantStreak:  3,
			wantPoints:  15,
			wantChanged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, out := rules.Apply(tt.state, tt.now)
			if got.Streak != tt.wantStreak {
				t.Fatalf("streak: got %d want %d", got.Streak, tt.wantStreak)
			}
			if got.Points != tt.wantPoints {
				t.Fatalf("points: got %d want %d", got.Points, tt.wantPoints)
			}
			if out.StreakChanged != tt.wantChanged {
				t.Fatalf("streak changed: got %v want %v", out.StreakChanged, tt.wantChanged)
			}
			if out.Bonus != tt.wantBonus {
				t.Fatalf("bonus: got %d want %d", out.Bonus, tt.wantBonus)
			}
			if got.Points < tt.state.Points {
				t.Fatalf("points decreased: %d -> %d", tt.state.Points, got.Points)
			}
		})
	}
}

func TestApplySameDayIsIdempotentForStreak(t *testing.T) {
	rules := DefaultRules()
	s := State{}
	now := day("2024-05-01 08:00")

	for i := 0; i < 5; i++ {
		s, _ = rules.Apply(s, now.Add(time.Duration(i)*time.Hour))
	}

	if s.Streak != 1 {
		t.Fatalf("expected streak 1 after five same-day logs, got %d", s.Streak)
	}
	if s.Points != 25 {
		t.Fatalf("expected 25 points, got %d", s.Points)
	}
	if !s.LastEntry.Equal(Day(now)) {
		t.Fatalf("expected last entry %v, got %v", Day(now), *s.LastEntry)
	}
}

func TestApplyUsesUTCDates(t *testing.T) {
	rules := DefaultRules()
	tokyo := time.FixedZone("JST", 9*60*60)

	// 2024-05-02 01:00 in Tokyo is still 2024-05-01 in UTC.
	s := State{Streak: 2, Points: 10, LastEntry: ptr(day("2024-05-01 00:00"))}
	got, out := rules.Apply(s, time.Date(2024, 5, 2, 1, 0, 0, 0, tokyo))
	if out.StreakChanged || got.Streak != 2 {
		t.Fatalf("expected same UTC day, got streak %d changed=%v", got.Streak, out.StreakChanged)
	}
}

func TestApplyWithoutBonus(t *testing.T) {
	rules := Rules{PointsPerMemory: 10}
	s := State{Streak: 6, LastEntry: ptr(day("2024-01-01 00:00"))}
	got, out := rules.Apply(s, day("2024-01-02 00:00"))
	if out.Bonus != 0 || got.Points != 10 {
		t.Fatalf("expected no bonus, got bonus=%d points=%d", out.Bonus, got.Points)
	}
}

func TestCurrent(t *testing.T) {
	s := State{Streak: 5, LastEntry: ptr(day("2024-01-10 00:00"))}

	if got := Current(s, day("2024-01-10 22:00")); got != 5 {
		t.Fatalf("same day: got %d", got)
	}
	if got := Current(s, day("2024-01-11 22:00")); got != 5 {
		t.Fatalf("next day: got %d", got)
	}
	if got := Current(s, day("2024-01-12 00:00")); got != 0 {
		t.Fatalf("broken streak: got %d", got)
	}
	if got := Current(State{}, day("2024-01-12 00:00")); got != 0 {
		t.Fatalf("no entries: got %d", got)
	}
}
