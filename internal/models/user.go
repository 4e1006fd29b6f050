package models

import (
	"soul_garden/internal/streak"
	"strconv"
	"time"
)

// User is keyed by the Telegram user id.
type User struct {
	ID        int64      `json:"id" db:"id"`
	Username  string     `json:"username" db:"username"`
	Streak    int        `json:"streak" db:"streak"`
	Points    int        `json:"points" db:"points"`
	LastLog   *time.Time `json:"last_log,omitempty" db:"last_log"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

func (u User) StreakState() streak.State {
	return streak.State{Streak: u.Streak, Points: u.Points, LastEntry: u.LastLog}
}

func (u *User) ApplyState(s streak.State) {
	u.Streak = s.Streak
	u.Points = s.Points
	u.LastLog = s.LastEntry
}

// DisplayName falls back to the numeric id for users without a first name.
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return "gardener " + strconv.FormatInt(u.ID, 10)
}
