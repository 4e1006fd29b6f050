package models

import "soul_garden/internal/streak"

type LeaderboardEntry struct {
	Position int    `json:"position"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Points   int    `json:"points"`
	Streak   int    `json:"streak"`
}

// Dashboard is everything the garden page renders for one user.
type Dashboard struct {
	User     User     `json:"user"`
	Rank     int      `json:"rank"`
	Memories []Memory `json:"memories"`
}

// LogResult is returned after a memory has been planted.
type LogResult struct {
	Memory  Memory         `json:"memory"`
	User    User           `json:"user"`
	Outcome streak.Outcome `json:"outcome"`
}

// Insight is an AI reading of a user's recent memories.
type Insight struct {
	Answer string `json:"answer"`
	Mood   string `json:"mood,omitempty"`
	Tip    string `json:"tip,omitempty"`
}
