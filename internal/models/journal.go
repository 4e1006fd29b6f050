package models

import (
	"time"
)

const (
	KindText  = "text"
	KindVoice = "voice"
)

// Memory is a single journal entry planted in a user's garden.
type Memory struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Kind      string    `json:"kind" db:"kind"`
	Mood      string    `json:"mood" db:"mood"`
	Text      string    `json:"text" db:"text"`
	VoicePath string    `json:"voice_path,omitempty" db:"voice_path"`
	VoiceURL  string    `json:"voice_url,omitempty" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (m Memory) IsVoice() bool {
	return m.Kind == KindVoice
}
