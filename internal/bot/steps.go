package bot

import (
	"sync"
	"time"
)

const DefaultStepTTL = 10 * time.Minute

type step int

const (
	stepMood step = iota + 1
	stepText
)

// pending is the next answer the bot expects from a chat.
type pending struct {
	step    step
	mood    string
	expires time.Time
}

// Steps tracks unfinished conversations per chat. Entries expire after ttl
// so a forgotten "what's your mood?" does not swallow a message days later.
type Steps struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	byChat map[int64]pending
}

func NewSteps(ttl time.Duration, now func() time.Time) *Steps {
	if ttl <= 0 {
		ttl = DefaultStepTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Steps{ttl: ttl, now: now, byChat: make(map[int64]pending)}
}

func (s *Steps) Set(chatID int64, st step, mood string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byChat[chatID] = pending{step: st, mood: mood, expires: s.now().Add(s.ttl)}
}

func (s *Steps) Get(chatID int64) (pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byChat[chatID]
	if !ok {
		return pending{}, false
	}
	if !s.now().Before(p.expires) {
		delete(s.byChat, chatID)
		return pending{}, false
	}
	return p, true
}

func (s *Steps) Clear(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byChat[chatID]
	delete(s.byChat, chatID)
	return ok
}

// Sweep drops expired entries and reports how many were removed.
func (s *Steps) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, p := range s.byChat {
		if !now.Before(p.expires) {
			delete(s.byChat, id)
			removed++
		}
	}
	return removed
}

func (s *Steps) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byChat)
}
