// Package reminder nudges users whose streak would break at midnight UTC.
package reminder

import (
	"context"
	"fmt"
	"log"
	"soul_garden/internal/models"
	"soul_garden/internal/streak"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 8

// Source lists the users to nudge today.
type Source interface {
	UsersToRemind(ctx context.Context) ([]models.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, u models.User) error
}

type Scheduler struct {
	src         Source
	notifier    Notifier
	hour        int
	concurrency int
	now         func() time.Time

	mu      sync.Mutex
	lastDay time.Time
}

func New(src Source, notifier Notifier, hour int, now func() time.Time) *Scheduler {
	if hour < 0 || hour > 23 {
		hour = 20
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		src:         src,
		notifier:    notifier,
		hour:        hour,
		concurrency: DefaultConcurrency,
		now:         now,
	}
}

// Run checks once a minute until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("reminder: started, daily at %02d:00 UTC", s.hour)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		s.Tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick sends the day's reminders the first time it is called at or after the
// reminder hour. Later calls on the same UTC day do nothing.
func (s *Scheduler) Tick(ctx context.Context) (sent int, ran bool) {
	op := "reminder.Tick"

	now := s.now().UTC()
	today := streak.Day(now)
	if now.Hour() < s.hour {
		return 0, false
	}

	s.mu.Lock()
	if !s.lastDay.IsZero() && !today.After(s.lastDay) {
		s.mu.Unlock()
		return 0, false
	}
	s.lastDay = today
	s.mu.Unlock()

	sent, failed, err := s.RunOnce(ctx)
	if err != nil {
		// Retry on the next tick.
		s.mu.Lock()
		s.lastDay = time.Time{}
		s.mu.Unlock()
		log.Printf("%s: %v", op, err)
		return 0, false
	}
	log.Printf("%s: sent %d reminders, %d failed", op, sent, failed)
	return sent, true
}

// RunOnce notifies every user at risk right now regardless of the hour.
// Individual failures are logged and counted; only a failed lookup is an
// error.
func (s *Scheduler) RunOnce(ctx context.Context) (sent, failed int, err error) {
	op := "reminder.RunOnce"

	users, err := s.src.UsersToRemind(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}

	var ok, bad atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, u := range users {
		g.Go(func() error {
			if ctx.Err() != nil {
				bad.Add(1)
				return nil
			}
			if err := s.notifier.Notify(ctx, u); err != nil {
				bad.Add(1)
				log.Printf("%s: notify %d: %v", op, u.ID, err)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(ok.Load()), int(bad.Load()), nil
}
