package usecases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"soul_garden/internal/ai"
	"soul_garden/internal/models"
	"soul_garden/internal/storage"
	"soul_garden/internal/streak"
	"soul_garden/internal/voice"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxMemoryLength = 2000
	MaxMoodLength   = 32
	VoiceMood       = "🎧"

	dashboardMemories = 50
	insightMemories   = 10
	broadcastTop      = 10
)

var (
	ErrEmptyMemory     = errors.New("memory text is empty")
	ErrInsightDisabled = errors.New("insights are not configured")
	ErrNoMemories      = errors.New("no memories planted yet")
)

// Broadcaster receives leaderboard updates after every planted memory.
type Broadcaster interface {
	Broadcast(payload any)
}

// Garden is the application layer the bot, the HTTP handlers and the CLI
// share.
type Garden struct {
	store  storage.Storage
	voices voice.Store
	rules  streak.Rules
	hub    Broadcaster
	ai     ai.Generator
	now    func() time.Time
}

type Option func(*Garden)

func WithBroadcaster(b Broadcaster) Option {
	return func(g *Garden) { g.hub = b }
}

func WithGenerator(gen ai.Generator) Option {
	return func(g *Garden) { g.ai = gen }
}

func WithClock(now func() time.Time) Option {
	return func(g *Garden) { g.now = now }
}

func NewGarden(store storage.Storage, voices voice.Store, rules streak.Rules, opts ...Option) *Garden {
	g := &Garden{
		store:  store,
		voices: voices,
		rules:  rules,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Garden) Now() time.Time {
	return g.now().UTC()
}

func (g *Garden) InsightsEnabled() bool {
	return g.ai != nil
}

func (g *Garden) Register(ctx context.Context, id int64, username string) (models.User, error) {
	op := "usecases.Register"

	if err := g.EnsureUser(ctx, id, username); err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
	user, err := g.store.GetUser(ctx, id)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return g.display(user), nil
}

// EnsureUser records the user (and a fresh display name) without planting.
func (g *Garden) EnsureUser(ctx context.Context, id int64, username string) error {
	if err := g.store.EnsureUser(ctx, id, strings.TrimSpace(username)); err != nil {
		return fmt.Errorf("usecases.EnsureUser: %w", err)
	}
	return nil
}

func (g *Garden) LogText(ctx context.Context, userID int64, mood, text string) (models.LogResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.LogResult{}, ErrEmptyMemory
	}

	return g.plant(ctx, models.Memory{
		UserID: userID,
		Kind:   models.KindText,
		Mood:   cleanMood(mood),
		Text:   truncate(text, MaxMemoryLength),
	})
}

// LogVoice stores the clip first; a failed upload plants nothing and a
// failed plant removes the clip again.
func (g *Garden) LogVoice(ctx context.Context, userID int64, mood string, r io.Reader, contentType string) (models.LogResult, error) {
	op := "usecases.LogVoice"

	if g.voices == nil {
		return models.LogResult{}, fmt.Errorf("%s: no voice store configured", op)
	}

	key := voice.NewKey(userID, voice.ExtensionFor(contentType))
	stored, err := g.voices.Save(ctx, key, r, contentType)
	if err != nil {
		return models.LogResult{}, fmt.Errorf("%s: %w", op, err)
	}

	mood = cleanMood(mood)
	if mood == "" {
		mood = VoiceMood
	}

	res, err := g.plant(ctx, models.Memory{
		UserID:    userID,
		Kind:      models.KindVoice,
		Mood:      mood,
		VoicePath: stored,
	})
	if err != nil {
		if derr := g.voices.Delete(context.WithoutCancel(ctx), stored); derr != nil {
			log.Printf("%s: remove orphaned clip %s: %v", op, stored, derr)
		}
		return models.LogResult{}, err
	}
	return res, nil
}

func (g *Garden) plant(ctx context.Context, m models.Memory) (models.LogResult, error) {
	op := "usecases.plant"

	m.CreatedAt = g.Now()
	user, outcome, err := g.store.LogMemory(ctx, &m, g.rules)
	if err != nil {
		return models.LogResult{}, fmt.Errorf("%s: %w", op, err)
	}
	m.VoiceURL = g.voiceURL(m.VoicePath)

	g.broadcastLeaderboard(ctx)

	return models.LogResult{Memory: m, User: user, Outcome: outcome}, nil
}

func (g *Garden) broadcastLeaderboard(ctx context.Context) {
	if g.hub == nil {
		return
	}
	entries, err := g.Leaderboard(ctx, broadcastTop)
	if err != nil {
		log.Printf("usecases.broadcastLeaderboard: %v", err)
		return
	}
	g.hub.Broadcast(map[string]any{
		"kind":        "leaderboard.updated",
		"leaderboard": entries,
	})
}

// Stats returns the user with the streak as it reads today, and their rank.
func (g *Garden) Stats(ctx context.Context, userID int64) (models.User, int, error) {
	op := "usecases.Stats"

	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, 0, fmt.Errorf("%s: %w", op, err)
	}
	rank, err := g.store.Rank(ctx, userID, g.Now())
	if err != nil {
		return models.User{}, 0, fmt.Errorf("%s: %w", op, err)
	}
	return g.display(user), rank, nil
}

func (g *Garden) Recent(ctx context.Context, userID int64, limit int) ([]models.Memory, error) {
	memories, err := g.store.ListMemories(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("usecases.Recent: %w", err)
	}
	for i := range memories {
		memories[i].VoiceURL = g.voiceURL(memories[i].VoicePath)
	}
	return memories, nil
}

func (g *Garden) Dashboard(ctx context.Context, userID int64) (models.Dashboard, error) {
	user, rank, err := g.Stats(ctx, userID)
	if err != nil {
		return models.Dashboard{}, err
	}
	memories, err := g.Recent(ctx, userID, dashboardMemories)
	if err != nil {
		return models.Dashboard{}, err
	}
	return models.Dashboard{User: user, Rank: rank, Memories: memories}, nil
}

func (g *Garden) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	users, err := g.store.Leaderboard(ctx, g.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("usecases.Leaderboard: %w", err)
	}

	entries := make([]models.LeaderboardEntry, 0, len(users))
	for i, u := range users {
		u = g.display(u)
		entries = append(entries, models.LeaderboardEntry{
			Position: i + 1,
			UserID:   u.ID,
			Username: u.DisplayName(),
			Points:   u.Points,
			Streak:   u.Streak,
		})
	}
	return entries, nil
}

func (g *Garden) Insight(ctx context.Context, userID int64) (models.Insight, error) {
	op := "usecases.Insight"

	if g.ai == nil {
		return models.Insight{}, ErrInsightDisabled
	}

	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return models.Insight{}, fmt.Errorf("%s: %w", op, err)
	}
	memories, err := g.store.ListMemories(ctx, userID, insightMemories)
	if err != nil {
		return models.Insight{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(memories) == 0 {
		return models.Insight{}, ErrNoMemories
	}

	reply, err := g.ai.Generate(ctx, BuildInsightPrompt(user.DisplayName(), memories))
	if err != nil {
		return models.Insight{}, fmt.Errorf("%s: ai: %w", op, err)
	}
	return ParseInsight(reply), nil
}

func (g *Garden) FixVoicePaths(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		prefix = voice.LegacyPrefix
	}
	n, err := g.store.FixVoicePaths(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("usecases.FixVoicePaths: %w", err)
	}
	return n, nil
}

func (g *Garden) UsersToRemind(ctx context.Context) ([]models.User, error) {
	return g.store.UsersToRemind(ctx, g.Now())
}

func (g *Garden) display(u models.User) models.User {
	u.Streak = streak.Current(u.StreakState(), g.Now())
	return u
}

func (g *Garden) voiceURL(path string) string {
	if path == "" || g.voices == nil {
		return ""
	}
	return g.voices.URL(path)
}

func cleanMood(mood string) string {
	return truncate(strings.TrimSpace(mood), MaxMoodLength)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "…"
}
