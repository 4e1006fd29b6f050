package storage

import (
	"context"
	"errors"
	"fmt"
	"soul_garden/internal/models"
	"soul_garden/internal/streak"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrNotFound = errors.New("not found")

// Storage persists gardeners and their memories.
type Storage interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error

	EnsureUser(ctx context.Context, id int64, username string) error
	GetUser(ctx context.Context, id int64) (models.User, error)

	// LogMemory inserts the memory and applies the accrual rules to its
	// owner atomically, using m.CreatedAt as "today".
	LogMemory(ctx context.Context, m *models.Memory, rules streak.Rules) (models.User, streak.Outcome, error)
	ListMemories(ctx context.Context, userID int64, limit int) ([]models.Memory, error)

	// Leaderboard returns users ordered by points, then the streak as of
	// today (zero once a day was missed), then id. Rank uses the same order.
	Leaderboard(ctx context.Context, today time.Time, limit int) ([]models.User, error)
	Rank(ctx context.Context, userID int64, today time.Time) (int, error)

	// UsersToRemind returns users whose streak ends today unless they log.
	UsersToRemind(ctx context.Context, today time.Time) ([]models.User, error)

	// FixVoicePaths strips a legacy prefix from stored voice paths.
	FixVoicePaths(ctx context.Context, prefix string) (int64, error)

	Close() error
}

// Open picks the backend by driver name. For sqlite the dsn is the data dir.
func Open(ctx context.Context, driver, dsn string) (Storage, error) {
	op := "storage.Open"

	var (
		s   Storage
		err error
	)

	switch driver {
	case DriverPostgres:
		s, err = NewPostgresStorage(ctx, dsn)
	case DriverSQLite, "":
		s, err = NewSQLiteStorage(dsn)
	default:
		return nil, fmt.Errorf("%s: unknown driver %q", op, driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%s: migrate: %w", op, err)
	}

	return s, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func normalizeKind(kind string) string {
	if kind == models.KindVoice {
		return models.KindVoice
	}
	return models.KindText
}
