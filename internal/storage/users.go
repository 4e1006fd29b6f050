package storage

import (
	"context"
	"errors"
	"fmt"
	"soul_garden/internal/models"
	"soul_garden/internal/streak"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage is the pgx backed Storage.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	op := "storage.NewPostgresStorage"

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to connect to db: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: unable to ping db: %w", op, err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func NewPostgresStorageFromPool(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

func (ps *PostgresStorage) Migrate(ctx context.Context) error {
	op := "storage.PostgresStorage.Migrate"

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id         BIGINT PRIMARY KEY,
		username   TEXT        NOT NULL DEFAULT '',
		streak     INTEGER     NOT NULL DEFAULT 0,
		points     INTEGER     NOT NULL DEFAULT 0,
		last_log   DATE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS memories (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT      NOT NULL REFERENCES users(id),
		kind       TEXT        NOT NULL DEFAULT 'text',
		mood       TEXT        NOT NULL DEFAULT '',
		text       TEXT        NOT NULL DEFAULT '',
		voice_path TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories (user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_users_ranking ON users (points DESC, streak DESC, id);
	`

	if _, err := ps.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

func (ps *PostgresStorage) EnsureUser(ctx context.Context, id int64, username string) error {
	op := "storage.PostgresStorage.EnsureUser"

	query := `
	INSERT INTO users (id, username) VALUES ($1, $2)
	ON CONFLICT (id) DO UPDATE SET
	username = CASE WHEN EXCLUDED.username = '' THEN users.username ELSE EXCLUDED.username END
	`

	if _, err := ps.pool.Exec(ctx, query, id, username); err != nil {
		return fmt.Errorf("%s: failed to save user %d: %w", op, id, err)
	}
	return nil
}

func (ps *PostgresStorage) GetUser(ctx context.Context, id int64) (models.User, error) {
	op := "storage.PostgresStorage.GetUser"

	query := `
	SELECT id, username, streak, points, last_log, created_at FROM users
	WHERE id = $1
	`

	user, err := scanUser(ps.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, fmt.Errorf("%s: user %d: %w", op, id, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (ps *PostgresStorage) Leaderboard(ctx context.Context, today time.Time, limit int) ([]models.User, error) {
	op := "storage.PostgresStorage.Leaderboard"

	query := `
	SELECT id, username, streak, points, last_log, created_at FROM users
	ORDER BY points DESC, CASE WHEN last_log >= $1::date THEN streak ELSE 0 END DESC, id ASC
	LIMIT $2
	`

	yesterday := streak.Day(today).AddDate(0, 0, -1)
	rows, err := ps.pool.Query(ctx, query, yesterday, clampLimit(limit, 10, 100))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	return collectUsers(op, rows)
}

func (ps *PostgresStorage) Rank(ctx context.Context, userID int64, today time.Time) (int, error) {
	op := "storage.PostgresStorage.Rank"

	query := `
	WITH board AS (
		SELECT id, points, CASE WHEN last_log >= $2::date THEN streak ELSE 0 END AS live_streak FROM users
	)
	SELECT COUNT(*) + 1 FROM board u, board me
	WHERE me.id = $1
	  AND (u.points > me.points
	    OR (u.points = me.points AND u.live_streak > me.live_streak)
	    OR (u.points = me.points AND u.live_streak = me.live_streak AND u.id < me.id))
	`

	yesterday := streak.Day(today).AddDate(0, 0, -1)
	var rank int
	if err := ps.pool.QueryRow(ctx, query, userID, yesterday).Scan(&rank); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return rank, nil
}

func (ps *PostgresStorage) UsersToRemind(ctx context.Context, today time.Time) ([]models.User, error) {
	op := "storage.PostgresStorage.UsersToRemind"

	query := `
	SELECT id, username, streak, points, last_log, created_at FROM users
	WHERE last_log = $1 AND streak > 0
	ORDER BY id
	`

	yesterday := streak.Day(today).AddDate(0, 0, -1)
	rows, err := ps.pool.Query(ctx, query, yesterday)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	return collectUsers(op, rows)
}

// LogMemory locks the user row so concurrent logs for one user serialise.
func (ps *PostgresStorage) LogMemory(ctx context.Context, m *models.Memory, rules streak.Rules) (models.User, streak.Outcome, error) {
	op := "storage.PostgresStorage.LogMemory"

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Kind = normalizeKind(m.Kind)

	tx, err := ps.pool.Begin(ctx)
	if err != nil {
		return models.User{}, streak.Outcome{}, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, m.UserID); err != nil {
		return models.User{}, streak.Outcome{}, fmt.Errorf("%s: ensure user: %w", op, err)
	}

	user, err := scanUser(tx.QueryRow(ctx, `
	SELECT id, username, streak, points, last_log, created_at FROM users
	WHERE id = $1 FOR UPDATE
	`, m.UserID))
	if err != nil {
		return models.User{}, streak.Outcome{}, fmt.Errorf("%s: lock user: %w", op, err)
	}

	next, outcome := rules.Apply(user.StreakState(), m.CreatedAt)
	user.ApplyState(next)

	if _, err := tx.Exec(ctx, `
	UPDATE users SET streak = $2, points = $3, last_log = $4
	WHERE id = $1
	`, user.ID, user.Streak, user.Points, user.LastLog); err != nil {
		return models.User{}, streak.Outcome{}, fmt.Errorf("%s: update user: %w", op, err)
	}

	if err := tx.QueryRow(ctx, `
	INSERT INTO memories (user_id, kind, mood, text, voice_path, created_at)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	RETURNING id
	`, m.UserID, m.Kind, m.Mood, m.Text, m.VoicePath, m.CreatedAt).Scan(&m.ID); err != nil {
		return models.User{}, streak.Outcome{}, fmt.Errorf("%s: insert memory: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.User{}, streak.Outcome{}, fmt.Errorf("%s: commit: %w", op, err)
	}

	return user, outcome, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Streak,
		&user.Points,
		&user.LastLog,
		&user.CreatedAt,
	)
	return user, err
}

func collectUsers(op string, rows pgx.Rows) ([]models.User, error) {
	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}
