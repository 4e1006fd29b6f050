package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"soul_garden/internal/models"
	"soul_garden/internal/streak"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite keeps timestamps as fixed-width UTC text so ORDER BY on the
// column sorts chronologically.
const (
	sqliteTimeLayout = "2006-01-02 15:04:05.000000000"
	sqliteDateLayout = "2006-01-02"
)

// SQLiteStorage is the local, single-file Storage.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dataDir string) (*SQLiteStorage, error) {
	op := "storage.NewSQLiteStorage"

	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("%s: create data dir: %w", op, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "soul_garden.db"))
	if err != nil {
		return nil, fmt.Errorf("%s: open database: %w", op, err)
	}
	// One writer at a time; transactions below rely on it.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: pragma %q: %w", op, p, err)
		}
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id         INTEGER PRIMARY KEY,
			username   TEXT    NOT NULL DEFAULT '',
			streak     INTEGER NOT NULL DEFAULT 0,
			points     INTEGER NOT NULL DEFAULT 0,
			last_log   TEXT,
			created_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f000000', 'now'))
		);

		CREATE TABLE IF NOT EXISTS memories (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL,
			kind       TEXT    NOT NULL DEFAULT 'text',
			mood       TEXT    NOT NULL DEFAULT '',
			text       TEXT    NOT NULL DEFAULT '',
			voice_path TEXT,
			created_at TEXT    NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);

		CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_users_ranking ON users(points DESC, streak DESC, id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("storage.SQLiteStorage.Migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// ─── Users ───────────────────────────────────────────────────────────────────

func (s *SQLiteStorage) EnsureUser(ctx context.Context, id int64, username string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
		username = CASE WHEN excluded.username = '' THEN users.username ELSE excluded.username END`,
		id, username, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("storage.SQLiteStorage.EnsureUser: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, id int64) (models.User, error) {
	op := "storage.SQLiteStorage.GetUser"

	user, err := scanSQLiteUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, streak, points, last_log, created_at FROM users WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("%s: user %d: %w", op, id, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// Leaderboard breaks point ties on the current streak: a streak whose last
// log is older than yesterday counts as zero.
func (s *SQLiteStorage) Leaderboard(ctx context.Context, today time.Time, limit int) ([]models.User, error) {
	yesterday := streak.Day(today).AddDate(0, 0, -1)
	return s.queryUsers(ctx, "storage.SQLiteStorage.Leaderboard", `
		SELECT id, username, streak, points, last_log, created_at FROM users
		ORDER BY points DESC, CASE WHEN last_log >= ? THEN streak ELSE 0 END DESC, id ASC
		LIMIT ?`, yesterday.Format(sqliteDateLayout), clampLimit(limit, 10, 100),
	)
}

func (s *SQLiteStorage) Rank(ctx context.Context, userID int64, today time.Time) (int, error) {
	yesterday := streak.Day(today).AddDate(0, 0, -1)

	var rank int
	err := s.db.QueryRowContext(ctx, `
		WITH board AS (
			SELECT id, points, CASE WHEN last_log >= ? THEN streak ELSE 0 END AS live_streak FROM users
		)
		SELECT COUNT(*) + 1 FROM board u, board me
		WHERE me.id = ?
		  AND (u.points > me.points
		    OR (u.points = me.points AND u.live_streak > me.live_streak)
		    OR (u.points = me.points AND u.live_streak = me.live_streak AND u.id < me.id))`,
		yesterday.Format(sqliteDateLayout), userID,
	).Scan(&rank)
	if err != nil {
		return 0, fmt.Errorf("storage.SQLiteStorage.Rank: %w", err)
	}
	return rank, nil
}

func (s *SQLiteStorage) UsersToRemind(ctx context.Context, today time.Time) ([]models.User, error) {
	yesterday := streak.Day(today).AddDate(0, 0, -1)
	return s.queryUsers(ctx, "storage.SQLiteStorage.UsersToRemind", `
		SELECT id, username, streak, points, last_log, created_at FROM users
		WHERE last_log = ? AND streak > 0
		ORDER BY id`, yesterday.Format(sqliteDateLayout),
	)
}

// ─── Memories ────────────────────────────────────────────────────────────────

func (s *SQLiteStorage) LogMemory(ctx context.Context, m *models.Memory, rules streak.Rules) (models.User, streak.Outcome, error) {
	op := "storage.SQLiteStorage.LogMemory"

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Kind = normalizeKind(m.Kind)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.User{}, streak.Outcome{}, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, created_at) VALUES (?, ?)`,
		m.UserID, formatTime(m.CreatedAt),
	); err != nil {
		return models.User{}, streak.Outcome{}, fmt.Errorf("%s: ensure user: %w", op, err)
	}

	user, err := scanSQLiteUser(tx.QueryRowContext(ctx,
		`SELECT id, username, streak, points, last_log, created_at FROM users WHERE id = ?`, m.UserID,
	))
	if err != nil {
		return models.User{}, streak.Outcome{}, fmt.Errorf("%s: read user: %w", op, err)
	}

	next, outcome := rules.Apply(user.StreakState(), m.CreatedAt)
	user.ApplyState(next)

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET streak = ?, points = ?, last_log = ? WHERE id = ?`,
		user.Streak, user.Points, formatDate(user.LastLog), user.ID,
	); err != nil {
		return models.User{}, streak.Outcome{}, fmt.Errorf("%s: update user: %w", op, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO memories (user_id, kind, mood, text, voice_path, created_at)
		 VALUES (?, ?, ?, ?, NULLIF(?, ''), ?)`,
		m.UserID, m.Kind, m.Mood, m.Text, m.VoicePath, formatTime(m.CreatedAt),
	)
	if err != nil {
		return models.User{}, streak.Outcome{}, fmt.Errorf("%s: insert memory: %w", op, err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return models.User{}, streak.Outcome{}, fmt.Errorf("%s: memory id: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return models.User{}, streak.Outcome{}, fmt.Errorf("%s: commit: %w", op, err)
	}
	return user, outcome, nil
}

func (s *SQLiteStorage) ListMemories(ctx context.Context, userID int64, limit int) ([]models.Memory, error) {
	op := "storage.SQLiteStorage.ListMemories"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, mood, text, ifnull(voice_path, ''), created_at FROM memories
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, clampLimit(limit, 10, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	memories := []models.Memory{}
	for rows.Next() {
		var (
			m         models.Memory
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Kind, &m.Mood, &m.Text, &m.VoicePath, &createdAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return memories, nil
}

func (s *SQLiteStorage) FixVoicePaths(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, nil
	}
	n := len([]rune(prefix))

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET voice_path = substr(voice_path, ?)
		WHERE substr(voice_path, 1, ?) = ?`,
		n+1, n, prefix,
	)
	if err != nil {
		return 0, fmt.Errorf("storage.SQLiteStorage.FixVoicePaths: %w", err)
	}
	return res.RowsAffected()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStorage) queryUsers(ctx context.Context, op, query string, args ...any) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanSQLiteUser(rows)
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

func scanSQLiteUser(row rowScanner) (models.User, error) {
	var (
		user      models.User
		lastLog   sql.NullString
		createdAt string
	)
	if err := row.Scan(&user.ID, &user.Username, &user.Streak, &user.Points, &lastLog, &createdAt); err != nil {
		return models.User{}, err
	}

	if lastLog.Valid && lastLog.String != "" {
		d, err := time.Parse(sqliteDateLayout, lastLog.String)
		if err != nil {
			return models.User{}, fmt.Errorf("parse last_log %q: %w", lastLog.String, err)
		}
		user.LastLog = &d
	}

	var err error
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func formatDate(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.UTC().Format(sqliteDateLayout)
}
