package storage

import (
	"context"
	"fmt"
	"soul_garden/internal/models"
)

func (ps *PostgresStorage) ListMemories(ctx context.Context, userID int64, limit int) ([]models.Memory, error) {
	op := "storage.PostgresStorage.ListMemories"

	query := `
	SELECT id, user_id, kind, mood, text, COALESCE(voice_path, ''), created_at FROM memories
	WHERE user_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2
	`

	rows, err := ps.pool.Query(ctx, query, userID, clampLimit(limit, 10, 100))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get memories: %w", op, err)
	}
	defer rows.Close()

	memories := []models.Memory{}
	for rows.Next() {
		memory := models.Memory{}

		err := rows.Scan(
			&memory.ID,
			&memory.UserID,
			&memory.Kind,
			&memory.Mood,
			&memory.Text,
			&memory.VoicePath,
			&memory.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan memory: %w", op, err)
		}

		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return memories, nil
}

func (ps *PostgresStorage) FixVoicePaths(ctx context.Context, prefix string) (int64, error) {
	op := "storage.PostgresStorage.FixVoicePaths"

	if prefix == "" {
		return 0, nil
	}

	query := `
	UPDATE memories
	SET voice_path = substr(voice_path, $1::int + 1)
	WHERE substr(voice_path, 1, $1::int) = $2
	`

	tag, err := ps.pool.Exec(ctx, query, len([]rune(prefix)), prefix)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}
