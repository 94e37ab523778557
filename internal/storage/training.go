package storage

import (
	"context"
	"fmt"
	"time"
)

func (s *Store) SaveTrainingEntry(ctx context.Context, e TrainingEntry) error {
	if e.ContextJSON == "" {
		e.ContextJSON = "{}"
	}
	if e.MetadataJSON == "" {
		e.MetadataJSON = "{}"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO training_data (id, type, input, context, output, quality_score, source, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.Input, e.ContextJSON, e.Output, e.QualityScore, e.Source, e.MetadataJSON, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving training entry: %w", err)
	}
	return nil
}

// ListTrainingEntries returns the newest entries first.
func (s *Store) ListTrainingEntries(ctx context.Context, limit int) ([]TrainingEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, input, context, output, quality_score, source, metadata, created_at
		FROM training_data ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrainingEntry
	for rows.Next() {
		var e TrainingEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Type, &e.Input, &e.ContextJSON, &e.Output, &e.QualityScore, &e.Source, &e.MetadataJSON, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for training entry %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteLowQualityOlderThan removes entries created before cutoff whose
// score is below threshold. It returns the number of rows removed.
func (s *Store) DeleteLowQualityOlderThan(ctx context.Context, cutoff time.Time, threshold float64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM training_data WHERE created_at < ? AND quality_score < ?`,
		formatTime(cutoff), threshold)
	if err != nil {
		return 0, fmt.Errorf("deleting training entries: %w", err)
	}
	return res.RowsAffected()
}
