package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedPersonality inserts traits that do not exist yet. Existing values
// are left alone.
func (s *Store) SeedPersonality(ctx context.Context, traits map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	for k, v := range traits {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO personality (trait, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(trait) DO NOTHING`,
			k, v, now); err != nil {
			return fmt.Errorf("seeding trait %s: %w", k, err)
		}
	}
	return tx.Commit()
}

func (s *Store) SetPersonalityTrait(ctx context.Context, trait, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO personality (trait, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(trait) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		trait, value, formatTime(time.Now()),
	)
	return err
}

func (s *Store) GetPersonalityTrait(ctx context.Context, trait string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM personality WHERE trait = ?", trait).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

func (s *Store) GetAllPersonalityTraits(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT trait, value FROM personality")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}
