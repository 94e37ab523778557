package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const memoryColumns = `m.id, m.content, m.searchable_text, m.category, m.source, m.access_count, m.created_at`

// SaveMemory inserts m and returns it with ID and CreatedAt filled in.
// An empty SearchableText defaults to Content and an empty Category to
// "general".
func (s *Store) SaveMemory(ctx context.Context, m Memory) (Memory, error) {
	if strings.TrimSpace(m.Content) == "" {
		return Memory{}, fmt.Errorf("saving memory: content is empty")
	}
	if m.SearchableText == "" {
		m.SearchableText = m.Content
	}
	if m.Category == "" {
		m.Category = "general"
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.AccessCount = 0

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (content, searchable_text, category, source, access_count, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		m.Content, m.SearchableText, m.Category, m.Source, formatTime(m.CreatedAt),
	)
	if err != nil {
		return Memory{}, fmt.Errorf("saving memory: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return Memory{}, fmt.Errorf("reading memory id: %w", err)
	}
	return m, nil
}

// GetMemory returns one memory by id.
func (s *Store) GetMemory(ctx context.Context, id int64) (Memory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories m WHERE m.id = ?`, id)
	if err != nil {
		return Memory{}, err
	}
	defer rows.Close()
	ms, err := scanMemories(rows)
	if err != nil {
		return Memory{}, err
	}
	if len(ms) == 0 {
		return Memory{}, ErrNotFound
	}
	return ms[0], nil
}

// SearchMemories ranks memories against query with FTS5 bm25 over the
// unstemmed searchable text. When the ranked query matches nothing, it
// falls back to a case-insensitive substring scan ordered by recency, so
// short or punctuation-only queries still find literal matches.
func (s *Store) SearchMemories(ctx context.Context, query string, limit int) ([]Memory, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	if match := ftsQuery(query); match != "" {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+memoryColumns+`
			FROM memories m
			JOIN memories_fts f ON m.id = f.rowid
			WHERE memories_fts MATCH ?
			ORDER BY bm25(memories_fts), m.created_at DESC
			LIMIT ?`, match, limit)
		if err != nil {
			return nil, fmt.Errorf("ranked memory search: %w", err)
		}
		ms, err := scanMemories(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		if len(ms) > 0 {
			return ms, nil
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+`
		FROM memories m
		WHERE `+foldFunc+`(m.searchable_text) LIKE ? ESCAPE '\'
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?`, "%"+escapeLike(strings.ToLower(query))+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("substring memory search: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// IncrementAccess bumps access_count by one for each id.
func (s *Store) IncrementAccess(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat(",?", len(ids)-1)
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1 WHERE id IN (?`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("incrementing access counts: %w", err)
	}
	return nil
}

// CountMemories returns the number of stored memories.
func (s *Store) CountMemories(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

// TopAccessedMemories returns the most surfaced memories first.
func (s *Store) TopAccessedMemories(ctx context.Context, limit int) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories m
		ORDER BY m.access_count DESC, m.created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

// MemoriesByCategory returns the newest memories in category.
func (s *Store) MemoriesByCategory(ctx context.Context, category string, limit int) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories m
		WHERE m.category = ?
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?`, category, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var out []Memory
	for rows.Next() {
		var m Memory
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Content, &m.SearchableText, &m.Category, &m.Source, &m.AccessCount, &createdAt); err != nil {
			return nil, err
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for memory %d: %w", m.ID, err)
		}
		m.CreatedAt = t
		out = append(out, m)
	}
	return out, rows.Err()
}

// ftsQuery turns free text into an FTS5 expression: every letter/digit run
// becomes a quoted term and terms are OR-ed so bm25 rewards overlap without
// requiring all of them.
func ftsQuery(q string) string {
	terms := strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
