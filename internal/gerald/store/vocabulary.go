package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LoadVocabulary returns every stored word with its frequency. found is
// false when nothing has ever been saved.
func (s *Store) LoadVocabulary(ctx context.Context) (freq map[string]int, lastUpdated time.Time, found bool, err error) {
	var raw sql.NullString
	err = s.db.QueryRowContext(ctx, "SELECT last_updated FROM vocabulary_meta WHERE id = 1").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	if raw.Valid && raw.String != "" {
		lastUpdated, err = time.Parse(time.RFC3339Nano, raw.String)
		if err != nil {
			return nil, time.Time{}, false, fmt.Errorf("parse last_updated: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT word, frequency FROM vocabulary ORDER BY word")
	if err != nil {
		return nil, time.Time{}, false, err
	}
	defer rows.Close()

	freq = make(map[string]int)
	for rows.Next() {
		var w string
		var n int
		if err := rows.Scan(&w, &n); err != nil {
			return nil, time.Time{}, false, err
		}
		freq[w] = n
	}
	return freq, lastUpdated, true, rows.Err()
}

// ReplaceVocabulary overwrites the vocabulary table in one transaction.
// Counts below 1 are stored as 1.
func (s *Store) ReplaceVocabulary(ctx context.Context, freq map[string]int, lastUpdated time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vocabulary tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM vocabulary"); err != nil {
		return fmt.Errorf("clear vocabulary: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO vocabulary (word, frequency) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for w, n := range freq {
		if w == "" {
			continue
		}
		if n < 1 {
			n = 1
		}
		if _, err := stmt.ExecContext(ctx, w, n); err != nil {
			return fmt.Errorf("insert %q: %w", w, err)
		}
	}

	var updated interface{}
	if !lastUpdated.IsZero() {
		updated = formatTime(lastUpdated)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO vocabulary_meta (id, last_updated) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_updated = excluded.last_updated
	`, updated); err != nil {
		return fmt.Errorf("update vocabulary_meta: %w", err)
	}
	return tx.Commit()
}
