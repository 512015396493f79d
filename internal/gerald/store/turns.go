package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bdobrica/gerald/common/trace"
)

// Turn is one row of turn_log: an inbound message and what the bot did
// with it.
type Turn struct {
	ID         string
	TraceID    string
	ChannelID  string
	SenderID   string
	Message    string
	Decision   string
	Reason     string
	Source     string
	Response   string
	Attempts   int
	Rejections int
	DurationMS int64
	ErrorMsg   string
	CreatedAt  time.Time
	FinishedAt time.Time
}

// LogTurn inserts a new turn and returns its ULID.
func (s *Store) LogTurn(ctx context.Context, traceID, channelID, senderID, message, decision, reason string) (string, error) {
	now := s.now()
	id := trace.NewULID(now).String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turn_log (id, trace_id, channel_id, sender_id, message, decision, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, traceID, channelID, senderID, message, decision, reason, formatTime(now),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishTurn records the outcome of a turn the bot answered.
func (s *Store) FinishTurn(ctx context.Context, id, source, response string, attempts, rejections int, duration time.Duration, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE turn_log
		SET source = ?, response = ?, attempts = ?, rejections = ?, duration_ms = ?, error_msg = ?, finished_at = ?
		WHERE id = ?`,
		nullableString(source), nullableString(response), attempts, rejections,
		duration.Milliseconds(), nullableString(errMsg), formatTime(s.now()), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("turn %q: %w", id, ErrNotFound)
	}
	return nil
}

// RecentTurns returns up to limit turns, newest first. An empty channelID
// matches every channel.
func (s *Store) RecentTurns(ctx context.Context, channelID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trace_id, channel_id, sender_id, message, decision, reason,
		       COALESCE(source, ''), COALESCE(response, ''), attempts, rejections,
		       COALESCE(duration_ms, 0), COALESCE(error_msg, ''), created_at, finished_at
		FROM turn_log
		WHERE ? = '' OR channel_id = ?
		ORDER BY id DESC
		LIMIT ?`, channelID, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var created string
		var finished sql.NullString
		if err := rows.Scan(
			&t.ID, &t.TraceID, &t.ChannelID, &t.SenderID, &t.Message, &t.Decision, &t.Reason,
			&t.Source, &t.Response, &t.Attempts, &t.Rejections,
			&t.DurationMS, &t.ErrorMsg, &created, &finished,
		); err != nil {
			return nil, err
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		if finished.Valid {
			t.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SourceCounts tallies answered turns by reply source ("llm", "fallback").
func (s *Store) SourceCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, COUNT(*) FROM turn_log
		WHERE source IS NOT NULL
		GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, err
		}
		out[src] = n
	}
	return out, rows.Err()
}
