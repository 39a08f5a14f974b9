package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/astrobridge/internal/infrastructure/database"
)

// SQLiteArchive stores events in the event_archive table.
type SQLiteArchive struct {
	db *database.DB
}

// NewSQLiteArchive creates an archive on a migrated database.
func NewSQLiteArchive(db *database.DB) *SQLiteArchive {
	return &SQLiteArchive{db: db}
}

// Record inserts e. Data is stored as JSON text.
func (a *SQLiteArchive) Record(ctx context.Context, e HistoryEvent) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encoding event data: %w", err)
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO event_archive (name, channel, data, recorded_at) VALUES (?, ?, ?, ?)`,
		e.Name, string(e.Channel), string(data), e.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("archiving event %s: %w", e.Name, err)
	}
	return nil
}

// List returns up to limit events recorded at or after since, oldest
// first. Data is returned as raw JSON. A limit below 1 returns everything.
func (a *SQLiteArchive) List(ctx context.Context, since time.Time, limit int) ([]HistoryEvent, error) {
	if limit < 1 {
		limit = -1
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT name, channel, data, recorded_at FROM event_archive
		 WHERE recorded_at >= ? ORDER BY recorded_at, id LIMIT ?`,
		since.UnixNano(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []HistoryEvent{}
	for rows.Next() {
		var (
			name, channel, data string
			recordedAt          int64
		)
		if err := rows.Scan(&name, &channel, &data, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning archived event: %w", err)
		}
		events = append(events, HistoryEvent{
			Event:     Event{Name: name, Channel: Channel(channel), Data: json.RawMessage(data)},
			Timestamp: time.Unix(0, recordedAt).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating archived events: %w", err)
	}
	return events, nil
}

// Prune deletes events recorded before olderThan and reports how many.
func (a *SQLiteArchive) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := a.db.ExecContext(ctx,
		`DELETE FROM event_archive WHERE recorded_at < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("pruning event archive: %w", err)
	}
	return res.RowsAffected()
}
