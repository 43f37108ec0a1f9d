package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mediabatch/internal/domain"
	"mediabatch/internal/history"
)

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS download_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL,
	source_url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	quality TEXT NOT NULL DEFAULT '',
	format TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL,
	bytes_total INTEGER NOT NULL DEFAULT 0,
	error_kind TEXT NOT NULL DEFAULT '',
	started_at DATETIME NULL,
	finished_at DATETIME NULL
);
`

// Recorder persists terminal job outcomes in sqlite.
type Recorder struct {
	db *sql.DB
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createHistoryTable); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	return nil
}

func (r *Recorder) Record(ctx context.Context, rec history.Record) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO download_history (job_id, source_url, title, quality, format, state, bytes_total, error_kind, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID,
		rec.SourceURL,
		rec.Title,
		rec.Quality,
		rec.Format,
		string(rec.State),
		rec.BytesTotal,
		rec.ErrorKind,
		nullTime(rec.StartedAt),
		nullTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

func (r *Recorder) List(ctx context.Context, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, job_id, source_url, title, quality, format, state, bytes_total, error_kind, started_at, finished_at
FROM download_history
ORDER BY id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []history.Record
	for rows.Next() {
		var (
			rec        history.Record
			state      string
			startedAt  sql.NullTime
			finishedAt sql.NullTime
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.JobID,
			&rec.SourceURL,
			&rec.Title,
			&rec.Quality,
			&rec.Format,
			&state,
			&rec.BytesTotal,
			&rec.ErrorKind,
			&startedAt,
			&finishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		rec.State = domain.JobState(state)
		if startedAt.Valid {
			rec.StartedAt = startedAt.Time
		}
		if finishedAt.Valid {
			rec.FinishedAt = finishedAt.Time
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history records: %w", err)
	}
	return records, nil
}

func (r *Recorder) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM download_history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

var _ history.Recorder = (*Recorder)(nil)
