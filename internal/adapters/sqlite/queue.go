// Package sqlite persists job requests in a SQLite database. The jobs table
// enforces the write-once idempotency contract with a unique key index:
// re-creating a request returns the existing job ID without inserting.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/intakehq/intake/pkg/domain"
	"github.com/intakehq/intake/pkg/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	idempotency_key TEXT    NOT NULL UNIQUE,
	kind            TEXT    NOT NULL,
	source_root     TEXT    NOT NULL,
	source_path     TEXT    NOT NULL,
	target_root     TEXT    NOT NULL,
	target_path     TEXT    NOT NULL,
	payload         TEXT    NOT NULL DEFAULT '',
	created_at      TEXT    NOT NULL
);
`

// Queue implements ports.JobQueue on SQLite.
type Queue struct {
	db *sql.DB
}

// Open initializes or connects to the queue database at path.
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Queue{db: db}, nil
}

// Close closes the underlying database connection.
func (q *Queue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}

// Create inserts a job request, or returns the existing job ID when the
// idempotency key is already recorded.
func (q *Queue) Create(ctx context.Context, req domain.JobRequest) (string, error) {
	if req.IdempotencyKey == "" {
		return "", fmt.Errorf("job request without idempotency key")
	}

	payload := ""
	if len(req.Payload) > 0 {
		data, err := json.Marshal(req.Payload)
		if err != nil {
			return "", fmt.Errorf("encode payload: %w", err)
		}
		payload = string(data)
	}

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO jobs (
			idempotency_key, kind, source_root, source_path,
			target_root, target_path, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING`,
		req.IdempotencyKey,
		req.Kind,
		req.SourceRoot,
		req.SourcePath,
		req.TargetRoot,
		req.TargetPath,
		payload,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}

	var id int64
	err = q.db.QueryRowContext(ctx,
		`SELECT id FROM jobs WHERE idempotency_key = ?`, req.IdempotencyKey,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("resolve job id: %w", err)
	}
	return fmt.Sprintf("job-%d", id), nil
}

// List returns all recorded requests in insertion order.
func (q *Queue) List(ctx context.Context) ([]domain.JobRequest, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT idempotency_key, kind, source_root, source_path, target_root, target_path, payload
		 FROM jobs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var requests []domain.JobRequest
	for rows.Next() {
		var req domain.JobRequest
		var payload string
		if err := rows.Scan(
			&req.IdempotencyKey, &req.Kind,
			&req.SourceRoot, &req.SourcePath,
			&req.TargetRoot, &req.TargetPath,
			&payload,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &req.Payload); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

var _ ports.JobQueue = (*Queue)(nil)
