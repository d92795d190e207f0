// Package audit keeps the rolling log of human-readable failure lines
// (failed commands, eco override failures, session errors) shown to the
// user. Only the newest MaxItems entries are retained.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxItems is the number of entries the rolling log retains.
const MaxItems = 10

// Sources of log entries.
const (
	SourceCommand = "command"
	SourceSession = "session"
	SourceStream  = "stream"
)

// LogItem is a single rolling log entry.
type LogItem struct {
	ID        string         `json:"id"`
	Message   string         `json:"msg"`
	Source    string         `json:"source"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"timestamp"`
}

// Repository defines the rolling log operations.
type Repository interface {
	Append(ctx context.Context, item *LogItem) error
	List(ctx context.Context) ([]LogItem, error)
}

// SQLiteRepository stores the rolling log in the log_items table.
type SQLiteRepository struct {
	db  *sql.DB
	max int
}

// NewSQLiteRepository creates a rolling log repository capped at MaxItems.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, max: MaxItems}
}

// Append inserts item and trims the table to the newest entries.
// ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Append(ctx context.Context, item *LogItem) error {
	if item.Message == "" {
		return fmt.Errorf("log message is required")
	}
	if item.ID == "" {
		item.ID = "log-" + uuid.NewString()[:8]
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.Source == "" {
		item.Source = SourceCommand
	}

	var detailsJSON *string
	if item.Details != nil {
		b, err := json.Marshal(item.Details)
		if err != nil {
			return fmt.Errorf("marshalling log details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting log transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO log_items (id, message, source, details, created_at) VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.Message, item.Source, detailsJSON, item.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("inserting log item: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM log_items WHERE seq NOT IN (SELECT seq FROM log_items ORDER BY seq DESC LIMIT ?)`,
		r.max,
	); err != nil {
		return fmt.Errorf("trimming log items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing log item: %w", err)
	}
	return nil
}

// List returns the retained entries, oldest first and newest last.
func (r *SQLiteRepository) List(ctx context.Context) ([]LogItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, message, source, details, created_at FROM log_items ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying log items: %w", err)
	}
	defer rows.Close()

	items := []LogItem{}
	for rows.Next() {
		var item LogItem
		var detailsJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&item.ID, &item.Message, &item.Source, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning log item: %w", err)
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				item.Details = details
			}
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing log item timestamp %q: %w", createdAt, err)
		}
		item.CreatedAt = t

		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating log items: %w", err)
	}
	return items, nil
}
