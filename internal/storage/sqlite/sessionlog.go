// Package sqlite persists the append-only session log in a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jwebster45206/campaign-engine/internal/storage/sqlite/migrations"
	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/storage"
)

const timeFormat = time.RFC3339Nano

type SessionLog struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Ensure SessionLog implements SessionLog interface
var _ storage.SessionLog = (*SessionLog)(nil)

// Open opens (creating if needed) the session log database at path and
// applies pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*SessionLog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("session log path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Debug("Session log opened", "path", path)
	return &SessionLog{db: db, logger: logger, now: time.Now}, nil
}

func (l *SessionLog) Append(ctx context.Context, campaignID int64, entryType, message string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO session_log (campaign_id, entry_type, message, created_at) VALUES (?, ?, ?, ?)`,
		campaignID, entryType, message, l.now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to append session log: %w", err)
	}
	return nil
}

// Tail returns the newest limit entries, oldest first. A non-positive
// limit returns everything.
func (l *SessionLog) Tail(ctx context.Context, campaignID int64, limit int) ([]campaign.LogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, campaign_id, entry_type, message, created_at FROM (
    SELECT id, campaign_id, entry_type, message, created_at
    FROM session_log WHERE campaign_id = ?
    ORDER BY id DESC LIMIT ?
) ORDER BY id ASC`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session log: %w", err)
	}
	defer rows.Close()

	entries := []campaign.LogEntry{}
	for rows.Next() {
		var e campaign.LogEntry
		var created string
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.EntryType, &e.Message, &created); err != nil {
			return nil, fmt.Errorf("failed to scan session log row: %w", err)
		}
		if t, err := time.Parse(timeFormat, created); err == nil {
			e.CreatedAt = t
		} else {
			l.logger.Warn("Malformed session log timestamp", "id", e.ID, "value", created)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session log: %w", err)
	}
	return entries, nil
}

func (l *SessionLog) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
