package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/model"
)

// InstallRecord is one install attempt for one item.
type InstallRecord struct {
	ID          string              `json:"id"`
	Item        string              `json:"item"`
	Status      model.InstallStatus `json:"status"`
	Error       string              `json:"error,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Duration    time.Duration       `json:"duration,omitempty"`
}

// HistoryStore defines the interface for install history storage
type HistoryStore interface {
	// Record stores a new install attempt
	Record(ctx context.Context, rec *InstallRecord) error

	// Update updates an existing attempt with its outcome
	Update(ctx context.Context, rec *InstallRecord) error

	// List retrieves attempts, newest first; item filters when non-empty
	List(ctx context.Context, item string, offset, limit int) ([]*InstallRecord, error)

	// Count returns the number of attempts matching the filter
	Count(ctx context.Context, item string) (int, error)

	// DeleteBefore deletes attempts that started before the given time
	DeleteBefore(ctx context.Context, before time.Time) error

	// Close closes the store
	Close() error
}

// SQLiteHistory implements HistoryStore using SQLite
type SQLiteHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteHistory opens (or creates) the history database at dbPath.
func NewSQLiteHistory(logger *zap.Logger, dbPath string) (*SQLiteHistory, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteHistory{
		logger: logger.Named("history"),
		db:     db,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS install_history (
			id TEXT PRIMARY KEY,
			item TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			duration INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_install_history_item ON install_history(item);
		CREATE INDEX IF NOT EXISTS idx_install_history_status ON install_history(status);
		CREATE INDEX IF NOT EXISTS idx_install_history_started_at ON install_history(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Record implements HistoryStore.Record
func (s *SQLiteHistory) Record(ctx context.Context, rec *InstallRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO install_history (
			id, item, status, started_at
		) VALUES (?, ?, ?, ?)`,
		rec.ID,
		rec.Item,
		rec.Status,
		rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store install record: %w", err)
	}
	return nil
}

// Update implements HistoryStore.Update
func (s *SQLiteHistory) Update(ctx context.Context, rec *InstallRecord) error {
	var completedAt sql.NullTime
	if rec.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *rec.CompletedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE install_history SET
			status = ?,
			error = ?,
			completed_at = ?,
			duration = ?
		WHERE id = ?`,
		rec.Status,
		sql.NullString{String: rec.Error, Valid: rec.Error != ""},
		completedAt,
		sql.NullInt64{Int64: int64(rec.Duration), Valid: rec.Duration != 0},
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update install record: %w", err)
	}
	return nil
}

// List implements HistoryStore.List
func (s *SQLiteHistory) List(ctx context.Context, item string, offset, limit int) ([]*InstallRecord, error) {
	query := "SELECT id, item, status, error, started_at, completed_at, duration FROM install_history"
	args := make([]interface{}, 0, 3)

	if item != "" {
		query += " WHERE item = ?"
		args = append(args, item)
	}
	query += " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list install history: %w", err)
	}
	defer rows.Close()

	var records []*InstallRecord
	for rows.Next() {
		rec := &InstallRecord{}
		var errStr sql.NullString
		var completedAt sql.NullTime
		var durationNanos sql.NullInt64

		err := rows.Scan(
			&rec.ID,
			&rec.Item,
			&rec.Status,
			&errStr,
			&rec.StartedAt,
			&completedAt,
			&durationNanos,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan install record: %w", err)
		}

		if errStr.Valid {
			rec.Error = errStr.String
		}
		if completedAt.Valid {
			rec.CompletedAt = &completedAt.Time
		}
		if durationNanos.Valid {
			rec.Duration = time.Duration(durationNanos.Int64)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// Count implements HistoryStore.Count
func (s *SQLiteHistory) Count(ctx context.Context, item string) (int, error) {
	query := "SELECT COUNT(*) FROM install_history"
	args := make([]interface{}, 0, 1)
	if item != "" {
		query += " WHERE item = ?"
		args = append(args, item)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count install history: %w", err)
	}
	return count, nil
}

// DeleteBefore implements HistoryStore.DeleteBefore
func (s *SQLiteHistory) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM install_history WHERE started_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete install history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old install history records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection
func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}
