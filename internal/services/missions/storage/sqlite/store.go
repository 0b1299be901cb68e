package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/chaosarchitect/missions/internal/platform/storage/sqlitemigrate"
	"github.com/chaosarchitect/missions/internal/services/missions/mission"
	"github.com/chaosarchitect/missions/internal/services/missions/storage"
	"github.com/chaosarchitect/missions/internal/services/missions/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists missions and the student roster in SQLite.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite mission store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// GetMission returns the mission stored for email.
func (s *Store) GetMission(ctx context.Context, email string) (mission.Record, error) {
	if err := s.ready(ctx); err != nil {
		return mission.Record{}, err
	}
	key := mission.FoldEmail(email)
	if key == "" {
		return mission.Record{}, fmt.Errorf("email is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT email, title, lore, antagonist, task, tech_stack,
		        timestamp, status, created_at
		   FROM missions
		  WHERE email = ?`,
		key,
	)

	var (
		record    mission.Record
		status    string
		timestamp int64
		createdAt int64
	)
	err := row.Scan(
		&record.Email,
		&record.Title,
		&record.Lore,
		&record.Antagonist,
		&record.Task,
		&record.TechStack,
		&timestamp,
		&status,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mission.Record{}, storage.ErrNotFound
		}
		return mission.Record{}, fmt.Errorf("get mission: %w", err)
	}

	record.Status, err = mission.ParseStatus(status)
	if err != nil {
		return mission.Record{}, fmt.Errorf("get mission: %w", err)
	}
	record.Timestamp = fromMillis(timestamp)
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

// CreateMission inserts a new mission, failing with storage.ErrAlreadyExists
// when the identity already has one.
func (s *Store) CreateMission(ctx context.Context, record mission.Record) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	record, err := s.prepare(record)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO missions (
		   email, title, lore, antagonist, task, tech_stack,
		   timestamp, status, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Email,
		record.Title,
		record.Lore,
		record.Antagonist,
		record.Task,
		record.TechStack,
		toMillis(record.Timestamp),
		string(record.Status),
		toMillis(record.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "missions.email") {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create mission: %w", err)
	}
	return nil
}

// PutMission upserts a mission keyed by email. Existing rows only take the
// new status and timestamp, and rejected rows are left as they are.
func (s *Store) PutMission(ctx context.Context, record mission.Record) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	record, err := s.prepare(record)
	if err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO missions (
		   email, title, lore, antagonist, task, tech_stack,
		   timestamp, status, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
		   status = excluded.status,
		   timestamp = excluded.timestamp
		 WHERE missions.status <> 'rejected'`,
		record.Email,
		record.Title,
		record.Lore,
		record.Antagonist,
		record.Task,
		record.TechStack,
		toMillis(record.Timestamp),
		string(record.Status),
		toMillis(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put mission: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("put mission: %w", err)
	}
	if changed == 0 && record.Status != mission.StatusRejected {
		return storage.ErrMissionRejected
	}
	return nil
}

func (s *Store) prepare(record mission.Record) (mission.Record, error) {
	record.Email = mission.FoldEmail(record.Email)
	if record.Email == "" {
		return mission.Record{}, fmt.Errorf("email is required")
	}
	status, err := mission.ParseStatus(string(record.Status))
	if err != nil {
		return mission.Record{}, err
	}
	record.Status = status
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.Timestamp
	}
	return record, nil
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, column)
}

var _ storage.Backend = (*Store)(nil)
