package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chaosarchitect/missions/internal/services/missions/mission"
)

// ContainsStudent reports whether email is on the roster.
func (s *Store) ContainsStudent(ctx context.Context, email string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	key := mission.FoldEmail(email)
	if key == "" {
		return false, nil
	}

	var found int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM students WHERE email = ?`, key).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup student: %w", err)
	}
	return true, nil
}

// PutStudent adds email to the roster.
func (s *Store) PutStudent(ctx context.Context, email string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	key := mission.FoldEmail(email)
	if key == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO students (email, added_at) VALUES (?, ?)`,
		key,
		toMillis(s.now()),
	); err != nil {
		return fmt.Errorf("put student: %w", err)
	}
	return nil
}

// ListStudents returns the roster in ascending email order.
func (s *Store) ListStudents(ctx context.Context) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT email FROM students ORDER BY email ASC`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("list students: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return emails, nil
}
