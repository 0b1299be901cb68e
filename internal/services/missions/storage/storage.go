// Package storage defines persistence contracts for mission records and the
// student directory.
package storage

import (
	"context"
	"errors"

	"github.com/chaosarchitect/missions/internal/services/missions/mission"
)

var (
	// ErrNotFound indicates a requested mission record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a mission already exists for the identity.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrMissionRejected indicates a write tried to move a rejected mission
	// back to active.
	ErrMissionRejected = errors.New("mission is rejected")
)

// MissionStore persists one mission record per identity.
//
// Implementations key records by the case-folded email and must make writes
// visible to subsequent reads of the same identity.
type MissionStore interface {
	// GetMission returns the record for email or ErrNotFound.
	GetMission(ctx context.Context, email string) (mission.Record, error)
	// CreateMission stores a new record only when none exists for its email,
	// returning ErrAlreadyExists otherwise.
	CreateMission(ctx context.Context, record mission.Record) error
	// PutMission updates the status and timestamp of an existing record, or
	// inserts it when absent. Content of an existing record is left untouched.
	// A rejected record never changes: writing it as active returns
	// ErrMissionRejected and writing it as rejected again is a no-op.
	PutMission(ctx context.Context, record mission.Record) error
}

// StudentDirectory answers allow-list membership questions.
type StudentDirectory interface {
	// ContainsStudent reports whether email is registered, ignoring case and
	// surrounding whitespace.
	ContainsStudent(ctx context.Context, email string) (bool, error)
}

// StudentRoster maintains the student directory.
type StudentRoster interface {
	StudentDirectory
	// PutStudent registers email. Registering an existing student is a no-op.
	PutStudent(ctx context.Context, email string) error
	// ListStudents returns every registered email in ascending order.
	ListStudents(ctx context.Context) ([]string, error)
}

// Backend is a full storage backend for the mission service.
type Backend interface {
	MissionStore
	StudentRoster
	Close() error
}
