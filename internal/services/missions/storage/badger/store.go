// Package badger provides a Badger-backed mission store and student directory
// for deployments that prefer an embedded key-value store over SQLite.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"github.com/chaosarchitect/missions/internal/services/missions/mission"
	"github.com/chaosarchitect/missions/internal/services/missions/storage"
)

const (
	missionPrefix = "mission/"
	studentPrefix = "student/"

	// maxConflictRetries bounds optimistic transaction retries.
	maxConflictRetries = 5
)

// missionValue is the on-disk encoding of a mission record.
type missionValue struct {
	Email      string `cbor:"1,keyasint"`
	Title      string `cbor:"2,keyasint"`
	Lore       string `cbor:"3,keyasint"`
	Antagonist string `cbor:"4,keyasint"`
	Task       string `cbor:"5,keyasint"`
	TechStack  string `cbor:"6,keyasint"`
	Status     string `cbor:"7,keyasint"`
	Timestamp  int64  `cbor:"8,keyasint"`
	CreatedAt  int64  `cbor:"9,keyasint"`
}

type studentValue struct {
	AddedAt int64 `cbor:"1,keyasint"`
}

// Options configures a Badger store.
type Options struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string
	// InMemory keeps all data in memory; used by tests and ephemeral runs.
	InMemory bool
}

// Store persists missions and the student roster in Badger.
type Store struct {
	db    *badgerdb.DB
	clock func() time.Time
}

// Open opens a Badger store.
func Open(opts Options) (*Store, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" && !opts.InMemory {
		return nil, fmt.Errorf("storage dir is required")
	}
	badgerOpts := badgerdb.DefaultOptions(dir).WithLogger(stdLogger{})
	if opts.InMemory {
		badgerOpts = badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(stdLogger{})
	}
	db, err := badgerdb.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db, clock: time.Now}, nil
}

// Close closes the Badger handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func missionKey(email string) []byte {
	return []byte(missionPrefix + email)
}

func studentKey(email string) []byte {
	return []byte(studentPrefix + email)
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

	var record mission.Record
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		record, err = readMission(txn, key)
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return mission.Record{}, storage.ErrNotFound
		}
		return mission.Record{}, fmt.Errorf("get mission: %w", err)
	}
	return record, nil
}

// CreateMission stores a new mission, failing with storage.ErrAlreadyExists
// when the identity already has one. Concurrent creators race on a
// transaction conflict; the loser retries and observes the winner's record.
func (s *Store) CreateMission(ctx context.Context, record mission.Record) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	record, err := s.prepare(record)
	if err != nil {
		return err
	}

	err = s.update(ctx, func(txn *badgerdb.Txn) error {
		if _, err := readMission(txn, record.Email); err == nil {
			return storage.ErrAlreadyExists
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return writeMission(txn, record)
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create mission: %w", err)
	}
	return nil
}

// PutMission upserts a mission keyed by email. Existing records only take the
// new status and timestamp, and rejected records are left as they are.
func (s *Store) PutMission(ctx context.Context, record mission.Record) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	record, err := s.prepare(record)
	if err != nil {
		return err
	}

	err = s.update(ctx, func(txn *badgerdb.Txn) error {
		existing, err := readMission(txn, record.Email)
		switch {
		case err == nil && existing.Status == mission.StatusRejected:
			if record.Status == mission.StatusRejected {
				return nil
			}
			return storage.ErrMissionRejected
		case err == nil:
			existing.Status = record.Status
			existing.Timestamp = record.Timestamp
			return writeMission(txn, existing)
		case errors.Is(err, storage.ErrNotFound):
			return writeMission(txn, record)
		default:
			return err
		}
	})
	if err != nil {
		return fmt.Errorf("put mission: %w", err)
	}
	return nil
}

// ContainsStudent reports whether email is on the roster.
func (s *Store) ContainsStudent(ctx context.Context, email string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	key := mission.FoldEmail(email)
	if key == "" {
		return false, nil
	}

	found := false
	err := s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(studentKey(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("lookup student: %w", err)
	}
	return found, nil
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
	value, err := cbor.Marshal(studentValue{AddedAt: s.now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("encode student: %w", err)
	}

	err = s.update(ctx, func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(studentKey(key)); err == nil {
			return nil
		} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		return txn.Set(studentKey(key), value)
	})
	if err != nil {
		return fmt.Errorf("put student: %w", err)
	}
	return nil
}

// ListStudents returns the roster in ascending email order.
func (s *Store) ListStudents(ctx context.Context) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var emails []string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		prefix := []byte(studentPrefix)
		iterOpts := badgerdb.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			emails = append(emails, strings.TrimPrefix(string(it.Item().Key()), studentPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return emails, nil
}

// update runs fn in a read-write transaction, retrying on optimistic
// concurrency conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badgerdb.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
	}
	return err
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

func readMission(txn *badgerdb.Txn, email string) (mission.Record, error) {
	item, err := txn.Get(missionKey(email))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return mission.Record{}, storage.ErrNotFound
	}
	if err != nil {
		return mission.Record{}, err
	}

	var value missionValue
	if err := item.Value(func(raw []byte) error {
		return cbor.Unmarshal(raw, &value)
	}); err != nil {
		return mission.Record{}, fmt.Errorf("decode mission: %w", err)
	}
	status, err := mission.ParseStatus(value.Status)
	if err != nil {
		return mission.Record{}, err
	}
	return mission.Record{
		Email: value.Email,
		Content: mission.Content{
			Title:      value.Title,
			Lore:       value.Lore,
			Antagonist: value.Antagonist,
			Task:       value.Task,
			TechStack:  value.TechStack,
		},
		Status:    status,
		Timestamp: time.UnixMilli(value.Timestamp).UTC(),
		CreatedAt: time.UnixMilli(value.CreatedAt).UTC(),
	}, nil
}

func writeMission(txn *badgerdb.Txn, record mission.Record) error {
	raw, err := cbor.Marshal(missionValue{
		Email:      record.Email,
		Title:      record.Title,
		Lore:       record.Lore,
		Antagonist: record.Antagonist,
		Task:       record.Task,
		TechStack:  record.TechStack,
		Status:     string(record.Status),
		Timestamp:  record.Timestamp.UTC().UnixMilli(),
		CreatedAt:  record.CreatedAt.UTC().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode mission: %w", err)
	}
	return txn.Set(missionKey(record.Email), raw)
}

// stdLogger forwards Badger warnings and errors to the process logger.
type stdLogger struct{}

func (stdLogger) Errorf(format string, args ...any)   { log.Printf("badger error: "+format, args...) }
func (stdLogger) Warningf(format string, args ...any) { log.Printf("badger warning: "+format, args...) }
func (stdLogger) Infof(string, ...any)                {}
func (stdLogger) Debugf(string, ...any)               {}

var _ storage.Backend = (*Store)(nil)
