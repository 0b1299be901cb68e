package lifecycle

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chaosarchitect/missions/internal/services/missions/mission"
	"github.com/chaosarchitect/missions/internal/services/missions/storage"
)

type fakeDirectory struct {
	mu       sync.Mutex
	students map[string]bool
	err      error
	calls    int
}

func newFakeDirectory(emails ...string) *fakeDirectory {
	students := make(map[string]bool, len(emails))
	for _, email := range emails {
		students[strings.ToLower(email)] = true
	}
	return &fakeDirectory{students: students}
}

func (d *fakeDirectory) ContainsStudent(_ context.Context, email string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return false, d.err
	}
	return d.students[email], nil
}

func (d *fakeDirectory) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeStore struct {
	mu          sync.Mutex
	records     map[string]mission.Record
	getErr      error
	createErr   error
	putErr      error
	getCalls    int
	createCalls int
	putCalls    int
	// beforeCreate runs ahead of the conditional write, under no lock, so
	// tests can stage a competing writer.
	beforeCreate func(s *fakeStore)
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]mission.Record)}
}

func (s *fakeStore) GetMission(_ context.Context, email string) (mission.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return mission.Record{}, s.getErr
	}
	record, ok := s.records[email]
	if !ok {
		return mission.Record{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) CreateMission(_ context.Context, record mission.Record) error {
	if s.beforeCreate != nil {
		s.beforeCreate(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.records[record.Email]; ok {
		return storage.ErrAlreadyExists
	}
	s.records[record.Email] = record
	return nil
}

func (s *fakeStore) PutMission(_ context.Context, record mission.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	if s.putErr != nil {
		return s.putErr
	}
	if existing, ok := s.records[record.Email]; ok && existing.Status == mission.StatusRejected {
		if record.Status == mission.StatusRejected {
			return nil
		}
		return storage.ErrMissionRejected
	}
	s.records[record.Email] = record
	return nil
}

func (s *fakeStore) put(record mission.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Email] = record
}

func (s *fakeStore) get(email string) (mission.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[email]
	return record, ok
}

func (s *fakeStore) counts() (gets, creates, puts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls, s.createCalls, s.putCalls
}

type fakeGenerator struct {
	content mission.Content
	err     error
	// block makes Generate wait for ctx cancellation.
	block bool
	calls atomic.Int32
}

func (g *fakeGenerator) Generate(ctx context.Context) (mission.Content, error) {
	g.calls.Add(1)
	if g.block {
		<-ctx.Done()
		return mission.Content{}, ctx.Err()
	}
	if g.err != nil {
		return mission.Content{}, g.err
	}
	return g.content, nil
}

var testContent = mission.Content{
	Title:      "Operation Toaster Uprising",
	Lore:       "The office toaster learned to tweet.",
	Antagonist: "A sentient toaster with opinions",
	Task:       "Build a toast tracker. Core Features: log toast. Optional Features: crumbs.",
	TechStack:  "React, Node.js, Express",
}
