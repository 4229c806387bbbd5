package storage

import (
	"context"
	"sync"

	"habita/internal/domain"
	id "habita/pkg/domain"
)

// In-memory stores keep the default deployment and the test suites
// lightweight. They intentionally favor clarity over performance.

// InMemoryApplicationStore holds application snapshots under a single lock.
type InMemoryApplicationStore struct {
	mu   sync.RWMutex
	apps map[id.ApplicationID]*domain.Application
}

func NewInMemoryApplicationStore() *InMemoryApplicationStore {
	return &InMemoryApplicationStore{apps: make(map[id.ApplicationID]*domain.Application)}
}

func (s *InMemoryApplicationStore) Create(_ context.Context, app *domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[app.ID]; ok {
		return ErrAlreadyExists
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *InMemoryApplicationStore) Get(_ context.Context, appID id.ApplicationID) (*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if app, ok := s.apps[appID]; ok {
		return app.Clone(), nil
	}
	return nil, ErrNotFound
}

// Update performs the compare-and-swap under the store lock. The version
// check is the concurrency guard: two racing transitions both read version N,
// only the first write against N succeeds.
func (s *InMemoryApplicationStore) Update(_ context.Context, app *domain.Application, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.apps[app.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Version != expectedVersion {
		return ErrVersionConflict
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *InMemoryApplicationStore) ListByProgram(_ context.Context, programID id.ProgramID) ([]*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var apps []*domain.Application
	for _, app := range s.apps {
		if app.ProgramID == programID {
			apps = append(apps, app.Clone())
		}
	}
	return apps, nil
}

// InMemoryProgramStore holds program definitions.
type InMemoryProgramStore struct {
	mu       sync.RWMutex
	programs map[id.ProgramID]*domain.Program
}

func NewInMemoryProgramStore() *InMemoryProgramStore {
	return &InMemoryProgramStore{programs: make(map[id.ProgramID]*domain.Program)}
}

func (s *InMemoryProgramStore) Save(_ context.Context, program *domain.Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *program
	clone.RequiredDocuments = append([]domain.DocumentType(nil), program.RequiredDocuments...)
	s.programs[program.ID] = &clone
	return nil
}

func (s *InMemoryProgramStore) Get(_ context.Context, programID id.ProgramID) (*domain.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if program, ok := s.programs[programID]; ok {
		clone := *program
		clone.RequiredDocuments = append([]domain.DocumentType(nil), program.RequiredDocuments...)
		return &clone, nil
	}
	return nil, ErrNotFound
}

// InMemoryTimelineStore is the append-only history log.
type InMemoryTimelineStore struct {
	mu      sync.RWMutex
	entries map[id.ApplicationID][]domain.TimelineEntry
}

func NewInMemoryTimelineStore() *InMemoryTimelineStore {
	return &InMemoryTimelineStore{entries: make(map[id.ApplicationID][]domain.TimelineEntry)}
}

func (s *InMemoryTimelineStore) Append(_ context.Context, entry domain.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ApplicationID] = append(s.entries[entry.ApplicationID], entry)
	return nil
}

func (s *InMemoryTimelineStore) ListByApplication(_ context.Context, appID id.ApplicationID) ([]domain.TimelineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.TimelineEntry{}, s.entries[appID]...), nil
}
