package allocation

import (
	"context"
	"sync"
	"time"

	id "habita/pkg/domain"
)

// DeadlineIndex tracks outstanding acceptance deadlines so an external
// scheduler can ask which offers are due. The index never fires transitions
// itself; expiry always goes through the idempotent coordinator entry point.
type DeadlineIndex interface {
	Track(ctx context.Context, appID id.ApplicationID, deadline time.Time) error
	Forget(ctx context.Context, appID id.ApplicationID) error
	Due(ctx context.Context, now time.Time) ([]id.ApplicationID, error)
}

// MemoryDeadlineIndex is the single-process index.
type MemoryDeadlineIndex struct {
	mu        sync.Mutex
	deadlines map[id.ApplicationID]time.Time
}

func NewMemoryDeadlineIndex() *MemoryDeadlineIndex {
	return &MemoryDeadlineIndex{deadlines: make(map[id.ApplicationID]time.Time)}
}

func (x *MemoryDeadlineIndex) Track(_ context.Context, appID id.ApplicationID, deadline time.Time) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.deadlines[appID] = deadline
	return nil
}

func (x *MemoryDeadlineIndex) Forget(_ context.Context, appID id.ApplicationID) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.deadlines, appID)
	return nil
}

func (x *MemoryDeadlineIndex) Due(_ context.Context, now time.Time) ([]id.ApplicationID, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	var due []id.ApplicationID
	for appID, deadline := range x.deadlines {
		if !deadline.After(now) {
			due = append(due, appID)
		}
	}
	return due, nil
}
