// Package timeline records the append-only history of each application. It is
// adapted on the audit-trail pattern: domain logic emits structured entries,
// the storage layer persists them, and tests can swap sinks freely.
package timeline

import (
	"context"

	"habita/internal/domain"
	"habita/internal/storage"
	id "habita/pkg/domain"
	"habita/pkg/requestcontext"
)

// Service captures timeline entries. Append-only: there is no update or
// delete path by construction.
type Service struct {
	store storage.TimelineStore
}

func NewService(store storage.TimelineStore) *Service {
	return &Service{store: store}
}

// Emit appends one entry, defaulting the timestamp and actor from the
// request context when the caller leaves them unset.
func (s *Service) Emit(ctx context.Context, entry domain.TimelineEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.Actor == "" {
		entry.Actor = requestcontext.Actor(ctx)
	}
	if entry.Actor == "" {
		entry.Actor = "system"
	}
	return s.store.Append(ctx, entry)
}

// List returns the full history for one application in append order.
func (s *Service) List(ctx context.Context, appID id.ApplicationID) ([]domain.TimelineEntry, error) {
	return s.store.ListByApplication(ctx, appID)
}
