// Package storage defines the persistence ports for the lifecycle core and
// their in-memory and PostgreSQL implementations.
//
// Stores are interface-driven to keep the domain logic testable and to allow
// swapping in-memory, SQL, or external persistence without rewiring business
// code.
package storage

import (
	"context"

	"habita/internal/domain"
	id "habita/pkg/domain"
)

// ApplicationStore persists application snapshots.
//
// Update is a compare-and-swap: it fails with ErrVersionConflict when the
// stored version differs from expectedVersion. That check is what serializes
// concurrent transitions on one application.
type ApplicationStore interface {
	Create(ctx context.Context, app *domain.Application) error
	Get(ctx context.Context, appID id.ApplicationID) (*domain.Application, error)
	Update(ctx context.Context, app *domain.Application, expectedVersion int64) error
	ListByProgram(ctx context.Context, programID id.ProgramID) ([]*domain.Application, error)
}

// ProgramStore persists program definitions (rules, weights, deadlines).
type ProgramStore interface {
	Save(ctx context.Context, program *domain.Program) error
	Get(ctx context.Context, programID id.ProgramID) (*domain.Program, error)
}

// TimelineStore is the append-only history log. Entries are returned in
// append order.
type TimelineStore interface {
	Append(ctx context.Context, entry domain.TimelineEntry) error
	ListByApplication(ctx context.Context, appID id.ApplicationID) ([]domain.TimelineEntry, error)
}
