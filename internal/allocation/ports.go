package allocation

import (
	"context"
	"sync"

	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
)

// UnitPool is the external housing-unit inventory. Reserve hands out any
// available unit, ReserveUnit claims a specific one, and Release returns a
// unit after a rejected, expired, or cancelled offer.
type UnitPool interface {
	Reserve(ctx context.Context) (id.UnitID, error)
	ReserveUnit(ctx context.Context, unitID id.UnitID) error
	Release(ctx context.Context, unitID id.UnitID) error
}

// StaticPool is a fixed in-memory inventory, used by the default deployment
// and the test suites.
type StaticPool struct {
	mu        sync.Mutex
	available []id.UnitID
	reserved  map[id.UnitID]bool
}

func NewStaticPool(units []id.UnitID) *StaticPool {
	return &StaticPool{
		available: append([]id.UnitID(nil), units...),
		reserved:  make(map[id.UnitID]bool),
	}
}

func (p *StaticPool) Reserve(_ context.Context) (id.UnitID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.available) == 0 {
		return id.UnitID{}, dErrors.New(dErrors.CodeNotFound, "no units available")
	}
	unitID := p.available[0]
	p.available = p.available[1:]
	p.reserved[unitID] = true
	return unitID, nil
}

func (p *StaticPool) ReserveUnit(_ context.Context, unitID id.UnitID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, u := range p.available {
		if u == unitID {
			p.available = append(p.available[:i], p.available[i+1:]...)
			p.reserved[unitID] = true
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeNotFound, "unit %s is not available", unitID)
}

func (p *StaticPool) Release(_ context.Context, unitID id.UnitID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.reserved[unitID] {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unit %s is not reserved", unitID)
	}
	delete(p.reserved, unitID)
	p.available = append(p.available, unitID)
	return nil
}

// Add puts more units into the free list.
func (p *StaticPool) Add(units ...id.UnitID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = append(p.available, units...)
}

// Available reports the current free-unit count.
func (p *StaticPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}
