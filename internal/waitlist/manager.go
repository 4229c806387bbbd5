// Package waitlist maintains the per-program ordered queue of approved,
// unallocated applications.
//
// Ordering key: score descending, submission date ascending, application ID
// as a final deterministic tie-break. Positions are contiguous 1-based ranks
// recomputed on every mutation; a stale cached position is never handed out.
package waitlist

import (
	"sort"
	"strings"
	"sync"
	"time"

	"habita/internal/scoring"
	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
)

// Entry is one queued application. Score and SubmittedAt are frozen at
// approval time; re-enqueueing after a rejected offer reuses the original
// key, which is what preserves the applicant's rank.
type Entry struct {
	ApplicationID id.ApplicationID
	Score         int
	SubmittedAt   time.Time
	EnqueuedAt    time.Time
	Position      int
}

// Manager owns one queue per program. Queues are independent: operations on
// different programs proceed concurrently, operations on the same program
// serialize on that queue's lock.
type Manager struct {
	mu     sync.RWMutex
	queues map[id.ProgramID]*queue
}

type queue struct {
	mu      sync.Mutex
	entries []Entry
}

func NewManager() *Manager {
	return &Manager{queues: make(map[id.ProgramID]*queue)}
}

func (m *Manager) queueFor(programID id.ProgramID, create bool) *queue {
	m.mu.RLock()
	q, ok := m.queues[programID]
	m.mu.RUnlock()
	if ok || !create {
		return q
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok = m.queues[programID]; ok {
		return q
	}
	q = &queue{}
	m.queues[programID] = q
	return q
}

// before reports whether a ranks ahead of b.
func before(a, b Entry) bool {
	if a.Score != b.Score || !a.SubmittedAt.Equal(b.SubmittedAt) {
		return scoring.Less(a.Score, a.SubmittedAt, b.Score, b.SubmittedAt)
	}
	return strings.Compare(a.ApplicationID.String(), b.ApplicationID.String()) < 0
}

// Enqueue inserts the entry at its sorted rank and returns it with the
// assigned 1-based position.
func (m *Manager) Enqueue(programID id.ProgramID, entry Entry) (Entry, error) {
	q := m.queueFor(programID, true)
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.entries {
		if existing.ApplicationID == entry.ApplicationID {
			return Entry{}, dErrors.Newf(dErrors.CodeInvalidInput,
				"application %s already on waiting list", entry.ApplicationID)
		}
	}

	at := sort.Search(len(q.entries), func(i int) bool {
		return before(entry, q.entries[i])
	})
	q.entries = append(q.entries, Entry{})
	copy(q.entries[at+1:], q.entries[at:])
	q.entries[at] = entry
	q.rerank()
	return q.entries[at], nil
}

// DequeueHead removes and returns the top-ranked entry.
func (m *Manager) DequeueHead(programID id.ProgramID) (Entry, error) {
	q := m.queueFor(programID, false)
	if q == nil {
		return Entry{}, dErrors.New(dErrors.CodeNotFound, "waiting list is empty")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return Entry{}, dErrors.New(dErrors.CodeNotFound, "waiting list is empty")
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	q.rerank()
	return head, nil
}

// Remove drops the entry regardless of rank (cancellation path).
func (m *Manager) Remove(programID id.ProgramID, appID id.ApplicationID) error {
	q := m.queueFor(programID, false)
	if q == nil {
		return dErrors.Newf(dErrors.CodeNotFound, "application %s not on waiting list", appID)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, entry := range q.entries {
		if entry.ApplicationID == appID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.rerank()
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeNotFound, "application %s not on waiting list", appID)
}

// PositionOf looks up the current 1-based rank.
func (m *Manager) PositionOf(programID id.ProgramID, appID id.ApplicationID) (int, error) {
	q := m.queueFor(programID, false)
	if q == nil {
		return 0, dErrors.Newf(dErrors.CodeNotFound, "application %s not on waiting list", appID)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, entry := range q.entries {
		if entry.ApplicationID == appID {
			return entry.Position, nil
		}
	}
	return 0, dErrors.Newf(dErrors.CodeNotFound, "application %s not on waiting list", appID)
}

// Snapshot returns the queue in rank order.
func (m *Manager) Snapshot(programID id.ProgramID) []Entry {
	q := m.queueFor(programID, false)
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry{}, q.entries...)
}

// Len reports the queue size for a program.
func (m *Manager) Len(programID id.ProgramID) int {
	q := m.queueFor(programID, false)
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// rerank restores the contiguous 1..n position invariant. Called under the
// queue lock after every mutation.
func (q *queue) rerank() {
	for i := range q.entries {
		q.entries[i].Position = i + 1
	}
}
