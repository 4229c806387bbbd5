// Package notify emits lifecycle events toward the external notification
// system. Delivery (email/SMS) is out of scope; only the triggering event is.
package notify

import (
	"context"
	"log/slog"
	"sync"

	id "habita/pkg/domain"
)

// Event names a notification-worthy lifecycle moment.
type Event string

const (
	EventSubmitted      Event = "application_submitted"
	EventDocumentsAsked Event = "documents_requested"
	EventVisitScheduled Event = "visit_scheduled"
	EventApproved       Event = "application_approved"
	EventRejected       Event = "application_rejected"
	EventWaitlisted     Event = "waiting_list_entered"
	EventUnitOffered    Event = "unit_offered"
	EventOfferExpired   Event = "offer_expired"
	EventAppealFiled    Event = "appeal_filed"
	EventAppealDecided  Event = "appeal_decided"
	EventCancelled      Event = "application_cancelled"
)

// Sink receives lifecycle events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Notify(ctx context.Context, appID id.ApplicationID, event Event) error
}

// LogSink writes events to the structured log. It is the default sink when
// no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, appID id.ApplicationID, event Event) error {
	s.logger.InfoContext(ctx, "notification event",
		"application_id", appID.String(),
		"event", string(event),
	)
	return nil
}

// MemorySink records events for assertions in tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Recorded
}

// Recorded is one captured notification.
type Recorded struct {
	ApplicationID id.ApplicationID
	Event         Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Notify(_ context.Context, appID id.ApplicationID, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Recorded{ApplicationID: appID, Event: event})
	return nil
}

// Events returns a copy of everything recorded so far.
func (s *MemorySink) Events() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Recorded{}, s.events...)
}
