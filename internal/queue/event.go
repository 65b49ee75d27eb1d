// Package queue defines the domain events exchanged over the message
// broker, the publisher used by the API and the consumer run by the
// audit process.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys published on the topic exchange.
const (
	BookingCreated       = "booking.created"
	BookingCancelled     = "booking.cancelled"
	RescheduleRequested  = "reschedule.requested"
	RescheduleReviewed   = "reschedule.reviewed"
	RescheduleProcessed  = "reschedule.processed"
	RescheduleCancelled  = "reschedule.cancelled"
	bookingKeysPattern   = "booking.*"
	rescheduleKeyPattern = "reschedule.*"
)

// AuditBindings are the routing patterns the audit queue listens on.
var AuditBindings = []string{bookingKeysPattern, rescheduleKeyPattern}

// Event is the envelope of every message. It carries enough to log or
// notify without querying the primary database; Data holds the
// event-specific fields.
type Event struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	OccurredAt   time.Time      `json:"occurred_at"`
	BookingID    uint64         `json:"booking_id"`
	Reference    string         `json:"booking_reference,omitempty"`
	RescheduleID uint64         `json:"reschedule_id,omitempty"`
	ActorID      uint64         `json:"actor_id,omitempty"`
	ActorRole    string         `json:"actor_role,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// NewEvent stamps a fresh id and time on an event of the given type.
func NewEvent(typ string, bookingID uint64) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		BookingID:  bookingID,
	}
}
