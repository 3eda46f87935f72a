package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the audit journal's event kinds.
type EventType string

const (
	EventAccepted       EventType = "ACCEPTED"
	EventIdempotencyHit EventType = "IDEMPOTENCY_HIT"
	EventClaimed        EventType = "CLAIMED"
	EventProviderSuccess EventType = "PROVIDER_SUCCESS"
	EventRetryScheduled EventType = "RETRY_SCHEDULED"
	EventFinalFailure   EventType = "FINAL_FAILURE"
	EventProviderReceipt EventType = "PROVIDER_RECEIPT"
	EventReadMarked     EventType = "READ_MARKED"
)

// Event is one entry in a notification's append-only audit journal.
type Event struct {
	ID             uuid.UUID
	NotificationID uuid.UUID
	Channel        *Channel
	Type           EventType
	Payload        map[string]any
	OccurredAt     time.Time
}
