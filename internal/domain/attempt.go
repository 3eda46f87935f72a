package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttemptOutcome is the result of one delivery attempt.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "SUCCESS"
	OutcomeFailure AttemptOutcome = "FAILURE"
)

// DeliveryAttempt is a single append-only record of one dispatch to the
// provider for a (notification, channel) pair. AttemptNo is 1-based and
// strictly increasing per (notification_id, channel).
type DeliveryAttempt struct {
	ID                 uuid.UUID
	NotificationID     uuid.UUID
	Channel            Channel
	AttemptNo          int
	Outcome            AttemptOutcome
	ProviderStatusCode *int
	ProviderResponse   []byte
	Error              *string
	CreatedAt          time.Time
}
