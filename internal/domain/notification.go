package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Channel represents the notification delivery channel
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// Priority represents the delivery priority of a notification.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// tier returns the priority's claim-scan order; lower runs first.
func (p Priority) tier() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 2
	}
	return 1
}

// PriorityTiers lists priorities in the claim scan order, HIGH to LOW.
func PriorityTiers() []Priority {
	return []Priority{PriorityHigh, PriorityNormal, PriorityLow}
}

// Status is a per-channel delivery status. It follows the directed graph:
//
//	QUEUED/RETRY_DUE -> SENDING -> SENT -> DELIVERED -> READ
//	                                  \_______________/
//
// FAILED is terminal; READ is reachable directly from SENT, or explicitly
// regardless of prior non-FAILED state.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusSending   Status = "SENDING"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
	StatusRetryDue  Status = "RETRY_DUE"
	StatusFailed    Status = "FAILED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusSending, StatusSent, StatusDelivered, StatusRead, StatusRetryDue, StatusFailed:
		return true
	}
	return false
}

// IsClaimable reports whether a channel in this status is eligible for claim.
func (s Status) IsClaimable() bool {
	return s == StatusQueued || s == StatusRetryDue
}

// ChannelState is the per-channel delivery state nested inside a Notification.
type ChannelState struct {
	ID            uuid.UUID `json:"id"`
	Channel       Channel   `json:"channel"`
	Status        Status    `json:"status"`
	AttemptCount  int       `json:"attempt_count"`
	LastError     *string   `json:"last_error,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Notification is the accepted request together with its per-channel fan-out state.
type Notification struct {
	ID             uuid.UUID              `json:"id"`
	IdempotencyKey string                 `json:"idempotency_key"`
	UserID         string                 `json:"user_id"`
	TemplateID     string                 `json:"template_id"`
	TemplateParams map[string]any         `json:"template_params"`
	Priority       Priority               `json:"priority"`
	Channels       []ChannelState         `json:"channels"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// NewNotification builds a notification with one QUEUED channel state per
// requested channel, all immediately eligible for claim.
func NewNotification(userID, templateID, idempotencyKey string, params map[string]any, channels []Channel, priority Priority) *Notification {
	now := time.Now().UTC()

	states := make([]ChannelState, 0, len(channels))
	for _, ch := range channels {
		states = append(states, ChannelState{
			ID:            uuid.New(),
			Channel:       ch,
			Status:        StatusQueued,
			AttemptCount:  0,
			NextAttemptAt: &now,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	return &Notification{
		ID:             uuid.New(),
		IdempotencyKey: idempotencyKey,
		UserID:         userID,
		TemplateID:     templateID,
		TemplateParams: params,
		Priority:       priority,
		Channels:       states,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// DeriveOverallStatus computes a deterministic read-only summary from the
// set of per-channel statuses.
func DeriveOverallStatus(channels []ChannelState) Status {
	if len(channels) == 0 {
		return StatusQueued
	}

	set := make(map[Status]struct{}, len(channels))
	for _, c := range channels {
		set[c.Status] = struct{}{}
	}

	if _, ok := set[StatusFailed]; ok {
		return StatusFailed
	}
	if isSubsetOf(set, StatusRead) {
		return StatusRead
	}
	if isSubsetOf(set, StatusDelivered, StatusRead) {
		return StatusDelivered
	}
	if isSubsetOf(set, StatusSent, StatusDelivered, StatusRead) {
		return StatusSent
	}
	if _, ok := set[StatusSending]; ok {
		return StatusSending
	}
	if _, ok := set[StatusRetryDue]; ok {
		return StatusRetryDue
	}
	return StatusQueued
}

func isSubsetOf(set map[Status]struct{}, allowed ...Status) bool {
	allowedSet := make(map[Status]struct{}, len(allowed))
	for _, a := range allowed {
		allowedSet[a] = struct{}{}
	}
	for s := range set {
		if _, ok := allowedSet[s]; !ok {
			return false
		}
	}
	return true
}

// ClaimedChannel is the payload returned by an atomic claim, carrying
// everything the delivery worker needs to dispatch one channel.
type ClaimedChannel struct {
	NotificationID uuid.UUID
	ChannelStateID uuid.UUID
	UserID         string
	TemplateID     string
	TemplateParams map[string]any
	Priority       Priority
	Channel        Channel
	AttemptCount   int
}

// NotificationRepository is the typed operations surface over the store.
type NotificationRepository interface {
	// Insert inserts a new notification. Returns ErrIdempotencyConflict when
	// (user_id, idempotency_key) already exists, so callers can fall back to
	// FindByUserAndIdempotencyKey.
	Insert(ctx context.Context, n *Notification) error
	FindByUserAndIdempotencyKey(ctx context.Context, userID, idempotencyKey string) (*Notification, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Notification, error)

	// ClaimDueChannel atomically claims one due channel, highest priority
	// tier first, transitioning it to SENDING. Returns nil, nil when none
	// is due.
	ClaimDueChannel(ctx context.Context, now time.Time) (*ClaimedChannel, error)

	RecordAttempt(ctx context.Context, a *DeliveryAttempt) error

	// UpdateChannelAfterAttempt sets the channel's post-attempt fields.
	// nextAttemptAt and lastError are written verbatim; nil clears them,
	// matching the success path's "clear next_attempt_at and last_error".
	UpdateChannelAfterAttempt(ctx context.Context, channelStateID uuid.UUID, newStatus Status, attemptCount int, nextAttemptAt *time.Time, lastError *string, now time.Time) error

	// SetChannelRead sets status=READ on the given channel, or on all
	// channels when channel is nil; FAILED channels are left unchanged.
	// Returns false if the notification (or
	// the specific channel within it) does not exist.
	SetChannelRead(ctx context.Context, notificationID uuid.UUID, channel *Channel, now time.Time) (bool, error)

	// ApplyReceipt performs a monotonic channel status transition: a receipt
	// can only advance a channel forward, never move it backward.
	// Returns false if the notification/channel pair does not exist.
	ApplyReceipt(ctx context.Context, notificationID uuid.UUID, channel Channel, newStatus Status, now time.Time) (bool, error)

	AppendEvent(ctx context.Context, e *Event) error

	// CountByStatus reports the number of channel rows currently in each
	// status (every status present in the store), used for depth metrics.
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}
