package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/insider-one/notification-service/internal/domain"
)

// uniqueViolation is Postgres's SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// NotificationRepository implements domain.NotificationRepository against
// PostgreSQL. The atomic claim is done with SELECT ... FOR UPDATE
// SKIP LOCKED rather than Mongo-style findOneAndUpdate over an array field,
// which is the idiomatic at-most-once-claim pattern for this store.
type NotificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert creates a new notification and its channel states in one
// transaction. A unique_violation on (user_id, idempotency_key) surfaces as
// domain.ErrIdempotencyConflict so callers can fall back to
// FindByUserAndIdempotencyKey.
func (r *NotificationRepository) Insert(ctx context.Context, n *domain.Notification) error {
	params, err := json.Marshal(n.TemplateParams)
	if err != nil {
		return fmt.Errorf("failed to marshal template params: %w", err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO notifications (id, user_id, template_id, template_params, priority, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.ID, n.UserID, n.TemplateID, params, n.Priority, n.IdempotencyKey, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrIdempotencyConflict
		}
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	for _, c := range n.Channels {
		_, err = tx.Exec(ctx, `
			INSERT INTO notification_channels (id, notification_id, channel, status, attempt_count, last_error, next_attempt_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, c.ID, n.ID, c.Channel, c.Status, c.AttemptCount, c.LastError, c.NextAttemptAt, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert channel state: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *NotificationRepository) FindByUserAndIdempotencyKey(ctx context.Context, userID, idempotencyKey string) (*domain.Notification, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, user_id, template_id, template_params, priority, idempotency_key, created_at, updated_at
		FROM notifications
		WHERE user_id = $1 AND idempotency_key = $2
	`, userID, idempotencyKey)

	return r.scanWithChannels(ctx, row)
}

func (r *NotificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, user_id, template_id, template_params, priority, idempotency_key, created_at, updated_at
		FROM notifications
		WHERE id = $1
	`, id)

	return r.scanWithChannels(ctx, row)
}

func (r *NotificationRepository) scanWithChannels(ctx context.Context, row pgx.Row) (*domain.Notification, error) {
	n := &domain.Notification{}
	var params []byte

	err := row.Scan(&n.ID, &n.UserID, &n.TemplateID, &params, &n.Priority, &n.IdempotencyKey, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &n.TemplateParams); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template params: %w", err)
		}
	}

	channels, err := r.loadChannels(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	n.Channels = channels

	return n, nil
}

func (r *NotificationRepository) loadChannels(ctx context.Context, notificationID uuid.UUID) ([]domain.ChannelState, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, channel, status, attempt_count, last_error, next_attempt_at, created_at, updated_at
		FROM notification_channels
		WHERE notification_id = $1
		ORDER BY created_at ASC
	`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel states: %w", err)
	}
	defer rows.Close()

	channels := make([]domain.ChannelState, 0)
	for rows.Next() {
		var c domain.ChannelState
		if err := rows.Scan(&c.ID, &c.Channel, &c.Status, &c.AttemptCount, &c.LastError, &c.NextAttemptAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel state: %w", err)
		}
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel states: %w", err)
	}

	return channels, nil
}

// ClaimDueChannel atomically claims one due channel, scanning priority
// tiers HIGH -> NORMAL -> LOW in turn. Within a tier, FOR UPDATE SKIP
// LOCKED plus a LIMIT 1 subquery guarantees at-most-one claimant for a
// given row; ties within a tier break on created_at ascending (oldest
// first).
func (r *NotificationRepository) ClaimDueChannel(ctx context.Context, now time.Time) (*domain.ClaimedChannel, error) {
	for _, tier := range domain.PriorityTiers() {
		claimed, err := r.claimInTier(ctx, tier, now)
		if err != nil {
			return nil, err
		}
		if claimed != nil {
			return claimed, nil
		}
	}
	return nil, nil
}

func (r *NotificationRepository) claimInTier(ctx context.Context, tier domain.Priority, now time.Time) (*domain.ClaimedChannel, error) {
	row := r.db.Pool.QueryRow(ctx, `
		UPDATE notification_channels nc
		SET status = $3, updated_at = $1
		FROM notifications n
		WHERE nc.notification_id = n.id
		  AND nc.id = (
			SELECT nc2.id
			FROM notification_channels nc2
			JOIN notifications n2 ON n2.id = nc2.notification_id
			WHERE nc2.status IN ($4, $5)
			  AND nc2.next_attempt_at <= $1
			  AND n2.priority = $2
			ORDER BY nc2.created_at ASC
			FOR UPDATE OF nc2 SKIP LOCKED
			LIMIT 1
		  )
		RETURNING nc.id, nc.notification_id, nc.channel, nc.attempt_count, n.user_id, n.template_id, n.template_params, n.priority
	`, now, tier, domain.StatusSending, domain.StatusQueued, domain.StatusRetryDue)

	var claimed domain.ClaimedChannel
	var params []byte
	err := row.Scan(&claimed.ChannelStateID, &claimed.NotificationID, &claimed.Channel, &claimed.AttemptCount,
		&claimed.UserID, &claimed.TemplateID, &params, &claimed.Priority)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim due channel: %w", err)
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &claimed.TemplateParams); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template params: %w", err)
		}
	}

	return &claimed, nil
}

func (r *NotificationRepository) RecordAttempt(ctx context.Context, a *domain.DeliveryAttempt) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO delivery_attempts (id, notification_id, channel, attempt_no, outcome, provider_status_code, provider_response, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.NotificationID, a.Channel, a.AttemptNo, a.Outcome, a.ProviderStatusCode, a.ProviderResponse, a.Error, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}
	return nil
}

func (r *NotificationRepository) UpdateChannelAfterAttempt(ctx context.Context, channelStateID uuid.UUID, newStatus domain.Status, attemptCount int, nextAttemptAt *time.Time, lastError *string, now time.Time) error {
	result, err := r.db.Pool.Exec(ctx, `
		UPDATE notification_channels
		SET status = $2, attempt_count = $3, next_attempt_at = $4, last_error = $5, updated_at = $6
		WHERE id = $1
	`, channelStateID, newStatus, attemptCount, nextAttemptAt, lastError, now)
	if err != nil {
		return fmt.Errorf("failed to update channel after attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) SetChannelRead(ctx context.Context, notificationID uuid.UUID, channel *domain.Channel, now time.Time) (bool, error) {
	if channel == nil {
		result, err := r.db.Pool.Exec(ctx, `
			UPDATE notification_channels
			SET status = CASE WHEN status = $4 THEN status ELSE $2 END,
				updated_at = CASE WHEN status = $4 THEN updated_at ELSE $3 END
			WHERE notification_id = $1
		`, notificationID, domain.StatusRead, now, domain.StatusFailed)
		if err != nil {
			return false, fmt.Errorf("failed to mark all channels read: %w", err)
		}
		if result.RowsAffected() > 0 {
			return true, nil
		}

		var exists bool
		err = r.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM notifications WHERE id = $1)`, notificationID).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("failed to check notification existence: %w", err)
		}
		return exists, nil
	}

	result, err := r.db.Pool.Exec(ctx, `
		UPDATE notification_channels
		SET status = CASE WHEN status = $5 THEN status ELSE $3 END,
			updated_at = CASE WHEN status = $5 THEN updated_at ELSE $4 END
		WHERE notification_id = $1 AND channel = $2
	`, notificationID, *channel, domain.StatusRead, now, domain.StatusFailed)
	if err != nil {
		return false, fmt.Errorf("failed to mark channel read: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ApplyReceipt implements the monotonic status transition as a single
// conditional update: FAILED is a no-op (still reports success), a
// DELIVERED receipt against an already-READ channel is a no-op, and any
// other matching row transitions to newStatus.
func (r *NotificationRepository) ApplyReceipt(ctx context.Context, notificationID uuid.UUID, channel domain.Channel, newStatus domain.Status, now time.Time) (bool, error) {
	row := r.db.Pool.QueryRow(ctx, `
		UPDATE notification_channels
		SET status = CASE
				WHEN status = $5 THEN status
				WHEN $3 = $6 AND status = $7 THEN status
				ELSE $3
			END,
			updated_at = CASE
				WHEN status = $5 THEN updated_at
				WHEN $3 = $6 AND status = $7 THEN updated_at
				ELSE $4
			END
		WHERE notification_id = $1 AND channel = $2
		RETURNING id
	`, notificationID, channel, newStatus, now, domain.StatusFailed, domain.StatusDelivered, domain.StatusRead)

	var id uuid.UUID
	err := row.Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to apply receipt: %w", err)
	}
	return true, nil
}

func (r *NotificationRepository) AppendEvent(ctx context.Context, e *domain.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO notification_events (id, notification_id, channel, type, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.NotificationID, e.Channel, e.Type, payload, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *NotificationRepository) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT status, COUNT(*) FROM notification_channels GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count channels by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int64)
	for rows.Next() {
		var status domain.Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}
