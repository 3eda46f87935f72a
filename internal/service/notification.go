package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/insider-one/notification-service/internal/cache"
	"github.com/insider-one/notification-service/internal/domain"
)

// NotificationService is the acceptance service: idempotent creation,
// status read, mark-read, and receipt application.
type NotificationService struct {
	repo      domain.NotificationRepository
	users     domain.UserLookup
	templates domain.TemplateLookup
	cache     cache.Cache
	cacheTTL  time.Duration
	logger    *slog.Logger

	statusBroadcast func(n *domain.Notification, channel *domain.Channel)
}

func NewNotificationService(
	repo domain.NotificationRepository,
	users domain.UserLookup,
	templates domain.TemplateLookup,
	c cache.Cache,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *NotificationService {
	return &NotificationService{
		repo:      repo,
		users:     users,
		templates: templates,
		cache:     c,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// SetStatusBroadcast wires the function used to push live status updates
// (e.g. over the WebSocket hub / Redis pub/sub fan-out).
func (s *NotificationService) SetStatusBroadcast(fn func(n *domain.Notification, channel *domain.Channel)) {
	s.statusBroadcast = fn
}

// CreateRequest is the shape accepted by Create.
type CreateRequest struct {
	IdempotencyKey string
	UserID         string
	TemplateID     string
	TemplateParams map[string]any
	Channels       []domain.Channel
	Priority       domain.Priority
}

// Create performs idempotent acceptance of a notification.
func (s *NotificationService) Create(ctx context.Context, req CreateRequest) (*domain.Notification, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}

	user, err := s.cachedUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}

	template, err := s.cachedTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up template: %w", err)
	}
	if template == nil {
		return nil, domain.ErrNotFound
	}

	notification := domain.NewNotification(req.UserID, req.TemplateID, req.IdempotencyKey, req.TemplateParams, req.Channels, priority)

	err = s.repo.Insert(ctx, notification)
	if err == nil {
		s.appendEvent(ctx, notification.ID, nil, domain.EventAccepted, map[string]any{
			"idempotency_key": req.IdempotencyKey,
			"user_id":         req.UserID,
			"template_id":     req.TemplateID,
			"priority":        string(priority),
			"channels":        channelStrings(req.Channels),
		})

		s.logger.Info("notification accepted",
			"notification_id", notification.ID,
			"idempotency_key", req.IdempotencyKey,
			"user_id", req.UserID,
			"template_id", req.TemplateID,
		)
		return notification, nil
	}

	if !errors.Is(err, domain.ErrIdempotencyConflict) {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}

	existing, findErr := s.repo.FindByUserAndIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
	if findErr != nil {
		if errors.Is(findErr, domain.ErrNotFound) {
			s.logger.Warn("idempotency conflict but existing record not found",
				"user_id", req.UserID, "idempotency_key", req.IdempotencyKey)
			return nil, domain.ErrIdempotencyConflict
		}
		return nil, fmt.Errorf("failed to look up existing notification: %w", findErr)
	}

	s.appendEvent(ctx, existing.ID, nil, domain.EventIdempotencyHit, map[string]any{
		"idempotency_key": req.IdempotencyKey,
		"user_id":         req.UserID,
	})
	s.logger.Info("idempotency hit", "notification_id", existing.ID, "idempotency_key", req.IdempotencyKey)

	return existing, nil
}

func validateCreateRequest(req CreateRequest) error {
	if req.UserID == "" {
		return domain.NewValidationError("user_id", "user_id is required")
	}
	if req.TemplateID == "" {
		return domain.NewValidationError("template_id", "template_id is required")
	}
	if len(req.Channels) == 0 {
		return domain.NewValidationError("channels", "at least one channel is required")
	}

	seen := make(map[domain.Channel]struct{}, len(req.Channels))
	for _, ch := range req.Channels {
		if !ch.IsValid() {
			return domain.NewValidationError("channels", fmt.Sprintf("invalid channel %q", ch))
		}
		if _, dup := seen[ch]; dup {
			return domain.NewValidationError("channels", "channels must not contain duplicates")
		}
		seen[ch] = struct{}{}
	}

	if req.Priority != "" && !req.Priority.IsValid() {
		return domain.NewValidationError("priority", fmt.Sprintf("invalid priority %q", req.Priority))
	}

	return nil
}

// GetStatus returns the notification with its channels unchanged; callers
// derive overall_status via domain.DeriveOverallStatus.
func (s *NotificationService) GetStatus(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	return s.repo.FindByID(ctx, id)
}

// MarkRead sets READ on the given channel, or all channels when channel is nil.
func (s *NotificationService) MarkRead(ctx context.Context, id uuid.UUID, channel *domain.Channel) (*domain.Notification, error) {
	now := time.Now().UTC()

	ok, err := s.repo.SetChannelRead(ctx, id, channel, now)
	if err != nil {
		return nil, fmt.Errorf("failed to mark read: %w", err)
	}
	if !ok {
		return nil, domain.ErrNotFound
	}

	channelLabel := "ALL"
	if channel != nil {
		channelLabel = string(*channel)
	}
	s.appendEvent(ctx, id, channel, domain.EventReadMarked, map[string]any{"channel": channelLabel})
	s.logger.Info("marked read", "notification_id", id, "channel", channelLabel)

	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.broadcast(n, channel)
	return n, nil
}

// ApplyReceipt delegates to the repository's monotonic status transition.
func (s *NotificationService) ApplyReceipt(ctx context.Context, id uuid.UUID, channel domain.Channel, newStatus domain.Status, providerMessageID *string, occurredAt *time.Time) (*domain.Notification, error) {
	if newStatus != domain.StatusDelivered && newStatus != domain.StatusRead {
		return nil, domain.NewValidationError("event", "event must be DELIVERED or READ")
	}
	if !channel.IsValid() {
		return nil, domain.NewValidationError("channel", fmt.Sprintf("invalid channel %q", channel))
	}

	now := time.Now().UTC()
	ok, err := s.repo.ApplyReceipt(ctx, id, channel, newStatus, now)
	if err != nil {
		return nil, fmt.Errorf("failed to apply receipt: %w", err)
	}
	if !ok {
		return nil, domain.ErrNotFound
	}

	s.appendEvent(ctx, id, &channel, domain.EventProviderReceipt, map[string]any{
		"event":               string(newStatus),
		"provider_message_id": providerMessageID,
		"occurred_at":         occurredAt,
	})
	s.logger.Info("provider receipt applied", "notification_id", id, "channel", channel, "event", newStatus)

	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.broadcast(n, &channel)
	return n, nil
}

func (s *NotificationService) cachedUser(ctx context.Context, userID string) (*domain.User, error) {
	key := "user:contact:" + userID

	var cachedUser domain.User
	if decodeCached(s.cache, ctx, key, &cachedUser) {
		return &cachedUser, nil
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil || u == nil {
		return u, err
	}

	_ = s.cache.Set(ctx, key, u, s.cacheTTL)
	return u, nil
}

func (s *NotificationService) cachedTemplate(ctx context.Context, templateID string) (*domain.Template, error) {
	key := "template:content:" + templateID

	var cachedTemplate domain.Template
	if decodeCached(s.cache, ctx, key, &cachedTemplate) {
		return &cachedTemplate, nil
	}

	t, err := s.templates.GetByID(ctx, templateID)
	if err != nil || t == nil {
		return t, err
	}

	_ = s.cache.Set(ctx, key, t, s.cacheTTL)
	return t, nil
}

// decodeCached handles both cache shapes: the LRU backend round-trips the
// native Go value as-is, while the remote (Redis) backend round-trips
// through JSON and hands back a map[string]any. Mirrors the dual handling
// the original acceptance path needed for its in-process vs. shared backends.
func decodeCached(c cache.Cache, ctx context.Context, key string, dst any) bool {
	cached, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false
	}

	switch v := cached.(type) {
	case *domain.User:
		if d, ok := dst.(*domain.User); ok {
			*d = *v
			return true
		}
	case *domain.Template:
		if d, ok := dst.(*domain.Template); ok {
			*d = *v
			return true
		}
	default:
		raw, err := json.Marshal(cached)
		if err != nil {
			return false
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return false
		}
		return true
	}
	return false
}

func (s *NotificationService) appendEvent(ctx context.Context, notificationID uuid.UUID, channel *domain.Channel, eventType domain.EventType, payload map[string]any) {
	err := s.repo.AppendEvent(ctx, &domain.Event{
		ID:             uuid.New(),
		NotificationID: notificationID,
		Channel:        channel,
		Type:           eventType,
		Payload:        payload,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("failed to append event", "notification_id", notificationID, "type", eventType, "error", err)
	}
}

func (s *NotificationService) broadcast(n *domain.Notification, channel *domain.Channel) {
	if s.statusBroadcast != nil {
		s.statusBroadcast(n, channel)
	}
}

func channelStrings(channels []domain.Channel) []string {
	out := make([]string, 0, len(channels))
	for _, c := range channels {
		out = append(out, string(c))
	}
	return out
}
