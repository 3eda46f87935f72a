package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/insider-one/notification-service/internal/domain"
	"github.com/insider-one/notification-service/internal/service"
)

// NotificationHandler handles notification HTTP requests
type NotificationHandler struct {
	service       *service.NotificationService
	validate      *validator.Validate
	callbackToken string
}

// NewNotificationHandler creates a new NotificationHandler. callbackToken may
// be empty, in which case the receipt endpoint skips the bearer check.
func NewNotificationHandler(svc *service.NotificationService, callbackToken string) *NotificationHandler {
	return &NotificationHandler{
		service:       svc,
		validate:      validator.New(),
		callbackToken: callbackToken,
	}
}

// RegisterRoutes registers notification routes
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{id}", h.GetByID)
	r.Post("/{id}/read", h.MarkRead)
	r.Post("/{id}/receipt", h.ApplyReceipt)
}

// CreateNotificationRequest represents a request to accept a notification
// @Description Request to accept a multi-channel notification
type CreateNotificationRequest struct {
	IdempotencyKey string           `json:"idempotency_key" validate:"required,uuid4"`
	UserID         string           `json:"user_id" validate:"required"`
	TemplateID     string           `json:"template_id" validate:"required"`
	TemplateParams map[string]any   `json:"template_params"`
	Channels       []domain.Channel `json:"channels" validate:"required,min=1,dive,oneof=EMAIL SMS PUSH"`
	Priority       domain.Priority  `json:"priority" validate:"omitempty,oneof=HIGH NORMAL LOW"`
}

// CreateResponse is returned on successful acceptance.
type CreateResponse struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

// Create accepts a notification for delivery across its requested channels.
// @Summary Accept notification
// @Description Idempotently accept a notification for multi-channel delivery
// @Tags notifications
// @Accept json
// @Produce json
// @Param notification body CreateNotificationRequest true "Notification request"
// @Success 201 {object} Response{data=CreateResponse}
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Failure 422 {object} Response
// @Router /api/notifications [post]
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateNotificationRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	notification, err := h.service.Create(r.Context(), service.CreateRequest{
		IdempotencyKey: req.IdempotencyKey,
		UserID:         req.UserID,
		TemplateID:     req.TemplateID,
		TemplateParams: req.TemplateParams,
		Channels:       req.Channels,
		Priority:       req.Priority,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusCreated, CreateResponse{NotificationID: notification.ID})
}

// ChannelStatusView is the per-channel breakdown in a status response.
type ChannelStatusView struct {
	Channel       domain.Channel `json:"channel"`
	Status        domain.Status  `json:"status"`
	AttemptCount  int            `json:"attempt_count"`
	LastError     *string        `json:"last_error,omitempty"`
	NextAttemptAt *time.Time     `json:"next_attempt_at,omitempty"`
}

// NotificationStatusView is the shape returned by the status endpoint.
type NotificationStatusView struct {
	NotificationID uuid.UUID           `json:"notification_id"`
	UserID         string              `json:"user_id"`
	TemplateID     string              `json:"template_id"`
	Priority       domain.Priority     `json:"priority"`
	OverallStatus  domain.Status       `json:"overall_status"`
	Channels       []ChannelStatusView `json:"channels"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func toStatusView(n *domain.Notification) NotificationStatusView {
	channels := make([]ChannelStatusView, 0, len(n.Channels))
	for _, c := range n.Channels {
		channels = append(channels, ChannelStatusView{
			Channel:       c.Channel,
			Status:        c.Status,
			AttemptCount:  c.AttemptCount,
			LastError:     c.LastError,
			NextAttemptAt: c.NextAttemptAt,
		})
	}

	return NotificationStatusView{
		NotificationID: n.ID,
		UserID:         n.UserID,
		TemplateID:     n.TemplateID,
		Priority:       n.Priority,
		OverallStatus:  domain.DeriveOverallStatus(n.Channels),
		Channels:       channels,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

// GetByID returns a notification's status with its per-channel breakdown
// and derived overall status.
// @Summary Get notification status
// @Description Get a notification's overall and per-channel delivery status
// @Tags notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} Response{data=NotificationStatusView}
// @Failure 404 {object} Response
// @Router /api/notifications/{id} [get]
func (h *NotificationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		HandleError(w, domain.ErrNotFound)
		return
	}

	notification, err := h.service.GetStatus(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, toStatusView(notification))
}

// MarkReadRequest marks one channel (or all, when Channel is nil) as read.
type MarkReadRequest struct {
	Channel *domain.Channel `json:"channel,omitempty" validate:"omitempty,oneof=EMAIL SMS PUSH"`
}

// MarkRead marks a notification's channel (or every channel) as read.
// @Summary Mark notification read
// @Description Mark one channel, or all channels, of a notification as read
// @Tags notifications
// @Accept json
// @Produce json
// @Param id path string true "Notification ID"
// @Param request body MarkReadRequest false "Optional channel"
// @Success 200 {object} Response{data=NotificationStatusView}
// @Failure 404 {object} Response
// @Router /api/notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		HandleError(w, domain.ErrNotFound)
		return
	}

	var req MarkReadRequest
	if r.ContentLength > 0 {
		if err := DecodeJSON(r, &req); err != nil {
			HandleError(w, err)
			return
		}
		if err := h.validate.Struct(req); err != nil {
			JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", err.Error())
			return
		}
	}

	notification, err := h.service.MarkRead(r.Context(), id, req.Channel)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, toStatusView(notification))
}

// ReceiptRequest represents a provider delivery/read receipt callback.
type ReceiptRequest struct {
	Channel           domain.Channel `json:"channel" validate:"required,oneof=EMAIL SMS PUSH"`
	Event             domain.Status  `json:"event" validate:"required,oneof=DELIVERED READ"`
	ProviderMessageID *string        `json:"provider_message_id,omitempty"`
	OccurredAt        *time.Time     `json:"occurred_at,omitempty"`
}

// ApplyReceipt records an asynchronous provider receipt, transitioning the
// channel monotonically per its reconciliation rules.
// @Summary Apply provider receipt
// @Description Apply an asynchronous delivery/read receipt from a provider callback
// @Tags notifications
// @Accept json
// @Produce json
// @Param id path string true "Notification ID"
// @Param X-Provider-Token header string false "Provider callback token"
// @Param request body ReceiptRequest true "Receipt payload"
// @Success 200 {object} Response{data=NotificationStatusView}
// @Failure 401 {object} Response
// @Failure 404 {object} Response
// @Router /api/notifications/{id}/receipt [post]
func (h *NotificationHandler) ApplyReceipt(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeCallback(r) {
		HandleError(w, domain.ErrUnauthorized)
		return
	}

	id, err := parseID(r)
	if err != nil {
		HandleError(w, domain.ErrNotFound)
		return
	}

	var req ReceiptRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	notification, err := h.service.ApplyReceipt(r.Context(), id, req.Channel, req.Event, req.ProviderMessageID, req.OccurredAt)
	if err != nil {
		HandleError(w, err)
		return
	}

	JSON(w, http.StatusOK, toStatusView(notification))
}

// authorizeCallback checks the X-Provider-Token header against the
// configured callback token, when one is configured.
func (h *NotificationHandler) authorizeCallback(r *http.Request) bool {
	if h.callbackToken == "" {
		return true
	}
	got := r.Header.Get("X-Provider-Token")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.callbackToken)) == 1
}

func parseID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}
