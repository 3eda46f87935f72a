package worker

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/insider-one/notification-service/internal/config"
	"github.com/insider-one/notification-service/internal/domain"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Insert(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *mockRepository) FindByUserAndIdempotencyKey(ctx context.Context, userID, idempotencyKey string) (*domain.Notification, error) {
	args := m.Called(ctx, userID, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

func (m *mockRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

func (m *mockRepository) ClaimDueChannel(ctx context.Context, now time.Time) (*domain.ClaimedChannel, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClaimedChannel), args.Error(1)
}

func (m *mockRepository) RecordAttempt(ctx context.Context, a *domain.DeliveryAttempt) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *mockRepository) UpdateChannelAfterAttempt(ctx context.Context, channelStateID uuid.UUID, newStatus domain.Status, attemptCount int, nextAttemptAt *time.Time, lastError *string, now time.Time) error {
	args := m.Called(ctx, channelStateID, newStatus, attemptCount, nextAttemptAt, lastError, now)
	return args.Error(0)
}

func (m *mockRepository) SetChannelRead(ctx context.Context, notificationID uuid.UUID, channel *domain.Channel, now time.Time) (bool, error) {
	args := m.Called(ctx, notificationID, channel, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepository) ApplyReceipt(ctx context.Context, notificationID uuid.UUID, channel domain.Channel, newStatus domain.Status, now time.Time) (bool, error) {
	args := m.Called(ctx, notificationID, channel, newStatus, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepository) AppendEvent(ctx context.Context, e *domain.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockRepository) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.Status]int64), args.Error(1)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Send(ctx context.Context, req domain.ProviderRequest) domain.ProviderResult {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.ProviderResult)
}

func newTestProcessor(repo *mockRepository, prov *mockProvider) *Processor {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	policy := domain.RetryPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 300 * time.Second, JitterRatio: 0.2}
	providerCfg := config.ProviderConfig{RetryableStatusCodes: map[int]struct{}{500: {}, 503: {}}}
	workerCfg := config.WorkerConfig{Count: 1, IdleSleep: 10 * time.Millisecond}
	return NewProcessor(repo, prov, logger, policy, workerCfg, providerCfg)
}

func TestProcessJob_SuccessTransitionsToSent(t *testing.T) {
	repo := new(mockRepository)
	prov := new(mockProvider)
	p := newTestProcessor(repo, prov)

	claimed := &domain.ClaimedChannel{
		NotificationID: uuid.New(),
		ChannelStateID: uuid.New(),
		UserID:         "user-1",
		TemplateID:     "template-1",
		Channel:        domain.ChannelSMS,
		Priority:       domain.PriorityNormal,
		AttemptCount:   0,
	}

	prov.On("Send", mock.Anything, mock.AnythingOfType("domain.ProviderRequest")).
		Return(domain.ProviderResult{OK: true}).Once()
	repo.On("RecordAttempt", mock.Anything, mock.AnythingOfType("*domain.DeliveryAttempt")).Return(nil).Once()
	repo.On("UpdateChannelAfterAttempt", mock.Anything, claimed.ChannelStateID, domain.StatusSent, 1, (*time.Time)(nil), (*string)(nil), mock.AnythingOfType("time.Time")).Return(nil).Once()
	repo.On("AppendEvent", mock.Anything, mock.AnythingOfType("*domain.Event")).Return(nil).Twice()

	p.processJob(context.Background(), claimed, p.logger)

	repo.AssertExpectations(t)
	prov.AssertExpectations(t)
}

func TestProcessJob_RetryableFailureSchedulesRetry(t *testing.T) {
	repo := new(mockRepository)
	prov := new(mockProvider)
	p := newTestProcessor(repo, prov)

	claimed := &domain.ClaimedChannel{
		NotificationID: uuid.New(),
		ChannelStateID: uuid.New(),
		Channel:        domain.ChannelEmail,
		Priority:       domain.PriorityNormal,
		AttemptCount:   0,
	}

	statusCode := 503
	prov.On("Send", mock.Anything, mock.AnythingOfType("domain.ProviderRequest")).
		Return(domain.ProviderResult{OK: false, StatusCode: &statusCode, Error: "service unavailable"}).Once()
	repo.On("RecordAttempt", mock.Anything, mock.AnythingOfType("*domain.DeliveryAttempt")).Return(nil).Once()
	repo.On("UpdateChannelAfterAttempt", mock.Anything, claimed.ChannelStateID, domain.StatusRetryDue, 1, mock.AnythingOfType("*time.Time"), mock.AnythingOfType("*string"), mock.AnythingOfType("time.Time")).Return(nil).Once()
	repo.On("AppendEvent", mock.Anything, mock.AnythingOfType("*domain.Event")).Return(nil).Twice()

	p.processJob(context.Background(), claimed, p.logger)

	repo.AssertExpectations(t)
}

func TestProcessJob_NonRetryableFailureIsTerminal(t *testing.T) {
	repo := new(mockRepository)
	prov := new(mockProvider)
	p := newTestProcessor(repo, prov)

	claimed := &domain.ClaimedChannel{
		NotificationID: uuid.New(),
		ChannelStateID: uuid.New(),
		Channel:        domain.ChannelPush,
		Priority:       domain.PriorityNormal,
		AttemptCount:   0,
	}

	statusCode := 400
	prov.On("Send", mock.Anything, mock.AnythingOfType("domain.ProviderRequest")).
		Return(domain.ProviderResult{OK: false, StatusCode: &statusCode, Error: "bad request"}).Once()
	repo.On("RecordAttempt", mock.Anything, mock.AnythingOfType("*domain.DeliveryAttempt")).Return(nil).Once()
	repo.On("UpdateChannelAfterAttempt", mock.Anything, claimed.ChannelStateID, domain.StatusFailed, 1, (*time.Time)(nil), mock.AnythingOfType("*string"), mock.AnythingOfType("time.Time")).Return(nil).Once()
	repo.On("AppendEvent", mock.Anything, mock.AnythingOfType("*domain.Event")).Return(nil).Twice()

	p.processJob(context.Background(), claimed, p.logger)

	repo.AssertExpectations(t)
}

func TestProcessJob_ExhaustedRetriesIsTerminal(t *testing.T) {
	repo := new(mockRepository)
	prov := new(mockProvider)
	p := newTestProcessor(repo, prov)

	claimed := &domain.ClaimedChannel{
		NotificationID: uuid.New(),
		ChannelStateID: uuid.New(),
		Channel:        domain.ChannelSMS,
		Priority:       domain.PriorityNormal,
		AttemptCount:   4,
	}

	statusCode := 500
	prov.On("Send", mock.Anything, mock.AnythingOfType("domain.ProviderRequest")).
		Return(domain.ProviderResult{OK: false, StatusCode: &statusCode, Error: "internal error"}).Once()
	repo.On("RecordAttempt", mock.Anything, mock.AnythingOfType("*domain.DeliveryAttempt")).Return(nil).Once()
	repo.On("UpdateChannelAfterAttempt", mock.Anything, claimed.ChannelStateID, domain.StatusFailed, 5, (*time.Time)(nil), mock.AnythingOfType("*string"), mock.AnythingOfType("time.Time")).Return(nil).Once()
	repo.On("AppendEvent", mock.Anything, mock.AnythingOfType("*domain.Event")).Return(nil).Twice()

	p.processJob(context.Background(), claimed, p.logger)

	assert.Equal(t, 5, claimed.AttemptCount+1)
	repo.AssertExpectations(t)
}
