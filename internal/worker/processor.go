package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insider-one/notification-service/internal/config"
	"github.com/insider-one/notification-service/internal/domain"
)

// Processor runs the claim-dispatch-retry loop. A pool of goroutines all
// call the same atomic ClaimDueChannel repository operation, since the
// durable store is the queue — there is no separate per-channel queue to
// partition work over.
type Processor struct {
	repo     domain.NotificationRepository
	provider domain.NotificationProvider
	logger   *slog.Logger
	policy   domain.RetryPolicy
	worker   config.WorkerConfig
	provCfg  config.ProviderConfig

	statusBroadcast func(n *domain.Notification, channel *domain.Channel)
	metrics         MetricsRecorder

	mu         sync.Mutex
	running    bool
	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
}

func NewProcessor(
	repo domain.NotificationRepository,
	provider domain.NotificationProvider,
	logger *slog.Logger,
	policy domain.RetryPolicy,
	workerConfig config.WorkerConfig,
	providerConfig config.ProviderConfig,
) *Processor {
	return &Processor{
		repo:     repo,
		provider: provider,
		logger:   logger,
		policy:   policy,
		worker:   workerConfig,
		provCfg:  providerConfig,
	}
}

// SetStatusBroadcast sets the function used to push live status updates.
func (p *Processor) SetStatusBroadcast(fn func(n *domain.Notification, channel *domain.Channel)) {
	p.statusBroadcast = fn
}

// MetricsRecorder is the subset of handler.Metrics the worker needs to
// report per-channel outcome counters, kept as a local interface to avoid
// the worker package depending on the handler package.
type MetricsRecorder interface {
	RecordChannelSent(channel string)
	RecordChannelRetried(channel string)
	RecordChannelFailed(channel string)
}

// SetMetrics wires an outcome counter into the worker loop.
func (p *Processor) SetMetrics(m MetricsRecorder) {
	p.metrics = m
}

// Start launches the worker pool.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	ctx, p.cancelFunc = context.WithCancel(ctx)

	count := p.worker.Count
	if count <= 0 {
		count = 1
	}

	for i := 0; i < count; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}

	p.logger.Info("processor started", "workers", count)
	return nil
}

// Stop signals all workers to exit and waits for the current job each is
// processing to finish, up to a bounded timeout.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	if p.cancelFunc != nil {
		p.cancelFunc()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("processor stopped gracefully")
	case <-time.After(30 * time.Second):
		p.logger.Warn("processor stop timed out")
	}
}

// loop is one worker's endless claim-dispatch-update cycle.
func (p *Processor) loop(ctx context.Context, workerID int) {
	defer p.wg.Done()
	logger := p.logger.With("worker_id", workerID)

	idleSleep := p.worker.IdleSleep
	if idleSleep <= 0 {
		idleSleep = 500 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now().UTC()
		claimed, err := p.repo.ClaimDueChannel(ctx, now)
		if err != nil {
			logger.Error("failed to claim due channel", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(idleSleep):
			}
			continue
		}

		if claimed == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idleSleep):
			}
			continue
		}

		// The job runs detached from ctx so that Stop lets it finish its
		// provider call and post-attempt writes instead of aborting them.
		p.processJob(context.WithoutCancel(ctx), claimed, logger)
	}
}

func (p *Processor) processJob(ctx context.Context, claimed *domain.ClaimedChannel, logger *slog.Logger) {
	logger = logger.With("notification_id", claimed.NotificationID, "channel", claimed.Channel)

	p.appendEvent(ctx, claimed.NotificationID, &claimed.Channel, domain.EventClaimed, map[string]any{
		"attempt_no": claimed.AttemptCount + 1,
	})

	req := domain.ProviderRequest{
		NotificationID: claimed.NotificationID.String(),
		UserID:         claimed.UserID,
		TemplateID:     claimed.TemplateID,
		TemplateParams: claimed.TemplateParams,
		Channel:        claimed.Channel,
		Priority:       claimed.Priority,
	}

	result := p.provider.Send(ctx, req)
	attemptNo := claimed.AttemptCount + 1
	now := time.Now().UTC()

	if result.OK {
		p.recordSuccess(ctx, claimed, attemptNo, result, now, logger)
		return
	}

	p.recordFailure(ctx, claimed, attemptNo, result, now, logger)
}

func (p *Processor) recordSuccess(ctx context.Context, claimed *domain.ClaimedChannel, attemptNo int, result domain.ProviderResult, now time.Time, logger *slog.Logger) {
	attempt := &domain.DeliveryAttempt{
		ID:                 uuid.New(),
		NotificationID:     claimed.NotificationID,
		Channel:            claimed.Channel,
		AttemptNo:          attemptNo,
		Outcome:            domain.OutcomeSuccess,
		ProviderStatusCode: result.StatusCode,
		ProviderResponse:   result.ResponseBody,
		CreatedAt:          now,
	}
	if err := p.repo.RecordAttempt(ctx, attempt); err != nil {
		logger.Error("failed to record delivery attempt", "error", err)
	}

	if err := p.repo.UpdateChannelAfterAttempt(ctx, claimed.ChannelStateID, domain.StatusSent, attemptNo, nil, nil, now); err != nil {
		logger.Error("failed to update channel after success", "error", err)
		return
	}

	p.appendEvent(ctx, claimed.NotificationID, &claimed.Channel, domain.EventProviderSuccess, map[string]any{"attempt_no": attemptNo})
	logger.Info("channel sent", "attempt_no", attemptNo)
	if p.metrics != nil {
		p.metrics.RecordChannelSent(string(claimed.Channel))
	}
	p.broadcast(ctx, claimed.NotificationID, claimed.Channel)
}

func (p *Processor) recordFailure(ctx context.Context, claimed *domain.ClaimedChannel, attemptNo int, result domain.ProviderResult, now time.Time, logger *slog.Logger) {
	errMsg := result.Error

	attempt := &domain.DeliveryAttempt{
		ID:                 uuid.New(),
		NotificationID:     claimed.NotificationID,
		Channel:            claimed.Channel,
		AttemptNo:          attemptNo,
		Outcome:            domain.OutcomeFailure,
		ProviderStatusCode: result.StatusCode,
		ProviderResponse:   result.ResponseBody,
		Error:              &errMsg,
		CreatedAt:          now,
	}
	if err := p.repo.RecordAttempt(ctx, attempt); err != nil {
		logger.Error("failed to record delivery attempt", "error", err)
	}

	retryable := domain.IsRetryableStatus(result.StatusCode, p.provCfg.RetryableStatusCodes)

	if retryable && attemptNo < p.policy.MaxAttempts {
		nextAttemptAt := p.policy.NextAttemptAt(now, attemptNo)
		if err := p.repo.UpdateChannelAfterAttempt(ctx, claimed.ChannelStateID, domain.StatusRetryDue, attemptNo, &nextAttemptAt, &errMsg, now); err != nil {
			logger.Error("failed to schedule retry", "error", err)
			return
		}
		p.appendEvent(ctx, claimed.NotificationID, &claimed.Channel, domain.EventRetryScheduled, map[string]any{
			"attempt_no":      attemptNo,
			"next_attempt_at": nextAttemptAt,
			"error":           errMsg,
		})
		logger.Warn("channel will be retried", "attempt_no", attemptNo, "next_attempt_at", nextAttemptAt, "error", errMsg)
		if p.metrics != nil {
			p.metrics.RecordChannelRetried(string(claimed.Channel))
		}
		p.broadcast(ctx, claimed.NotificationID, claimed.Channel)
		return
	}

	if err := p.repo.UpdateChannelAfterAttempt(ctx, claimed.ChannelStateID, domain.StatusFailed, attemptNo, nil, &errMsg, now); err != nil {
		logger.Error("failed to mark channel failed", "error", err)
		return
	}
	p.appendEvent(ctx, claimed.NotificationID, &claimed.Channel, domain.EventFinalFailure, map[string]any{
		"attempt_no": attemptNo,
		"error":      errMsg,
	})
	logger.Error("channel failed permanently", "attempt_no", attemptNo, "error", errMsg)
	if p.metrics != nil {
		p.metrics.RecordChannelFailed(string(claimed.Channel))
	}
	p.broadcast(ctx, claimed.NotificationID, claimed.Channel)
}

func (p *Processor) appendEvent(ctx context.Context, notificationID uuid.UUID, channel *domain.Channel, eventType domain.EventType, payload map[string]any) {
	err := p.repo.AppendEvent(ctx, &domain.Event{
		ID:             uuid.New(),
		NotificationID: notificationID,
		Channel:        channel,
		Type:           eventType,
		Payload:        payload,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		p.logger.Error("failed to append event", "notification_id", notificationID, "type", eventType, "error", err)
	}
}

func (p *Processor) broadcast(ctx context.Context, notificationID uuid.UUID, channel domain.Channel) {
	if p.statusBroadcast == nil {
		return
	}
	n, err := p.repo.FindByID(ctx, notificationID)
	if err != nil {
		p.logger.Error("failed to reload notification for broadcast", "error", err)
		return
	}
	p.statusBroadcast(n, &channel)
}
