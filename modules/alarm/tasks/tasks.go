package tasks

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"go-calendar-core/core/errors"
	"go-calendar-core/core/logger"
	"go-calendar-core/core/queue"
	"go-calendar-core/modules/alarm/dto"
)

const (
	TypeEventCreated    = "alarm:event_created"
	TypeTimeZoneChanged = "alarm:timezone_changed"
	TypeDeliver         = "alarm:deliver"
)

const (
	defaultMaxRetry  = 5
	deliverRetention = 24 * time.Hour
)

// Producer enqueues alarm tasks.
type Producer struct {
	client queue.Enqueuer
	queue  string
}

func NewProducer(client queue.Enqueuer, queueName string) *Producer {
	return &Producer{client: client, queue: queueName}
}

func (p *Producer) EnqueueEventCreated(ctx context.Context, payload dto.EventCreatedPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	return p.enqueue(ctx, TypeEventCreated, payload)
}

func (p *Producer) EnqueueTimeZoneChanged(ctx context.Context, payload dto.TimeZoneChangedPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	return p.enqueue(ctx, TypeTimeZoneChanged, payload)
}

// EnqueueDeliver enqueues one fired alarm. The task id is derived from the
// trigger, so a trigger fired twice before it was marked processed is
// delivered once.
func (p *Producer) EnqueueDeliver(ctx context.Context, payload dto.DeliverPayload) error {
	id := deliverTaskID(payload)
	err := p.enqueue(ctx, TypeDeliver, payload, asynq.TaskID(id), asynq.Retention(deliverRetention))
	if stderrors.Is(err, asynq.ErrTaskIDConflict) {
		logger.Debug("Tasks:EnqueueDeliver:Duplicate", "task_id", id)
		return nil
	}
	return err
}

func (p *Producer) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "encode task payload", err)
	}
	opts = append(opts, asynq.MaxRetry(defaultMaxRetry))
	if p.queue != "" {
		opts = append(opts, asynq.Queue(p.queue))
	}

	info, err := p.client.EnqueueContext(ctx, asynq.NewTask(taskType, data), opts...)
	if err != nil {
		if !stderrors.Is(err, asynq.ErrTaskIDConflict) {
			logger.Error("Tasks:Enqueue:Error", "type", taskType, "error", err)
		}
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	logger.Debug("Tasks:Enqueue:Success", "type", taskType, "id", info.ID, "queue", info.Queue)
	return nil
}

func deliverTaskID(p dto.DeliverPayload) string {
	return fmt.Sprintf("%s:%d:%d:%s:%d:%d", TypeDeliver, p.ContextID, p.UserID, p.EventID, p.AlarmID, p.TriggerTime.UnixMilli())
}

// skipRetry marks err as terminal for asynq.
func skipRetry(err error) error {
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}
