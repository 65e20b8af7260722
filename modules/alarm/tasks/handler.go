package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"go-calendar-core/core/errors"
	"go-calendar-core/core/logger"
	"go-calendar-core/modules/alarm/dto"
	"go-calendar-core/modules/alarm/ics"
	"go-calendar-core/modules/alarm/service"
	calendarentity "go-calendar-core/modules/calendar/entity"
)

// Notifier hands a fired alarm to the user.
type Notifier interface {
	Notify(ctx context.Context, payload dto.DeliverPayload) error
}

type NotifierFunc func(ctx context.Context, payload dto.DeliverPayload) error

func (f NotifierFunc) Notify(ctx context.Context, payload dto.DeliverPayload) error {
	return f(ctx, payload)
}

// LogNotifier only records fired alarms.
var LogNotifier = NotifierFunc(func(_ context.Context, p dto.DeliverPayload) error {
	logger.Info("Alarm:Deliver", "cid", p.ContextID, "user_id", p.UserID, "event_id", p.EventID,
		"folder_id", p.FolderID, "alarm_id", p.AlarmID, "action", p.Action, "trigger_time", p.TriggerTime)
	return nil
})

type HandlerConfig struct {
	Lookahead      time.Duration
	MaxOccurrences int
}

type Handler struct {
	scheduler service.AlarmScheduler
	notifier  Notifier
	config    HandlerConfig
	now       func() time.Time
}

func NewHandler(scheduler service.AlarmScheduler, notifier Notifier, config HandlerConfig) *Handler {
	if notifier == nil {
		notifier = LogNotifier
	}
	return &Handler{scheduler: scheduler, notifier: notifier, config: config, now: time.Now}
}

func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeEventCreated, h.HandleEventCreated)
	mux.HandleFunc(TypeTimeZoneChanged, h.HandleTimeZoneChanged)
	mux.HandleFunc(TypeDeliver, h.HandleDeliver)
}

func (h *Handler) HandleEventCreated(ctx context.Context, task *asynq.Task) error {
	var p dto.EventCreatedPayload
	if err := decode(task, &p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return skipRetry(err)
	}

	events, err := ics.ParseEvents([]byte(p.ICS), ics.Target{AccountID: p.AccountID, FolderID: p.FolderID}, ics.Options{
		From:           h.now(),
		Lookahead:      h.config.Lookahead,
		MaxOccurrences: h.config.MaxOccurrences,
	})
	if err != nil {
		logger.Warn("Tasks:HandleEventCreated:Parse:Error", "error", err, "cid", p.ContextID, "user_id", p.UserID)
		return skipRetry(err)
	}

	owner := calendarentity.Owner{ContextID: p.ContextID, UserID: p.UserID}
	for _, ev := range events {
		if err := h.scheduler.OnEventCreated(ctx, owner, ev); err != nil {
			return terminalIfInvalid(err)
		}
	}
	logger.Info("Tasks:HandleEventCreated:Success", "owner", owner.String(), "account_id", p.AccountID, "occurrences", len(events))
	return nil
}

func (h *Handler) HandleTimeZoneChanged(ctx context.Context, task *asynq.Task) error {
	var p dto.TimeZoneChangedPayload
	if err := decode(task, &p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return skipRetry(err)
	}

	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		logger.Warn("Tasks:HandleTimeZoneChanged:UnknownZone", "time_zone", p.TimeZone, "error", err)
		return skipRetry(errors.NewAppError(errors.ErrInvalidInput, "unknown time zone", err).WithDetail("time_zone", p.TimeZone))
	}

	owner := calendarentity.Owner{ContextID: p.ContextID, UserID: p.UserID}
	if _, err := h.scheduler.RecalculateFloatingTriggers(ctx, owner, loc); err != nil {
		return terminalIfInvalid(err)
	}
	return nil
}

func (h *Handler) HandleDeliver(ctx context.Context, task *asynq.Task) error {
	var p dto.DeliverPayload
	if err := decode(task, &p); err != nil {
		return err
	}
	return terminalIfInvalid(h.notifier.Notify(ctx, p))
}

func decode(task *asynq.Task, v any) error {
	if err := json.Unmarshal(task.Payload(), v); err != nil {
		logger.Warn("Tasks:Decode:Error", "type", task.Type(), "error", err)
		return skipRetry(errors.NewAppError(errors.ErrInvalidInput, "malformed task payload", err))
	}
	return nil
}

// terminalIfInvalid stops retries for input errors; storage errors retry.
func terminalIfInvalid(err error) error {
	if errors.HasCode(err, errors.ErrInvalidInput) {
		return skipRetry(err)
	}
	return err
}
