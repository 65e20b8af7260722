package service

import (
	"context"
	"sort"
	"time"

	"go-calendar-core/core/database"
	"go-calendar-core/core/errors"
	"go-calendar-core/core/logger"
	"go-calendar-core/core/types"
	"go-calendar-core/modules/alarm/entity"
	"go-calendar-core/modules/alarm/repository"
	calendarentity "go-calendar-core/modules/calendar/entity"
)

// AlarmScheduler keeps the stored trigger times of a user's alarms in line
// with their events and time zone.
type AlarmScheduler interface {
	// OnEventCreated stores one trigger per alarm of event. Recurring events
	// are passed one occurrence at a time.
	OnEventCreated(ctx context.Context, owner calendarentity.Owner, event entity.Event) error
	OnEventDeleted(ctx context.Context, owner calendarentity.Owner, accountID int, eventID string) error
	// OnAccountDeleted drops the account's triggers. It joins the caller's
	// transaction.
	OnAccountDeleted(ctx context.Context, account *calendarentity.CalendarAccount) error
	// RecalculateFloatingTriggers moves every unprocessed trigger of a
	// floating event, across all of the owner's accounts, to loc. Either all
	// triggers move or none do.
	RecalculateFloatingTriggers(ctx context.Context, owner calendarentity.Owner, loc *time.Location) (int, error)
	MarkProcessed(ctx context.Context, key entity.TriggerKey) (bool, error)
	// FireDueTriggers hands every trigger due at now to deliver and marks
	// it processed once deliver succeeds. A failed trigger is postponed by
	// DeliverRetryDelay so the triggers behind it get their turn.
	FireDueTriggers(ctx context.Context, now time.Time, limit int, deliver DeliverFunc) (int, error)
}

// DeliverRetryDelay is how long a trigger whose delivery failed is skipped.
const DeliverRetryDelay = time.Minute

type DeliverFunc func(ctx context.Context, trigger entity.AlarmTrigger) error

// AccountLister is the part of the account store the scheduler reads.
type AccountLister interface {
	LoadAll(ctx context.Context, owner calendarentity.Owner) ([]calendarentity.CalendarAccount, error)
}

type alarmScheduler struct {
	tx       database.Transactor
	triggers repository.TriggerRepository
	accounts AccountLister
}

func NewAlarmScheduler(tx database.Transactor, triggers repository.TriggerRepository, accounts AccountLister) AlarmScheduler {
	return &alarmScheduler{tx: tx, triggers: triggers, accounts: accounts}
}

func (s *alarmScheduler) OnEventCreated(ctx context.Context, owner calendarentity.Owner, event entity.Event) error {
	if len(event.Alarms) == 0 {
		return nil
	}

	triggers := make([]entity.AlarmTrigger, 0, len(event.Alarms))
	for _, alarm := range event.Alarms {
		// Floating events are first computed against UTC; a later time
		// zone change moves them.
		at, related, err := ResolveTriggerTime(alarm.Trigger, event, time.UTC)
		if err != nil {
			logger.Warn("AlarmScheduler:OnEventCreated:Resolve:Error", "error", err, "owner", owner.String(), "event_id", event.ID, "alarm_id", alarm.ID)
			return err
		}

		t := entity.AlarmTrigger{
			ContextID:   types.Some(owner.ContextID),
			UserID:      types.Some(owner.UserID),
			AccountID:   types.Some(event.AccountID),
			AlarmID:     types.Some(alarm.ID),
			EventID:     types.Some(event.ID),
			FolderID:    types.Some(event.FolderID),
			Action:      types.Some(alarm.Action),
			Recurrence:  event.RecurrenceID,
			TriggerTime: types.Some(at),
			Processed:   types.Some(false),
		}
		if !alarm.Trigger.IsAbsolute() {
			t.RelatedTime = types.Some(related)
			t.Duration = types.Some(alarm.Trigger.Duration)
			if event.IsFloating() {
				t.FloatingTimeZone = types.Some(time.UTC.String())
			}
		}
		triggers = append(triggers, t)
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, t := range triggers {
			if err := s.triggers.Upsert(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("AlarmScheduler:OnEventCreated:Error", "error", err, "owner", owner.String(), "event_id", event.ID)
		return errors.WrapStorage("schedule alarms", err)
	}

	logger.Debug("AlarmScheduler:OnEventCreated:Success", "owner", owner.String(), "account_id", event.AccountID, "event_id", event.ID, "triggers", len(triggers))
	return nil
}

func (s *alarmScheduler) OnEventDeleted(ctx context.Context, owner calendarentity.Owner, accountID int, eventID string) error {
	n, err := s.triggers.DeleteByEvent(ctx, owner, accountID, eventID)
	if err != nil {
		return err
	}
	logger.Debug("AlarmScheduler:OnEventDeleted", "owner", owner.String(), "account_id", accountID, "event_id", eventID, "removed", n)
	return nil
}

func (s *alarmScheduler) OnAccountDeleted(ctx context.Context, account *calendarentity.CalendarAccount) error {
	n, err := s.triggers.DeleteByAccount(ctx, account.Owner(), account.ID)
	if err != nil {
		return err
	}
	logger.Info("AlarmScheduler:OnAccountDeleted", "owner", account.Owner().String(), "account_id", account.ID, "removed", n)
	return nil
}

func (s *alarmScheduler) RecalculateFloatingTriggers(ctx context.Context, owner calendarentity.Owner, loc *time.Location) (int, error) {
	if loc == nil {
		return 0, errors.NewAppError(errors.ErrInvalidInput, "time zone is required", nil)
	}

	total := 0
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		accounts, err := s.accounts.LoadAll(ctx, owner)
		if err != nil {
			return err
		}
		for _, accountID := range recalculationOrder(accounts) {
			n, err := s.recalculateAccount(ctx, owner, accountID, loc)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		logger.Error("AlarmScheduler:RecalculateFloatingTriggers:Error", "error", err, "owner", owner.String(), "time_zone", loc.String())
		return 0, errors.WrapStorage("recalculate floating triggers", err)
	}

	logger.Info("AlarmScheduler:RecalculateFloatingTriggers:Success", "owner", owner.String(), "time_zone", loc.String(), "updated", total)
	return total, nil
}

func (s *alarmScheduler) recalculateAccount(ctx context.Context, owner calendarentity.Owner, accountID int, loc *time.Location) (int, error) {
	pending, err := s.triggers.ListFloatingPending(ctx, owner, accountID)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, t := range pending {
		key, err := t.Key()
		if err != nil {
			return 0, err
		}
		at, err := RecomputeFloating(t.RelatedTime.MustGet(), t.Duration.MustGet(), loc)
		if err != nil {
			logger.Warn("AlarmScheduler:Recalculate:Error", "error", err, "key", key.String())
			return 0, err
		}
		changed, err := s.triggers.Update(ctx, key, entity.AlarmTrigger{
			TriggerTime:      types.Some(at),
			FloatingTimeZone: types.Some(loc.String()),
		})
		if err != nil {
			return 0, err
		}
		if changed {
			updated++
		}
	}
	return updated, nil
}

// recalculationOrder lists the owner's provider accounts by id, then the
// default account. The default account is visited even without a stored
// row because its triggers exist before it is provisioned.
func recalculationOrder(accounts []calendarentity.CalendarAccount) []int {
	ids := make([]int, 0, len(accounts)+1)
	for _, a := range accounts {
		if !a.IsDefault() {
			ids = append(ids, a.ID)
		}
	}
	sort.Ints(ids)
	return append(ids, calendarentity.DefaultAccountID)
}

func (s *alarmScheduler) MarkProcessed(ctx context.Context, key entity.TriggerKey) (bool, error) {
	return s.triggers.Update(ctx, key, entity.AlarmTrigger{Processed: types.Some(true)})
}

func (s *alarmScheduler) FireDueTriggers(ctx context.Context, now time.Time, limit int, deliver DeliverFunc) (int, error) {
	due, err := s.triggers.ListDue(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, t := range due {
		key, err := t.Key()
		if err != nil {
			return fired, err
		}
		if err := deliver(ctx, t); err != nil {
			logger.Warn("AlarmScheduler:FireDueTriggers:Deliver:Error", "error", err, "key", key.String())
			if _, err := s.triggers.Postpone(ctx, key, now.Add(DeliverRetryDelay)); err != nil {
				return fired, err
			}
			continue
		}
		if _, err := s.MarkProcessed(ctx, key); err != nil {
			return fired, err
		}
		fired++
	}

	if fired > 0 {
		logger.Info("AlarmScheduler:FireDueTriggers", "due", len(due), "fired", fired)
	}
	return fired, nil
}
