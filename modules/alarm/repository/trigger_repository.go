package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go-calendar-core/core/database"
	"go-calendar-core/core/errors"
	"go-calendar-core/core/logger"
	"go-calendar-core/core/types"
	"go-calendar-core/modules/alarm/entity"
	calendarentity "go-calendar-core/modules/calendar/entity"
)

// TriggerRepository stores alarm triggers. Processed triggers are never
// rewritten by Upsert or Update.
type TriggerRepository interface {
	// Upsert inserts t or refreshes the stored unprocessed trigger with the
	// same key. t must carry its key plus folder, action and trigger time.
	Upsert(ctx context.Context, t entity.AlarmTrigger) error
	// Update writes the set fields of patch to the unprocessed trigger at
	// key and reports whether a row changed.
	Update(ctx context.Context, key entity.TriggerKey, patch entity.AlarmTrigger) (bool, error)
	// ListFloatingPending returns the unprocessed relative triggers of
	// floating events in one account.
	ListFloatingPending(ctx context.Context, owner calendarentity.Owner, accountID int) ([]entity.AlarmTrigger, error)
	ListByEvent(ctx context.Context, owner calendarentity.Owner, accountID int, eventID string) ([]entity.AlarmTrigger, error)
	// Postpone hides the unprocessed trigger at key from ListDue until the
	// given time.
	Postpone(ctx context.Context, key entity.TriggerKey, until time.Time) (bool, error)
	// ListDue returns unprocessed triggers firing at or before until, oldest
	// first, skipping triggers postponed past until.
	ListDue(ctx context.Context, until time.Time, limit int) ([]entity.AlarmTrigger, error)
	DeleteByEvent(ctx context.Context, owner calendarentity.Owner, accountID int, eventID string) (int64, error)
	DeleteByAccount(ctx context.Context, owner calendarentity.Owner, accountID int) (int64, error)
}

type triggerRow struct {
	ContextID        int            `db:"cid"`
	UserID           int            `db:"user_id"`
	AccountID        int            `db:"account_id"`
	AlarmID          int            `db:"alarm_id"`
	EventID          string         `db:"event_id"`
	FolderID         string         `db:"folder_id"`
	Recurrence       string         `db:"recurrence"`
	Action           string         `db:"action"`
	TriggerTime      int64          `db:"trigger_time"`
	RelatedTime      sql.NullString `db:"related_time"`
	Duration         sql.NullString `db:"trigger_duration"`
	FloatingTimeZone sql.NullString `db:"floating_timezone"`
	Processed        bool           `db:"processed"`
}

func (r triggerRow) toEntity() entity.AlarmTrigger {
	t := entity.AlarmTrigger{
		ContextID:   types.Some(r.ContextID),
		UserID:      types.Some(r.UserID),
		AccountID:   types.Some(r.AccountID),
		AlarmID:     types.Some(r.AlarmID),
		EventID:     types.Some(r.EventID),
		FolderID:    types.Some(r.FolderID),
		Action:      types.Some(r.Action),
		TriggerTime: types.Some(time.UnixMilli(r.TriggerTime).UTC()),
		Processed:   types.Some(r.Processed),
	}
	if r.Recurrence != "" {
		t.Recurrence = types.Some(r.Recurrence)
	}
	t.RelatedTime = fromNull(r.RelatedTime)
	t.Duration = fromNull(r.Duration)
	t.FloatingTimeZone = fromNull(r.FloatingTimeZone)
	return t
}

func fromNull(s sql.NullString) types.Optional[string] {
	if !s.Valid {
		return types.None[string]()
	}
	return types.Some(s.String)
}

func toNull(o types.Optional[string]) sql.NullString {
	v, ok := o.Get()
	return sql.NullString{String: v, Valid: ok}
}

const triggerColumns = `cid, user_id, account_id, alarm_id, event_id, folder_id, recurrence, action,
	trigger_time, related_time, trigger_duration, floating_timezone, processed`

type triggerRepository struct {
	db *database.Database
}

func NewTriggerRepository(db *database.Database) TriggerRepository {
	return &triggerRepository{db: db}
}

func (r *triggerRepository) Upsert(ctx context.Context, t entity.AlarmTrigger) error {
	key, err := t.Key()
	if err != nil {
		return err
	}
	folderID, ok1 := t.FolderID.Get()
	action, ok2 := t.Action.Get()
	triggerTime, ok3 := t.TriggerTime.Get()
	if !(ok1 && ok2 && ok3) {
		return errors.NewAppError(errors.ErrInvalidInput, "alarm trigger needs folder, action and trigger time", nil).
			WithDetail("key", key.String())
	}

	query := r.db.Rebind(`INSERT INTO calendar_alarm_triggers (` + triggerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE)
		ON CONFLICT (cid, user_id, account_id, event_id, alarm_id, recurrence) DO UPDATE SET
			folder_id = excluded.folder_id,
			action = excluded.action,
			trigger_time = excluded.trigger_time,
			related_time = excluded.related_time,
			trigger_duration = excluded.trigger_duration,
			floating_timezone = excluded.floating_timezone,
			retry_after = 0
		WHERE calendar_alarm_triggers.processed = FALSE`)

	if _, err := r.db.ExecContext(ctx, query,
		key.ContextID, key.UserID, key.AccountID, key.AlarmID, key.EventID, folderID, key.Recurrence, action,
		triggerTime.UnixMilli(), toNull(t.RelatedTime), toNull(t.Duration), toNull(t.FloatingTimeZone),
	); err != nil {
		logger.Error("TriggerRepository:Upsert:Error", "error", err, "key", key.String())
		return errors.WrapStorage("upsert alarm trigger", err)
	}
	return nil
}

func (r *triggerRepository) Update(ctx context.Context, key entity.TriggerKey, patch entity.AlarmTrigger) (bool, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if v, ok := patch.FolderID.Get(); ok {
		set("folder_id", v)
	}
	if v, ok := patch.Action.Get(); ok {
		set("action", v)
	}
	if v, ok := patch.TriggerTime.Get(); ok {
		set("trigger_time", v.UnixMilli())
	}
	if v, ok := patch.Processed.Get(); ok {
		set("processed", v)
	}
	if patch.RelatedTime.IsSet() {
		set("related_time", toNull(patch.RelatedTime))
	}
	if patch.Duration.IsSet() {
		set("trigger_duration", toNull(patch.Duration))
	}
	if patch.FloatingTimeZone.IsSet() {
		set("floating_timezone", toNull(patch.FloatingTimeZone))
	}
	if len(sets) == 0 {
		return false, nil
	}

	query := r.db.Rebind(`UPDATE calendar_alarm_triggers SET ` + strings.Join(sets, ", ") + `
		WHERE cid = ? AND user_id = ? AND account_id = ? AND event_id = ? AND alarm_id = ? AND recurrence = ?
		AND processed = FALSE`)
	args = append(args, key.ContextID, key.UserID, key.AccountID, key.EventID, key.AlarmID, key.Recurrence)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.Error("TriggerRepository:Update:Error", "error", err, "key", key.String())
		return false, errors.WrapStorage("update alarm trigger", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WrapStorage("rows affected", err)
	}
	return n > 0, nil
}

func (r *triggerRepository) ListFloatingPending(ctx context.Context, owner calendarentity.Owner, accountID int) ([]entity.AlarmTrigger, error) {
	query := r.db.Rebind(`SELECT ` + triggerColumns + ` FROM calendar_alarm_triggers
		WHERE cid = ? AND user_id = ? AND account_id = ? AND processed = FALSE
		AND floating_timezone IS NOT NULL AND trigger_duration IS NOT NULL AND related_time IS NOT NULL
		ORDER BY event_id, alarm_id, recurrence`)
	return r.list(ctx, "ListFloatingPending", query, owner.ContextID, owner.UserID, accountID)
}

func (r *triggerRepository) ListByEvent(ctx context.Context, owner calendarentity.Owner, accountID int, eventID string) ([]entity.AlarmTrigger, error) {
	query := r.db.Rebind(`SELECT ` + triggerColumns + ` FROM calendar_alarm_triggers
		WHERE cid = ? AND user_id = ? AND account_id = ? AND event_id = ?
		ORDER BY alarm_id, recurrence`)
	return r.list(ctx, "ListByEvent", query, owner.ContextID, owner.UserID, accountID, eventID)
}

func (r *triggerRepository) ListDue(ctx context.Context, until time.Time, limit int) ([]entity.AlarmTrigger, error) {
	query := r.db.Rebind(`SELECT ` + triggerColumns + ` FROM calendar_alarm_triggers
		WHERE processed = FALSE AND trigger_time <= ? AND retry_after <= ?
		ORDER BY trigger_time, cid, user_id, account_id, event_id, alarm_id, recurrence
		LIMIT ?`)
	return r.list(ctx, "ListDue", query, until.UnixMilli(), until.UnixMilli(), limit)
}

func (r *triggerRepository) Postpone(ctx context.Context, key entity.TriggerKey, until time.Time) (bool, error) {
	query := r.db.Rebind(`UPDATE calendar_alarm_triggers SET retry_after = ?
		WHERE cid = ? AND user_id = ? AND account_id = ? AND event_id = ? AND alarm_id = ? AND recurrence = ?
		AND processed = FALSE`)

	res, err := r.db.ExecContext(ctx, query, until.UnixMilli(),
		key.ContextID, key.UserID, key.AccountID, key.EventID, key.AlarmID, key.Recurrence)
	if err != nil {
		logger.Error("TriggerRepository:Postpone:Error", "error", err, "key", key.String())
		return false, errors.WrapStorage("postpone alarm trigger", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WrapStorage("rows affected", err)
	}
	return n > 0, nil
}

func (r *triggerRepository) list(ctx context.Context, op, query string, args ...any) ([]entity.AlarmTrigger, error) {
	var rows []triggerRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		logger.Error("TriggerRepository:"+op+":Error", "error", err)
		return nil, errors.WrapStorage("list alarm triggers", err)
	}
	triggers := make([]entity.AlarmTrigger, len(rows))
	for i, row := range rows {
		triggers[i] = row.toEntity()
	}
	return triggers, nil
}

func (r *triggerRepository) DeleteByEvent(ctx context.Context, owner calendarentity.Owner, accountID int, eventID string) (int64, error) {
	query := r.db.Rebind(`DELETE FROM calendar_alarm_triggers WHERE cid = ? AND user_id = ? AND account_id = ? AND event_id = ?`)
	return r.delete(ctx, "DeleteByEvent", query, owner.ContextID, owner.UserID, accountID, eventID)
}

func (r *triggerRepository) DeleteByAccount(ctx context.Context, owner calendarentity.Owner, accountID int) (int64, error) {
	query := r.db.Rebind(`DELETE FROM calendar_alarm_triggers WHERE cid = ? AND user_id = ? AND account_id = ?`)
	return r.delete(ctx, "DeleteByAccount", query, owner.ContextID, owner.UserID, accountID)
}

func (r *triggerRepository) delete(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.Error("TriggerRepository:"+op+":Error", "error", err)
		return 0, errors.WrapStorage("delete alarm triggers", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapStorage("rows affected", err)
	}
	return n, nil
}
