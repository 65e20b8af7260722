package repository

import (
	"context"
	"time"

	"go-calendar-core/core/database"
	"go-calendar-core/core/errors"
	"go-calendar-core/core/logger"
	calendarentity "go-calendar-core/modules/calendar/entity"
	"go-calendar-core/modules/notification/entity"

	"github.com/jmoiron/sqlx"
)

type NotificationRepository interface {
	// Create stores n unless the same alarm occurrence was already
	// delivered. Reports whether a row was written.
	Create(ctx context.Context, n *entity.Notification) (bool, error)
	List(ctx context.Context, owner calendarentity.Owner, limit, offset int) ([]entity.Notification, error)
	Count(ctx context.Context, owner calendarentity.Owner, unreadOnly bool) (int, error)
	MarkAsRead(ctx context.Context, owner calendarentity.Owner, ids []string) (int64, error)
	MarkAllAsRead(ctx context.Context, owner calendarentity.Owner) (int64, error)
}

type notificationRow struct {
	ID          string `db:"id"`
	ContextID   int    `db:"cid"`
	UserID      int    `db:"user_id"`
	EventID     string `db:"event_id"`
	FolderID    string `db:"folder_id"`
	AlarmID     int    `db:"alarm_id"`
	Action      string `db:"action"`
	TriggerTime int64  `db:"trigger_time"`
	IsRead      bool   `db:"is_read"`
	CreatedAt   int64  `db:"created_at"`
}

func (r notificationRow) toEntity() entity.Notification {
	return entity.Notification{
		ID:          r.ID,
		ContextID:   r.ContextID,
		UserID:      r.UserID,
		EventID:     r.EventID,
		FolderID:    r.FolderID,
		AlarmID:     r.AlarmID,
		Action:      r.Action,
		TriggerTime: time.UnixMilli(r.TriggerTime).UTC(),
		IsRead:      r.IsRead,
		CreatedAt:   time.UnixMilli(r.CreatedAt).UTC(),
	}
}

const notificationColumns = `id, cid, user_id, event_id, folder_id, alarm_id, action, trigger_time, is_read, created_at`

type notificationRepository struct {
	db *database.Database
}

func NewNotificationRepository(db *database.Database) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *entity.Notification) (bool, error) {
	query := r.db.Rebind(`INSERT INTO calendar_notifications (` + notificationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cid, user_id, event_id, alarm_id, trigger_time) DO NOTHING`)

	res, err := r.db.ExecContext(ctx, query, n.ID, n.ContextID, n.UserID, n.EventID, n.FolderID, n.AlarmID,
		n.Action, n.TriggerTime.UnixMilli(), n.IsRead, n.CreatedAt.UnixMilli())
	if err != nil {
		logger.Error("NotificationRepository:Create:Error", "error", err, "event_id", n.EventID, "alarm_id", n.AlarmID)
		return false, errors.WrapStorage("create notification", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.WrapStorage("create notification", err)
	}
	return affected > 0, nil
}

func (r *notificationRepository) List(ctx context.Context, owner calendarentity.Owner, limit, offset int) ([]entity.Notification, error) {
	query := r.db.Rebind(`SELECT ` + notificationColumns + ` FROM calendar_notifications
		WHERE cid = ? AND user_id = ?
		ORDER BY trigger_time DESC, id
		LIMIT ? OFFSET ?`)

	var rows []notificationRow
	if err := r.db.SelectContext(ctx, &rows, query, owner.ContextID, owner.UserID, limit, offset); err != nil {
		logger.Error("NotificationRepository:List:Error", "error", err, "owner", owner.String())
		return nil, errors.WrapStorage("list notifications", err)
	}
	out := make([]entity.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

func (r *notificationRepository) Count(ctx context.Context, owner calendarentity.Owner, unreadOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM calendar_notifications WHERE cid = ? AND user_id = ?`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}

	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), owner.ContextID, owner.UserID); err != nil {
		logger.Error("NotificationRepository:Count:Error", "error", err, "owner", owner.String())
		return 0, errors.WrapStorage("count notifications", err)
	}
	return count, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, owner calendarentity.Owner, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`UPDATE calendar_notifications SET is_read = TRUE
		WHERE cid = ? AND user_id = ? AND id IN (?)`, owner.ContextID, owner.UserID, ids)
	if err != nil {
		return 0, errors.NewAppError(errors.ErrInvalidInput, "invalid notification ids", err)
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		logger.Error("NotificationRepository:MarkAsRead:Error", "error", err, "owner", owner.String())
		return 0, errors.WrapStorage("mark notifications read", err)
	}
	return res.RowsAffected()
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, owner calendarentity.Owner) (int64, error) {
	query := r.db.Rebind(`UPDATE calendar_notifications SET is_read = TRUE
		WHERE cid = ? AND user_id = ? AND is_read = FALSE`)

	res, err := r.db.ExecContext(ctx, query, owner.ContextID, owner.UserID)
	if err != nil {
		logger.Error("NotificationRepository:MarkAllAsRead:Error", "error", err, "owner", owner.String())
		return 0, errors.WrapStorage("mark all notifications read", err)
	}
	return res.RowsAffected()
}
