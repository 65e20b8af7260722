package service

import (
	"context"
	"time"

	"go-calendar-core/core/errors"
	"go-calendar-core/core/logger"
	"go-calendar-core/modules/alarm/dto"
	calendarentity "go-calendar-core/modules/calendar/entity"
	"go-calendar-core/modules/notification/entity"
	"go-calendar-core/modules/notification/repository"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NotificationService keeps the inbox of fired alarms. It satisfies the
// alarm worker's Notifier.
type NotificationService struct {
	repo repository.NotificationRepository
	now  func() time.Time
}

func NewNotificationService(repo repository.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo, now: time.Now}
}

// Notify stores a delivered alarm. Redelivery of the same occurrence is a
// no-op.
func (s *NotificationService) Notify(ctx context.Context, p dto.DeliverPayload) error {
	if p.ContextID <= 0 || p.UserID <= 0 || p.EventID == "" {
		return errors.NewAppError(errors.ErrInvalidInput, "incomplete alarm delivery", nil).
			WithDetail("event_id", p.EventID)
	}

	n := &entity.Notification{
		ID:          uuid.NewString(),
		ContextID:   p.ContextID,
		UserID:      p.UserID,
		EventID:     p.EventID,
		FolderID:    p.FolderID,
		AlarmID:     p.AlarmID,
		Action:      p.Action,
		TriggerTime: p.TriggerTime.UTC(),
		CreatedAt:   s.now().UTC(),
	}
	created, err := s.repo.Create(ctx, n)
	if err != nil {
		return err
	}
	if !created {
		logger.Debug("NotificationService:Notify:Duplicate", "event_id", p.EventID, "alarm_id", p.AlarmID)
		return nil
	}
	logger.Info("NotificationService:Notify:Success", "id", n.ID, "cid", p.ContextID, "user_id", p.UserID,
		"action", p.Action, "title", n.Title())
	return nil
}

// List returns one page of the owner's inbox, newest trigger first.
func (s *NotificationService) List(ctx context.Context, owner calendarentity.Owner, limit, offset int) (*entity.Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	offset = max(offset, 0)

	items, err := s.repo.List(ctx, owner, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.Count(ctx, owner, false)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.Count(ctx, owner, true)
	if err != nil {
		return nil, err
	}
	return &entity.Page{Items: items, Total: total, Unread: unread, Limit: limit, Offset: offset}, nil
}

func (s *NotificationService) CountUnread(ctx context.Context, owner calendarentity.Owner) (int, error) {
	return s.repo.Count(ctx, owner, true)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, owner calendarentity.Owner, ids []string) (int64, error) {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return 0, errors.NewAppError(errors.ErrInvalidInput, "invalid notification id", err).WithDetail("id", id)
		}
	}
	return s.repo.MarkAsRead(ctx, owner, ids)
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, owner calendarentity.Owner) (int64, error) {
	return s.repo.MarkAllAsRead(ctx, owner)
}
