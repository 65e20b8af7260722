package notification

import (
	"go-calendar-core/core/database"
	"go-calendar-core/modules/alarm/tasks"
	"go-calendar-core/modules/notification/repository"
	"go-calendar-core/modules/notification/service"
)

var _ tasks.Notifier = (*service.NotificationService)(nil)

// Init returns the inbox that receives fired alarms.
func Init(db *database.Database) *service.NotificationService {
	return service.NewNotificationService(repository.NewNotificationRepository(db))
}
