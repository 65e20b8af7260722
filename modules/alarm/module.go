package alarm

import (
	"go-calendar-core/core/config"
	"go-calendar-core/core/database"
	"go-calendar-core/core/logger"
	"go-calendar-core/core/queue"
	"go-calendar-core/modules/alarm/repository"
	"go-calendar-core/modules/alarm/service"
	"go-calendar-core/modules/alarm/tasks"
	"go-calendar-core/modules/calendar/idmangling"
	calendarrepository "go-calendar-core/modules/calendar/repository"
	calendarservice "go-calendar-core/modules/calendar/service"
)

// The scheduler drops an account's triggers when the account is deleted.
var _ calendarservice.DeleteListener = service.AlarmScheduler(nil)

type Module struct {
	Scheduler service.AlarmScheduler
	Triggers  repository.TriggerRepository
	Handler   *tasks.Handler
	Producer  *tasks.Producer
	Sweeper   *tasks.Sweeper
}

// Init wires the alarm layers. client may be nil when no worker runs; then
// Producer and Sweeper stay nil.
func Init(db *database.Database, client queue.Enqueuer, cfg *config.Config, notifier tasks.Notifier) *Module {
	triggers := repository.NewTriggerRepository(db)
	// Accounts are only read inside the recalculation transaction, which
	// bypasses the account cache.
	accounts := calendarrepository.NewAccountRepository(db, nil, 0)
	scheduler := service.NewAlarmScheduler(db, triggers, accounts)

	m := &Module{
		Scheduler: scheduler,
		Triggers:  triggers,
		Handler: tasks.NewHandler(scheduler, notifier, tasks.HandlerConfig{
			Lookahead:      cfg.Alarm.Lookahead,
			MaxOccurrences: cfg.Alarm.MaxOccurrences,
		}),
	}
	if client != nil {
		mangler := idmangling.NewMangler(cfg.IDs.ReservedFolders, cfg.IDs.SharedPrefix)
		m.Producer = tasks.NewProducer(client, cfg.Worker.Queue)
		m.Sweeper = tasks.NewSweeper(scheduler, m.Producer, mangler, cfg.Alarm.SweepBatch)
	}

	logger.Info("Alarm:Init", "worker", client != nil, "lookahead", cfg.Alarm.Lookahead)
	return m
}
