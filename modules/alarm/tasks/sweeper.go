package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"go-calendar-core/core/logger"
	"go-calendar-core/modules/alarm/dto"
	"go-calendar-core/modules/alarm/entity"
	"go-calendar-core/modules/alarm/service"
	"go-calendar-core/modules/calendar/idmangling"
)

// DeliverEnqueuer is satisfied by *Producer.
type DeliverEnqueuer interface {
	EnqueueDeliver(ctx context.Context, payload dto.DeliverPayload) error
}

// Sweeper periodically fires due alarm triggers.
type Sweeper struct {
	scheduler service.AlarmScheduler
	enqueuer  DeliverEnqueuer
	mangler   *idmangling.Mangler
	batch     int
	now       func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func NewSweeper(scheduler service.AlarmScheduler, enqueuer DeliverEnqueuer, mangler *idmangling.Mangler, batch int) *Sweeper {
	if batch <= 0 {
		batch = 200
	}
	return &Sweeper{
		scheduler: scheduler,
		enqueuer:  enqueuer,
		mangler:   mangler,
		batch:     batch,
		now:       time.Now,
	}
}

// Start runs RunOnce on schedule until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})), cron.WithLogger(cronLogger{}))
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			logger.Error("Sweeper:Run:Error", "error", err)
		}
	}); err != nil {
		return err
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	logger.Info("Sweeper:Start", "schedule", schedule, "batch", s.batch)
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	logger.Info("Sweeper:Stop")
}

// RunOnce fires the triggers due now, at most one batch.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	return s.scheduler.FireDueTriggers(ctx, s.now(), s.batch, s.deliver)
}

func (s *Sweeper) deliver(ctx context.Context, t entity.AlarmTrigger) error {
	accountID := t.AccountID.MustGet()
	folderID := t.FolderID.MustGet()
	composite := idmangling.MangleEvent(idmangling.CompositeEventID{
		AccountID:    accountID,
		FolderID:     folderID,
		EventID:      t.EventID.MustGet(),
		RecurrenceID: t.Recurrence,
	})
	return s.enqueuer.EnqueueDeliver(ctx, dto.DeliverPayload{
		ContextID:   t.ContextID.MustGet(),
		UserID:      t.UserID.MustGet(),
		EventID:     composite,
		FolderID:    s.mangler.MangleFolder(accountID, folderID),
		AlarmID:     t.AlarmID.MustGet(),
		Action:      t.Action.MustGet(),
		TriggerTime: t.TriggerTime.MustGet(),
	})
}

// cronLogger routes cron's logging into the process logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug("Sweeper:Cron:"+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Error("Sweeper:Cron:"+msg, append(keysAndValues, "error", err)...)
}
