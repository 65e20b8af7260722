package queue

import (
	"context"
	"os"

	"go-calendar-core/core/logger"

	"github.com/hibiken/asynq"
)

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queue         string
}

func (c Config) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// Enqueuer is the producer side used by the modules; *asynq.Client
// satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func NewClient(config Config) *asynq.Client {
	return asynq.NewClient(config.redisOpt())
}

func NewServer(config Config) *asynq.Server {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	queue := config.Queue
	if queue == "" {
		queue = "default"
	}

	return asynq.NewServer(config.redisOpt(), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("Queue:Task:Error", "type", task.Type(), "error", err)
		}),
		Logger:   asynqLogger{},
		LogLevel: asynq.WarnLevel,
	})
}

// asynqLogger routes asynq's internal logging into the process logger.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...any) { logger.Debug("Queue:Asynq", "detail", args) }
func (asynqLogger) Info(args ...any)  { logger.Info("Queue:Asynq", "detail", args) }
func (asynqLogger) Warn(args ...any)  { logger.Warn("Queue:Asynq", "detail", args) }
func (asynqLogger) Error(args ...any) { logger.Error("Queue:Asynq", "detail", args) }
func (asynqLogger) Fatal(args ...any) {
	logger.Error("Queue:Asynq:Fatal", "detail", args)
	os.Exit(1)
}
