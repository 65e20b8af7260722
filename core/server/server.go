package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go-calendar-core/core/cache"
	"go-calendar-core/core/config"
	"go-calendar-core/core/constants"
	"go-calendar-core/core/controller"
	"go-calendar-core/core/database"
	"go-calendar-core/core/logger"
	"go-calendar-core/core/queue"
	"go-calendar-core/modules/alarm"
	"go-calendar-core/modules/calendar"
	"go-calendar-core/modules/notification"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// ConfigPathEnv names the optional config file.
const ConfigPathEnv = "CALCORE_CONFIG_FILE"

// Run boots the process and blocks until SIGINT or SIGTERM.
func Run() error {
	cfg, err := config.Load(os.Getenv(ConfigPathEnv))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(database.DatabaseConfig{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.InitSchema(ctx); err != nil {
			return err
		}
	}

	c, err := newCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	var enqueuer queue.Enqueuer
	qcfg := queue.Config{
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Worker.Concurrency,
		Queue:         cfg.Worker.Queue,
	}
	if cfg.Worker.Enabled {
		client := queue.NewClient(qcfg)
		defer client.Close()
		enqueuer = client
	}

	alarmModule := alarm.Init(db, enqueuer, cfg, notification.Init(db))
	calendarModule := calendar.Init(db, c, cfg, alarmModule.Scheduler)

	if cfg.Worker.Enabled {
		worker := queue.NewServer(qcfg)
		mux := asynq.NewServeMux()
		alarmModule.Handler.Register(mux)
		if err := worker.Start(mux); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		defer worker.Shutdown()

		if err := alarmModule.Sweeper.Start(ctx, cfg.Alarm.SweepSchedule); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
		defer alarmModule.Sweeper.Stop()
	}

	e := newEcho()
	NewHealthController(map[string]Pinger{"database": db, "cache": c}, calendarModule.Registry.IDs()).Register(e)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server:Start", "addr", addr, "worker", cfg.Worker.Enabled)
		if err := e.Start(addr); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Server:Shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newCache(cfg *config.Config) (cache.Cache, error) {
	if !cfg.Redis.Enabled {
		logger.Info("Server:Cache", "backend", "memory")
		return cache.NewMemoryCache(), nil
	}
	return cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(e, controller.NewBaseController())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		TargetHeader: constants.HealthRequestIDHeader,
		Generator:    uuid.NewString,
	}))
	return e
}

// errorHandler renders AppErrors with their mapped status and leaves echo's
// own errors to the default handler.
func errorHandler(e *echo.Echo, base controller.BaseController) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if stderrors.As(err, &he) {
			e.DefaultHTTPErrorHandler(err, c)
			return
		}
		if rerr := base.ErrorResponse(c, err); rerr != nil {
			logger.Error("Server:ErrorHandler:Error", "error", rerr)
		}
	}
}
