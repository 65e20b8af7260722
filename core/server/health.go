package server

import (
	"context"

	"go-calendar-core/core/controller"

	"github.com/labstack/echo/v4"
)

// Pinger is anything the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	controller.BaseController
	checks    map[string]Pinger
	providers []string
}

func NewHealthController(checks map[string]Pinger, providers []string) *HealthController {
	return &HealthController{
		BaseController: controller.NewBaseController(),
		checks:         checks,
		providers:      providers,
	}
}

type healthStatus struct {
	Checks    map[string]string `json:"checks"`
	Providers []string          `json:"providers"`
}

// Health pings every dependency and answers 503 if any of them fails.
func (h *HealthController) Health(c echo.Context) error {
	status := healthStatus{Checks: make(map[string]string, len(h.checks)), Providers: h.providers}
	healthy := true
	for name, p := range h.checks {
		if err := p.Ping(c.Request().Context()); err != nil {
			status.Checks[name] = err.Error()
			healthy = false
			continue
		}
		status.Checks[name] = "ok"
	}

	if !healthy {
		return h.Unavailable(c, status, "unhealthy")
	}
	return h.SuccessResponse(c, status, "ok")
}

func (h *HealthController) Register(e *echo.Echo) {
	e.GET("/healthz", h.Health)
}
