// Package api serves the daemon's operational JSON endpoints: health,
// status, the summary job table, a test-notification trigger, and the
// Prometheus exposition endpoint. The API is read-only apart from the
// test trigger and is disabled unless configured.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/logging"
	"github.com/tphakala/birdnet-notifier/internal/monitor"
	"github.com/tphakala/birdnet-notifier/internal/observability"
	"github.com/tphakala/birdnet-notifier/internal/scheduler"
)

// JobLister exposes the scheduler's job table.
type JobLister interface {
	Jobs() []scheduler.JobStatus
}

// TestPublisher sends a test notification through the live dispatcher.
type TestPublisher interface {
	PublishTest(ctx context.Context) error
}

// WatcherStatus exposes the detection watcher's position.
type WatcherStatus interface {
	IsRunning() bool
	Position() uint
}

// ResourceLister exposes the host monitor's latest readings.
type ResourceLister interface {
	Status() map[string]monitor.ResourceStatus
}

// Controller wires the operational endpoints onto an echo server.
type Controller struct {
	Echo *echo.Echo

	settings  *conf.Settings
	jobs      JobLister
	publisher TestPublisher
	watcher   WatcherStatus
	resources ResourceLister
	metrics   *observability.Metrics
	logger    *slog.Logger
	startTime time.Time
}

// New builds the controller and registers all routes. The watcher, job
// lister, resource lister, and metrics may be nil; their endpoints
// degrade to whatever remains available.
func New(settings *conf.Settings, jobs JobLister, publisher TestPublisher, watcher WatcherStatus, resources ResourceLister, m *observability.Metrics) *Controller {
	logger := logging.ForService("api")
	if logger == nil {
		logger = slog.Default().With("service", "api")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	c := &Controller{
		Echo:      e,
		settings:  settings,
		jobs:      jobs,
		publisher: publisher,
		watcher:   watcher,
		resources: resources,
		metrics:   m,
		logger:    logger,
		startTime: time.Now(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(c.metricsMiddleware())

	e.GET("/healthz", c.Healthz)
	v1 := e.Group("/api/v1")
	v1.GET("/status", c.Status)
	v1.GET("/jobs", c.ListJobs)
	v1.POST("/notify/test", c.SendTestNotification)

	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	return c
}

// Start serves on the configured listen address until Shutdown. It
// blocks, so callers run it in a goroutine; http.ErrServerClosed is
// filtered out as the normal shutdown result.
func (c *Controller) Start() error {
	c.logger.Info("operational API listening", "address", c.settings.API.Listen)
	err := c.Echo.Start(c.settings.API.Listen)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.Echo.Shutdown(ctx)
}

// ErrorResponse is the JSON error document all endpoints share.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HandleError logs the failure and writes the shared error document.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	c.logger.Error("request failed",
		"method", ctx.Request().Method,
		"path", ctx.Request().URL.Path,
		"message", message,
		"error", errorStr,
		"code", code)
	return ctx.JSON(code, &ErrorResponse{Error: errorStr, Message: message, Code: code})
}
