package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/monitor"
	"github.com/tphakala/birdnet-notifier/internal/scheduler"
)

// HealthzResponse is the liveness document.
type HealthzResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// WatcherInfo reports the detection watcher's progress through the
// detection table.
type WatcherInfo struct {
	Running  bool `json:"running"`
	Position uint `json:"position"`
}

// StatusResponse is the full daemon status document.
type StatusResponse struct {
	Version       string                            `json:"version,omitempty"`
	NodeName      string                            `json:"node_name"`
	UptimeSeconds int64                             `json:"uptime_seconds"`
	Watcher       *WatcherInfo                      `json:"watcher,omitempty"`
	Jobs          []scheduler.JobStatus             `json:"jobs"`
	Resources     map[string]monitor.ResourceStatus `json:"resources,omitempty"`
}

// TestNotificationResponse acknowledges a test send.
type TestNotificationResponse struct {
	Status string `json:"status"`
}

// Healthz reports liveness. It never touches the store or providers, so a
// 200 here means only that the process is serving requests.
func (c *Controller) Healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &HealthzResponse{
		Status:  "ok",
		Version: c.settings.Version,
	})
}

// Status reports uptime, the watcher position, the summary job table,
// and the host monitor's readings when monitoring is running.
func (c *Controller) Status(ctx echo.Context) error {
	resp := &StatusResponse{
		Version:       c.settings.Version,
		NodeName:      c.settings.Main.Name,
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
		Jobs:          c.jobStatuses(),
	}
	if c.watcher != nil {
		resp.Watcher = &WatcherInfo{
			Running:  c.watcher.IsRunning(),
			Position: c.watcher.Position(),
		}
	}
	if c.resources != nil {
		resp.Resources = c.resources.Status()
	}
	return ctx.JSON(http.StatusOK, resp)
}

// ListJobs returns the scheduler's job table.
func (c *Controller) ListJobs(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.jobStatuses())
}

// SendTestNotification pushes a test notification through every enabled
// provider. Delivery failures map to 502 so probes can distinguish a
// broken provider from a broken API.
func (c *Controller) SendTestNotification(ctx echo.Context) error {
	if c.publisher == nil {
		return c.HandleError(ctx, nil, "notification dispatch is not configured", http.StatusServiceUnavailable)
	}
	if err := c.publisher.PublishTest(ctx.Request().Context()); err != nil {
		return c.HandleError(ctx, err, "test notification failed", http.StatusBadGateway)
	}
	c.logger.Info("test notification sent", "remote", ctx.RealIP())
	return ctx.JSON(http.StatusOK, &TestNotificationResponse{Status: "sent"})
}

// jobStatuses normalizes a nil job lister to an empty table so the JSON
// field is always an array.
func (c *Controller) jobStatuses() []scheduler.JobStatus {
	if c.jobs == nil {
		return []scheduler.JobStatus{}
	}
	jobs := c.jobs.Jobs()
	if jobs == nil {
		return []scheduler.JobStatus{}
	}
	return jobs
}

// metricsMiddleware records request counts, durations, and response sizes
// against the route template so path cardinality stays bounded.
func (c *Controller) metricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if c.metrics == nil || c.metrics.HTTP == nil {
				return next(ctx)
			}

			start := time.Now()
			err := next(ctx)
			elapsed := time.Since(start).Seconds()

			path := ctx.Path()
			if path == "" {
				path = ctx.Request().URL.Path
			}
			method := ctx.Request().Method
			status := ctx.Response().Status
			if err != nil {
				// The error handler has not run yet, so derive the
				// status from the error itself.
				status = http.StatusInternalServerError
				var httpErr *echo.HTTPError
				if errors.As(err, &httpErr) {
					status = httpErr.Code
				}
				c.metrics.HTTP.RecordHTTPRequestError(method, path, "handler_error")
			}

			c.metrics.HTTP.RecordHTTPRequest(method, path, strconv.Itoa(status), elapsed)
			if size := ctx.Response().Size; size > 0 {
				c.metrics.HTTP.RecordHTTPResponseSize(method, path, size)
			}
			return err
		}
	}
}
