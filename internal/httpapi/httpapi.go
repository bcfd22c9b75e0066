// Package httpapi exposes the ops-only HTTP surface: /healthz and
// /metrics. This is deliberately the ONLY HTTP surface in the server — all
// domain logic is reached exclusively through the wire protocol (§6); no
// REST endpoint ever substitutes for a frame type.
package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexusbbs/nexusd/internal/logging"
)

// HealthFunc reports whether the server is ready to accept connections.
type HealthFunc func() bool

// New builds the ops echo.Echo instance bound to healthFn and the given
// Prometheus registry.
func New(reg *prometheus.Registry, healthFn HealthFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	log := logging.For("httpapi")
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			log.WithField("path", c.Request().URL.Path).Debug("ops request")
			return err
		}
	})

	e.GET("/healthz", func(c echo.Context) error {
		if healthFn != nil && !healthFn() {
			return c.String(http.StatusServiceUnavailable, "not ready")
		}
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return e
}
