// Package fiberapp hosts the ProxyService on fiber, the alternative server
// engine. Routes and response semantics match the echo engine. fasthttp does
// not cancel a handler when the client goes away, so an upstream fetch runs
// until the configured timeout even after a disconnect; New logs a warning
// about it at startup.
package fiberapp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"

	"minij-proxy-go/internal/config"
	"minij-proxy-go/internal/handler"
	"minij-proxy-go/internal/metrics"
	"minij-proxy-go/internal/model"
	"minij-proxy-go/internal/service"
)

// Server runs a fiber application on a caller-provided listener.
type Server struct {
	app *fiber.App
}

// New builds the fiber application. m may be nil when metrics are disabled.
func New(cfg *config.Config, svc *service.ProxyService, v handler.Version, m *metrics.Metrics, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "minij-proxy",
		DisableStartupMessage: true,
		BodyLimit:             int(cfg.Server.BodyMaxBytes),
	})
	// A relayed upstream Date must reach the client; dateHeader covers the rest.
	app.Server().NoDefaultDate = true

	logger.Warn("fiber engine does not cancel upstream fetches when a client disconnects",
		"timeout_seconds", cfg.Proxy.TimeoutSeconds,
	)

	app.Use(dateHeader)
	app.Use(fiberrecover.New())
	app.Use(requestLogger(logger))
	if m != nil {
		app.Use(requestMetrics(m))
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/proxy/status", func(c *fiber.Ctx) error {
		return c.JSON(handler.StatusBody(cfg, v))
	})
	app.All("/", proxyHandler(svc))

	return &Server{app: app}
}

// App exposes the underlying fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func proxyHandler(svc *service.ProxyService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := inboundRequest(c.Context())
		req.Ctx = c.UserContext()

		resp := svc.Handle(req)

		out := &c.Response().Header
		out.SetNoDefaultContentType(true)
		for key, vals := range resp.Header {
			for _, v := range vals {
				out.Set(key, v)
			}
		}
		c.Status(resp.StatusCode)
		if len(resp.Body) == 0 {
			return nil
		}
		return c.Send(resp.Body)
	}
}

// inboundRequest copies method, query and headers out of the fasthttp
// request. fasthttp reuses its buffers, so every value is copied.
func inboundRequest(ctx *fasthttp.RequestCtx) *model.InboundRequest {
	query := make(map[string][]string)
	ctx.QueryArgs().VisitAll(func(k, v []byte) {
		key := string(k)
		query[key] = append(query[key], string(v))
	})

	header := make(http.Header)
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		header.Add(string(k), string(v))
	})

	return &model.InboundRequest{
		Method: string(ctx.Method()),
		Query:  query,
		Header: header,
	}
}

// dateHeader stamps the server's own Date. The proxy handler replaces it when
// upstream sent one.
func dateHeader(c *fiber.Ctx) error {
	c.Set(fiber.HeaderDate, time.Now().UTC().Format(http.TimeFormat))
	return c.Next()
}

func requestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelWarn
		}
		logger.Log(c.UserContext(), level, "request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_ip", c.IP(),
			"bytes_out", len(c.Response().Body()),
		)
		return err
	}
}

func requestMetrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		start := time.Now()
		err := c.Next()

		code := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		status := strconv.Itoa(code)
		method := metrics.NormalizeMethod(c.Method())
		path := m.NormalizePath(c.Path())

		m.RequestsTotal.WithLabelValues(method, status, path).Inc()
		m.RequestDuration.WithLabelValues(method, status, path).Observe(time.Since(start).Seconds())
		return err
	}
}
