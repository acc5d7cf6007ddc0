package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/md-hub/internal/dispatch"
)

// Dispatcher 执行站点请求的处理链，dispatch.Chain 满足该接口。
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) dispatch.Outcome
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Dispatcher Dispatcher
	ListenPort int
}

const contextKeyRequestID = "_mdhub_request_id"

// NewApp builds a Fiber application with request-id middleware and a
// catch-all route that hands site requests to the dispatch chain.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return serveSite(c, opts)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

func serveSite(c fiber.Ctx, opts AppOptions) error {
	req := buildRequest(c)
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := opts.Dispatcher.Dispatch(ctx, req)
	fields := logrus.Fields{
		"action":     "serve",
		"request_id": req.RequestID,
		"method":     req.Method,
		"path":       req.Path,
		"handler":    out.Handler,
	}
	if out.Kind != dispatch.Respond {
		opts.Logger.WithFields(fields).Debug("no handler answered")
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}

	fields["status"] = out.Response.Status
	if status := out.Response.Headers["X-Cache-Status"]; status != "" {
		fields["cache_status"] = status
	}
	opts.Logger.WithFields(fields).Info("request served")
	return writeResponse(c, out.Response)
}

// buildRequest 把 Fiber 上下文转换为处理链使用的不可变请求。
func buildRequest(c fiber.Ctx) dispatch.Request {
	rawQuery := string(c.Request().URI().QueryString())
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		query = url.Values{}
	}
	return dispatch.Request{
		Method:      c.Method(),
		Path:        string(c.Request().URI().Path()),
		RawQuery:    rawQuery,
		Query:       query,
		Accept:      c.Get(fiber.HeaderAccept),
		Host:        c.Hostname(),
		Scheme:      c.Scheme(),
		RequestID:   RequestID(c),
		IfNoneMatch: c.Get(fiber.HeaderIfNoneMatch),
	}
}

func writeResponse(c fiber.Ctx, resp dispatch.Response) error {
	for key, value := range resp.Headers {
		c.Set(key, value)
	}
	status := resp.Status
	if status == 0 {
		status = fiber.StatusOK
	}
	c.Status(status)
	if len(resp.Body) == 0 {
		return nil
	}
	return c.Send(resp.Body)
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
