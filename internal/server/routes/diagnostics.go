package routes

import (
	"context"
	"net/http"
	"sort"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/any-hub/md-hub/internal/dispatch"
)

// RegisterDispatchRoutes 暴露 /-/dispatch 诊断接口，列出处理链的执行顺序。
func RegisterDispatchRoutes(app *fiber.App, chain *dispatch.Chain) {
	if app == nil || chain == nil {
		return
	}

	app.Get("/-/dispatch", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"handlers": encodeHandlers(chain.Snapshot())})
	})
}

type handlerPayload struct {
	Order    int    `json:"order"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Pattern  string `json:"pattern,omitempty"`
}

func encodeHandlers(regs []dispatch.Registered) []handlerPayload {
	if len(regs) == 0 {
		return nil
	}
	sort.SliceStable(regs, func(i, j int) bool {
		return regs[i].Priority < regs[j].Priority
	})
	result := make([]handlerPayload, 0, len(regs))
	for i, reg := range regs {
		result = append(result, handlerPayload{
			Order:    i + 1,
			Name:     reg.Name,
			Priority: reg.Priority,
			Pattern:  reg.Pattern,
		})
	}
	return result
}

// HealthCheck 返回 nil 表示依赖可用。
type HealthCheck func(ctx context.Context) error

// RegisterHealthRoutes 暴露 /-/healthz；任一检查失败返回 503。
func RegisterHealthRoutes(app *fiber.App, checks map[string]HealthCheck) {
	if app == nil {
		return
	}

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		results := make(map[string]string, len(checks))
		healthy := true
		for name, check := range checks {
			if err := check(c.Context()); err != nil {
				results[name] = err.Error()
				healthy = false
				continue
			}
			results[name] = "ok"
		}
		status := fiber.StatusOK
		overall := "ok"
		if !healthy {
			status = fiber.StatusServiceUnavailable
			overall = "degraded"
		}
		return c.Status(status).JSON(fiber.Map{"status": overall, "checks": results})
	})
}

// RegisterMetricsRoute 通过 adaptor 挂载 Prometheus 抓取端点。
func RegisterMetricsRoute(app *fiber.App, handler http.Handler) {
	if app == nil || handler == nil {
		return
	}
	app.Get("/-/metrics", adaptor.HTTPHandler(handler))
}
