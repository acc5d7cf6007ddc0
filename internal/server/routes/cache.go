package routes

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/md-hub/internal/content"
	"github.com/any-hub/md-hub/internal/logging"
	"github.com/any-hub/md-hub/internal/markdown"
)

const defaultWarmLimit = 10

// RegisterCacheRoutes 暴露 /-/cache 运维接口：统计、清空、预热、单篇失效与重建。
func RegisterCacheRoutes(app *fiber.App, mgr *markdown.Manager, logger *logrus.Logger) {
	if app == nil || mgr == nil {
		return
	}
	logger = ensureLogger(logger)

	app.Get("/-/cache/stats", func(c fiber.Ctx) error {
		return c.JSON(mgr.Stats(c.Context()))
	})

	app.Post("/-/cache/clear", func(c fiber.Ctx) error {
		if err := mgr.ClearAll(c.Context()); err != nil {
			logger.WithField("action", "cache_clear").WithError(err).Error("cache clear failed")
			return errorJSON(c, fiber.StatusInternalServerError, "cache_clear_failed")
		}
		return c.JSON(fiber.Map{"cleared": true})
	})

	app.Post("/-/cache/warm", func(c fiber.Ctx) error {
		limit := defaultWarmLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				return errorJSON(c, fiber.StatusBadRequest, "invalid_limit")
			}
			limit = parsed
		}
		report, err := mgr.Warm(c.Context(), limit)
		if err != nil {
			logger.WithField("action", "cache_warm").WithError(err).Error("cache warm failed")
			return errorJSON(c, fiber.StatusInternalServerError, "cache_warm_failed")
		}
		return c.JSON(report)
	})

	app.Delete("/-/cache/:id", func(c fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_id")
		}
		if err := mgr.Invalidate(c.Context(), id); err != nil {
			logger.WithFields(logging.DocumentFields("cache_invalidate", id)).WithError(err).Error("invalidate failed")
			return errorJSON(c, fiber.StatusInternalServerError, "cache_invalidate_failed")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Post("/-/cache/regenerate/:id", func(c fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_id")
		}
		res, err := mgr.Regenerate(c.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, content.ErrNotFound), errors.Is(err, markdown.ErrTypeDisabled):
				return errorJSON(c, fiber.StatusNotFound, markdown.Kind(err))
			case errors.Is(err, markdown.ErrRenderFailed):
				return errorJSON(c, fiber.StatusInternalServerError, markdown.Kind(err))
			default:
				logger.WithFields(logging.DocumentFields("cache_regenerate", id)).WithError(err).Error("regenerate failed")
				return errorJSON(c, fiber.StatusInternalServerError, "internal")
			}
		}
		return c.JSON(fiber.Map{
			"id":           id,
			"version":      res.Version,
			"status":       res.Status,
			"generated_at": res.GeneratedAt.Format(time.RFC3339Nano),
			"bytes":        len(res.Text),
		})
	})
}
