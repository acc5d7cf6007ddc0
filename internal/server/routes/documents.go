package routes

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/md-hub/internal/content"
	"github.com/any-hub/md-hub/internal/logging"
)

// RegisterDocumentRoutes 暴露 /-/documents 管理接口。所有写入经由 content.Service，
// 因此会同步触发缓存失效与预生成。
func RegisterDocumentRoutes(app *fiber.App, svc *content.Service, logger *logrus.Logger) {
	if app == nil || svc == nil {
		return
	}
	logger = ensureLogger(logger)

	app.Get("/-/documents", func(c fiber.Ctx) error {
		opts := content.ListOptions{Status: strings.TrimSpace(c.Query("status"))}
		if raw := strings.TrimSpace(c.Query("type")); raw != "" {
			opts.Types = strings.Split(raw, ",")
		}
		if raw := c.Query("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				return errorJSON(c, fiber.StatusBadRequest, "invalid_limit")
			}
			opts.Limit = limit
		}
		docs, err := svc.List(c.Context(), opts)
		if err != nil {
			logger.WithField("action", "document_list").WithError(err).Error("list documents failed")
			return errorJSON(c, fiber.StatusInternalServerError, "internal")
		}
		return c.JSON(fiber.Map{"documents": docs})
	})

	app.Post("/-/documents", func(c fiber.Ctx) error {
		var doc content.Document
		if err := c.Bind().JSON(&doc); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_body")
		}
		created, err := svc.Create(c.Context(), doc)
		if err != nil {
			return documentError(c, logger, "document_create", 0, err)
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	})

	app.Get("/-/documents/:id", func(c fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_id")
		}
		doc, err := svc.Get(c.Context(), id)
		if err != nil {
			return documentError(c, logger, "document_get", id, err)
		}
		return c.JSON(doc)
	})

	app.Put("/-/documents/:id", func(c fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_id")
		}
		var doc content.Document
		if err := c.Bind().JSON(&doc); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_body")
		}
		updated, err := svc.Update(c.Context(), id, doc)
		if err != nil {
			return documentError(c, logger, "document_update", id, err)
		}
		return c.JSON(updated)
	})

	app.Delete("/-/documents/:id", func(c fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_id")
		}
		if err := svc.Delete(c.Context(), id); err != nil {
			return documentError(c, logger, "document_delete", id, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func documentError(c fiber.Ctx, logger *logrus.Logger, action string, id int64, err error) error {
	switch {
	case errors.Is(err, content.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, "document_not_found")
	case errors.Is(err, content.ErrInvalidDocument):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_document", "detail": err.Error()})
	default:
		logger.WithFields(logging.DocumentFields(action, id)).WithError(err).Error("document write failed")
		return errorJSON(c, fiber.StatusInternalServerError, "internal")
	}
}

func documentID(c fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Params("id")), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func ensureLogger(logger *logrus.Logger) *logrus.Logger {
	if logger != nil {
		return logger
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}

func errorJSON(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}
