package routes

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/md-hub/internal/config"
	"github.com/any-hub/md-hub/internal/markdown"
)

type settingsPayload struct {
	SiteURL          string                `json:"site_url"`
	HomepageFilename string                `json:"homepage_filename"`
	Markdown         config.MarkdownConfig `json:"markdown"`
	Warning          string                `json:"warning,omitempty"`
}

// RegisterSettingsRoutes 暴露 /-/settings，运行时整体替换 [Markdown] 设置。
// 非法的首页模式不会被拒绝：设置照常发布，首页回退为 index.md 并返回告警。
func RegisterSettingsRoutes(app *fiber.App, settings *config.Settings, logger *logrus.Logger) {
	if app == nil || settings == nil {
		return
	}
	logger = ensureLogger(logger)

	app.Get("/-/settings", func(c fiber.Ctx) error {
		return c.JSON(encodeSettings(settings.Snapshot()))
	})

	app.Put("/-/settings", func(c fiber.Ctx) error {
		var md config.MarkdownConfig
		if err := c.Bind().JSON(&md); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_body")
		}
		snap, err := settings.Replace(md)
		payload := encodeSettings(snap)
		if err != nil {
			if !errors.Is(err, config.ErrConfigInvalid) {
				return errorJSON(c, fiber.StatusInternalServerError, "internal")
			}
			payload.Warning = markdown.Kind(err)
			logger.WithFields(logrus.Fields{
				"action":     "settings_update",
				"error_kind": payload.Warning,
			}).WithError(err).Warn("homepage pattern invalid, falling back to index.md")
		}
		logger.WithFields(logrus.Fields{
			"action":        "settings_update",
			"enabled_types": snap.EnabledTypes,
		}).Info("markdown settings replaced")
		return c.JSON(payload)
	})
}

func encodeSettings(snap config.Snapshot) settingsPayload {
	name, _ := snap.HomepageFilename()
	return settingsPayload{
		SiteURL:          snap.SiteURL,
		HomepageFilename: name,
		Markdown:         snap.Markdown(),
	}
}
