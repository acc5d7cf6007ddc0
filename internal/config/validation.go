package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
// 首页模式不在这里拒绝：非法值在运行时回退为 index.md。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.DatabasePath == "" {
		return newFieldError("Global.DatabasePath", "不能为空")
	}
	if err := validateHTTPURL(g.SiteURL); err != nil {
		return fmt.Errorf("Global.SiteURL: %w", err)
	}
	if g.MaxMemoryEntries < 0 {
		return newFieldError("Global.MaxMemoryEntries", "不能为负数")
	}
	if g.RedisDB < 0 {
		return newFieldError("Global.RedisDB", "不能为负数")
	}
	if g.RenderTimeout.DurationValue() <= 0 {
		return newFieldError("Global.RenderTimeout", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	switch g.RendererMode {
	case RendererLocal:
	case RendererRemote:
		if err := validateHTTPURL(g.WorkerURL); err != nil {
			return fmt.Errorf("Global.WorkerURL: %w", err)
		}
	default:
		return newFieldError("Global.RendererMode", "仅支持 local|remote")
	}

	if spec := strings.TrimSpace(g.WarmSchedule); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return newFieldError("Global.WarmSchedule", err.Error())
		}
		if g.WarmLimit <= 0 {
			return newFieldError("Global.WarmLimit", "启用预热时必须大于 0")
		}
	}

	for _, t := range c.Markdown.EnabledTypes {
		if strings.TrimSpace(t) == "" {
			return newFieldError("Markdown.EnabledTypes", "不能包含空类型")
		}
	}

	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
