package markdown

import (
	"context"
	"errors"

	"github.com/any-hub/md-hub/internal/config"
	"github.com/any-hub/md-hub/internal/content"
)

var (
	// ErrTypeDisabled 表示文档类型未启用 Markdown 输出；对外等同于 NotFound。
	ErrTypeDisabled = errors.New("document type disabled")
	// ErrRenderFailed 表示渲染器报错或超时；此时不会写入缓存。
	ErrRenderFailed = errors.New("markdown render failed")
)

// Kind 将错误归类为日志使用的短代码。
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, content.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTypeDisabled):
		return "type_disabled"
	case errors.Is(err, ErrRenderFailed):
		return "render_failed"
	case errors.Is(err, config.ErrConfigInvalid):
		return "config_invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
