// Package render turns a document into Markdown text. LocalConverter works in
// process (sanitize, HTML to Markdown, frontmatter and footer); RemoteRenderer
// delegates to a conversion worker over HTTP. Callers bound every call with a
// context deadline.
package render

import (
	"context"
	"errors"

	"github.com/any-hub/md-hub/internal/content"
)

// ErrContentTooLarge 表示正文超过转换上限。
var ErrContentTooLarge = errors.New("content exceeds conversion limit")

// Renderer 将文档渲染为 Markdown。实现必须是纯函数式的：相同文档版本产出相同文本。
type Renderer interface {
	Render(ctx context.Context, doc content.Document, permalink string) (string, error)
}

// Func 将普通函数适配为 Renderer。
type Func func(ctx context.Context, doc content.Document, permalink string) (string, error)

// Render 实现 Renderer。
func (f Func) Render(ctx context.Context, doc content.Document, permalink string) (string, error) {
	return f(ctx, doc, permalink)
}
