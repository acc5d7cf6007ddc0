package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/any-hub/md-hub/internal/content"
)

// DefaultMaxContentBytes 是单篇正文的转换上限（1 MiB）。
const DefaultMaxContentBytes = 1 << 20

// Options 控制本地转换输出的组成部分。
type Options struct {
	IncludeFrontmatter bool
	IncludeTitle       bool
	IncludeMeta        bool
	IncludeExcerpt     bool
	IncludeFooter      bool
	MaxContentBytes    int
}

// DefaultOptions 开启全部组成部分。
func DefaultOptions() Options {
	return Options{
		IncludeFrontmatter: true,
		IncludeTitle:       true,
		IncludeMeta:        true,
		IncludeExcerpt:     true,
		IncludeFooter:      true,
		MaxContentBytes:    DefaultMaxContentBytes,
	}
}

// LocalConverter 在进程内完成 HTML → Markdown 转换。
type LocalConverter struct {
	opts Options
}

// NewLocalConverter 使用给定选项创建转换器。
func NewLocalConverter(opts Options) *LocalConverter {
	if opts.MaxContentBytes <= 0 {
		opts.MaxContentBytes = DefaultMaxContentBytes
	}
	return &LocalConverter{opts: opts}
}

type frontMatter struct {
	Title    string   `yaml:"title"`
	URL      string   `yaml:"url"`
	Type     string   `yaml:"type"`
	Date     string   `yaml:"date,omitempty"`
	Modified string   `yaml:"modified"`
	Author   string   `yaml:"author,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
}

// Render 实现 Renderer。
func (l *LocalConverter) Render(ctx context.Context, doc content.Document, permalink string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(doc.Body) > l.opts.MaxContentBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrContentTooLarge, len(doc.Body))
	}

	body, err := l.body(doc)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var parts []string
	if l.opts.IncludeFrontmatter {
		fm, err := yaml.Marshal(frontMatter{
			Title:    doc.Title,
			URL:      permalink,
			Type:     doc.Type,
			Date:     formatTime(doc.PublishedAt),
			Modified: formatTime(doc.ModifiedAt),
			Author:   doc.Author,
			Tags:     doc.Tags,
		})
		if err != nil {
			return "", fmt.Errorf("encode frontmatter: %w", err)
		}
		parts = append(parts, "---\n"+strings.TrimRight(string(fm), "\n")+"\n---")
	}
	if l.opts.IncludeTitle && doc.Title != "" {
		parts = append(parts, "# "+doc.Title)
	}
	if l.opts.IncludeMeta {
		var meta []string
		if !doc.PublishedAt.IsZero() {
			meta = append(meta, "_Published: "+doc.PublishedAt.UTC().Format("January 2, 2006")+"_")
		}
		if doc.Author != "" {
			meta = append(meta, "_Author: "+doc.Author+"_")
		}
		if len(meta) > 0 {
			parts = append(parts, strings.Join(meta, "\n"))
		}
	}
	if l.opts.IncludeExcerpt {
		if excerpt := strings.TrimSpace(doc.Excerpt); excerpt != "" {
			parts = append(parts, "> "+strings.ReplaceAll(excerpt, "\n", "\n> "))
		}
	}
	if body != "" {
		parts = append(parts, strings.TrimRight(body, "\n"))
	}
	if l.opts.IncludeFooter && permalink != "" {
		parts = append(parts, "---", "_View the original post at: ["+permalink+"]("+permalink+")_")
	}

	return cleanupMarkdown(strings.Join(parts, "\n\n")), nil
}

func (l *LocalConverter) body(doc content.Document) (string, error) {
	if doc.Format == content.FormatMarkdown {
		return strings.TrimSpace(doc.Body), nil
	}
	md, err := HTMLToMarkdown(SanitizeHTML(doc.Body))
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return md, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
