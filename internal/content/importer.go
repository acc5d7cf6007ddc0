package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
)

// ImportResult 汇总一次目录导入的结果。
type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped []string `json:"skipped,omitempty"`
}

type importMeta struct {
	Title   string    `yaml:"title"`
	Type    string    `yaml:"type"`
	Path    string    `yaml:"path"`
	Slug    string    `yaml:"slug"`
	Status  string    `yaml:"status"`
	Author  string    `yaml:"author"`
	Excerpt string    `yaml:"excerpt"`
	Tags    []string  `yaml:"tags"`
	Date    time.Time `yaml:"date"`
	Draft   bool      `yaml:"draft"`
}

// ImportDir 将目录下带 YAML frontmatter 的 .md 文件写入站点。已存在相同路径的文档会被更新，
// 每次写入都经过 Service，因此会照常触发缓存失效与预生成。
func ImportDir(ctx context.Context, svc *Service, dir string) (ImportResult, error) {
	var result ImportResult

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		source, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		doc, err := ParseMarkdownFile(rel, source)
		if err != nil {
			result.Skipped = append(result.Skipped, rel)
			return nil
		}

		existing, err := svc.Resolve(ctx, doc.Path)
		switch {
		case err == nil:
			if _, err := svc.Update(ctx, existing.ID, doc); err != nil {
				return fmt.Errorf("update %s: %w", rel, err)
			}
			result.Updated++
		case errors.Is(err, ErrNotFound):
			if _, err := svc.Create(ctx, doc); err != nil {
				return fmt.Errorf("create %s: %w", rel, err)
			}
			result.Created++
		default:
			return err
		}
		return nil
	})
	return result, err
}

// ParseMarkdownFile 将带 frontmatter 的 Markdown 源文件转换为文档。rel 为相对导入目录的路径，
// 未声明 path/slug 时据此推导 URL 路径，index.md 对应所在目录。
func ParseMarkdownFile(rel string, source []byte) (Document, error) {
	var meta importMeta
	body, err := frontmatter.Parse(bytes.NewReader(source), &meta)
	if err != nil {
		return Document{}, fmt.Errorf("parse frontmatter: %w", err)
	}

	docPath := meta.Path
	if docPath == "" {
		docPath = derivePath(rel, meta.Slug)
	}
	docType := meta.Type
	if docType == "" {
		docType = "post"
	}
	status := meta.Status
	if meta.Draft {
		status = StatusDraft
	}

	title := meta.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	}

	return Document{
		Type:        docType,
		Status:      status,
		Path:        docPath,
		Title:       title,
		Excerpt:     meta.Excerpt,
		Author:      meta.Author,
		Format:      FormatMarkdown,
		Body:        strings.TrimSpace(string(body)) + "\n",
		Tags:        meta.Tags,
		PublishedAt: meta.Date.UTC(),
	}, nil
}

func derivePath(rel, slug string) string {
	rel = filepath.ToSlash(rel)
	dir, file := "/"+strings.TrimPrefix(filepath.ToSlash(filepath.Dir(rel)), "."), filepath.Base(rel)
	name := strings.TrimSuffix(file, filepath.Ext(file))
	if slug != "" {
		name = slug
	}
	if name == "index" && slug == "" {
		return NormalizePath(dir)
	}
	return NormalizePath(dir + "/" + name)
}
