package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
)

// 首页 Markdown 文件名模式。
const (
	HomepageIndex  = "index.md"
	HomepageHome   = "home.md"
	HomepageRoot   = "root.md"
	HomepageCustom = "custom"
)

// ErrConfigInvalid 表示设置值非法，调用方应回退到内置默认值。
var ErrConfigInvalid = errors.New("config invalid")

var homepageFilenamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Snapshot 是一次请求或一次内容事件所读取的不可变设置视图。
type Snapshot struct {
	SiteURL                  string
	EnabledTypes             []string
	HomepagePattern          string
	HomepagePatternCustom    string
	EnableContentNegotiation bool
	EnableDiscoveryTags      bool
	EnablePreGeneration      bool

	enabled map[string]struct{}
}

// NewSnapshot 复制配置并构造查找表，之后对外只读。
func NewSnapshot(siteURL string, md MarkdownConfig) Snapshot {
	types := make([]string, 0, len(md.EnabledTypes))
	enabled := make(map[string]struct{}, len(md.EnabledTypes))
	for _, t := range md.EnabledTypes {
		key := strings.ToLower(strings.TrimSpace(t))
		if key == "" {
			continue
		}
		if _, dup := enabled[key]; dup {
			continue
		}
		enabled[key] = struct{}{}
		types = append(types, key)
	}
	return Snapshot{
		SiteURL:                  strings.TrimRight(strings.TrimSpace(siteURL), "/"),
		EnabledTypes:             types,
		HomepagePattern:          strings.TrimSpace(md.HomepagePattern),
		HomepagePatternCustom:    strings.TrimSpace(md.HomepagePatternCustom),
		EnableContentNegotiation: md.EnableContentNegotiation,
		EnableDiscoveryTags:      md.EnableDiscoveryTags,
		EnablePreGeneration:      md.EnablePreGeneration,
		enabled:                  enabled,
	}
}

// TypeEnabled 判断文档类型是否在启用列表中。
func (s Snapshot) TypeEnabled(docType string) bool {
	_, ok := s.enabled[strings.ToLower(strings.TrimSpace(docType))]
	return ok
}

// HomepageFilename 解析首页对应的 Markdown 文件名（不含前导斜杠）。
// 模式或自定义值非法时返回 index.md 与 ErrConfigInvalid，调用方仅需记录告警。
func (s Snapshot) HomepageFilename() (string, error) {
	switch strings.ToLower(s.HomepagePattern) {
	case "", HomepageIndex:
		return HomepageIndex, nil
	case HomepageHome:
		return HomepageHome, nil
	case HomepageRoot:
		return HomepageRoot, nil
	case HomepageCustom:
		name, err := normalizeCustomHomepage(s.HomepagePatternCustom)
		if err != nil {
			return HomepageIndex, err
		}
		return name, nil
	default:
		return HomepageIndex, fmt.Errorf("%w: HomepagePattern=%q", ErrConfigInvalid, s.HomepagePattern)
	}
}

// Markdown 将快照还原为配置结构，用于 /-/settings 回显。
func (s Snapshot) Markdown() MarkdownConfig {
	types := make([]string, len(s.EnabledTypes))
	copy(types, s.EnabledTypes)
	return MarkdownConfig{
		EnabledTypes:             types,
		HomepagePattern:          s.HomepagePattern,
		HomepagePatternCustom:    s.HomepagePatternCustom,
		EnableContentNegotiation: s.EnableContentNegotiation,
		EnableDiscoveryTags:      s.EnableDiscoveryTags,
		EnablePreGeneration:      s.EnablePreGeneration,
	}
}

func normalizeCustomHomepage(raw string) (string, error) {
	name := strings.Trim(strings.TrimSpace(raw), "/")
	if name == "" {
		return "", fmt.Errorf("%w: HomepagePatternCustom 为空", ErrConfigInvalid)
	}
	if !strings.HasSuffix(strings.ToLower(name), ".md") {
		name += ".md"
	}
	if !homepageFilenamePattern.MatchString(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: HomepagePatternCustom=%q", ErrConfigInvalid, raw)
	}
	return name, nil
}

// Source 为各组件提供当前设置快照。
type Source interface {
	Snapshot() Snapshot
}

// Static 是固定快照的 Source，主要用于测试与一次性 CLI 命令。
type Static Snapshot

// Snapshot 实现 Source。
func (s Static) Snapshot() Snapshot { return Snapshot(s) }

// Settings 持有当前快照，支持运行时整体替换；读取无锁。
type Settings struct {
	current atomic.Pointer[Snapshot]
}

// NewSettings 使用给定快照初始化 Settings。
func NewSettings(initial Snapshot) *Settings {
	s := &Settings{}
	s.current.Store(&initial)
	return s
}

// Snapshot 返回当前快照。
func (s *Settings) Snapshot() Snapshot {
	return *s.current.Load()
}

// Replace 校验并发布新的 Markdown 设置，站点地址沿用当前值。
// 首页模式非法时仍会发布，但首页回退为 index.md，并返回 ErrConfigInvalid 供调用方告警。
func (s *Settings) Replace(md MarkdownConfig) (Snapshot, error) {
	next := NewSnapshot(s.Snapshot().SiteURL, md)
	s.current.Store(&next)
	_, err := next.HomepageFilename()
	return next, err
}
