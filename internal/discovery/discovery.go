// Package discovery builds the <link rel="alternate"> hint that points HTML
// pages at their Markdown counterpart. Everything here is a pure function of
// the page being rendered and the settings snapshot.
package discovery

import (
	"html"
	"net/url"
	"strings"

	"github.com/any-hub/md-hub/internal/config"
)

// Target 描述正在渲染的页面。
type Target struct {
	// Homepage 为 true 时忽略 Permalink，按首页文件名生成地址。
	Homepage  bool
	Permalink string
	Type      string
}

// MarkdownURL 返回页面对应的 Markdown 地址；不应暴露时返回 false。
func MarkdownURL(target Target, snap config.Snapshot) (string, bool) {
	if !snap.EnableDiscoveryTags || !snap.TypeEnabled(target.Type) {
		return "", false
	}
	if target.Homepage {
		return homepageURL(snap), true
	}

	u, err := url.Parse(strings.TrimSpace(target.Permalink))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	if u.Path == "" {
		return homepageURL(snap), true
	}
	u.Path += ".md"
	return u.String(), true
}

// LinkTagFor 返回可直接写入 <head> 的 link 元素。
func LinkTagFor(target Target, snap config.Snapshot) (string, bool) {
	href, ok := MarkdownURL(target, snap)
	if !ok {
		return "", false
	}
	return `<link rel="alternate" type="text/markdown" href="` + html.EscapeString(href) + `" title="Markdown version" />`, true
}

// 配置非法时 HomepageFilename 已回退到 index.md，这里不再重复告警。
func homepageURL(snap config.Snapshot) string {
	name, _ := snap.HomepageFilename()
	if !strings.HasSuffix(strings.ToLower(name), ".md") {
		name += ".md"
	}
	return snap.SiteURL + "/" + name
}
