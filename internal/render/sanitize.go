package render

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// sanitizePolicy 基于 UGC 策略，额外保留代码块语言标记；script/style 连同内容一起丢弃。
func sanitizePolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre")
		policy = p
	})
	return policy
}

// SanitizeHTML 清理正文 HTML，去除脚本、样式与事件属性。
func SanitizeHTML(raw string) string {
	return sanitizePolicy().Sanitize(raw)
}
