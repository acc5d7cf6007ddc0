package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// MarshalText 输出 Go Duration 字符串，便于 /-/settings 回显。
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// 渲染器模式。
const (
	RendererLocal  = "local"
	RendererRemote = "remote"
)

// GlobalConfig 描述进程级运行参数：监听、日志、存储、缓存层与渲染器。
type GlobalConfig struct {
	ListenPort           int      `mapstructure:"ListenPort"`
	LogLevel             string   `mapstructure:"LogLevel"`
	LogFilePath          string   `mapstructure:"LogFilePath"`
	LogMaxSize           int      `mapstructure:"LogMaxSize"`
	LogMaxBackups        int      `mapstructure:"LogMaxBackups"`
	LogCompress          bool     `mapstructure:"LogCompress"`
	SiteURL              string   `mapstructure:"SiteURL"`
	DatabasePath         string   `mapstructure:"DatabasePath"`
	StoragePath          string   `mapstructure:"StoragePath"`
	MaxMemoryEntries     int      `mapstructure:"MaxMemoryEntries"`
	RedisAddr            string   `mapstructure:"RedisAddr"`
	RedisPassword        string   `mapstructure:"RedisPassword"`
	RedisDB              int      `mapstructure:"RedisDB"`
	RedisPrefix          string   `mapstructure:"RedisPrefix"`
	RendererMode         string   `mapstructure:"RendererMode"`
	WorkerURL            string   `mapstructure:"WorkerURL"`
	UpstreamTimeout      Duration `mapstructure:"UpstreamTimeout"`
	RenderTimeout        Duration `mapstructure:"RenderTimeout"`
	PreGenerationWorkers int      `mapstructure:"PreGenerationWorkers"`
	PreGenerationQueue   int      `mapstructure:"PreGenerationQueue"`
	WarmSchedule         string   `mapstructure:"WarmSchedule"`
	WarmLimit            int      `mapstructure:"WarmLimit"`
	MarkdownMaxAge       int      `mapstructure:"MarkdownMaxAge"`
}

// MarkdownConfig 对应 [Markdown] 表，是运行时可替换的那部分设置。
type MarkdownConfig struct {
	EnabledTypes             []string `mapstructure:"EnabledTypes" json:"enabled_types"`
	HomepagePattern          string   `mapstructure:"HomepagePattern" json:"homepage_pattern"`
	HomepagePatternCustom    string   `mapstructure:"HomepagePatternCustom" json:"homepage_pattern_custom"`
	EnableContentNegotiation bool     `mapstructure:"EnableContentNegotiation" json:"enable_content_negotiation"`
	EnableDiscoveryTags      bool     `mapstructure:"EnableDiscoveryTags" json:"enable_discovery_tags"`
	EnablePreGeneration      bool     `mapstructure:"EnablePreGeneration" json:"enable_pre_generation"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig   `mapstructure:",squash"`
	Markdown MarkdownConfig `mapstructure:"Markdown"`
}

// DefaultMarkdownConfig 返回内置的 Markdown 设置，配置缺失或非法时回退到这里。
func DefaultMarkdownConfig() MarkdownConfig {
	return MarkdownConfig{
		EnabledTypes:             []string{"post", "page"},
		HomepagePattern:          HomepageIndex,
		EnableContentNegotiation: true,
		EnableDiscoveryTags:      true,
		EnablePreGeneration:      true,
	}
}

// RedisEnabled 表示是否启用共享的 redis 缓存层。
func (g GlobalConfig) RedisEnabled() bool {
	return strings.TrimSpace(g.RedisAddr) != ""
}
