package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyMarkdownDefaults(&cfg.Markdown)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	if cfg.Global.DatabasePath != ":memory:" {
		absDB, err := filepath.Abs(cfg.Global.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析数据库路径: %w", err)
		}
		cfg.Global.DatabasePath = absDB
	}

	return &cfg, nil
}

// Snapshot 基于加载后的配置构造初始设置快照。
func (c *Config) Snapshot() Snapshot {
	return NewSnapshot(c.Global.SiteURL, c.Markdown)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("SiteURL", "http://localhost:5000")
	v.SetDefault("DatabasePath", "./data/content.db")
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("MaxMemoryEntries", 512)
	v.SetDefault("RedisPrefix", "md-hub")
	v.SetDefault("RendererMode", RendererLocal)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("RenderTimeout", "10s")
	v.SetDefault("PreGenerationWorkers", 2)
	v.SetDefault("PreGenerationQueue", 64)
	v.SetDefault("WarmLimit", 10)
	v.SetDefault("MarkdownMaxAge", 3600)

	defaults := DefaultMarkdownConfig()
	v.SetDefault("Markdown.EnabledTypes", defaults.EnabledTypes)
	v.SetDefault("Markdown.HomepagePattern", defaults.HomepagePattern)
	v.SetDefault("Markdown.HomepagePatternCustom", "")
	v.SetDefault("Markdown.EnableContentNegotiation", defaults.EnableContentNegotiation)
	v.SetDefault("Markdown.EnableDiscoveryTags", defaults.EnableDiscoveryTags)
	v.SetDefault("Markdown.EnablePreGeneration", defaults.EnablePreGeneration)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	g.RendererMode = strings.ToLower(strings.TrimSpace(g.RendererMode))
	if g.RendererMode == "" {
		g.RendererMode = RendererLocal
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.RenderTimeout.DurationValue() == 0 {
		g.RenderTimeout = Duration(10 * time.Second)
	}
	if g.PreGenerationWorkers <= 0 {
		g.PreGenerationWorkers = 1
	}
	if g.PreGenerationQueue <= 0 {
		g.PreGenerationQueue = 64
	}
	if g.MarkdownMaxAge < 0 {
		g.MarkdownMaxAge = 0
	}
	g.SiteURL = strings.TrimRight(strings.TrimSpace(g.SiteURL), "/")
}

func applyMarkdownDefaults(m *MarkdownConfig) {
	if len(m.EnabledTypes) == 0 {
		m.EnabledTypes = DefaultMarkdownConfig().EnabledTypes
	}
	m.HomepagePattern = strings.ToLower(strings.TrimSpace(m.HomepagePattern))
	if m.HomepagePattern == "" {
		m.HomepagePattern = HomepageIndex
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
