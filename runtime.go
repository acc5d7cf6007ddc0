package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/any-hub/md-hub/internal/cache"
	"github.com/any-hub/md-hub/internal/config"
	"github.com/any-hub/md-hub/internal/content"
	"github.com/any-hub/md-hub/internal/logging"
	"github.com/any-hub/md-hub/internal/markdown"
	"github.com/any-hub/md-hub/internal/render"
	"github.com/any-hub/md-hub/internal/server"
	"github.com/any-hub/md-hub/internal/telemetry"
)

// appRuntime 持有 serve 与运维子命令共用的组件。
type appRuntime struct {
	cfg        *config.Config
	configPath string
	logger     *logrus.Logger

	db       *bun.DB
	store    *content.BunStore
	docs     *content.Service
	tiers    *cache.Tiered
	redis    redis.UniversalClient
	settings *config.Settings
	metrics  *telemetry.Provider
	manager  *markdown.Manager
}

// loadRuntime 读取配置并初始化日志，然后构建运行时。
func loadRuntime(ctx context.Context, configPath string) (*appRuntime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, failWith(1, "加载配置失败: %v", err)
	}
	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		return nil, failWith(1, "初始化日志失败: %v", err)
	}
	rt, err := buildRuntime(ctx, cfg, configPath, logger)
	if err != nil {
		return nil, failWith(1, "初始化运行时失败: %v", err)
	}
	return rt, nil
}

// buildRuntime 按“数据库 → 内容服务 → 缓存层 → 渲染器 → 指标 → 设置 → Markdown 管理器”顺序组装组件，
// 并把内容变更事件接到 Manager。
func buildRuntime(ctx context.Context, cfg *config.Config, configPath string, logger *logrus.Logger) (*appRuntime, error) {
	rt := &appRuntime{cfg: cfg, configPath: configPath, logger: logger}
	ready := false
	defer func() {
		if !ready {
			rt.close(context.Background())
		}
	}()

	var err error
	rt.db, err = content.OpenSQLite(ctx, cfg.Global.DatabasePath)
	if err != nil {
		return nil, err
	}
	rt.store = content.NewBunStore(rt.db)
	rt.docs = content.NewService(rt.store, cfg.Global.SiteURL)

	tiers := []cache.Tier{cache.NewMemoryTier(cfg.Global.MaxMemoryEntries)}
	if cfg.Global.RedisEnabled() {
		redisTier, client, redisErr := cache.OpenRedisTier(ctx, cache.RedisOptions{
			Addr:     cfg.Global.RedisAddr,
			Password: cfg.Global.RedisPassword,
			DB:       cfg.Global.RedisDB,
			Prefix:   cfg.Global.RedisPrefix,
		})
		if redisErr != nil {
			return nil, redisErr
		}
		rt.redis = client
		tiers = append(tiers, redisTier)
	}
	disk, err := cache.NewDiskTier(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}
	rt.tiers = cache.NewTiered(append(tiers, disk)...)

	rt.metrics, err = telemetry.NewProvider()
	if err != nil {
		return nil, err
	}
	rt.metrics.InstallGlobal()

	rt.settings = config.NewSettings(cfg.Snapshot())
	if _, homeErr := rt.settings.Snapshot().HomepageFilename(); homeErr != nil {
		logger.WithFields(logging.BaseFields("startup", configPath)).WithError(homeErr).Warn("首页模式无效，已回退为 index.md")
	}

	rt.manager, err = markdown.NewManager(markdown.Options{
		Documents:     rt.docs,
		Cache:         rt.tiers,
		Renderer:      newRenderer(cfg),
		Settings:      rt.settings,
		Logger:        logger,
		Meter:         rt.metrics.Meter(),
		RenderTimeout: cfg.Global.RenderTimeout.DurationValue(),
	})
	if err != nil {
		return nil, err
	}
	rt.docs.Subscribe(rt.manager.HandleChange)
	ready = true
	return rt, nil
}

func newRenderer(cfg *config.Config) render.Renderer {
	if cfg.Global.RendererMode == config.RendererRemote {
		return render.NewRemoteRenderer(server.NewUpstreamClient(cfg), cfg.Global.WorkerURL)
	}
	return render.NewLocalConverter(render.DefaultOptions())
}

// tierNames 用于启动日志。
func (rt *appRuntime) tierNames() []string {
	names := make([]string, 0, len(rt.tiers.Tiers()))
	for _, tier := range rt.tiers.Tiers() {
		names = append(names, tier.Name())
	}
	return names
}

func (rt *appRuntime) pingDatabase(ctx context.Context) error {
	return rt.store.Ping(ctx)
}

func (rt *appRuntime) pingRedis(ctx context.Context) error {
	return rt.redis.Ping(ctx).Err()
}

// close 释放外部连接，可重复调用。
func (rt *appRuntime) close(ctx context.Context) {
	var errs []error
	if rt.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		errs = append(errs, rt.metrics.Shutdown(shutdownCtx))
		cancel()
		rt.metrics = nil
	}
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
		rt.redis = nil
	}
	if rt.db != nil {
		errs = append(errs, rt.db.Close())
		rt.db = nil
	}
	if err := errors.Join(errs...); err != nil && rt.logger != nil {
		rt.logger.WithField("action", "shutdown").WithError(err).Warn("释放资源失败")
	}
}
