package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/any-hub/md-hub/internal/dispatch"
	"github.com/any-hub/md-hub/internal/logging"
	"github.com/any-hub/md-hub/internal/markdown"
	"github.com/any-hub/md-hub/internal/negotiate"
	"github.com/any-hub/md-hub/internal/router"
	"github.com/any-hub/md-hub/internal/scheduler"
	"github.com/any-hub/md-hub/internal/server"
	"github.com/any-hub/md-hub/internal/server/routes"
	"github.com/any-hub/md-hub/internal/site"
	"github.com/any-hub/md-hub/internal/version"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath())
		},
	}
}

// runServe 启动顺序：配置 → 运行时 → 预生成队列 → 处理链 → Fiber server → 定时预热。
// 收到 SIGINT/SIGTERM 后依次关闭 HTTP、定时任务、预生成队列与外部连接。
func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := loadRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	cfg := rt.cfg
	logger := rt.logger

	pregen := markdown.NewPregenerator(rt.manager.PreGenerate, cfg.Global.PreGenerationWorkers, cfg.Global.PreGenerationQueue, logger)
	rt.manager.UseQueue(pregen)
	pregen.Start(ctx)
	defer pregen.Stop()

	chain, err := buildChain(rt)
	if err != nil {
		return failWith(1, "构建处理链失败: %v", err)
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Dispatcher: chain,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return failWith(1, "HTTP 服务初始化失败: %v", err)
	}
	registerAdminRoutes(app, rt, chain)

	var warmJob *scheduler.WarmJob
	if cfg.Global.WarmSchedule != "" {
		warmJob, err = scheduler.NewWarmJob(cfg.Global.WarmSchedule, cfg.Global.WarmLimit, rt.manager, logger)
		if err != nil {
			return failWith(1, "定时预热配置无效: %v", err)
		}
		warmJob.Start(ctx)
	}

	fields := logging.BaseFields("startup", configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["site_url"] = cfg.Global.SiteURL
	fields["renderer"] = cfg.Global.RendererMode
	fields["cache_tiers"] = rt.tierNames()
	fields["handlers"] = len(chain.Snapshot())
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.WithField("action", "shutdown").WithError(err).Warn("HTTP 服务关闭失败")
		}
		if warmJob != nil {
			if err := warmJob.Stop(shutdownCtx); err != nil {
				logger.WithField("action", "shutdown").WithError(err).Warn("定时预热未能按时结束")
			}
		}
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   cfg.Global.ListenPort,
	}).Info("Fiber 服务启动")

	if err := app.Listen(fmt.Sprintf(":%d", cfg.Global.ListenPort)); err != nil {
		return failWith(1, "HTTP 服务启动失败: %v", err)
	}
	logger.WithField("action", "shutdown").Info("服务已停止")
	return nil
}

// buildChain 按优先级注册 .md 路由、内容协商与 HTML 页面三个处理器。
func buildChain(rt *appRuntime) (*dispatch.Chain, error) {
	chain := dispatch.NewChain(rt.logger)

	mdRouter, err := router.New(router.Options{
		Documents: rt.docs,
		Markdown:  rt.manager,
		Settings:  rt.settings,
		Logger:    rt.logger,
		MaxAge:    time.Duration(rt.cfg.Global.MarkdownMaxAge) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if err := mdRouter.RegisterPatterns(chain); err != nil {
		return nil, err
	}
	if err := negotiate.New(rt.settings, rt.logger).Register(chain); err != nil {
		return nil, err
	}
	pages, err := site.New(rt.docs, rt.settings, rt.logger)
	if err != nil {
		return nil, err
	}
	if err := pages.Register(chain); err != nil {
		return nil, err
	}
	return chain, nil
}

func registerAdminRoutes(app *fiber.App, rt *appRuntime, chain *dispatch.Chain) {
	routes.RegisterDocumentRoutes(app, rt.docs, rt.logger)
	routes.RegisterCacheRoutes(app, rt.manager, rt.logger)
	routes.RegisterSettingsRoutes(app, rt.settings, rt.logger)
	routes.RegisterDispatchRoutes(app, chain)

	checks := map[string]routes.HealthCheck{"database": rt.pingDatabase}
	if rt.redis != nil {
		checks["redis"] = rt.pingRedis
	}
	routes.RegisterHealthRoutes(app, checks)
	routes.RegisterMetricsRoute(app, rt.metrics.Handler())
}
