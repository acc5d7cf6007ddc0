// Package scheduler runs periodic cache warming on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/md-hub/internal/markdown"
)

// Warmer 是预热任务调用的接口，markdown.Manager 满足该接口。
type Warmer interface {
	Warm(ctx context.Context, limit int) (markdown.WarmReport, error)
}

// WarmJob 按 cron 表达式周期性预热最近更新的文档。
type WarmJob struct {
	spec    string
	limit   int
	timeout time.Duration
	warmer  Warmer
	logger  *logrus.Logger
	cron    *cron.Cron

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewWarmJob 解析 spec（标准五段式或 @every/@hourly 等描述符）并注册任务。
func NewWarmJob(spec string, limit int, warmer Warmer, logger *logrus.Logger) (*WarmJob, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("warm schedule is empty")
	}
	if warmer == nil {
		return nil, errors.New("warmer is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("invalid warm limit: %d", limit)
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	cronLogger := cron.PrintfLogger(logger)
	job := &WarmJob{
		spec:    spec,
		limit:   limit,
		timeout: 10 * time.Minute,
		warmer:  warmer,
		logger:  logger,
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		baseCtx: context.Background(),
	}
	if _, err := job.cron.AddFunc(spec, job.tick); err != nil {
		return nil, fmt.Errorf("invalid warm schedule %q: %w", spec, err)
	}
	return job, nil
}

// Start 启动调度；ctx 取消时正在运行的预热会尽快结束。
func (j *WarmJob) Start(ctx context.Context) {
	j.mu.Lock()
	j.baseCtx, j.cancel = context.WithCancel(ctx)
	j.mu.Unlock()
	j.cron.Start()
	j.logger.WithFields(logrus.Fields{"action": "cache_warm", "schedule": j.spec, "limit": j.limit}).Info("warm scheduler started")
}

// Stop 停止调度并等待正在运行的预热结束，最长等待到 ctx 超时。
func (j *WarmJob) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	j.mu.Lock()
	if j.cancel != nil {
		j.cancel()
	}
	j.mu.Unlock()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce 立即执行一次预热。
func (j *WarmJob) RunOnce(ctx context.Context) (markdown.WarmReport, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	started := time.Now()
	report, err := j.warmer.Warm(ctx, j.limit)
	fields := logrus.Fields{
		"action":      "cache_warm",
		"scanned":     report.Scanned,
		"generated":   report.Generated,
		"failed":      report.Failed,
		"duration_ms": time.Since(started).Milliseconds(),
	}
	if err != nil {
		j.logger.WithFields(fields).WithError(err).Warn("cache_warm_failed")
		return report, err
	}
	j.logger.WithFields(fields).Info("cache warmed")
	return report, nil
}

func (j *WarmJob) tick() {
	j.mu.Lock()
	ctx := j.baseCtx
	j.mu.Unlock()
	_, _ = j.RunOnce(ctx)
}
