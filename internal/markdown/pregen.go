package markdown

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/md-hub/internal/logging"
)

// Pregenerator 是预生成的有界队列。同一文档排队期间只保留一个任务，
// 任务执行时才读取文档，因此总是生成最新版本。
type Pregenerator struct {
	run     func(ctx context.Context, id int64) error
	workers int
	logger  *logrus.Logger

	mu      sync.Mutex
	jobs    chan int64
	pending map[int64]struct{}
	started bool
	closed  bool
	group   errgroup.Group
}

// NewPregenerator 创建队列；run 通常为 Manager.PreGenerate。
func NewPregenerator(run func(ctx context.Context, id int64) error, workers, queueSize int, logger *logrus.Logger) *Pregenerator {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Pregenerator{
		run:     run,
		workers: workers,
		logger:  logger,
		jobs:    make(chan int64, queueSize),
		pending: make(map[int64]struct{}),
	}
}

// Start 启动工作协程；ctx 取消后正在执行的任务会尽快结束，剩余任务在 Stop 时被丢弃。
func (p *Pregenerator) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.group.Go(func() error {
			for id := range p.jobs {
				p.mu.Lock()
				delete(p.pending, id)
				p.mu.Unlock()

				if ctx.Err() != nil {
					continue
				}
				if err := p.run(ctx, id); err != nil {
					fields := logging.DocumentFields("pregenerate", id)
					fields["error_kind"] = Kind(err)
					p.logger.WithFields(fields).WithError(err).Warn("pregenerate_failed")
				}
			}
			return nil
		})
	}
}

// Enqueue 非阻塞入队；队列已满或已停止时返回 false。
func (p *Pregenerator) Enqueue(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if _, queued := p.pending[id]; queued {
		return true
	}
	select {
	case p.jobs <- id:
		p.pending[id] = struct{}{}
		return true
	default:
		return false
	}
}

// Stop 关闭队列并等待已入队任务处理完毕。
func (p *Pregenerator) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	_ = p.group.Wait()
}
