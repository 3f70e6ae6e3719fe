package renderfarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config 控制渲染池的容量与单任务行为。
type Config struct {
	Size       int
	JobTimeout time.Duration
	BrowserBin string
}

// pageSession 是一次任务独占的页面（浏览器标签页）。
type pageSession interface {
	printPDF(ctx context.Context, html string) ([]byte, error)
	screenshot(ctx context.Context, html string) ([]byte, error)
	close()
}

// backend 是一个无头浏览器进程。
type backend interface {
	newSession(ctx context.Context) (pageSession, error)
	alive() bool
	shutdown()
}

// Pool 管理一组可复用的无头浏览器渲染容量。
// 浏览器进程在首次任务时惰性启动；进程崩溃后在下一次
// 获取时被替换；Shutdown 在服务停止时显式释放。
type Pool struct {
	cfg        Config
	logger     *slog.Logger
	newBackend func(cfg Config) (backend, error)

	// 容量令牌。取出一枚即占用一个并发槽位。
	slots chan struct{}

	mu     sync.Mutex
	b      backend
	closed bool
}

// NewPool 构造基于 go-rod 无头 Chromium 的渲染池。
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	return newPoolWithBackend(cfg, logger, newRodBackend)
}

func newPoolWithBackend(cfg Config, logger *slog.Logger, factory func(Config) (backend, error)) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	slots := make(chan struct{}, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		slots <- struct{}{}
	}

	return &Pool{
		cfg:        cfg,
		logger:     logger,
		newBackend: factory,
		slots:      slots,
	}
}

// RenderPDF 将一份自包含 HTML 文档栅格化为分页 PDF。
func (p *Pool) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	return p.run(ctx, "pdf", func(ctx context.Context, s pageSession) ([]byte, error) {
		return s.printPDF(ctx, html)
	})
}

// CaptureScreenshot 截取文档根元素的 JPEG 截图（用于缩略图）。
func (p *Pool) CaptureScreenshot(ctx context.Context, html string) ([]byte, error) {
	return p.run(ctx, "screenshot", func(ctx context.Context, s pageSession) ([]byte, error) {
		return s.screenshot(ctx, html)
	})
}

// Available 返回当前空闲槽位数。
func (p *Pool) Available() int {
	return len(p.slots)
}

// run 执行一个渲染任务：Queued → BrowserAcquired → Rasterized → Released；
// 任何一步失败进入 Failed，槽位与页面在所有路径上保证释放一次。
func (p *Pool) run(ctx context.Context, kind string, fn func(context.Context, pageSession) ([]byte, error)) (_ []byte, retErr error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	log := p.logger.With(slog.String("job_kind", kind))
	log.Debug("render job queued", slog.Int("available_slots", p.Available()))

	// Queued：等待空闲槽位。请求被放弃时放弃排队（任务尚未开始）。
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render slot: %w", ctx.Err())
	case <-p.slots:
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		p.slots <- struct{}{}
	}
	defer release()

	jobsInProgress.WithLabelValues(kind).Inc()
	start := time.Now()
	defer func() {
		jobsInProgress.WithLabelValues(kind).Dec()
		jobDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		status := "ok"
		if retErr != nil {
			status = "failed"
			log.Warn("render job failed", slog.Any("error", retErr))
		}
		jobsTotal.WithLabelValues(kind, status).Inc()
		log.Debug("render job released", slog.Duration("elapsed", time.Since(start)))
	}()

	// 任务一旦开始就与请求取消解耦：调用方负责丢弃结果，
	// 任务本身只受 JobTimeout 约束，绝不返回半成品。
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.JobTimeout)
	defer cancel()

	b, err := p.acquireBackend(jobCtx)
	if err != nil {
		return nil, p.classifyJobError(kind, err)
	}
	log.Debug("browser acquired")

	session, err := b.newSession(jobCtx)
	if err != nil {
		return nil, p.classifyJobError(kind, fmt.Errorf("open page: %w", err))
	}
	defer session.close()

	data, err := fn(jobCtx, session)
	if err != nil {
		return nil, p.classifyJobError(kind, err)
	}
	log.Debug("document rasterized", slog.Int("bytes", len(data)))

	return data, nil
}

// classifyJobError 把 JobTimeout 到期统一上报为 RenderTimeoutError，
// 无论超时发生在启动浏览器、开页面还是栅格化阶段。
func (p *Pool) classifyJobError(kind string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &RenderTimeoutError{Kind: kind, Timeout: p.cfg.JobTimeout.String()}
	}
	return err
}

// acquireBackend 返回存活的浏览器进程，惰性启动；
// 上一次任务留下的死进程在这里被替换。
func (p *Pool) acquireBackend(ctx context.Context) (backend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	if p.b != nil && !p.b.alive() {
		p.logger.Warn("headless browser died, replacing instance")
		p.b.shutdown()
		p.b = nil
	}

	if p.b == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := p.newBackend(p.cfg)
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		p.logger.Info("headless browser launched", slog.Int("pool_size", p.cfg.Size))
		p.b = b
	}

	return p.b, nil
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Shutdown 等待在途任务归还槽位后关闭浏览器进程。
// ctx 到期则不再等待，直接关闭。
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

drain:
	for i := 0; i < p.cfg.Size; i++ {
		select {
		case <-p.slots:
		case <-ctx.Done():
			break drain
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.b != nil {
		p.b.shutdown()
		p.b = nil
	}
	p.logger.Info("render pool shut down")
}
