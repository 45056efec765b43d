package utils

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	logger "github.com/Gopher0727/GlobalChat/middleware/log"
)

var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool 通用协程池：固定数量的 worker 消费有界队列，每个入站事件一个任务
type WorkerPool struct {
	jobs      chan func()
	workerNum int
	wg        sync.WaitGroup
	quit      chan struct{}
	stopOnce  sync.Once
	log       *logger.Logger
}

// NewWorkerPool 创建一个新的协程池
func NewWorkerPool(workerNum, queueSize int, log *logger.Logger) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &WorkerPool{
		jobs:      make(chan func(), queueSize),
		workerNum: workerNum,
		quit:      make(chan struct{}),
		log:       log,
	}
}

// Start 启动协程池
func (p *WorkerPool) Start() {
	for i := 0; i < p.workerNum; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			for {
				select {
				case job := <-p.jobs:
					p.run(workerID, job)
				case <-p.quit:
					return
				}
			}
		}(i)
	}
	p.log.Info("worker pool started", zap.Int("workers", p.workerNum), zap.Int("queue", cap(p.jobs)))
}

// run 执行单个任务，recover 防止单个任务 panic 导致 worker 退出
func (p *WorkerPool) run(workerID int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker panic", zap.Int("worker", workerID), zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	job()
}

// Submit 提交任务到协程池。队列满时阻塞排队，直到有空位、ctx 结束或协程池停止
func (p *WorkerPool) Submit(ctx context.Context, job func()) error {
	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolStopped
	}
}

// Stop 停止协程池，等待正在执行的任务结束。队列中尚未开始的任务被丢弃
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}
