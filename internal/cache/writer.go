package cache

import (
	"context"
	"sync"
)

// diskWriter 串行执行同一 Store 的全部磁盘变更（写入、删除、淘汰），
// 保证同一路径不会出现交错写入，也让 temp+rename 的原子性无需额外加锁。
type diskWriter struct {
	jobs chan diskJob
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

type diskJob struct {
	ctx    context.Context
	fn     func() error
	result chan error
}

func newDiskWriter(backlog int) *diskWriter {
	w := &diskWriter{
		jobs: make(chan diskJob, backlog),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *diskWriter) loop() {
	defer close(w.done)
	for job := range w.jobs {
		if err := job.ctx.Err(); err != nil {
			job.result <- err
			continue
		}
		job.result <- job.fn()
	}
}

// do 提交一个磁盘任务并等待其完成。ctx 取消时立即返回 ctx.Err()，
// 已经开始执行的任务仍会完整结束，不会留下半成品文件。
func (w *diskWriter) do(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	job := diskJob{ctx: ctx, fn: fn, result: make(chan error, 1)}

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrClosed
	}
	select {
	case w.jobs <- job:
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}
	w.mu.RUnlock()

	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close 拒绝新任务，等待队列中已有任务执行完毕。
func (w *diskWriter) close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.done
}
