package fetch

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/any-hub/imgcache/internal/cache"
	"github.com/any-hub/imgcache/internal/cachekey"
	"github.com/any-hub/imgcache/internal/codec"
	"github.com/any-hub/imgcache/internal/logging"
	"github.com/any-hub/imgcache/internal/metrics"
)

// DefaultMaxConcurrent 是同时进行的下载数上限。
const DefaultMaxConcurrent = 6

// SuccessFunc receives the decoded (and possibly transformed) image.
type SuccessFunc func(asset *codec.Asset, url string)

// FailureFunc receives the reason a fetch could not complete.
type FailureFunc func(err error)

// Codec 是 Coordinator 对图片编解码的依赖。
type Codec interface {
	Decode(data []byte) (*codec.Asset, error)
	Encode(asset *codec.Asset) ([]byte, error)
}

// Options 描述 Coordinator 的依赖与并发上限。
type Options struct {
	Cache         *cache.AssetCache
	Transport     Transport
	Codec         Codec
	Logger        *logrus.Logger
	Metrics       *metrics.Metrics
	MaxConcurrent int
}

// Coordinator 合并同一 URL 的并发请求，保证每个标识同时最多只有一个下载在进行。
type Coordinator struct {
	cache     *cache.AssetCache
	transport Transport
	codec     Codec
	logger    *logrus.Logger
	metrics   *metrics.Metrics
	namespace string
	sem       *semaphore.Weighted

	mu       sync.Mutex
	entries  map[string]*entry
	draining map[string]*entry
	closed   bool

	wg sync.WaitGroup
}

// NewCoordinator 校验依赖并创建 Coordinator。Codec 默认 codec.NewImageCodec()。
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("fetch: cache is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("fetch: transport is required")
	}
	if opts.Codec == nil {
		opts.Codec = codec.NewImageCodec()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Coordinator{
		cache:     opts.Cache,
		transport: opts.Transport,
		codec:     opts.Codec,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		namespace: opts.Cache.Namespace(),
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		entries:   make(map[string]*entry),
		draining:  make(map[string]*entry),
	}, nil
}

// Identifier 返回 URL 对应的缓存键。
func (c *Coordinator) Identifier(url string) string {
	return cachekey.Digest(url)
}

// MemoryAsset 只查询内存层，不会触发磁盘 IO 或网络请求。
func (c *Coordinator) MemoryAsset(url string) (*codec.Asset, bool) {
	return c.cache.MemoryAsset(c.Identifier(url))
}

// Fetch 返回 url 对应的图片。缓存命中时异步回调 onSuccess；
// 否则加入（或新建）该标识的下载，完成后按注册顺序回调每个未取消的调用方。
// transform 只在新建下载时生效，加入已有下载时忽略。
func (c *Coordinator) Fetch(url string, transform codec.Transform, onSuccess SuccessFunc, onFailure FailureFunc) *Handle {
	id := c.Identifier(url)

	if asset, ok := c.cache.Get(id, cache.PolicyAll, true); ok {
		h := newHandle(c, id, nil, onSuccess, onFailure)
		go h.w.succeed(c, asset, url)
		return h
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		h := newHandle(c, id, nil, onSuccess, onFailure)
		go h.w.fail(c, ErrClosed)
		return h
	}

	if e, ok := c.entries[id]; ok {
		h := newHandle(c, id, e, onSuccess, onFailure)
		e.waiters = append(e.waiters, h.w)
		c.mu.Unlock()

		c.metrics.FetchCoalesced(c.namespace)
		fields := c.fields(id, url)
		c.logger.WithFields(fields).Debug("fetch_coalesced")
		if transform != nil {
			c.logger.WithFields(fields).Debug("transform_conflict")
		}
		return h
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		id:        id,
		url:       url,
		state:     StateCreated,
		transform: transform,
		cancel:    cancel,
		prev:      c.draining[id],
		done:      make(chan struct{}),
	}
	h := newHandle(c, id, e, onSuccess, onFailure)
	e.waiters = append(e.waiters, h.w)
	c.entries[id] = e
	inFlight := len(c.entries)
	c.wg.Add(1)
	c.mu.Unlock()

	c.metrics.SetInFlight(c.namespace, inFlight)
	c.logger.WithFields(c.fields(id, url)).Debug("fetch_start")
	go c.run(ctx, e)
	return h
}

// FetchContext 是 Fetch 的同步版本；ctx 结束时取消本次等待，返回的错误同时匹配 ErrCancelled 与 ctx.Err()。
func (c *Coordinator) FetchContext(ctx context.Context, url string, transform codec.Transform) (*codec.Asset, error) {
	ch := make(chan fetchResult, 1)
	h := c.Fetch(url, transform,
		func(asset *codec.Asset, _ string) { ch <- fetchResult{asset: asset} },
		func(err error) { ch <- fetchResult{err: err} },
	)
	return awaitResult(ctx, h, ch)
}

type fetchResult struct {
	asset *codec.Asset
	err   error
}

// awaitResult 等待 ch 上的回调结果；ctx 结束但取消未生效时说明回调已在投递，仍返回该结果。
func awaitResult(ctx context.Context, h *Handle, ch <-chan fetchResult) (*codec.Asset, error) {
	select {
	case r := <-ch:
		return r.asset, r.err
	case <-ctx.Done():
		h.Cancel()
		if !h.Cancelled() {
			r := <-ch
			return r.asset, r.err
		}
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
}

// Cancel 取消单个调用方。同一下载的其它调用方不受影响；
// 所有调用方都取消后下载本身被中止，结果不写入缓存。
func (c *Coordinator) Cancel(h *Handle) {
	if h == nil || h.w == nil {
		return
	}
	if !h.w.cancel() {
		return
	}
	e := h.entry
	if e == nil {
		return
	}

	c.mu.Lock()
	abandoned := e.abandon()
	if abandoned {
		if c.entries[e.id] == e {
			delete(c.entries, e.id)
		}
		// 网络请求可能忽略 ctx，留在 draining 中直到 run 退出。
		c.draining[e.id] = e
	}
	inFlight := len(c.entries)
	c.mu.Unlock()

	if abandoned {
		e.cancel()
		c.metrics.SetInFlight(c.namespace, inFlight)
		c.metrics.FetchFinished(c.namespace, StateCancelled.String())
		c.logger.WithFields(c.fields(e.id, e.url)).Debug("fetch_cancelled")
	}
}

// CancelIdentifier 取消某个标识下所有已注册的调用方。
func (c *Coordinator) CancelIdentifier(id string) {
	c.mu.Lock()
	var handles []*Handle
	if e, ok := c.entries[id]; ok {
		handles = e.handles()
	}
	c.mu.Unlock()

	for _, h := range handles {
		c.Cancel(h)
	}
}

// CancelAll 取消所有进行中的调用方。
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	var handles []*Handle
	for _, e := range c.entries {
		handles = append(handles, e.handles()...)
	}
	c.mu.Unlock()

	for _, h := range handles {
		c.Cancel(h)
	}
}

// InFlight 返回当前登记的下载数。
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close 拒绝新的抓取，取消所有调用方，并等待后台任务退出。
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.CancelAll()
	c.wg.Wait()
	return nil
}

func (c *Coordinator) run(ctx context.Context, e *entry) {
	defer c.wg.Done()
	defer c.drained(e)

	// 同一标识同一时刻最多一个网络请求。
	if e.prev != nil {
		<-e.prev.done
		e.prev = nil
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer c.sem.Release(1)

	c.mu.Lock()
	if e.state != StateCreated {
		c.mu.Unlock()
		return
	}
	e.state = StateRunning
	c.mu.Unlock()

	data, err := c.transport.Get(ctx, e.url)
	if err != nil {
		c.finish(e, nil, err)
		return
	}
	asset, err := c.codec.Decode(data)
	if err != nil {
		c.finish(e, nil, err)
		return
	}

	if e.transform != nil {
		transformed, err := e.transform(asset)
		if err != nil {
			c.finish(e, nil, &TransformError{Err: err})
			return
		}
		if transformed != asset {
			encoded, err := c.codec.Encode(transformed)
			if err != nil {
				c.finish(e, nil, &TransformError{Err: err})
				return
			}
			asset, data = transformed, encoded
		}
	}

	// commit 之后再取消调用方只会跳过其回调，不再中止写入。
	c.mu.Lock()
	committed := e.commit()
	c.mu.Unlock()
	if !committed {
		return
	}

	if err := c.cache.PutAsset(context.Background(), e.id, asset, data, cache.PolicyAll); err != nil {
		c.logger.WithError(err).WithFields(c.fields(e.id, e.url)).Warn("cache_write_failed")
	}
	c.finish(e, asset, nil)
}

func (c *Coordinator) drained(e *entry) {
	c.mu.Lock()
	if c.draining[e.id] == e {
		delete(c.draining, e.id)
	}
	c.mu.Unlock()
	close(e.done)
}

// finish 把 entry 推进到终态并按注册顺序投递回调；已取消的 entry 直接丢弃结果。
func (c *Coordinator) finish(e *entry, asset *codec.Asset, err error) {
	state := StateSucceeded
	if err != nil {
		state = StateFailed
	}

	c.mu.Lock()
	if e.state == StateCancelled {
		c.mu.Unlock()
		return
	}
	e.state = state
	if c.entries[e.id] == e {
		delete(c.entries, e.id)
	}
	waiters := append([]*waiter(nil), e.waiters...)
	inFlight := len(c.entries)
	c.mu.Unlock()

	c.metrics.SetInFlight(c.namespace, inFlight)
	c.metrics.FetchFinished(c.namespace, state.String())
	fields := c.fields(e.id, e.url)
	if err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("fetch_failed")
	} else {
		c.logger.WithFields(fields).WithField("waiters", len(waiters)).Info("fetch_done")
	}

	for _, w := range waiters {
		if err != nil {
			w.fail(c, err)
		} else {
			w.succeed(c, asset, e.url)
		}
	}
}

func (c *Coordinator) fields(id, url string) logrus.Fields {
	return logging.FetchFields(c.namespace, id, url)
}

// invoke 执行用户回调，回调 panic 只记录日志，不影响同一下载的其它调用方。
func (c *Coordinator) invoke(w *waiter, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logrus.Fields{
				"action":    "fetch_callback",
				"namespace": c.namespace,
				"handle":    w.handle.id,
				"panic":     fmt.Sprint(r),
			}).Error("fetch_callback_panic")
		}
	}()
	fn()
}
