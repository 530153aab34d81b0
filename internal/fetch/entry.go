package fetch

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/any-hub/imgcache/internal/codec"
)

// State 是一次下载的生命周期阶段。
type State int

const (
	StateCreated State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// entry 是某个标识的进行中下载，除 id/url/transform/cancel/prev/done 外的字段都由 Coordinator.mu 保护。
type entry struct {
	id        string
	url       string
	transform codec.Transform
	cancel    context.CancelFunc
	// prev 是同一标识上已取消但仍在收尾的下载，本 entry 须等它退出后才访问网络。
	prev *entry
	// done 在 run 退出后关闭，且晚于 prev.done。
	done chan struct{}

	state     State
	committed bool
	waiters   []*waiter
}

func (e *entry) pending() int {
	n := 0
	for _, w := range e.waiters {
		if w.status.Load() == waiterPending {
			n++
		}
	}
	return n
}

// abandon 在最后一个调用方取消且结果尚未提交时把 entry 标记为已取消。
func (e *entry) abandon() bool {
	if e.committed || (e.state != StateCreated && e.state != StateRunning) {
		return false
	}
	if e.pending() > 0 {
		return false
	}
	e.state = StateCancelled
	return true
}

// commit 锁定结果，之后 entry 不会再被整体取消。
func (e *entry) commit() bool {
	if e.state == StateCancelled {
		return false
	}
	e.committed = true
	return true
}

func (e *entry) handles() []*Handle {
	out := make([]*Handle, 0, len(e.waiters))
	for _, w := range e.waiters {
		if w.status.Load() == waiterPending {
			out = append(out, w.handle)
		}
	}
	return out
}

const (
	waiterPending int32 = iota
	waiterDelivered
	waiterCancelled
)

// waiter 的状态只会从 pending 单向变为 delivered 或 cancelled，
// 因此一个调用方最多收到一次回调，取消成功后不会再收到回调。
type waiter struct {
	handle    *Handle
	onSuccess SuccessFunc
	onFailure FailureFunc
	status    atomic.Int32
}

func (w *waiter) cancel() bool {
	return w.status.CompareAndSwap(waiterPending, waiterCancelled)
}

func (w *waiter) succeed(c *Coordinator, asset *codec.Asset, url string) {
	if !w.status.CompareAndSwap(waiterPending, waiterDelivered) {
		return
	}
	if w.onSuccess != nil {
		c.invoke(w, func() { w.onSuccess(asset, url) })
	}
}

func (w *waiter) fail(c *Coordinator, err error) {
	if !w.status.CompareAndSwap(waiterPending, waiterDelivered) {
		return
	}
	if w.onFailure != nil {
		c.invoke(w, func() { w.onFailure(err) })
	}
}

// Handle 代表一次 Fetch 调用，可用于取消该调用方的回调。
type Handle struct {
	id         string
	identifier string
	coord      *Coordinator
	entry      *entry
	w          *waiter
}

func newHandle(c *Coordinator, identifier string, e *entry, onSuccess SuccessFunc, onFailure FailureFunc) *Handle {
	h := &Handle{
		id:         uuid.NewString(),
		identifier: identifier,
		coord:      c,
		entry:      e,
	}
	h.w = &waiter{handle: h, onSuccess: onSuccess, onFailure: onFailure}
	return h
}

// ID 是 handle 的唯一编号。
func (h *Handle) ID() string { return h.id }

// Identifier 是所请求 URL 的缓存键。
func (h *Handle) Identifier() string { return h.identifier }

// Cancel 等价于 Coordinator.Cancel(h)。
func (h *Handle) Cancel() {
	if h == nil || h.coord == nil {
		return
	}
	h.coord.Cancel(h)
}

// Cancelled reports whether Cancel took effect before a callback was delivered.
func (h *Handle) Cancelled() bool {
	return h != nil && h.w != nil && h.w.status.Load() == waiterCancelled
}
