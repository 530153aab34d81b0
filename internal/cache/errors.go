package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed 表示 Store 已关闭，磁盘操作不再被受理。
	ErrClosed = errors.New("cache store closed")
	// ErrInvalidKey 表示键为空或无法作为单个路径片段使用。
	ErrInvalidKey = errors.New("invalid cache key")
	// ErrNamespaceRequired 表示构造 Store 时缺少 namespace。
	ErrNamespaceRequired = errors.New("cache namespace required")
)

// DiskError 描述一次磁盘读写/删除失败，Op 取 write/remove/evict 等。
type DiskError struct {
	Op   string
	Path string
	Err  error
}

func (e *DiskError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DiskError) Unwrap() error {
	return e.Err
}
