package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/imgcache/internal/codec"
	"github.com/any-hub/imgcache/internal/metrics"
)

// DefaultMaxCacheAge 是磁盘条目的默认最长保留时间。
const DefaultMaxCacheAge = 7 * 24 * time.Hour

// Options 描述一个 Store 的配置面。
type Options struct {
	// BasePath 为缓存根目录，为空时使用 DefaultBasePath()。
	BasePath string
	// Namespace 必填，条目落在 BasePath/Namespace/<key>。
	Namespace string
	// MaxCacheAge 为磁盘条目最长保留时间，<=0 表示永不过期。
	// 需要默认值时使用 DefaultOptions。
	MaxCacheAge time.Duration

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
	// Now 供测试注入时钟，默认 time.Now。
	Now func() time.Time
}

// DefaultOptions 返回带默认根目录与默认过期时间的配置。
func DefaultOptions(namespace string) Options {
	return Options{
		BasePath:    DefaultBasePath(),
		Namespace:   namespace,
		MaxCacheAge: DefaultMaxCacheAge,
	}
}

// DefaultBasePath 返回进程标准缓存目录下的 imgcache 子目录，取不到时退回临时目录。
func DefaultBasePath() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "imgcache")
	}
	return filepath.Join(os.TempDir(), "imgcache")
}

// Stats 是 Store 的运行时快照，供诊断接口输出。
type Stats struct {
	Namespace     string        `json:"namespace"`
	Dir           string        `json:"dir"`
	MemoryEntries int           `json:"memory_entries"`
	StoredKeys    int           `json:"stored_keys"`
	MaxCacheAge   time.Duration `json:"max_cache_age"`
}

// memoryEntry 不可变；补充解码结果时整体替换。
type memoryEntry struct {
	data  []byte
	asset *codec.Asset
}

// Store 是按命名空间隔离的内存 + 磁盘字节缓存。
type Store struct {
	namespace string
	dir       string
	maxAge    atomic.Int64

	memory *xsync.MapOf[string, *memoryEntry]

	storedMu sync.RWMutex
	stored   map[string]struct{}

	writer  *diskWriter
	logger  *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewStore 以 BasePath/Namespace 为目录构建缓存，目录不存在时自动创建。
func NewStore(opts Options) (*Store, error) {
	if opts.Namespace == "" {
		return nil, ErrNamespaceRequired
	}
	if !validKey(opts.Namespace) {
		return nil, fmt.Errorf("invalid namespace %q", opts.Namespace)
	}

	basePath := opts.BasePath
	if basePath == "" {
		basePath = DefaultBasePath()
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	dir := filepath.Join(abs, opts.Namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		namespace: opts.Namespace,
		dir:       dir,
		memory:    xsync.NewMapOf[string, *memoryEntry](),
		stored:    make(map[string]struct{}),
		writer:    newDiskWriter(64),
		logger:    logger,
		metrics:   opts.Metrics,
		now:       now,
	}
	s.maxAge.Store(int64(opts.MaxCacheAge))
	return s, nil
}

// Namespace 返回命名空间名称。
func (s *Store) Namespace() string {
	return s.namespace
}

// Dir 返回命名空间目录的绝对路径。
func (s *Store) Dir() string {
	return s.dir
}

// MaxCacheAge 返回当前的磁盘过期时间。
func (s *Store) MaxCacheAge() time.Duration {
	return time.Duration(s.maxAge.Load())
}

// SetMaxCacheAge 调整磁盘过期时间，<=0 关闭按龄淘汰。
func (s *Store) SetMaxCacheAge(d time.Duration) {
	s.maxAge.Store(int64(d))
}

// Exists 按策略检查条目是否存在，PolicyAll 时任一层命中即为 true。
func (s *Store) Exists(key string, policy Policy) bool {
	if policy.Memory() {
		if _, ok := s.memory.Load(key); ok {
			return true
		}
	}
	if policy.Disk() {
		return s.existsOnDisk(key)
	}
	return false
}

func (s *Store) existsOnDisk(key string) bool {
	if s.isStored(key) {
		return true
	}
	filePath, err := s.entryPath(key)
	if err != nil {
		return false
	}
	if fileExists(filePath) {
		s.markStored(key)
		return true
	}
	return false
}

// Read 先查内存再查磁盘，磁盘命中不会回填内存（由 AssetCache 负责）。
func (s *Store) Read(key string, policy Policy) ([]byte, bool) {
	if policy.Memory() {
		if entry, ok := s.lookupMemory(key); ok {
			return entry.data, true
		}
	}
	if policy.Disk() {
		return s.readDisk(key)
	}
	return nil, false
}

func (s *Store) lookupMemory(key string) (*memoryEntry, bool) {
	entry, ok := s.memory.Load(key)
	s.metrics.Lookup(s.namespace, "memory", ok)
	return entry, ok
}

func (s *Store) readDisk(key string) ([]byte, bool) {
	filePath, err := s.entryPath(key)
	if err != nil {
		return nil, false
	}
	data, ok, err := readFile(filePath)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action":    "cache_read",
			"namespace": s.namespace,
			"key":       key,
		}).Warn("cache_read_failed")
	}
	s.metrics.Lookup(s.namespace, "disk", ok)
	if ok {
		s.markStored(key)
	}
	return data, ok
}

// Write 按策略写入内存和/或磁盘。磁盘写入经由串行 writer 完成，失败返回 *DiskError。
func (s *Store) Write(ctx context.Context, key string, data []byte, policy Policy) error {
	return s.write(ctx, key, data, nil, policy)
}

func (s *Store) write(ctx context.Context, key string, data []byte, asset *codec.Asset, policy Policy) error {
	if policy == PolicyNone {
		return nil
	}
	filePath, err := s.entryPath(key)
	if err != nil {
		return err
	}

	if policy.Memory() {
		s.memory.Store(key, &memoryEntry{data: data, asset: asset})
	}
	if !policy.Disk() {
		return nil
	}

	err = s.writer.do(ctx, func() error {
		if err := writeFileAtomic(filePath, data, s.now()); err != nil {
			return &DiskError{Op: "write", Path: filePath, Err: err}
		}
		s.markStored(key)
		return nil
	})
	if err != nil {
		s.metrics.DiskWriteFailed(s.namespace)
	}
	return err
}

// attachAsset 为仍是同一份字节的内存条目补充解码结果，期间被覆盖则放弃。
func (s *Store) attachAsset(key string, seen *memoryEntry, asset *codec.Asset) {
	s.memory.Compute(key, func(old *memoryEntry, loaded bool) (*memoryEntry, bool) {
		if !loaded {
			return nil, true
		}
		if old != seen {
			return old, false
		}
		return &memoryEntry{data: old.data, asset: asset}, false
	})
}

// dropMemory 删除仍是 seen 的内存条目，期间被覆盖则保留新值。
func (s *Store) dropMemory(key string, seen *memoryEntry) {
	s.memory.Compute(key, func(old *memoryEntry, loaded bool) (*memoryEntry, bool) {
		return old, !loaded || old == seen
	})
}

// Remove 从所选层删除单个条目，磁盘上不存在不视为错误。
func (s *Store) Remove(ctx context.Context, key string, policy Policy) error {
	if policy.Memory() {
		s.memory.Delete(key)
	}
	if !policy.Disk() {
		return nil
	}
	filePath, err := s.entryPath(key)
	if err != nil {
		return err
	}
	return s.writer.do(ctx, func() error {
		if err := removeFile(filePath); err != nil {
			return &DiskError{Op: "remove", Path: filePath, Err: err}
		}
		s.unmarkStored(key)
		return nil
	})
}

// RemoveMemoryCache 清空内存层，不触碰磁盘。
func (s *Store) RemoveMemoryCache() {
	s.memory.Clear()
}

// RemoveDiskCache 删除命名空间目录下的全部文件并清空已写入键集合。
func (s *Store) RemoveDiskCache(ctx context.Context) error {
	return s.writer.do(ctx, func() error {
		if err := os.RemoveAll(s.dir); err != nil {
			return &DiskError{Op: "clear", Path: s.dir, Err: err}
		}
		s.storedMu.Lock()
		s.stored = make(map[string]struct{})
		s.storedMu.Unlock()
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return &DiskError{Op: "clear", Path: s.dir, Err: err}
		}
		return nil
	})
}

// Stats 返回当前快照。
func (s *Store) Stats() Stats {
	s.storedMu.RLock()
	stored := len(s.stored)
	s.storedMu.RUnlock()
	return Stats{
		Namespace:     s.namespace,
		Dir:           s.dir,
		MemoryEntries: s.memory.Size(),
		StoredKeys:    stored,
		MaxCacheAge:   s.MaxCacheAge(),
	}
}

// Close 等待排队中的磁盘任务完成并停止 writer；之后的磁盘操作返回 ErrClosed。
func (s *Store) Close() error {
	s.writer.close()
	return nil
}

func (s *Store) isStored(key string) bool {
	s.storedMu.RLock()
	_, ok := s.stored[key]
	s.storedMu.RUnlock()
	return ok
}

func (s *Store) markStored(key string) {
	s.storedMu.Lock()
	s.stored[key] = struct{}{}
	s.storedMu.Unlock()
}

func (s *Store) unmarkStored(key string) {
	s.storedMu.Lock()
	delete(s.stored, key)
	s.storedMu.Unlock()
}
