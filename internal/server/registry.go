package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/any-hub/imgcache/internal/cache"
	"github.com/any-hub/imgcache/internal/codec"
	"github.com/any-hub/imgcache/internal/config"
	"github.com/any-hub/imgcache/internal/fetch"
	"github.com/any-hub/imgcache/internal/metrics"
)

// NamespaceRoute 聚合单个命名空间的配置与运行时组件，供路由层直接复用。
type NamespaceRoute struct {
	// Config 是 config.toml 中声明的命名空间字段副本。
	Config config.NamespaceConfig
	// MaxCacheAge 为该命名空间生效的过期时间，0 表示不过期。
	MaxCacheAge time.Duration
	Assets      *cache.AssetCache
	Fetcher     *fetch.Coordinator
	// Transform 为 nil 时按原图缓存。
	Transform codec.Transform
}

// Name 返回命名空间名称。
func (r *NamespaceRoute) Name() string {
	return r.Config.Name
}

// RegistryOptions 是构建 NamespaceRegistry 时注入的共享依赖。
type RegistryOptions struct {
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
	Transport fetch.Transport
	Codec     *codec.ImageCodec
}

// NamespaceRegistry 提供命名空间名称到 NamespaceRoute 的查询能力。
type NamespaceRegistry struct {
	routes  map[string]*NamespaceRoute
	ordered []*NamespaceRoute
}

// NewNamespaceRegistry 为每个命名空间创建 Store/AssetCache/Coordinator。
// 任一命名空间构建失败时会关闭已创建的组件。
func NewNamespaceRegistry(cfg *config.Config, opts RegistryOptions) (*NamespaceRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Codec == nil {
		opts.Codec = codec.NewImageCodec()
	}

	registry := &NamespaceRegistry{
		routes: make(map[string]*NamespaceRoute, len(cfg.Namespaces)),
	}

	for _, ns := range cfg.Namespaces {
		if _, exists := registry.routes[ns.Name]; exists {
			registry.Close()
			return nil, fmt.Errorf("duplicate namespace %s", ns.Name)
		}
		route, err := buildNamespaceRoute(cfg, ns, opts)
		if err != nil {
			registry.Close()
			return nil, fmt.Errorf("namespace %s: %w", ns.Name, err)
		}
		registry.routes[ns.Name] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

func buildNamespaceRoute(cfg *config.Config, ns config.NamespaceConfig, opts RegistryOptions) (*NamespaceRoute, error) {
	maxAge := cfg.EffectiveMaxCacheAge(ns)
	store, err := cache.NewStore(cache.Options{
		BasePath:    cfg.Global.StoragePath,
		Namespace:   ns.Name,
		MaxCacheAge: maxAge,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	assets := cache.NewAssetCache(store, opts.Codec)
	fetcher, err := fetch.NewCoordinator(fetch.Options{
		Cache:         assets,
		Transport:     opts.Transport,
		Codec:         opts.Codec,
		Logger:        opts.Logger,
		Metrics:       opts.Metrics,
		MaxConcurrent: cfg.Global.MaxConcurrentFetches,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	var transform codec.Transform
	if ns.ThumbnailSize > 0 {
		transform = codec.Thumbnail(ns.ThumbnailSize)
	}

	return &NamespaceRoute{
		Config:      ns,
		MaxCacheAge: maxAge,
		Assets:      assets,
		Fetcher:     fetcher,
		Transform:   transform,
	}, nil
}

// Lookup 根据名称查找命名空间。
func (r *NamespaceRegistry) Lookup(name string) (*NamespaceRoute, bool) {
	if r == nil || name == "" {
		return nil, false
	}
	route, ok := r.routes[name]
	return route, ok
}

// List 按配置顺序返回所有命名空间。
func (r *NamespaceRegistry) List() []*NamespaceRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	return append([]*NamespaceRoute(nil), r.ordered...)
}

// Close 先停止抓取再关闭存储，返回所有关闭错误的合并。
func (r *NamespaceRegistry) Close() error {
	if r == nil {
		return nil
	}
	var err error
	for _, route := range r.ordered {
		err = multierr.Append(err, route.Fetcher.Close())
		err = multierr.Append(err, route.Assets.Close())
	}
	return err
}
