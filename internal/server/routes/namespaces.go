package routes

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/imgcache/internal/cache"
	"github.com/any-hub/imgcache/internal/server"
)

// RegisterNamespaceRoutes 暴露 /-/namespaces 诊断与维护接口：查看统计、清空缓存、触发淘汰、取消下载。
func RegisterNamespaceRoutes(app *fiber.App, registry *server.NamespaceRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/namespaces", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"namespaces": encodeNamespaces(registry.List()),
		})
	})

	app.Get("/-/namespaces/:namespace", withRoute(registry, func(c fiber.Ctx, route *server.NamespaceRoute) error {
		return c.JSON(encodeNamespace(route))
	}))

	app.Delete("/-/namespaces/:namespace/memory", withRoute(registry, func(c fiber.Ctx, route *server.NamespaceRoute) error {
		route.Assets.RemoveMemoryCache()
		return c.SendStatus(fiber.StatusNoContent)
	}))

	app.Delete("/-/namespaces/:namespace/disk", withRoute(registry, func(c fiber.Ctx, route *server.NamespaceRoute) error {
		if err := route.Assets.RemoveDiskCache(requestContext(c)); err != nil {
			return server.RenderError(c, fiber.StatusInternalServerError, "remove_disk_failed")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}))

	app.Post("/-/namespaces/:namespace/evict", withRoute(registry, func(c fiber.Ctx, route *server.NamespaceRoute) error {
		report, err := route.Assets.RemoveOutdatedDiskCache(requestContext(c))
		payload := encodeReport(report)
		if err != nil {
			payload.Error = err.Error()
			return c.Status(fiber.StatusInternalServerError).JSON(payload)
		}
		return c.JSON(payload)
	}))

	app.Delete("/-/namespaces/:namespace/fetches", withRoute(registry, func(c fiber.Ctx, route *server.NamespaceRoute) error {
		route.Fetcher.CancelAll()
		return c.SendStatus(fiber.StatusNoContent)
	}))
}

func withRoute(registry *server.NamespaceRegistry, fn func(fiber.Ctx, *server.NamespaceRoute) error) fiber.Handler {
	return func(c fiber.Ctx) error {
		route, ok := registry.Lookup(c.Params("namespace"))
		if !ok {
			return server.RenderError(c, fiber.StatusNotFound, "namespace_not_found")
		}
		return fn(c, route)
	}
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

type namespacePayload struct {
	Name              string `json:"name"`
	Dir               string `json:"dir"`
	MaxCacheAgeSecond int64  `json:"max_cache_age_seconds"`
	ThumbnailSize     int    `json:"thumbnail_size,omitempty"`
	MemoryEntries     int    `json:"memory_entries"`
	StoredKeys        int    `json:"stored_keys"`
	InFlight          int    `json:"in_flight"`
}

type evictionPayload struct {
	Scanned    int      `json:"scanned"`
	Removed    int      `json:"removed"`
	Failed     []string `json:"failed,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`
}

func encodeNamespaces(routes []*server.NamespaceRoute) []namespacePayload {
	result := make([]namespacePayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, encodeNamespace(route))
	}
	return result
}

func encodeNamespace(route *server.NamespaceRoute) namespacePayload {
	stats := route.Assets.Stats()
	return namespacePayload{
		Name:              route.Name(),
		Dir:               stats.Dir,
		MaxCacheAgeSecond: int64(route.MaxCacheAge / time.Second),
		ThumbnailSize:     route.Config.ThumbnailSize,
		MemoryEntries:     stats.MemoryEntries,
		StoredKeys:        stats.StoredKeys,
		InFlight:          route.Fetcher.InFlight(),
	}
}

func encodeReport(report cache.EvictionReport) evictionPayload {
	payload := evictionPayload{
		Scanned:    report.Scanned,
		Removed:    report.Removed,
		DurationMS: report.Duration.Milliseconds(),
	}
	for _, f := range report.Failed {
		payload.Failed = append(payload.Failed, f.Path)
	}
	return payload
}
