package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/imgcache/internal/cache"
	"github.com/any-hub/imgcache/internal/codec"
	"github.com/any-hub/imgcache/internal/logging"
)

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger   *logrus.Logger
	Registry *NamespaceRegistry
	// Gatherer backs /-/metrics; nil disables the endpoint.
	Gatherer   prometheus.Gatherer
	ListenPort int
}

const (
	contextKeyRequestID = "_imgcache_request_id"

	// HeaderCacheHit reports whether the image was served without a fetch.
	HeaderCacheHit = "X-Imgcache-Cache-Hit"
)

// NewApp builds a Fiber application with request-id middleware, the image
// route and the optional metrics endpoint.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("namespace registry is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	if opts.Gatherer != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	images := &imageHandler{
		logger:   opts.Logger,
		registry: opts.Registry,
		codec:    codec.NewImageCodec(),
	}
	app.Get("/:namespace/image", images.serve)

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID 并回写到响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// RenderError 输出统一的 JSON 错误体。
func RenderError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

type imageHandler struct {
	logger   *logrus.Logger
	registry *NamespaceRegistry
	codec    *codec.ImageCodec
}

// serve 先按 policy 查询缓存，未命中时经由 Coordinator 下载；并发的相同请求只触发一次下载。
func (h *imageHandler) serve(c fiber.Ctx) error {
	route, ok := h.registry.Lookup(c.Params("namespace"))
	if !ok {
		return RenderError(c, fiber.StatusNotFound, "namespace_not_found")
	}

	rawURL := strings.TrimSpace(c.Query("url"))
	if rawURL == "" {
		return RenderError(c, fiber.StatusBadRequest, "url_required")
	}
	if !validSourceURL(rawURL) {
		return RenderError(c, fiber.StatusBadRequest, "invalid_url")
	}
	policy, err := cache.ParsePolicy(c.Query("policy"))
	if err != nil {
		return RenderError(c, fiber.StatusBadRequest, "invalid_policy")
	}

	id := route.Fetcher.Identifier(rawURL)
	fields := logging.RequestFields(route.Name(), RequestID(c), policy.String(), true)
	fields["key"] = id

	if data, ok := route.Assets.Read(id, policy); ok {
		h.logger.WithFields(fields).Debug("image_served")
		return sendImage(c, data, true)
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	asset, err := route.Fetcher.FetchContext(ctx, rawURL, route.Transform)
	fields["cache_hit"] = false
	if err != nil {
		h.logger.WithError(err).WithFields(fields).Warn("image_fetch_failed")
		return RenderError(c, fiber.StatusBadGateway, "fetch_failed")
	}

	data, ok := route.Assets.Read(id, cache.PolicyAll)
	if !ok {
		// 内存层在下载完成后被清空时，直接重新编码结果。
		if data, err = h.codec.Encode(asset); err != nil {
			h.logger.WithError(err).WithFields(fields).Warn("image_encode_failed")
			return RenderError(c, fiber.StatusInternalServerError, "encode_failed")
		}
	}
	h.logger.WithFields(fields).Debug("image_served")
	return sendImage(c, data, false)
}

func sendImage(c fiber.Ctx, data []byte, hit bool) error {
	c.Set(fiber.HeaderContentType, codec.Sniff(data).MIME())
	c.Set(HeaderCacheHit, strconv.FormatBool(hit))
	return c.Send(data)
}

func validSourceURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
