package server

import (
	"github.com/any-hub/imgcache/internal/config"
	"github.com/any-hub/imgcache/internal/fetch"
	"github.com/any-hub/imgcache/internal/version"
)

// NewUpstreamTransport 返回所有命名空间共享的下载器，超时与大小上限取自全局配置。
func NewUpstreamTransport(cfg *config.Config) *fetch.HTTPTransport {
	var g config.GlobalConfig
	if cfg != nil {
		g = cfg.Global
	}
	return fetch.NewHTTPTransport(g.UpstreamTimeout.DurationValue(), g.MaxImageBytes, version.UserAgent())
}
