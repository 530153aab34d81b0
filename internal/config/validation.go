package config

import (
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogLevel != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError("Global.LogLevel", "无法识别的日志级别")
		}
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.EvictionInterval.DurationValue() < 0 {
		return newFieldError("Global.EvictionInterval", "不能为负数")
	}
	if g.MaxConcurrentFetches <= 0 {
		return newFieldError("Global.MaxConcurrentFetches", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.MaxImageBytes <= 0 {
		return newFieldError("Global.MaxImageBytes", "必须大于 0")
	}

	if len(c.Namespaces) == 0 {
		return errors.New("至少需要配置一个 Namespace")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Namespaces {
		ns := &c.Namespaces[i]
		if ns.Name == "" {
			return newFieldError("Namespace[].Name", "不能为空")
		}
		if !validNamespaceName(ns.Name) {
			return newFieldError(namespaceField(ns.Name, "Name"), "仅允许字母、数字、'-'、'_' 与 '.'")
		}
		if _, exists := seenNames[ns.Name]; exists {
			return newFieldError(namespaceField(ns.Name, "Name"), "重复")
		}
		seenNames[ns.Name] = struct{}{}

		if ns.ThumbnailSize < 0 {
			return newFieldError(namespaceField(ns.Name, "ThumbnailSize"), "不能为负数")
		}
	}

	return nil
}

// validNamespaceName 保证命名空间可以安全地作为目录名与 URL 路径段。
func validNamespaceName(name string) bool {
	if name == "." || name == ".." || strings.HasPrefix(name, "-") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}

// EffectiveMaxCacheAge 返回命名空间生效的过期时间：0 继承全局值，负数关闭清理。
func (c *Config) EffectiveMaxCacheAge(ns NamespaceConfig) time.Duration {
	switch age := ns.MaxCacheAge.DurationValue(); {
	case age > 0:
		return age
	case age < 0:
		return 0
	default:
		if global := c.Global.MaxCacheAge.DurationValue(); global > 0 {
			return global
		}
		return 0
	}
}
