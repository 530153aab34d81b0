package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 兼容纯秒整数与 Go Duration 字符串两种写法。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别 "30s"、"168h" 或纯数字秒值。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述全局运行时行为，所有命名空间共享。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
	StoragePath   string `mapstructure:"StoragePath"`
	// MaxCacheAge <= 0 表示磁盘条目永不过期。
	MaxCacheAge Duration `mapstructure:"MaxCacheAge"`
	// EvictionInterval 为清理周期，0 表示不启动后台清理。
	EvictionInterval     Duration `mapstructure:"EvictionInterval"`
	MaxConcurrentFetches int      `mapstructure:"MaxConcurrentFetches"`
	UpstreamTimeout      Duration `mapstructure:"UpstreamTimeout"`
	MaxImageBytes        int64    `mapstructure:"MaxImageBytes"`
}

// NamespaceConfig 对应一个独立的缓存命名空间。
type NamespaceConfig struct {
	Name string `mapstructure:"Name"`
	// MaxCacheAge 为 0 时继承全局值，为负数时对该命名空间关闭过期清理。
	MaxCacheAge Duration `mapstructure:"MaxCacheAge"`
	// ThumbnailSize > 0 时对新下载的图片按最长边缩放。
	ThumbnailSize int `mapstructure:"ThumbnailSize"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global     GlobalConfig      `mapstructure:",squash"`
	Namespaces []NamespaceConfig `mapstructure:"Namespace"`
}

// NamespaceNames 返回所有命名空间名称，供日志字段使用。
func NamespaceNames(namespaces []NamespaceConfig) []string {
	if len(namespaces) == 0 {
		return nil
	}
	result := make([]string, len(namespaces))
	for i, ns := range namespaces {
		result[i] = ns.Name
	}
	return result
}
