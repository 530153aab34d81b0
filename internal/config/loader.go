package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// globalOnlyKeys 只能出现在顶层，写在 [[Namespace]] 中视为配置错误。
var globalOnlyKeys = []string{"ListenPort", "StoragePath", "EvictionInterval", "MaxConcurrentFetches"}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectNamespaceLevelKeys(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Namespaces {
		cfg.Namespaces[i].Name = strings.TrimSpace(cfg.Namespaces[i].Name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("MaxCacheAge", "168h")
	v.SetDefault("EvictionInterval", "1h")
	v.SetDefault("MaxConcurrentFetches", 6)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("MaxImageBytes", 20*1024*1024)
}

// applyGlobalDefaults 只补充零值无意义的字段；MaxCacheAge 与 EvictionInterval 的 0 有含义，保持原样。
func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.MaxConcurrentFetches == 0 {
		g.MaxConcurrentFetches = 6
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.MaxImageBytes == 0 {
		g.MaxImageBytes = 20 * 1024 * 1024
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

func rejectNamespaceLevelKeys(v *viper.Viper) error {
	raw := v.Get("Namespace")
	namespaces, ok := raw.([]interface{})
	if !ok {
		if typed, ok := raw.([]map[string]interface{}); ok {
			for _, m := range typed {
				namespaces = append(namespaces, m)
			}
		}
	}

	for idx, entry := range namespaces {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		for key := range m {
			for _, global := range globalOnlyKeys {
				if !strings.EqualFold(key, global) {
					continue
				}
				name := fmt.Sprintf("#%d", idx)
				for k, val := range m {
					if s, ok := val.(string); ok && strings.EqualFold(k, "Name") && s != "" {
						name = s
					}
				}
				return newFieldError(namespaceField(name, global), "仅支持在全局配置中设置")
			}
		}
	}

	return nil
}
