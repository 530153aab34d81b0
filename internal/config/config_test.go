package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(testConfigPath(t, "valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.MaxCacheAge.DurationValue() != 72*time.Hour {
		t.Fatalf("MaxCacheAge 解析错误: %v", cfg.Global.MaxCacheAge.DurationValue())
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 15*time.Second {
		t.Fatalf("纯数字 Duration 应按秒解析")
	}
	if cfg.Global.MaxConcurrentFetches != 6 {
		t.Fatalf("MaxConcurrentFetches 应使用默认值 6, got %d", cfg.Global.MaxConcurrentFetches)
	}
	if !filepath.IsAbs(cfg.Global.StoragePath) {
		t.Fatalf("StoragePath 应被转换为绝对路径: %s", cfg.Global.StoragePath)
	}
	if len(cfg.Namespaces) != 2 || cfg.Namespaces[0].Name != "avatars" {
		t.Fatalf("命名空间解析错误: %+v", cfg.Namespaces)
	}
	if cfg.Namespaces[0].ThumbnailSize != 128 {
		t.Fatalf("ThumbnailSize 解析错误")
	}
	if cfg.EffectiveMaxCacheAge(cfg.Namespaces[0]) != 72*time.Hour {
		t.Fatalf("未覆盖时应退回全局 MaxCacheAge")
	}
	if cfg.EffectiveMaxCacheAge(cfg.Namespaces[1]) != 24*time.Hour {
		t.Fatalf("命名空间覆盖应优先生效")
	}
}

func TestLoadKeepsZeroMaxCacheAge(t *testing.T) {
	path := writeTempConfig(t, `
MaxCacheAge = 0
EvictionInterval = 0

[[Namespace]]
Name = "images"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.MaxCacheAge.DurationValue() != 0 {
		t.Fatalf("显式的 0 表示关闭清理，不应被默认值覆盖")
	}
	if cfg.Global.EvictionInterval.DurationValue() != 0 {
		t.Fatalf("显式的 0 表示不启动清理任务")
	}
	if cfg.EffectiveMaxCacheAge(cfg.Namespaces[0]) != 0 {
		t.Fatalf("全局关闭时命名空间也应关闭")
	}
}

func TestLoadAppliesMaxCacheAgeDefault(t *testing.T) {
	path := writeTempConfig(t, `
[[Namespace]]
Name = "images"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.MaxCacheAge.DurationValue() != 7*24*time.Hour {
		t.Fatalf("默认 MaxCacheAge 应为一周, got %v", cfg.Global.MaxCacheAge.DurationValue())
	}
}

func TestValidateRejectsBadNamespace(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺少 Name 的配置应返回错误")
	}
}

func TestNegativeNamespaceAgeDisablesEviction(t *testing.T) {
	cfg := validConfig()
	ns := NamespaceConfig{Name: "x", MaxCacheAge: Duration(-1)}
	if cfg.EffectiveMaxCacheAge(ns) != 0 {
		t.Fatalf("负数应关闭该命名空间的清理")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestNamespaceNameValidation(t *testing.T) {
	testCases := []struct {
		name      string
		nsName    string
		shouldErr bool
	}{
		{"plain ok", "images", false},
		{"dotted ok", "cdn.v2", false},
		{"missing", "", true},
		{"slash", "a/b", true},
		{"parent dir", "..", true},
		{"space", "my images", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Namespaces[0].Name = tc.nsName
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for name %q", tc.nsName)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for name %q: %v", tc.nsName, err)
			}
		})
	}
}

func TestValidateRejectsDuplicateNamespaces(t *testing.T) {
	cfg := validConfig()
	cfg.Namespaces = append(cfg.Namespaces, NamespaceConfig{Name: cfg.Namespaces[0].Name})
	err := cfg.Validate()
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("重复命名空间应返回 FieldError, got %v", err)
	}
	if fieldErr.Field != "Namespace[images].Name" {
		t.Fatalf("字段路径错误: %s", fieldErr.Field)
	}
}

func TestValidateRequiresNamespaces(t *testing.T) {
	cfg := validConfig()
	cfg.Namespaces = nil
	if err := cfg.Validate(); err == nil {
		t.Fatalf("没有命名空间时应报错")
	}
}

func TestNamespaceNames(t *testing.T) {
	names := NamespaceNames([]NamespaceConfig{{Name: "a"}, {Name: "b"}})
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected names %v", names)
	}
	if NamespaceNames(nil) != nil {
		t.Fatalf("空列表应返回 nil")
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:           5000,
			LogLevel:             "info",
			StoragePath:          "./data",
			MaxCacheAge:          Duration(time.Hour),
			EvictionInterval:     Duration(time.Minute),
			MaxConcurrentFetches: 2,
			UpstreamTimeout:      Duration(time.Second),
			MaxImageBytes:        1024,
		},
		Namespaces: []NamespaceConfig{
			{Name: "images"},
		},
	}
}
