package cache

import (
	"fmt"
	"strings"
)

// Policy 以位掩码选择一次读写涉及的缓存层。
type Policy uint8

const (
	// PolicyNone 完全跳过缓存，任何一层都不会被读写。
	PolicyNone Policy = 0
	// PolicyMemory 只使用内存层。
	PolicyMemory Policy = 1 << 0
	// PolicyDisk 只使用磁盘层。
	PolicyDisk Policy = 1 << 1
	// PolicyAll 同时使用内存与磁盘。
	PolicyAll = PolicyMemory | PolicyDisk
)

// Memory 返回策略是否包含内存层。
func (p Policy) Memory() bool {
	return p&PolicyMemory != 0
}

// Disk 返回策略是否包含磁盘层。
func (p Policy) Disk() bool {
	return p&PolicyDisk != 0
}

func (p Policy) String() string {
	switch p & PolicyAll {
	case PolicyNone:
		return "none"
	case PolicyMemory:
		return "memory"
	case PolicyDisk:
		return "disk"
	default:
		return "all"
	}
}

// ParsePolicy 解析配置/查询参数中的策略名称，空串视为 all。
func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all":
		return PolicyAll, nil
	case "memory":
		return PolicyMemory, nil
	case "disk":
		return PolicyDisk, nil
	case "none":
		return PolicyNone, nil
	default:
		return PolicyNone, fmt.Errorf("unknown cache policy %q", raw)
	}
}
