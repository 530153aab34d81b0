package cache

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/imgcache/internal/codec"
)

// Decoder 是 AssetCache 依赖的解码能力，由 codec.ImageCodec 提供默认实现。
type Decoder interface {
	Decode(data []byte) (*codec.Asset, error)
}

// AssetCache 在 Store 之上维护解码后的图片，内存层同时保留原始字节与解码结果。
type AssetCache struct {
	*Store
	decoder Decoder
}

// NewAssetCache 以已构造的 Store 和解码器创建 AssetCache。
func NewAssetCache(store *Store, decoder Decoder) *AssetCache {
	return &AssetCache{Store: store, decoder: decoder}
}

// Get 返回解码后的图片。内存命中时复用已解码结果（首次命中时惰性解码一次）；
// 内存字节无法解码时丢弃该条目并按策略回落到磁盘。
// 仅磁盘命中且 promote 为 true 时，字节与解码结果会一起写入内存层。
func (c *AssetCache) Get(key string, policy Policy, promote bool) (*codec.Asset, bool) {
	if policy.Memory() {
		if entry, ok := c.lookupMemory(key); ok {
			if entry.asset != nil {
				return entry.asset, true
			}
			asset, err := c.decoder.Decode(entry.data)
			if err == nil {
				c.attachAsset(key, entry, asset)
				return asset, true
			}
			// 内存中的坏字节按未命中处理，继续查磁盘。
			c.logDecodeFailure(key, "memory", err)
			c.dropMemory(key, entry)
		}
	}

	if !policy.Disk() {
		return nil, false
	}
	data, ok := c.readDisk(key)
	if !ok {
		return nil, false
	}
	asset, err := c.decoder.Decode(data)
	if err != nil {
		c.logDecodeFailure(key, "disk", err)
		return nil, false
	}
	if promote {
		c.memory.Store(key, &memoryEntry{data: data, asset: asset})
	}
	return asset, true
}

// MemoryAsset 只查询内存层，不触发磁盘 IO。
func (c *AssetCache) MemoryAsset(key string) (*codec.Asset, bool) {
	return c.Get(key, PolicyMemory, false)
}

// Put 写入原始字节，解码结果在首次 Get 时补充。
func (c *AssetCache) Put(ctx context.Context, key string, data []byte, policy Policy) error {
	return c.write(ctx, key, data, nil, policy)
}

// PutAsset 写入字节并用已解码的 asset 预热内存层，asset 必须与 data 对应。
func (c *AssetCache) PutAsset(ctx context.Context, key string, asset *codec.Asset, data []byte, policy Policy) error {
	return c.write(ctx, key, data, asset, policy)
}

func (c *AssetCache) logDecodeFailure(key, tier string, err error) {
	c.logger.WithError(err).WithFields(logrus.Fields{
		"action":    "cache_decode",
		"namespace": c.namespace,
		"key":       key,
		"tier":      tier,
	}).Warn("cache_decode_failed")
}
