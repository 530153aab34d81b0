// Package cachekey 将任意标识字符串（通常是图片 URL）折算为稳定的缓存键。
// 键为十六进制摘要，可直接作为磁盘路径片段使用，且跨进程重启保持不变。
package cachekey

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
)

// Digest 返回输入字符串的 SHA-1 十六进制摘要，作为默认缓存键。
func Digest(input string) string {
	return DigestBytes([]byte(input))
}

// DigestBytes 与 Digest 相同，但直接作用于字节切片。
func DigestBytes(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// MD5 返回输入字符串的 MD5 十六进制摘要，仅用于兼容旧的键布局，不建议作为新键。
func MD5(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}
