// Package codec 提供缓存层消费的图片编解码能力：格式嗅探、解码、重新编码以及
// 缩略图变换。缓存与抓取层只通过 Decode/Encode 两个入口与本包交互，从不直接解析字节。
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// ErrUnsupportedFormat 表示负载不是可识别的图片格式。
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Asset 是解码后的图片及其原始格式。
type Asset struct {
	Image image.Image
	Type  ContentType
}

// Bounds 返回图片尺寸，nil Asset 返回空矩形。
func (a *Asset) Bounds() image.Rectangle {
	if a == nil || a.Image == nil {
		return image.Rectangle{}
	}
	return a.Image.Bounds()
}

// DecodeError 描述解码失败的格式与底层原因。
type DecodeError struct {
	Type ContentType
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ImageCodec 是默认实现，覆盖 JPEG/PNG/GIF/TIFF/WEBP 解码。
type ImageCodec struct {
	// JPEGQuality 为重新编码 JPEG 时的质量，<=0 时使用 jpeg.DefaultQuality。
	JPEGQuality int
}

// NewImageCodec 返回使用默认参数的 ImageCodec。
func NewImageCodec() *ImageCodec {
	return &ImageCodec{JPEGQuality: 90}
}

// Decode 先嗅探格式再调用对应解码器，避免 image.Decode 依赖全局注册顺序。
func (c *ImageCodec) Decode(data []byte) (*Asset, error) {
	kind := Sniff(data)
	reader := bytes.NewReader(data)

	var (
		img image.Image
		err error
	)
	switch kind {
	case ContentTypeJPEG:
		img, err = jpeg.Decode(reader)
	case ContentTypePNG:
		img, err = png.Decode(reader)
	case ContentTypeGIF:
		img, err = gif.Decode(reader)
	case ContentTypeTIFF:
		img, err = tiff.Decode(reader)
	case ContentTypeWEBP:
		img, err = webp.Decode(reader)
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return nil, &DecodeError{Type: kind, Err: err}
	}
	return &Asset{Image: img, Type: kind}, nil
}

// Encode 按 Asset 的原始格式重新编码；WEBP 与未知格式没有编码器，统一落为 PNG。
func (c *ImageCodec) Encode(asset *Asset) ([]byte, error) {
	if asset == nil || asset.Image == nil {
		return nil, errors.New("encode: empty asset")
	}

	var buf bytes.Buffer
	var err error
	switch asset.Type {
	case ContentTypeJPEG:
		quality := c.JPEGQuality
		if quality <= 0 {
			quality = jpeg.DefaultQuality
		}
		err = jpeg.Encode(&buf, asset.Image, &jpeg.Options{Quality: quality})
	case ContentTypeGIF:
		err = gif.Encode(&buf, asset.Image, nil)
	case ContentTypeTIFF:
		err = tiff.Encode(&buf, asset.Image, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = png.Encode(&buf, asset.Image)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", asset.Type, err)
	}
	return buf.Bytes(), nil
}
