package codec

import (
	"errors"
	"image"

	"golang.org/x/image/draw"
)

// Transform 是抓取成功后对解码结果的后处理，返回值会替代原图写入缓存。
type Transform func(*Asset) (*Asset, error)

// Thumbnail 生成按最长边等比缩放的变换；原图不超过 maxSide 时原样返回。
func Thumbnail(maxSide int) Transform {
	return func(asset *Asset) (*Asset, error) {
		if asset == nil || asset.Image == nil {
			return nil, errors.New("thumbnail: empty asset")
		}
		if maxSide <= 0 {
			return asset, nil
		}

		bounds := asset.Image.Bounds()
		w, h := bounds.Dx(), bounds.Dy()
		if w <= maxSide && h <= maxSide {
			return asset, nil
		}

		nw, nh := maxSide, maxSide
		if w >= h {
			nh = h * maxSide / w
		} else {
			nw = w * maxSide / h
		}
		if nw < 1 {
			nw = 1
		}
		if nh < 1 {
			nh = 1
		}

		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		draw.CatmullRom.Scale(dst, dst.Bounds(), asset.Image, bounds, draw.Over, nil)

		kind := asset.Type
		if kind == ContentTypeGIF {
			// 缩放后的真彩色图再走 GIF 调色板会明显失真。
			kind = ContentTypePNG
		}
		return &Asset{Image: dst, Type: kind}, nil
	}
}
