package codec

import "bytes"

// ContentType 标识图片负载的编码格式，通过魔数嗅探得到，不依赖扩展名或响应头。
type ContentType int

const (
	ContentTypeOther ContentType = iota
	ContentTypeJPEG
	ContentTypePNG
	ContentTypeGIF
	ContentTypeTIFF
	ContentTypeWEBP
)

var (
	magicJPEG    = []byte{0xFF, 0xD8, 0xFF}
	magicPNG     = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
	magicGIF     = []byte("GIF8")
	magicTIFFLE  = []byte{'I', 'I', 0x2A, 0x00}
	magicTIFFBE  = []byte{'M', 'M', 0x00, 0x2A}
	magicRIFF    = []byte("RIFF")
	magicWEBPTag = []byte("WEBP")
)

// Sniff 根据文件头判断图片格式，无法识别时返回 ContentTypeOther。
func Sniff(data []byte) ContentType {
	switch {
	case bytes.HasPrefix(data, magicJPEG):
		return ContentTypeJPEG
	case bytes.HasPrefix(data, magicPNG):
		return ContentTypePNG
	case bytes.HasPrefix(data, magicGIF):
		return ContentTypeGIF
	case bytes.HasPrefix(data, magicTIFFLE), bytes.HasPrefix(data, magicTIFFBE):
		return ContentTypeTIFF
	case len(data) >= 12 && bytes.HasPrefix(data, magicRIFF) && bytes.Equal(data[8:12], magicWEBPTag):
		return ContentTypeWEBP
	default:
		return ContentTypeOther
	}
}

// MIME 返回格式对应的 HTTP Content-Type，未知格式回退为 application/octet-stream。
func (t ContentType) MIME() string {
	switch t {
	case ContentTypeJPEG:
		return "image/jpeg"
	case ContentTypePNG:
		return "image/png"
	case ContentTypeGIF:
		return "image/gif"
	case ContentTypeTIFF:
		return "image/tiff"
	case ContentTypeWEBP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

func (t ContentType) String() string {
	switch t {
	case ContentTypeJPEG:
		return "jpeg"
	case ContentTypePNG:
		return "png"
	case ContentTypeGIF:
		return "gif"
	case ContentTypeTIFF:
		return "tiff"
	case ContentTypeWEBP:
		return "webp"
	default:
		return "other"
	}
}
