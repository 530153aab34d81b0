package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled 由 FetchContext 在调用方放弃等待时返回，回调式 Fetch 被取消后不会收到任何回调。
	ErrCancelled = errors.New("fetch cancelled")
	// ErrClosed 表示 Coordinator 已关闭，不再受理新的抓取。
	ErrClosed = errors.New("fetch coordinator closed")
)

// NetworkError 描述传输层失败：连接错误、超时或非 2xx 状态码。
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TransformError 表示后处理变换或变换结果的重新编码失败。
type TransformError struct {
	Err error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform: %v", e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}
