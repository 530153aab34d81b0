package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Transport 是抓取层依赖的网络能力，取消通过 ctx 传递。
type Transport interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// TransportFunc 让普通函数满足 Transport，便于测试注入。
type TransportFunc func(ctx context.Context, url string) ([]byte, error)

// Get makes TransportFunc satisfy Transport.
func (f TransportFunc) Get(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// DefaultMaxBytes 是单张图片允许的最大响应体。
const DefaultMaxBytes int64 = 20 << 20

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   16,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// HTTPTransport 以共享 http.Client 下载图片，超时由 client 负责。
type HTTPTransport struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// NewHTTPTransport 返回带超时与响应体上限的 HTTPTransport，timeout<=0 时使用 30s。
func NewHTTPTransport(timeout time.Duration, maxBytes int64, userAgent string) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPTransport{
		client: &http.Client{
			Timeout:   timeout,
			Transport: defaultTransport.Clone(),
		},
		maxBytes:  maxBytes,
		userAgent: userAgent,
	}
}

// Client 暴露底层 http.Client，便于测试断言超时配置。
func (t *HTTPTransport) Client() *http.Client {
	return t.client
}

// Get 下载 url 的完整响应体；非 2xx 或超过上限时返回 *NetworkError。
func (t *HTTPTransport) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "image/*")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &NetworkError{URL: url, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes+1))
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	if int64(len(body)) > t.maxBytes {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("response exceeds %d bytes", t.maxBytes)}
	}
	return body, nil
}
