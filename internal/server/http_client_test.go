package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/any-hub/imgcache/internal/config"
	"github.com/any-hub/imgcache/internal/fetch"
	"github.com/any-hub/imgcache/internal/version"
)

func TestNewUpstreamTransportUsesConfigTimeout(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{
			UpstreamTimeout: config.Duration(45 * time.Second),
		},
	}

	transport := NewUpstreamTransport(cfg)
	if transport.Client().Timeout != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %s", transport.Client().Timeout)
	}
}

func TestNewUpstreamTransportNilConfigUsesDefaults(t *testing.T) {
	transport := NewUpstreamTransport(nil)
	if transport.Client().Timeout != 30*time.Second {
		t.Fatalf("expected default timeout 30s, got %s", transport.Client().Timeout)
	}
}

func TestNewUpstreamTransportAppliesLimitAndUserAgent(t *testing.T) {
	agents := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer upstream.Close()

	cfg := &config.Config{
		Global: config.GlobalConfig{
			UpstreamTimeout: config.Duration(time.Second),
			MaxImageBytes:   16,
		},
	}
	_, err := NewUpstreamTransport(cfg).Get(context.Background(), upstream.URL)
	var netErr *fetch.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("oversized body should fail with NetworkError, got %v", err)
	}
	if gotUA := <-agents; gotUA != version.UserAgent() {
		t.Fatalf("expected user agent %q, got %q", version.UserAgent(), gotUA)
	}
}
