package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/imgcache/internal/cache"
	"github.com/any-hub/imgcache/internal/config"
	"github.com/any-hub/imgcache/internal/fetch"
	"github.com/any-hub/imgcache/internal/server"
)

func TestNamespacesListing(t *testing.T) {
	app, _ := newRoutesApp(t)

	resp := doRequest(t, app, http.MethodGet, "/-/namespaces")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		Namespaces []namespacePayload `json:"namespaces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Namespaces) != 1 || payload.Namespaces[0].Name != "images" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Namespaces[0].MaxCacheAgeSecond != 3600 {
		t.Fatalf("unexpected max age %d", payload.Namespaces[0].MaxCacheAgeSecond)
	}
}

func TestNamespaceUnknownReturns404(t *testing.T) {
	app, _ := newRoutesApp(t)
	resp := doRequest(t, app, http.MethodDelete, "/-/namespaces/missing/memory")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestNamespacePurgeRoutes(t *testing.T) {
	app, route := newRoutesApp(t)
	ctx := context.Background()
	if err := route.Assets.Write(ctx, "k", []byte("v"), cache.PolicyAll); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp := doRequest(t, app, http.MethodDelete, "/-/namespaces/images/memory")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if route.Assets.Exists("k", cache.PolicyMemory) {
		t.Fatalf("memory tier should be empty")
	}
	if !route.Assets.Exists("k", cache.PolicyDisk) {
		t.Fatalf("memory purge must keep disk")
	}

	resp = doRequest(t, app, http.MethodDelete, "/-/namespaces/images/disk")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if route.Assets.Exists("k", cache.PolicyDisk) {
		t.Fatalf("disk tier should be empty")
	}
}

func TestNamespaceEvictRoute(t *testing.T) {
	app, route := newRoutesApp(t)
	ctx := context.Background()
	for _, key := range []string{"old", "new"} {
		if err := route.Assets.Write(ctx, key, []byte(key), cache.PolicyDisk); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
	stale := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(filepath.Join(route.Assets.Dir(), "old"), stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	resp := doRequest(t, app, http.MethodPost, "/-/namespaces/images/evict")
	if resp.StatusCode != fiber.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d (%s)", resp.StatusCode, body)
	}
	var report evictionPayload
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Scanned != 2 || report.Removed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !route.Assets.Exists("new", cache.PolicyDisk) {
		t.Fatalf("fresh entry should survive")
	}
}

func TestNamespaceCancelFetchesRoute(t *testing.T) {
	app, route := newRoutesApp(t)

	h := route.Fetcher.Fetch("https://cdn.example.com/slow.png", nil, nil, nil)
	resp := doRequest(t, app, http.MethodDelete, "/-/namespaces/images/fetches")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if !h.Cancelled() {
		t.Fatalf("pending fetch should be cancelled")
	}
	if route.Fetcher.InFlight() != 0 {
		t.Fatalf("registry should be empty after cancel")
	}
}

func doRequest(t *testing.T, app *fiber.App, method, path string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	return resp
}

// newRoutesApp 的下载器会一直阻塞到请求被取消，便于观察进行中的抓取。
func newRoutesApp(t *testing.T) (*fiber.App, *server.NamespaceRoute) {
	t.Helper()

	transport := fetch.TransportFunc(func(ctx context.Context, url string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort:           5000,
			StoragePath:          t.TempDir(),
			MaxCacheAge:          config.Duration(time.Hour),
			MaxConcurrentFetches: 1,
		},
		Namespaces: []config.NamespaceConfig{{Name: "images"}},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	registry, err := server.NewNamespaceRegistry(cfg, server.RegistryOptions{Logger: logger, Transport: transport})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	t.Cleanup(func() { registry.Close() })

	app, err := server.NewApp(server.AppOptions{Logger: logger, Registry: registry, ListenPort: 5000})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	RegisterNamespaceRoutes(app, registry)

	route, _ := registry.Lookup("images")
	return app, route
}
