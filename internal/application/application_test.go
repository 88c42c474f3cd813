package application

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/metar-view/internal/config"
	"github.com/eugenenazirov/metar-view/internal/runtimeconfig"
)

func TestNewInitializesDependencies(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	defer backend.Close()

	configServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"apiUrl":"` + backend.URL + `/v1/api"}`))
	}))
	defer configServer.Close()

	cfg := baseTestConfig(":8085")
	cfg.RuntimeConfig = configServer.URL + "/config.json"

	app, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer app.Close()

	if got := app.Runtime().APIBaseURL; got != backend.URL+"/v1/api" {
		t.Fatalf("expected fetched base URL, got %s", got)
	}
	if app.client.BaseURL() != backend.URL+"/v1/api" {
		t.Fatalf("expected client to use published base URL, got %s", app.client.BaseURL())
	}
	if app.server == nil || app.router == nil || app.handler == nil || app.sessions == nil {
		t.Fatalf("expected server, router, handler, and sessions to be initialized")
	}
	if app.Server() != app.server {
		t.Fatalf("Server accessor did not return underlying instance")
	}
}

func TestNewFallsBackWithoutRuntimeConfig(t *testing.T) {
	cfg := baseTestConfig(":0")
	cfg.RuntimeConfig = filepath.Join(t.TempDir(), "missing.json")

	app, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer app.Close()

	if got := app.Runtime().APIBaseURL; got != runtimeconfig.FallbackAPIBaseURL {
		t.Fatalf("expected fallback base URL, got %s", got)
	}
	if !app.Runtime().Fallback {
		t.Fatalf("expected fallback flag")
	}
}

func TestRootHandlerServesAssetsAndConfig(t *testing.T) {
	cfg := baseTestConfig(":0")
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"apiUrl":"http://api.example.com"}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg.RuntimeConfig = path

	app, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer app.Close()

	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected stylesheet, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config.json", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != `{"apiUrl":"http://api.example.com"}` {
		t.Fatalf("expected published config, got %s", got)
	}
}

func TestNewServerAppliesConfig(t *testing.T) {
	cfg := baseTestConfig("9090")
	handler := http.NewServeMux()

	server := NewServer(cfg, handler)
	if server.Addr != ":9090" {
		t.Fatalf("expected address :9090, got %s", server.Addr)
	}
	if server.Handler != handler {
		t.Fatalf("expected handler to be applied")
	}
	if server.ReadHeaderTimeout != cfg.ReadHeaderTimeout ||
		server.WriteTimeout != cfg.WriteTimeout ||
		server.IdleTimeout != cfg.IdleTimeout {
		t.Fatalf("server timeouts do not match configuration")
	}
}

func TestResolveProjectPathFindsGoMod(t *testing.T) {
	path, err := resolveProjectPath("go.mod")
	if err != nil {
		t.Fatalf("resolveProjectPath returned error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected go.mod to exist at %s: %v", path, err)
	}
}

func TestResolveProjectPathUnknownTarget(t *testing.T) {
	if _, err := resolveProjectPath("definitely-not-a-real-file"); err == nil {
		t.Fatalf("expected error for missing resource")
	}
}

func TestResolveRuntimeSource(t *testing.T) {
	if got := resolveRuntimeSource("https://cfg.example/config.json"); got != "https://cfg.example/config.json" {
		t.Fatalf("expected URL untouched, got %s", got)
	}
	if got := resolveRuntimeSource("/etc/metar/config.json"); got != "/etc/metar/config.json" {
		t.Fatalf("expected absolute path untouched, got %s", got)
	}
	if got := resolveRuntimeSource("go.mod"); !filepath.IsAbs(got) {
		t.Fatalf("expected project-relative file to resolve, got %s", got)
	}
	if got := resolveRuntimeSource("missing.json"); got != "missing.json" {
		t.Fatalf("expected unknown file untouched, got %s", got)
	}
}

func baseTestConfig(port string) config.Config {
	return config.Config{
		Port:                 port,
		RuntimeConfig:        "config.json",
		DefaultICAO:          "LOWW",
		RequestTimeout:       time.Second,
		SessionTTL:           time.Minute,
		ShutdownGracePeriod:  50 * time.Millisecond,
		ReadHeaderTimeout:    20 * time.Millisecond,
		WriteTimeout:         30 * time.Millisecond,
		IdleTimeout:          40 * time.Millisecond,
		EnableRequestLogging: false,
		LogLevel:             "info",
		RateLimitRPS:         0,
		RateLimitBurst:       0,
	}
}
