package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/metar-view/internal/api"
	"github.com/eugenenazirov/metar-view/internal/config"
	"github.com/eugenenazirov/metar-view/internal/metar"
	"github.com/eugenenazirov/metar-view/internal/runtimeconfig"
	"github.com/eugenenazirov/metar-view/internal/storage"
	"github.com/eugenenazirov/metar-view/internal/view"
	"github.com/eugenenazirov/metar-view/web"
)

const sweepInterval = time.Minute

// App encapsulates the application dependencies and HTTP server.
type App struct {
	runtime  runtimeconfig.Runtime
	client   *metar.Client
	sessions *storage.MemorySessions
	handler  *api.Handler
	router   http.Handler
	logger   *zap.Logger
	server   *http.Server

	cancelSweep context.CancelFunc
}

// New resolves the runtime config and then wires every dependency from the
// provided configuration. Nothing that talks to the backend is built before
// the base URL is known.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	loader := runtimeconfig.NewLoader(httpClient, logger)
	runtime := loader.Load(ctx, resolveRuntimeSource(cfg.RuntimeConfig))

	client := metar.NewClient(runtime.APIBaseURL, httpClient, logger)

	renderer, err := view.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	sessions := storage.NewMemorySessions(func() *view.Controller {
		return view.NewController(client, cfg.DefaultICAO, logger, view.WithRequestTimeout(cfg.RequestTimeout))
	}, logger, storage.WithTTL(cfg.SessionTTL))

	handler := api.NewHandler(sessions, renderer, runtime, logger)
	rootHandler := BuildRootHandler(handler, cfg, logger)

	return &App{
		runtime:  runtime,
		client:   client,
		sessions: sessions,
		handler:  handler,
		router:   rootHandler,
		logger:   logger,
		server:   NewServer(cfg, rootHandler),
	}, nil
}

// BuildRootHandler constructs the root HTTP handler serving the page, the
// live endpoint, the JSON API and the embedded static assets.
func BuildRootHandler(handler *api.Handler, cfg config.Config, logger *zap.Logger) http.Handler {
	return api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithStatic(web.Static()),
	)
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server and the session sweeper in goroutines.
func (a *App) Start() error {
	sweepCtx, cancel := context.WithCancel(context.Background())
	a.cancelSweep = cancel
	go a.sessions.Run(sweepCtx, sweepInterval)

	go func() {
		a.logger.Info("server listening",
			zap.String("addr", a.server.Addr),
			zap.String("api_url", a.runtime.APIBaseURL),
			zap.Bool("api_url_fallback", a.runtime.Fallback),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Runtime returns the published runtime configuration.
func (a *App) Runtime() runtimeconfig.Runtime {
	return a.runtime
}

// Close stops the sweeper and closes every session, cancelling in-flight fetches.
func (a *App) Close() {
	if a.cancelSweep != nil {
		a.cancelSweep()
	}
	a.sessions.Close()
}

// resolveRuntimeSource keeps URLs and absolute paths as they are and looks
// relative paths up from the working directory towards the project root.
func resolveRuntimeSource(source string) string {
	if source == "" || strings.Contains(source, "://") || filepath.IsAbs(source) {
		return source
	}
	if path, err := resolveProjectPath(source); err == nil {
		return path
	}
	return source
}

// resolveProjectPath locates a file or directory relative to the project root by walking up the directory tree.
func resolveProjectPath(relative string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}
