package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/metar-view/internal/application"
	"github.com/eugenenazirov/metar-view/internal/config"
	"github.com/eugenenazirov/metar-view/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	overrides, err := parseFlags(os.Args[1:])
	kingpin.FatalIfError(err, "parse flags")

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	bootCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	app, err := application.New(bootCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
	app.Close()
}

// parseFlags maps command-line flags onto config overrides. Unset flags
// leave lower-precedence sources in charge.
func parseFlags(args []string) (*config.CLIOverrides, error) {
	kingpinApp := kingpin.New("metar-view", "METAR viewer - pick an airport and read its decoded weather observation")
	configFile := kingpinApp.Flag("config", "Path to YAML or TOML configuration file").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").String()
	runtimeConfig := kingpinApp.Flag("runtime-config", "URL or path of the JSON document holding apiUrl").String()
	defaultICAO := kingpinApp.Flag("default-icao", "Airport selected when a session starts").String()
	requestTimeout := kingpinApp.Flag("request-timeout", "Timeout for each backend request").Duration()
	logLevel := kingpinApp.Flag("log-level", "Log level").Enum("debug", "info", "warn", "error")
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed per client (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter").Default("-1").Int()

	if _, err := kingpinApp.Parse(args); err != nil {
		return nil, err
	}

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
	}

	if *port != "" {
		overrides.Port = port
	}

	if *runtimeConfig != "" {
		overrides.RuntimeConfig = runtimeConfig
	}

	if *defaultICAO != "" {
		overrides.DefaultICAO = defaultICAO
	}

	if *requestTimeout > 0 {
		overrides.RequestTimeout = requestTimeout
	}

	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	return overrides, nil
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
