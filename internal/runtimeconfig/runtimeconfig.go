// Package runtimeconfig resolves the METAR backend base URL once at process
// start. Resolution never fails: any problem with the config document yields
// FallbackAPIBaseURL.
package runtimeconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"
)

// FallbackAPIBaseURL is published when the config document cannot be used.
const FallbackAPIBaseURL = "http://localhost:5000/v1/api"

// DefaultSource is the config document read when none is configured.
const DefaultSource = "config.json"

// ErrMissingAPIURL is returned when the document has no usable apiUrl.
var ErrMissingAPIURL = errors.New("apiUrl missing or empty")

// Runtime is the resolved runtime configuration.
type Runtime struct {
	APIBaseURL string `json:"apiUrl"`
	// Fallback is true when APIBaseURL is FallbackAPIBaseURL because loading failed.
	Fallback bool `json:"-"`
}

// Loader fetches and parses the runtime config document.
type Loader struct {
	client *http.Client
	logger *zap.Logger
}

// NewLoader creates a Loader. A nil client uses http.DefaultClient.
func NewLoader(client *http.Client, logger *zap.Logger) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{client: client, logger: logger.Named("runtimeconfig")}
}

// Load resolves source (an http(s) URL or a file path) into a Runtime.
// On failure it logs a warning and returns the fallback.
func (l *Loader) Load(ctx context.Context, source string) Runtime {
	if strings.TrimSpace(source) == "" {
		source = DefaultSource
	}

	rt, err := l.resolve(ctx, source)
	if err != nil {
		l.logger.Warn("runtime config unavailable, using fallback",
			zap.String("source", source),
			zap.String("api_url", FallbackAPIBaseURL),
			zap.Error(err),
		)
		return Runtime{APIBaseURL: FallbackAPIBaseURL, Fallback: true}
	}

	l.logger.Info("runtime config loaded",
		zap.String("source", source),
		zap.String("api_url", rt.APIBaseURL),
	)
	return rt
}

func (l *Loader) resolve(ctx context.Context, source string) (Runtime, error) {
	var (
		data []byte
		err  error
	)
	if isRemote(source) {
		data, err = l.fetch(ctx, source)
	} else {
		data, err = os.ReadFile(strings.TrimPrefix(source, "file://"))
	}
	if err != nil {
		return Runtime{}, err
	}
	return Parse(data)
}

func (l *Loader) fetch(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch config: unexpected status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return data, nil
}

// Parse decodes a config document. apiUrl must be a non-empty string.
func Parse(data []byte) (Runtime, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return Runtime{}, fmt.Errorf("parse config: %w", err)
	}

	raw, ok := doc["apiUrl"]
	if !ok {
		return Runtime{}, ErrMissingAPIURL
	}

	var apiURL string
	if err := json.Unmarshal(raw, &apiURL); err != nil || apiURL == "" {
		return Runtime{}, ErrMissingAPIURL
	}

	return Runtime{APIBaseURL: apiURL}, nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
