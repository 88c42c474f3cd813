package metar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	airportsPath    = "/metar/airports"
	observationPath = "/metar/airports/weather/"

	// maxErrorBody bounds how much of a failed response is kept for logging.
	maxErrorBody = 512
)

// Client talks to the METAR backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.Named("metar"),
	}
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Airports returns the known ICAO codes in backend order.
func (c *Client) Airports(ctx context.Context) ([]string, error) {
	var airports []Airport
	if err := c.get(ctx, c.baseURL+airportsPath, &airports); err != nil {
		return nil, fmt.Errorf("fetch airports: %w", err)
	}

	codes := make([]string, len(airports))
	for i, airport := range airports {
		codes[i] = airport.ICAO
	}

	c.logger.Debug("airports fetched", zap.Int("count", len(codes)))
	return codes, nil
}

// Observation returns the latest decoded observation for icao.
func (c *Client) Observation(ctx context.Context, icao string) (Observation, error) {
	if strings.TrimSpace(icao) == "" {
		return Observation{}, ErrEmptyICAO
	}

	var obs *Observation
	target := c.baseURL + observationPath + url.PathEscape(icao)
	if err := c.get(ctx, target, &obs); err != nil {
		return Observation{}, fmt.Errorf("fetch observation for %s: %w", icao, err)
	}
	if obs == nil {
		return Observation{}, fmt.Errorf("fetch observation for %s: %w", icao, ErrNoObservation)
	}

	c.logger.Debug("observation fetched", zap.String("icao", icao), zap.String("station", obs.ICAO))
	return *obs, nil
}

func (c *Client) get(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("backend returned error status",
			zap.String("url", target),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
