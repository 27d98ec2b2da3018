// Package geo looks up the visitor's country from a third-party IP
// geolocation service. No backend involvement, no retry; callers fall back
// to the configured default country on any failure.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const lookupTimeout = 10 * time.Second

type Client struct {
	http   *http.Client
	url    string
	logger *zap.Logger
}

func New(lookupURL string, logger *zap.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: lookupTimeout},
		url:    lookupURL,
		logger: logger,
	}
}

// CountryCode returns the two-letter country code for the caller's IP.
func (c *Client) CountryCode(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid geo lookup url: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("geo lookup failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geo lookup returned status %d", res.StatusCode)
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("geo lookup read failed: %w", err)
	}

	// Field name varies by provider.
	var payload struct {
		CountryCode  string `json:"country_code"`
		CountryCode2 string `json:"countryCode"`
		Country      string `json:"country"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("malformed geo response: %w", err)
	}

	code := payload.CountryCode
	if code == "" {
		code = payload.CountryCode2
	}
	if code == "" {
		code = payload.Country
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return "", fmt.Errorf("geo response missing country code")
	}

	c.logger.Debug("detected country", zap.String("country_code", code))
	return code, nil
}
