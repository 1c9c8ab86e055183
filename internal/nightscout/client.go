// Package nightscout imports glucose readings from a Nightscout CGM server.
package nightscout

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/glucolog/glucolog/internal/errors"
	"github.com/sony/gobreaker/v2"
)

// GlucoseEntry is a sensor glucose value as returned by /api/v1/entries/sgv.
type GlucoseEntry struct {
	ID        string `json:"_id"`
	SGV       int    `json:"sgv"`  // mg/dL
	Date      int64  `json:"date"` // unix milliseconds
	DateStr   string `json:"dateString"`
	Direction string `json:"direction"`
	Device    string `json:"device"`
	Type      string `json:"type"`
}

// Time returns when the reading was taken.
func (g *GlucoseEntry) Time() time.Time {
	return time.UnixMilli(g.Date)
}

// ServerStatus is the subset of /api/v1/status we care about.
type ServerStatus struct {
	Status     string `json:"status"`
	Name       string `json:"name"`
	Version    string `json:"version"`
	APIEnabled bool   `json:"apiEnabled"`
}

// Client talks to a Nightscout server. Requests run through a circuit
// breaker so a downed server fails fast instead of piling up timeouts.
type Client struct {
	baseURL    string
	apiSecret  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// NewClient builds a client for the given server. apiSecret may be empty
// for servers with open read access.
func NewClient(baseURL, apiSecret string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    "nightscout",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Nightscout authenticates with the SHA1 hex digest of the API secret.
func hashSecret(secret string) string {
	hasher := sha1.New()
	hasher.Write([]byte(secret))
	return hex.EncodeToString(hasher.Sum(nil))
}

func (c *Client) buildRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	fullURL := c.baseURL + endpoint
	if params != nil {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if c.apiSecret != "" {
		req.Header.Set("API-SECRET", hashSecret(c.apiSecret))
	}
	return req, nil
}

func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, apperrors.New(apperrors.ErrSyncRejected.Code, fmt.Sprintf("nightscout returned %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("nightscout error %d: %s", resp.StatusCode, string(raw))
		}
		return raw, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperrors.Wrap(err, apperrors.ErrSyncUnavailable.Code, apperrors.ErrSyncUnavailable.Message)
	}
	return body, err
}

// Status fetches the server status, also serving as a connectivity check.
func (c *Client) Status(ctx context.Context) (*ServerStatus, error) {
	req, err := c.buildRequest(ctx, "/api/v1/status.json", nil)
	if err != nil {
		return nil, err
	}

	body, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}

	var status ServerStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("parsing status: %w", err)
	}
	return &status, nil
}

// Entries fetches sensor glucose values in a window, newest first as
// Nightscout returns them.
func (c *Client) Entries(ctx context.Context, from, to time.Time, count int) ([]GlucoseEntry, error) {
	params := url.Values{}
	if !from.IsZero() {
		params.Set("find[date][$gte]", fmt.Sprintf("%d", from.UnixMilli()))
	}
	if !to.IsZero() {
		params.Set("find[date][$lte]", fmt.Sprintf("%d", to.UnixMilli()))
	}
	if count > 0 {
		params.Set("count", fmt.Sprintf("%d", count))
	}

	req, err := c.buildRequest(ctx, "/api/v1/entries/sgv.json", params)
	if err != nil {
		return nil, err
	}

	body, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}

	var entries []GlucoseEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parsing entries: %w", err)
	}
	return entries, nil
}
