// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/J-Ellette/GGAS-sub001/internal/license"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodySize    = 1 << 20

	// DevVersion is reported when the build carries no usable version.
	DevVersion = "0.0.0-dev"
)

var (
	// ErrUnavailable means the verification service could not give an answer.
	ErrUnavailable = errors.New("license verification service unavailable")
	// ErrNotConfigured is returned when no verification URL is set.
	ErrNotConfigured = errors.New("license verification URL not configured")
)

// Request is the payload sent to the verification service.
type Request struct {
	LicenseKey          string `json:"licenseKey"`
	HardwareFingerprint string `json:"hardwareFingerprint"`
	ClientVersion       string `json:"clientVersion"`
}

// Response is the verification service's verdict for a key.
type Response struct {
	Valid       bool                `json:"valid"`
	Features    license.Features    `json:"features"`
	ExpiresAt   *time.Time          `json:"expiresAt,omitempty"`
	LicenseType license.LicenseType `json:"licenseType"`
	Message     string              `json:"message,omitempty"`
}

type wireResponse struct {
	Valid       bool             `json:"valid"`
	Features    license.Features `json:"features"`
	ExpiresAt   *string          `json:"expiresAt"`
	LicenseType string           `json:"licenseType"`
	Message     string           `json:"message"`
}

// Client talks to the remote license verification endpoint over HTTP.
type Client struct {
	httpClient *http.Client
	url        string
	limiter    *rate.Limiter
	userAgent  string
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		if d > 0 {
			client.httpClient.Timeout = d
		}
	}
}

// WithRateLimit caps outbound verification calls. Zero disables the limit.
func WithRateLimit(perMinute int) Option {
	return func(client *Client) {
		if perMinute <= 0 {
			client.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		client.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(client *Client) {
		client.userAgent = ua
	}
}

// NewClient creates a verifier for the given endpoint URL.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		url:        strings.TrimSpace(url),
		limiter:    rate.NewLimiter(rate.Inf, 0),
		userAgent:  "ggas/" + DevVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConfigured reports whether an endpoint URL has been set.
func (c *Client) IsConfigured() bool {
	return c.url != ""
}

// Verify asks the service about req.LicenseKey. A nil error means the service
// answered; the answer itself may still be a rejection (Valid == false).
func (c *Client) Verify(ctx context.Context, req Request) (*Response, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "rate limiter: %v", err)
	}

	req.ClientVersion = NormalizeClientVersion(req.ClientVersion)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode verification request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build verification request")
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", requestID)

	log.Debug().
		Str("requestId", requestID).
		Str("licenseKey", license.MaskKey(req.LicenseKey)).
		Str("clientVersion", req.ClientVersion).
		Msg("Verifying license key")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if !decodableStatus(resp.StatusCode) {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, errors.Wrapf(ErrUnavailable, "unexpected status %d", resp.StatusCode)
	}

	var wire wireResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&wire); err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "failed to decode response: %v", err)
	}

	out, err := wire.toResponse()
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "invalid response: %v", err)
	}

	// 4xx answers are rejections even if the body claims otherwise
	if resp.StatusCode >= http.StatusBadRequest {
		out.Valid = false
	}

	log.Debug().
		Str("requestId", requestID).
		Int("status", resp.StatusCode).
		Bool("valid", out.Valid).
		Msg("License verification answered")

	return out, nil
}

// decodableStatus reports whether a status carries a verdict: any 2xx, or a
// client error other than timeouts and throttling.
func decodableStatus(code int) bool {
	switch {
	case code >= 200 && code < 300:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return false
	case code >= 400 && code < 500:
		return true
	default:
		return false
	}
}

func (w wireResponse) toResponse() (*Response, error) {
	out := &Response{
		Valid:    w.Valid,
		Features: w.Features,
		Message:  w.Message,
	}

	if w.LicenseType != "" {
		t, err := license.ParseLicenseType(w.LicenseType)
		if err != nil {
			if w.Valid {
				return nil, err
			}
		} else {
			out.LicenseType = t
		}
	}

	if w.ExpiresAt != nil && *w.ExpiresAt != "" {
		expiresAt, err := parseExpiresAt(*w.ExpiresAt)
		if err != nil {
			return nil, err
		}
		out.ExpiresAt = &expiresAt
	}

	return out, nil
}

func parseExpiresAt(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.Errorf("expiresAt %q is not an ISO-8601 timestamp", s)
	}
	return t, nil
}

// NormalizeClientVersion returns v in canonical semver form, or DevVersion
// when v does not parse.
func NormalizeClientVersion(v string) string {
	parsed, err := semver.NewVersion(strings.TrimSpace(v))
	if err != nil {
		return DevVersion
	}
	return parsed.String()
}
