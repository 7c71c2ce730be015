package buyerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
)

// HTTPDoer is the outbound transport. Tests substitute scripted
// implementations.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends PING and POST requests to network buyers. Each buyer
// gets its own rate limiter so one chatty integration cannot starve
// the rest.
type Client struct {
	httpClient HTTPDoer
	rps        int

	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
}

// ClientConfig tunes the outbound client
type ClientConfig struct {
	// RequestsPerSecond caps outbound requests per buyer. Zero means
	// the default of 10.
	RequestsPerSecond int

	// HTTPClient overrides the transport; nil builds a pooled default
	HTTPClient HTTPDoer
}

const (
	defaultBuyerRPS = 10
	maxResponseBody = 1 << 20 // 1 MiB
)

func NewClient(cfg ClientConfig) *Client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultBuyerRPS
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{
		httpClient: httpClient,
		rps:        cfg.RequestsPerSecond,
		limiters:   make(map[uuid.UUID]*rate.Limiter),
	}
}

// Request describes one outbound buyer call
type Request struct {
	Buyer       *buyer.Buyer
	URL         string
	RequestType string // PING or POST
	ServiceType string
	LeadSource  string
	Payload     map[string]string
	ContentType string // template content type; defaults to application/json
	Timeout     time.Duration
}

// Response is the raw buyer answer plus timing
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Send issues the request with the buyer's auth and the exchange's
// standard headers. The deadline is the shorter of ctx and
// req.Timeout.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	if req.Buyer == nil {
		return nil, fmt.Errorf("request has no buyer")
	}
	if req.URL == "" {
		return nil, fmt.Errorf("request has no URL")
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	if err := c.limiter(req.Buyer.ID).Wait(ctx); err != nil {
		return nil, err
	}

	body, contentType, err := encodePayload(req.Payload, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("X-Request-Type", req.RequestType)
	httpReq.Header.Set("X-Service-Type", req.ServiceType)
	httpReq.Header.Set("X-Lead-Source", req.LeadSource)
	httpReq.Header.Set("X-Timestamp", time.Now().UTC().Format(time.RFC3339))
	addAuthHeaders(httpReq, req.Buyer.Auth)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Duration:   time.Since(start),
	}, nil
}

func (c *Client) limiter(buyerID uuid.UUID) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[buyerID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.rps), c.rps*2)
		c.limiters[buyerID] = l
	}
	return l
}

func encodePayload(payload map[string]string, contentType string) ([]byte, string, error) {
	if contentType == "" {
		contentType = "application/json"
	}

	switch {
	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		form := url.Values{}
		for k, v := range payload {
			form.Set(k, v)
		}
		return []byte(form.Encode()), contentType, nil

	case strings.Contains(contentType, "application/json"):
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, "", err
		}
		return body, contentType, nil

	default:
		return nil, "", fmt.Errorf("unsupported content type %q", contentType)
	}
}

// addAuthHeaders applies the buyer's auth scheme, then merges custom
// headers on top
func addAuthHeaders(req *http.Request, auth buyer.AuthConfig) {
	switch auth.Type {
	case buyer.AuthAPIKey:
		header := auth.APIKeyHeader
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, auth.APIKey)

	case buyer.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Token)

	case buyer.AuthBasic:
		req.SetBasicAuth(auth.Username, auth.Password)
	}

	for k, v := range auth.CustomHeaders {
		req.Header.Set(k, v)
	}
}

// IsTimeout reports whether the error is a deadline expiry rather than
// a generic transport failure. The caller records TIMEOUT transactions
// for these.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
