package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/homereach/lead-exchange-backend/internal/infrastructure/config"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body,
// keyed with the buyer's webhook secret. Buyers without a secret get
// unsigned requests.
const SignatureHeader = "X-Webhook-Signature"

const defaultTimeout = 30 * time.Second

// HTTPDoer is the outbound transport. Tests substitute scripted
// implementations.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Sender posts signed lead notifications to contractor endpoints
type Sender struct {
	httpClient HTTPDoer
	timeout    time.Duration
	logger     *zap.Logger
}

// NewSender builds a webhook sender from the webhook config. A nil
// config uses the default timeout.
func NewSender(cfg *config.WebhookConfig, logger *zap.Logger) *Sender {
	timeout := defaultTimeout
	if cfg != nil && cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sender{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: timeout,
		logger:  logger,
	}
}

// PostWebhook delivers the payload to the contractor's endpoint. Any
// 2xx answer counts as delivered; everything else is an error the
// notification service records as a failed channel attempt.
func (s *Sender) PostWebhook(ctx context.Context, url, secret string, payload []byte) error {
	if url == "" {
		return fmt.Errorf("webhook URL is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Timestamp", time.Now().UTC().Format(time.RFC3339))
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, payload))
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.logger.Debug("webhook delivered",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Sign computes the hex HMAC-SHA256 a receiver should compare the
// signature header against
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
