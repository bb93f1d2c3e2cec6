package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	webhookTimeout   = 10 * time.Second
	webhookUserAgent = "helpdesk-core-webhook/1.0"

	// HeaderSignature carries the hex HMAC-SHA256 of the request body,
	// keyed with the shared webhook secret.
	HeaderSignature = "X-Helpdesk-Signature"
)

// webhookEnvelope is the wire shape posted to the configured endpoint.
type webhookEnvelope struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// WebhookSender posts signed event envelopes to a single configured URL.
// Delivery is fire and forget: Send returns immediately and the POST runs
// in its own goroutine, with failures logged rather than surfaced.
type WebhookSender struct {
	url    string
	secret string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookSender constructs a sender. An empty url disables delivery.
func NewWebhookSender(url, secret string, logger *zap.Logger) *WebhookSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookSender{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: webhookTimeout},
		logger: logger,
	}
}

// Enabled reports whether a destination URL is configured.
func (w *WebhookSender) Enabled() bool {
	return w.url != ""
}

// Send serializes and dispatches the envelope asynchronously.
func (w *WebhookSender) Send(event string, timestamp time.Time, data any) {
	if !w.Enabled() {
		return
	}
	body, err := json.Marshal(webhookEnvelope{
		Event:     event,
		Timestamp: timestamp.UTC(),
		Data:      data,
	})
	if err != nil {
		w.logger.Error("webhook payload marshal failed",
			zap.String("event", event),
			zap.Error(err))
		return
	}
	go w.deliver(event, body)
}

func (w *WebhookSender) deliver(event string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("webhook request build failed",
			zap.String("event", event),
			zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	if w.secret != "" {
		req.Header.Set(HeaderSignature, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("webhook delivery failed",
			zap.String("event", event),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 300 {
		w.logger.Warn("webhook endpoint rejected event",
			zap.String("event", event),
			zap.Int("status", resp.StatusCode))
	}
}

// Sign computes the hex HMAC-SHA256 of body under the given secret.
// Receivers verify deliveries by recomputing it over the raw request body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
