package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSignIsDeterministic(t *testing.T) {
	body := []byte(`{"event":"sla_breached"}`)

	sig := Sign("secret", body)
	assert.Equal(t, Sign("secret", body), sig)
	assert.Len(t, sig, 64)
	assert.NotEqual(t, Sign("other", body), sig)
	assert.NotEqual(t, Sign("secret", []byte("tampered")), sig)
}

func TestWebhookSenderDisabledWithoutURL(t *testing.T) {
	sender := NewWebhookSender("", "secret", zap.NewNop())
	assert.False(t, sender.Enabled())
	// Must not panic or block.
	sender.Send("ticket_escalated", time.Now(), map[string]string{"k": "v"})
}

type capturedRequest struct {
	body      []byte
	signature string
	userAgent string
}

func TestWebhookSenderDeliversSignedEnvelope(t *testing.T) {
	received := make(chan capturedRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- capturedRequest{
			body:      body,
			signature: r.Header.Get(HeaderSignature),
			userAgent: r.Header.Get("User-Agent"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.URL, "secret", zap.NewNop())
	require.True(t, sender.Enabled())

	ts := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	sender.Send("sla_breached", ts, map[string]string{"ticket_id": "t-1"})

	var got capturedRequest
	select {
	case got = <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was never delivered")
	}

	assert.Equal(t, Sign("secret", got.body), got.signature)
	assert.Equal(t, webhookUserAgent, got.userAgent)

	var envelope struct {
		Event     string            `json:"event"`
		Timestamp time.Time         `json:"timestamp"`
		Data      map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got.body, &envelope))
	assert.Equal(t, "sla_breached", envelope.Event)
	assert.True(t, ts.Equal(envelope.Timestamp))
	assert.Equal(t, "t-1", envelope.Data["ticket_id"])
}

func TestWebhookSenderOmitsSignatureWithoutSecret(t *testing.T) {
	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get(HeaderSignature)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.URL, "", zap.NewNop())
	sender.Send("ticket_created", time.Now(), nil)

	select {
	case sig := <-received:
		assert.Empty(t, sig)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was never delivered")
	}
}
