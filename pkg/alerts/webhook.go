package alerts

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const signatureHeader = "X-Signature-256"

// WebhookNotifier posts alerts as flat JSON events to an HTTP endpoint.
// With a secret configured, each body is signed with HMAC-SHA256.
type WebhookNotifier struct {
	endpoint string
	secret   []byte
	client   *http.Client
}

// webhookEvent is the body receivers get. Text is the message Slack would
// show; the other fields are present only for the matching kind.
type webhookEvent struct {
	Text      string  `json:"text"`
	Kind      Kind    `json:"kind"`
	Timestamp string  `json:"timestamp"`
	From      string  `json:"from,omitempty"`
	To        string  `json:"to,omitempty"`
	Rate      float64 `json:"rate,omitempty"`
	Samples   int     `json:"samples,omitempty"`
}

func NewWebhookNotifier(endpoint, secret string) *WebhookNotifier {
	n := &WebhookNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	if secret != "" {
		n.secret = []byte(secret)
	}
	return n
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	at := alert.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	body, err := json.Marshal(webhookEvent{
		Text:      alert.Message,
		Kind:      alert.Kind,
		Timestamp: at.UTC().Format(time.RFC3339),
		From:      alert.FromPool,
		To:        alert.ToPool,
		Rate:      alert.Rate,
		Samples:   alert.Samples,
	})
	if err != nil {
		return fmt.Errorf("encode webhook event: %w", err)
	}

	header := http.Header{}
	header.Set("User-Agent", "pool-watcher/1.0")
	if w.secret != nil {
		header.Set(signatureHeader, Sign(w.secret, body))
	}

	code, err := postJSON(ctx, w.client, w.endpoint, body, header)
	if err != nil {
		return fmt.Errorf("post webhook event: %w", err)
	}
	if code/100 != 2 {
		return fmt.Errorf("webhook returned status %d", code)
	}
	return nil
}

// Sign returns the X-Signature-256 value for body: "sha256=" followed by the
// hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
