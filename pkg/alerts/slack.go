package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackNotifier posts alert text to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *http.Client
}

// NewSlackNotifier creates a Slack webhook notifier. An empty channel uses
// the webhook's default channel.
func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(slackPayload{
		Channel: s.channel,
		Text:    alert.Message,
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	code, err := postJSON(ctx, s.client, s.webhookURL, body, nil)
	if err != nil {
		return fmt.Errorf("send slack alert: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("slack returned status %d", code)
	}
	return nil
}

type slackPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}
