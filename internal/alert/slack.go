package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/config"
)

// SlackChannel delivers alerts to a Slack incoming webhook.
type SlackChannel struct {
	webhookURL config.Secret
	service    string
	client     *http.Client
}

// NewSlackChannel creates a Slack channel, or nil when no webhook URL is
// configured. Callers must drop a nil result before handing the channel
// to the dispatcher.
func NewSlackChannel(webhookURL config.Secret, service string) *SlackChannel {
	if !webhookURL.IsSet() {
		return nil
	}
	return &SlackChannel{
		webhookURL: webhookURL,
		service:    service,
		client:     &http.Client{},
	}
}

// Name implements Channel.
func (c *SlackChannel) Name() string {
	return "slack"
}

// slackMessage is the incoming-webhook request body.
type slackMessage struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	TS     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Deliver implements Channel.
func (c *SlackChannel) Deliver(ctx context.Context, ev Event) error {
	attachment := slackAttachment{
		Color: slackColor(ev.Severity),
		Title: fmt.Sprintf("%s alert", ev.Category),
		Text:  ev.Message,
		Fields: []slackField{
			{Title: "Severity", Value: ev.Severity.String(), Short: true},
			{Title: "Service", Value: c.service, Short: true},
			{Title: "Time", Value: ev.Timestamp.UTC().Format(time.RFC3339), Short: false},
		},
		Footer: c.service + " monitoring",
		TS:     ev.Timestamp.Unix(),
	}

	if len(ev.Context) > 0 {
		details, err := json.MarshalIndent(ev.Context, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling alert context: %w", err)
		}
		attachment.Fields = append(attachment.Fields, slackField{
			Title: "Details",
			Value: string(details),
			Short: false,
		})
	}

	payload, err := json.Marshal(slackMessage{Attachments: []slackAttachment{attachment}})
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL.Value(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("slack responded with status %d", resp.StatusCode)
	}
	return nil
}

// slackColor maps severity onto attachment colors: attention colors for
// critical and high, neutral for medium, muted for low.
func slackColor(s Severity) string {
	switch s {
	case SeverityCritical:
		return "danger"
	case SeverityHigh:
		return "warning"
	case SeverityMedium:
		return "good"
	default:
		return "#808080"
	}
}
