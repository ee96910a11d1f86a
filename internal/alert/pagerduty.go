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

// defaultPagerDutyEndpoint is the PagerDuty Events API v2 enqueue endpoint.
const defaultPagerDutyEndpoint = "https://events.pagerduty.com/v2/enqueue"

// dedupBucket is the coarse timestamp bucket used in dedup keys so that
// repeated identical pages collapse at the provider as well as under the
// monitor's cooldown.
const dedupBucket = 5 * time.Minute

// PagerDutyChannel delivers alerts to the PagerDuty Events API v2.
type PagerDutyChannel struct {
	routingKey config.Secret
	service    string
	endpoint   string
	client     *http.Client
}

// NewPagerDutyChannel creates a PagerDuty channel, or nil when no routing
// key is configured. Callers must drop a nil result before handing the
// channel to the dispatcher.
func NewPagerDutyChannel(routingKey config.Secret, service string) *PagerDutyChannel {
	if !routingKey.IsSet() {
		return nil
	}
	return &PagerDutyChannel{
		routingKey: routingKey,
		service:    service,
		endpoint:   defaultPagerDutyEndpoint,
		client:     &http.Client{},
	}
}

// Name implements Channel.
func (c *PagerDutyChannel) Name() string {
	return "pagerduty"
}

// pagerDutyEvent is the Events API v2 request body.
type pagerDutyEvent struct {
	RoutingKey  string           `json:"routing_key"`
	EventAction string           `json:"event_action"`
	DedupKey    string           `json:"dedup_key"`
	Payload     pagerDutyPayload `json:"payload"`
}

type pagerDutyPayload struct {
	Summary       string                 `json:"summary"`
	Severity      string                 `json:"severity"`
	Source        string                 `json:"source"`
	Component     string                 `json:"component"`
	Group         string                 `json:"group"`
	Class         string                 `json:"class"`
	Timestamp     string                 `json:"timestamp"`
	CustomDetails map[string]interface{} `json:"custom_details,omitempty"`
}

// Deliver implements Channel.
func (c *PagerDutyChannel) Deliver(ctx context.Context, ev Event) error {
	body := pagerDutyEvent{
		RoutingKey:  c.routingKey.Value(),
		EventAction: "trigger",
		DedupKey:    c.dedupKey(ev),
		Payload: pagerDutyPayload{
			Summary:       ev.Message,
			Severity:      pagerDutySeverity(ev.Severity),
			Source:        c.service,
			Component:     "api-server",
			Group:         "backend",
			Class:         "api-monitoring",
			Timestamp:     ev.Timestamp.UTC().Format(time.RFC3339),
			CustomDetails: ev.Context,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling pagerduty event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending pagerduty event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("pagerduty responded with status %d", resp.StatusCode)
	}
	return nil
}

// dedupKey derives a provider-level deduplication key from the category
// and a coarse timestamp bucket. Two raises of the same category within
// one bucket produce the same key.
func (c *PagerDutyChannel) dedupKey(ev Event) string {
	bucket := ev.Timestamp.UTC().Truncate(dedupBucket).Unix()
	return fmt.Sprintf("%s-%s-%d", c.service, ev.Category, bucket)
}

// pagerDutySeverity maps the internal scale onto PagerDuty's vocabulary.
func pagerDutySeverity(s Severity) string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "error"
	case SeverityMedium:
		return "warning"
	default:
		return "info"
	}
}
