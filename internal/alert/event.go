// Package alert defines alert events and fans them out to notification channels.
package alert

import (
	"time"
)

// Category identifies the condition class that raised an alert. Cooldown
// suppression in the monitor is keyed by category.
type Category string

const (
	// CategoryExpiredCredentialUse fires when a previously issued but now
	// expired credential is presented for validation.
	CategoryExpiredCredentialUse Category = "expired-credential-use"

	// CategoryElevatedErrorRate fires when the error rate over an
	// evaluation window exceeds the configured threshold.
	CategoryElevatedErrorRate Category = "elevated-error-rate"

	// CategoryAuthSpike fires when authentication failures rise sharply
	// against a caller-supplied baseline.
	CategoryAuthSpike Category = "authentication-spike"
)

// Severity is an ordered scale: low < medium < high < critical.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String implements fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Event is a single alert occurrence handed to the dispatcher.
type Event struct {
	Category  Category               `json:"category"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// MarshalJSON is implemented on Severity so events serialize with the
// severity name rather than its ordinal.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}
