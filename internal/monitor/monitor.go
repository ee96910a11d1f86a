// Package monitor tracks request and error volume in rolling windows and
// raises threshold-crossing alerts through a cooldown gate.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/alert"
)

// AlertSink receives alert events that pass the cooldown gate.
// *alert.Dispatcher satisfies this.
type AlertSink interface {
	Dispatch(ev alert.Event)
}

// Config holds the monitor's thresholds and windows.
type Config struct {
	// ErrorRateThreshold is the errors/requests fraction above which an
	// elevated-error-rate alert fires at window close.
	ErrorRateThreshold float64

	// ErrorRateWindow is the counting period between evaluations.
	ErrorRateWindow time.Duration

	// AuthSpikeThreshold is the relative increase in auth errors at or
	// above which an authentication-spike alert fires.
	AuthSpikeThreshold float64

	// AlertCooldown is the minimum interval between two dispatches of
	// alerts in the same category.
	AlertCooldown time.Duration

	// HistorySize caps the retained alert history.
	HistorySize int
}

// Monitor accumulates request/error counters and evaluates them against
// thresholds. All shared state sits behind one mutex; the evaluation's
// read-then-reset runs as a single critical section so an in-flight
// increment can never interleave with a window reset.
type Monitor struct {
	cfg     Config
	sink    AlertSink
	logger  *zap.Logger
	metrics *Metrics

	mu            sync.Mutex
	totalRequests int64
	errorCount    int64
	authErrors    int64
	windowStart   time.Time
	cooldowns     map[alert.Category]time.Time
	seenExpired   map[string]struct{}
	history       []alert.Event

	// now is replaceable in tests.
	now func() time.Time
}

// EvalResult is the outcome of an Evaluate call.
type EvalResult struct {
	// Rate is the error rate of the closed window, or 0 when the window
	// has not yet elapsed.
	Rate float64 `json:"rate"`

	// ShouldAlert reports whether the rate exceeded the threshold.
	ShouldAlert bool `json:"should_alert"`
}

// SpikeResult is the outcome of a CheckAuthSpike call.
type SpikeResult struct {
	// Increase is the relative growth of auth errors over the baseline,
	// 0 when the baseline is 0.
	Increase float64 `json:"increase"`

	// ShouldAlert reports whether the increase met the threshold.
	ShouldAlert bool `json:"should_alert"`
}

// Snapshot is a read-only view of the monitor's state.
type Snapshot struct {
	TotalRequests      int64         `json:"total_requests"`
	ErrorCount         int64         `json:"error_count"`
	AuthErrorCount     int64         `json:"auth_error_count"`
	WindowStart        time.Time     `json:"window_start"`
	ErrorRate          float64       `json:"error_rate"`
	ExpiredCredentials []string      `json:"expired_credentials"`
	RecentAlerts       []alert.Event `json:"recent_alerts"`
}

// New creates a monitor. The sink receives every alert that passes the
// cooldown gate; a nil logger is replaced with a no-op.
func New(cfg Config, sink AlertSink, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 10
	}
	return &Monitor{
		cfg:         cfg,
		sink:        sink,
		logger:      logger,
		metrics:     NewMetrics(),
		windowStart: time.Now(),
		cooldowns:   make(map[alert.Category]time.Time),
		seenExpired: make(map[string]struct{}),
		now:         time.Now,
	}
}

// RecordRequest increments the request counter for the current window.
func (m *Monitor) RecordRequest() {
	m.mu.Lock()
	m.totalRequests++
	m.mu.Unlock()
	m.metrics.RequestsTotal.Inc()
}

// RecordError increments the error counter; 401 and 403 responses also
// count as authentication errors.
func (m *Monitor) RecordError(statusCode int) {
	m.mu.Lock()
	m.errorCount++
	authErr := statusCode == 401 || statusCode == 403
	if authErr {
		m.authErrors++
	}
	m.mu.Unlock()

	m.metrics.ErrorsTotal.Inc()
	if authErr {
		m.metrics.AuthErrorsTotal.Inc()
	}
}

// RecordExpiredCredentialUse raises an expired-credential-use alert the
// first time each credential ID is reported in this process lifetime.
func (m *Monitor) RecordExpiredCredentialUse(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.seenExpired[id]; seen {
		return
	}
	m.seenExpired[id] = struct{}{}

	m.raiseLocked(alert.CategoryExpiredCredentialUse, alert.SeverityHigh,
		fmt.Sprintf("expired credential %s is still being presented", id),
		map[string]interface{}{
			"credential_id": id,
		})
}

// Evaluate closes the counting window if it has elapsed: computes the
// error rate, raises an elevated-error-rate alert when it exceeds the
// threshold, and unconditionally resets the counters. Before the window
// elapses it is a no-op returning a neutral result, so callers may invoke
// it at arbitrary times without double-counting.
func (m *Monitor) Evaluate() EvalResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.windowStart) < m.cfg.ErrorRateWindow {
		return EvalResult{}
	}

	rate := 0.0
	if m.totalRequests > 0 {
		rate = float64(m.errorCount) / float64(m.totalRequests)
	}
	shouldAlert := rate > m.cfg.ErrorRateThreshold

	if shouldAlert {
		m.raiseLocked(alert.CategoryElevatedErrorRate, alert.SeverityCritical,
			fmt.Sprintf("error rate %.2f%% over the last %s", rate*100, m.cfg.ErrorRateWindow),
			map[string]interface{}{
				"error_rate":     fmt.Sprintf("%.2f%%", rate*100),
				"time_window":    m.cfg.ErrorRateWindow.String(),
				"total_requests": m.totalRequests,
				"error_count":    m.errorCount,
			})
	}

	// Window boundary: reset and advance regardless of alert outcome.
	m.errorCount = 0
	m.totalRequests = 0
	m.windowStart = now

	return EvalResult{Rate: rate, ShouldAlert: shouldAlert}
}

// CheckAuthSpike compares the current auth-error count against a
// caller-supplied baseline. A zero baseline never alerts: no spike can be
// computed from it.
func (m *Monitor) CheckAuthSpike(previousAuthErrors int64, window time.Duration) SpikeResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.authErrors
	increase := 0.0
	if previousAuthErrors > 0 {
		increase = float64(current-previousAuthErrors) / float64(previousAuthErrors)
	}
	shouldAlert := previousAuthErrors > 0 && increase >= m.cfg.AuthSpikeThreshold

	if shouldAlert {
		m.raiseLocked(alert.CategoryAuthSpike, alert.SeverityHigh,
			fmt.Sprintf("authentication failures increased by %.1f%%", increase*100),
			map[string]interface{}{
				"increase":        fmt.Sprintf("%.1f%%", increase*100),
				"previous_errors": previousAuthErrors,
				"current_errors":  current,
				"time_window":     window.String(),
			})
	}

	return SpikeResult{Increase: increase, ShouldAlert: shouldAlert}
}

// Snapshot returns a read-only copy of the monitor's state with the
// derived error rate for the current window. It never mutates counters
// and never triggers an evaluation.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	rate := 0.0
	if m.totalRequests > 0 {
		rate = float64(m.errorCount) / float64(m.totalRequests)
	}

	expired := make([]string, 0, len(m.seenExpired))
	for id := range m.seenExpired {
		expired = append(expired, id)
	}

	alerts := make([]alert.Event, len(m.history))
	copy(alerts, m.history)

	return Snapshot{
		TotalRequests:      m.totalRequests,
		ErrorCount:         m.errorCount,
		AuthErrorCount:     m.authErrors,
		WindowStart:        m.windowStart,
		ErrorRate:          rate,
		ExpiredCredentials: expired,
		RecentAlerts:       alerts,
	}
}

// Reset clears all counters, the alert history, the cooldown table, and
// the expired-credential seen-set. Only an explicit administrative action
// calls this.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests = 0
	m.errorCount = 0
	m.authErrors = 0
	m.windowStart = m.now()
	m.cooldowns = make(map[alert.Category]time.Time)
	m.seenExpired = make(map[string]struct{})
	m.history = nil

	m.logger.Info("monitor state reset")
}

// Run evaluates on a fixed interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evaluate()
		}
	}
}

// raiseLocked is the single gate through which every alert leaves the
// monitor. Callers must hold m.mu. Within the cooldown interval the raise
// is recorded as suppressed and dropped; otherwise the category is
// stamped, the event appended to the bounded history, and handed to the
// sink. The sink only launches delivery, so no network I/O happens under
// the lock.
func (m *Monitor) raiseLocked(category alert.Category, severity alert.Severity, message string, details map[string]interface{}) {
	now := m.now()

	if last, ok := m.cooldowns[category]; ok && now.Sub(last) < m.cfg.AlertCooldown {
		m.metrics.AlertsSuppressedTotal.WithLabelValues(string(category)).Inc()
		m.logger.Debug("alert suppressed by cooldown",
			zap.String("category", string(category)),
			zap.Time("last_dispatch", last),
		)
		return
	}
	m.cooldowns[category] = now

	ev := alert.Event{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Context:   details,
		Timestamp: now,
	}

	m.history = append(m.history, ev)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[len(m.history)-m.cfg.HistorySize:]
	}

	m.metrics.AlertsTotal.WithLabelValues(string(category)).Inc()

	if m.sink != nil {
		m.sink.Dispatch(ev)
	}
}
