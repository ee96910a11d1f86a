package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskd/internal/alert"
)

// fakeSink collects dispatched events.
type fakeSink struct {
	mu     sync.Mutex
	events []alert.Event
}

func (s *fakeSink) Dispatch(ev alert.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *fakeSink) all() []alert.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]alert.Event, len(s.events))
	copy(out, s.events)
	return out
}

// testClock is an adjustable clock for window arithmetic.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	return Config{
		ErrorRateThreshold: 0.005,
		ErrorRateWindow:    5 * time.Minute,
		AuthSpikeThreshold: 0.10,
		AlertCooldown:      15 * time.Minute,
		HistorySize:        10,
	}
}

func newTestMonitor(t *testing.T) (*Monitor, *fakeSink, *testClock) {
	t.Helper()
	sink := &fakeSink{}
	clock := newTestClock()
	m := New(testConfig(), sink, nil)
	m.now = clock.Now
	m.windowStart = clock.Now()
	return m, sink, clock
}

func record(m *Monitor, requests, errors int) {
	for i := 0; i < requests; i++ {
		m.RecordRequest()
	}
	for i := 0; i < errors; i++ {
		m.RecordError(500)
	}
}

func TestEvaluate(t *testing.T) {
	t.Run("no-op before the window elapses", func(t *testing.T) {
		m, sink, clock := newTestMonitor(t)
		record(m, 100, 100)

		clock.Advance(4 * time.Minute)
		res := m.Evaluate()

		assert.Equal(t, EvalResult{}, res)
		assert.Empty(t, sink.all())

		// Counters survive a no-op evaluation.
		snap := m.Snapshot()
		assert.EqualValues(t, 100, snap.TotalRequests)
		assert.EqualValues(t, 100, snap.ErrorCount)
	})

	t.Run("rate above threshold alerts and resets", func(t *testing.T) {
		m, sink, clock := newTestMonitor(t)
		record(m, 1000, 6)

		clock.Advance(5 * time.Minute)
		res := m.Evaluate()

		assert.True(t, res.ShouldAlert)
		assert.InDelta(t, 0.006, res.Rate, 1e-9)

		events := sink.all()
		require.Len(t, events, 1)
		assert.Equal(t, alert.CategoryElevatedErrorRate, events[0].Category)
		assert.Equal(t, alert.SeverityCritical, events[0].Severity)

		snap := m.Snapshot()
		assert.EqualValues(t, 0, snap.TotalRequests)
		assert.EqualValues(t, 0, snap.ErrorCount)
		assert.Equal(t, clock.Now(), snap.WindowStart)
	})

	t.Run("rate below threshold resets without alerting", func(t *testing.T) {
		m, sink, clock := newTestMonitor(t)
		record(m, 1000, 4)

		clock.Advance(5 * time.Minute)
		res := m.Evaluate()

		assert.False(t, res.ShouldAlert)
		assert.InDelta(t, 0.004, res.Rate, 1e-9)
		assert.Empty(t, sink.all())

		snap := m.Snapshot()
		assert.EqualValues(t, 0, snap.TotalRequests)
		assert.EqualValues(t, 0, snap.ErrorCount)
	})

	t.Run("zero requests yields zero rate", func(t *testing.T) {
		m, sink, clock := newTestMonitor(t)

		clock.Advance(5 * time.Minute)
		res := m.Evaluate()

		assert.False(t, res.ShouldAlert)
		assert.Zero(t, res.Rate)
		assert.Empty(t, sink.all())
	})
}

func TestRecordError(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	m.RecordError(500)
	m.RecordError(401)
	m.RecordError(403)
	m.RecordError(404)

	snap := m.Snapshot()
	assert.EqualValues(t, 4, snap.ErrorCount)
	assert.EqualValues(t, 2, snap.AuthErrorCount)
}

func TestCheckAuthSpike(t *testing.T) {
	t.Run("zero baseline never alerts", func(t *testing.T) {
		m, sink, _ := newTestMonitor(t)
		for i := 0; i < 500; i++ {
			m.RecordError(401)
		}

		res := m.CheckAuthSpike(0, 24*time.Hour)

		assert.Zero(t, res.Increase)
		assert.False(t, res.ShouldAlert)
		assert.Empty(t, sink.all())
	})

	t.Run("increase at the threshold alerts", func(t *testing.T) {
		m, sink, _ := newTestMonitor(t)
		for i := 0; i < 110; i++ {
			m.RecordError(401)
		}

		res := m.CheckAuthSpike(100, 24*time.Hour)

		assert.InDelta(t, 0.10, res.Increase, 1e-9)
		assert.True(t, res.ShouldAlert)

		events := sink.all()
		require.Len(t, events, 1)
		assert.Equal(t, alert.CategoryAuthSpike, events[0].Category)
		assert.Equal(t, alert.SeverityHigh, events[0].Severity)
	})

	t.Run("increase below the threshold does not alert", func(t *testing.T) {
		m, sink, _ := newTestMonitor(t)
		for i := 0; i < 105; i++ {
			m.RecordError(401)
		}

		res := m.CheckAuthSpike(100, 24*time.Hour)

		assert.InDelta(t, 0.05, res.Increase, 1e-9)
		assert.False(t, res.ShouldAlert)
		assert.Empty(t, sink.all())
	})
}

func TestRecordExpiredCredentialUse(t *testing.T) {
	t.Run("alerts once per credential id", func(t *testing.T) {
		m, sink, _ := newTestMonitor(t)

		m.RecordExpiredCredentialUse("cred-1")
		m.RecordExpiredCredentialUse("cred-1")

		events := sink.all()
		require.Len(t, events, 1)
		assert.Equal(t, alert.CategoryExpiredCredentialUse, events[0].Category)
		assert.Equal(t, alert.SeverityHigh, events[0].Severity)
		assert.Equal(t, "cred-1", events[0].Context["credential_id"])
	})

	t.Run("distinct ids share the category cooldown", func(t *testing.T) {
		m, sink, clock := newTestMonitor(t)

		m.RecordExpiredCredentialUse("cred-1")
		m.RecordExpiredCredentialUse("cred-2")
		assert.Len(t, sink.all(), 1)

		clock.Advance(16 * time.Minute)
		m.RecordExpiredCredentialUse("cred-3")
		assert.Len(t, sink.all(), 2)
	})
}

func TestCooldown(t *testing.T) {
	t.Run("same category within cooldown dispatches once", func(t *testing.T) {
		m, sink, clock := newTestMonitor(t)

		record(m, 1000, 100)
		clock.Advance(5 * time.Minute)
		m.Evaluate()

		record(m, 1000, 100)
		clock.Advance(5 * time.Minute)
		m.Evaluate()

		assert.Len(t, sink.all(), 1)
	})

	t.Run("beyond cooldown dispatches again", func(t *testing.T) {
		m, sink, clock := newTestMonitor(t)

		record(m, 1000, 100)
		clock.Advance(5 * time.Minute)
		m.Evaluate()

		clock.Advance(16 * time.Minute)
		record(m, 1000, 100)
		clock.Advance(5 * time.Minute)
		m.Evaluate()

		assert.Len(t, sink.all(), 2)
	})

	t.Run("different categories do not share cooldowns", func(t *testing.T) {
		m, sink, clock := newTestMonitor(t)

		m.RecordExpiredCredentialUse("cred-1")

		record(m, 1000, 100)
		clock.Advance(5 * time.Minute)
		m.Evaluate()

		assert.Len(t, sink.all(), 2)
	})
}

func TestSnapshot(t *testing.T) {
	t.Run("is read-only", func(t *testing.T) {
		m, _, clock := newTestMonitor(t)
		record(m, 10, 2)
		clock.Advance(10 * time.Minute)

		// Even past the window boundary, Snapshot never evaluates.
		snap := m.Snapshot()
		assert.EqualValues(t, 10, snap.TotalRequests)
		assert.EqualValues(t, 2, snap.ErrorCount)
		assert.InDelta(t, 0.2, snap.ErrorRate, 1e-9)

		again := m.Snapshot()
		assert.Equal(t, snap.TotalRequests, again.TotalRequests)
		assert.Equal(t, snap.ErrorCount, again.ErrorCount)
	})

	t.Run("includes expired credentials and recent alerts", func(t *testing.T) {
		m, _, _ := newTestMonitor(t)
		m.RecordExpiredCredentialUse("cred-1")

		snap := m.Snapshot()
		assert.Equal(t, []string{"cred-1"}, snap.ExpiredCredentials)
		require.Len(t, snap.RecentAlerts, 1)
		assert.Equal(t, alert.CategoryExpiredCredentialUse, snap.RecentAlerts[0].Category)
	})
}

func TestHistoryBound(t *testing.T) {
	m, _, clock := newTestMonitor(t)

	// Raise more alerts than the history holds, stepping past the
	// cooldown each time.
	for i := 0; i < 15; i++ {
		record(m, 1000, 100)
		clock.Advance(16 * time.Minute)
		m.Evaluate()
	}

	snap := m.Snapshot()
	assert.Len(t, snap.RecentAlerts, 10)
}

func TestReset(t *testing.T) {
	m, sink, clock := newTestMonitor(t)

	record(m, 100, 50)
	m.RecordExpiredCredentialUse("cred-1")
	require.Len(t, sink.all(), 1)

	m.Reset()

	snap := m.Snapshot()
	assert.EqualValues(t, 0, snap.TotalRequests)
	assert.EqualValues(t, 0, snap.ErrorCount)
	assert.EqualValues(t, 0, snap.AuthErrorCount)
	assert.Empty(t, snap.ExpiredCredentials)
	assert.Empty(t, snap.RecentAlerts)
	assert.Equal(t, clock.Now(), snap.WindowStart)

	// Cooldowns and the seen-set cleared: the same id alerts again.
	m.RecordExpiredCredentialUse("cred-1")
	assert.Len(t, sink.all(), 2)
}

func TestConcurrentRecording(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.RecordRequest()
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.EqualValues(t, 8000, snap.TotalRequests)
}
