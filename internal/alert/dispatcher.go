package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Channel is a single external notification sink. Implementations render
// the event into whatever shape the provider expects. Adding a sink means
// adding an implementation, not changing the dispatcher.
type Channel interface {
	// Name identifies the channel in logs.
	Name() string

	// Deliver sends one event. The context carries the per-delivery
	// timeout; a timed-out delivery is a failure for this channel only.
	Deliver(ctx context.Context, ev Event) error
}

// Dispatcher fans alert events out to every configured channel.
//
// Dispatch is fire-and-forget: each channel gets its own goroutine and its
// own bounded-timeout context, and a failing channel never blocks or fails
// delivery to the others. Failures are logged, never returned to the path
// that raised the alert.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given channels. Nil entries
// are skipped. Callers holding concrete channel pointers must nil-check
// before appending; a typed nil survives the interface conversion.
func NewDispatcher(channels []Channel, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	configured := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if ch == nil {
			continue
		}
		configured = append(configured, ch)
	}

	if len(configured) == 0 {
		logger.Info("no alert channels configured, alerts will only be logged")
	}

	return &Dispatcher{
		channels: configured,
		timeout:  timeout,
		logger:   logger,
	}
}

// Dispatch hands the event to every channel concurrently and returns
// without waiting for delivery.
func (d *Dispatcher) Dispatch(ev Event) {
	d.logger.Warn("alert raised",
		zap.String("category", string(ev.Category)),
		zap.String("severity", ev.Severity.String()),
		zap.String("message", ev.Message),
	)

	for _, ch := range d.channels {
		d.wg.Add(1)
		go func(ch Channel) {
			defer d.wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()

			if err := ch.Deliver(ctx, ev); err != nil {
				d.logger.Error("alert delivery failed",
					zap.String("channel", ch.Name()),
					zap.String("category", string(ev.Category)),
					zap.Error(err),
				)
				return
			}

			d.logger.Debug("alert delivered",
				zap.String("channel", ch.Name()),
				zap.String("category", string(ev.Category)),
			)
		}(ch)
	}
}

// Drain blocks until all in-flight deliveries finish. Used during
// graceful shutdown and in tests.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}
