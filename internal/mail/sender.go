// Package mail defines the outbound contract to the mail-sending
// collaborator. Delivery itself lives outside this process; taskd only
// hands messages over and tolerates failure.
package mail

import (
	"context"

	"go.uber.org/zap"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender hands a message to the mail collaborator. Implementations must
// treat failure as their own concern; callers log and move on.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender records the handoff in the log instead of delivering. The
// default when no mail collaborator is wired in.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender. A nil logger is replaced with a no-op.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender. The body is not logged; it can carry a raw
// credential.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("mail handoff",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
