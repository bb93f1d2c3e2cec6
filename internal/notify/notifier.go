package notify

import (
	"context"

	"go.uber.org/zap"
)

// Message is a single per-recipient notification.
type Message struct {
	RecipientID string
	Event       string
	Subject     string
	Body        string
}

// ChannelNotifier delivers a notification over one channel (email, chat,
// and so on). Implementations must be safe for concurrent use.
type ChannelNotifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogChannel is the default channel: it records deliveries in the
// application log. Useful in development and as a fallback when no real
// channel is configured.
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel constructs a log-backed channel.
func NewLogChannel(logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Notify(_ context.Context, msg Message) error {
	c.logger.Info("notification",
		zap.String("recipient_id", msg.RecipientID),
		zap.String("event", msg.Event),
		zap.String("subject", msg.Subject))
	return nil
}
