package notify

import (
	"context"

	"subwatch/internal/models"
)

// PushChannel queues messages for the browser extension. The dispatcher
// leaves the notification rows pending and the extension collects them by
// polling, so Send has nothing to deliver itself.
type PushChannel struct{}

func NewPushChannel() *PushChannel { return &PushChannel{} }

func (*PushChannel) Name() models.Channel { return models.ChannelPush }

func (*PushChannel) Send(ctx context.Context, rcpt Recipient, msg *Message) error { return nil }

func (*PushChannel) TestConnection(ctx context.Context) error { return nil }
