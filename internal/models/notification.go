package models

import "time"

// Channel identifies a delivery mechanism for outbound notifications.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
	ChannelCalendar Channel = "calendar"
	ChannelPush     Channel = "push"
)

// KnownChannels lists every channel the dispatcher can address.
var KnownChannels = []Channel{ChannelEmail, ChannelWhatsApp, ChannelTelegram, ChannelCalendar, ChannelPush}

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, bool) {
	for _, c := range KnownChannels {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// NotificationKind classifies what a notification is about.
type NotificationKind string

const (
	KindRenewalReminder NotificationKind = "renewal_reminder"
	KindWelcome         NotificationKind = "welcome"
	KindTest            NotificationKind = "test"
)

// NotificationStatus is the delivery state of a logged notification.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification is one outbound message, logged per channel. Rows with
// channel "push" and status "pending" form the extension poll feed.
type Notification struct {
	ID             int64              `json:"id"`
	UserID         int64              `json:"user_id"`
	SubscriptionID int64              `json:"subscription_id,omitempty"`
	Channel        Channel            `json:"channel"`
	Kind           NotificationKind   `json:"kind"`
	Title          string             `json:"title"`
	Message        string             `json:"message"`
	Status         NotificationStatus `json:"status"`
	Error          string             `json:"error,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	SentAt         *time.Time         `json:"sent_at,omitempty"`
}
