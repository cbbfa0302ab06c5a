// Package notify fans notifications out to the user's enabled channels and
// records every attempt in the notification log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"subwatch/internal/metrics"
	"subwatch/internal/models"
	"subwatch/shared/reminders"
)

// Message is a rendered notification ready for delivery.
type Message struct {
	Kind    models.NotificationKind
	Title   string
	Text    string
	HTML    string
	Renewal *RenewalInfo // set for renewal reminders
}

// RenewalInfo carries the renewal details channels may need.
type RenewalInfo struct {
	SubscriptionID int64
	Name           string
	Amount         string
	Currency       string
	BillingDate    time.Time
	DaysBefore     int
}

// Recipient bundles the user identity with their notification settings.
type Recipient struct {
	User     *models.User
	Settings *models.UserSettings
}

// Channel delivers messages over one mechanism.
type Channel interface {
	Name() models.Channel
	Send(ctx context.Context, rcpt Recipient, msg *Message) error
	// TestConnection verifies the channel is usable without sending to a user.
	TestConnection(ctx context.Context) error
}

// Store is the slice of the database the dispatcher needs.
type Store interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserSettings(ctx context.Context, userID int64) (*models.UserSettings, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	MarkNotificationSent(ctx context.Context, id int64) error
	MarkNotificationFailed(ctx context.Context, id int64, reason string) error
}

// Dispatcher routes messages to enabled channels. It implements the reminder
// engine's Notifier.
type Dispatcher struct {
	store    Store
	channels map[models.Channel]Channel
	logger   zerolog.Logger
}

func NewDispatcher(store Store, logger zerolog.Logger, channels ...Channel) *Dispatcher {
	m := make(map[models.Channel]Channel, len(channels))
	for _, ch := range channels {
		m[ch.Name()] = ch
	}
	return &Dispatcher{
		store:    store,
		channels: m,
		logger:   logger,
	}
}

// SendRenewalReminder delivers a renewal reminder over every enabled channel.
// Per-channel failures are logged per channel; an error is returned only when
// nothing could be delivered at all, so the reminder engine can retry.
func (d *Dispatcher) SendRenewalReminder(ctx context.Context, userID int64, sub reminders.Subscription, daysBefore int) error {
	rcpt, err := d.recipient(ctx, userID)
	if err != nil {
		return err
	}
	if rcpt.User.IsBlocked {
		d.logger.Debug().Int64("user_id", userID).Msg("Skipping reminder for blocked user")
		return nil
	}

	msg := RenderRenewal(RenewalInfo{
		SubscriptionID: sub.GetID(),
		Name:           sub.GetName(),
		Amount:         sub.GetAmount(),
		Currency:       sub.GetCurrency(),
		BillingDate:    sub.GetNextBillingDate(),
		DaysBefore:     daysBefore,
	})

	delivered := 0
	var errs []error
	for _, name := range enabledChannels(rcpt.Settings) {
		if err := d.deliver(ctx, rcpt, name, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		delivered++
	}

	if delivered == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	for _, err := range errs {
		d.logger.Warn().Err(err).Int64("user_id", userID).Msg("Channel delivery failed")
	}
	return nil
}

// SendTest pushes a test message through one channel, returning the send
// error directly so the caller can report it.
func (d *Dispatcher) SendTest(ctx context.Context, userID int64, channel models.Channel) error {
	rcpt, err := d.recipient(ctx, userID)
	if err != nil {
		return err
	}
	return d.deliver(ctx, rcpt, channel, RenderTest())
}

// SendWelcome greets a freshly created user over email and the extension feed.
func (d *Dispatcher) SendWelcome(ctx context.Context, userID int64) error {
	rcpt, err := d.recipient(ctx, userID)
	if err != nil {
		return err
	}

	msg := RenderWelcome(rcpt.User.Name)
	var errs []error
	for _, name := range []models.Channel{models.ChannelEmail, models.ChannelPush} {
		if err := d.deliver(ctx, rcpt, name, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// CheckChannels probes every configured channel. Used at startup to log
// which integrations are live.
func (d *Dispatcher) CheckChannels(ctx context.Context) map[models.Channel]error {
	results := make(map[models.Channel]error, len(d.channels))
	for name, ch := range d.channels {
		results[name] = ch.TestConnection(ctx)
	}
	return results
}

// deliver logs one notification row and hands the message to the channel.
// Push rows stay pending; the extension collects them by polling.
func (d *Dispatcher) deliver(ctx context.Context, rcpt Recipient, name models.Channel, msg *Message) error {
	ch, ok := d.channels[name]
	if !ok {
		return fmt.Errorf("channel %s is not configured", name)
	}

	n := &models.Notification{
		UserID:  rcpt.User.ID,
		Channel: name,
		Kind:    msg.Kind,
		Title:   msg.Title,
		Message: msg.Text,
		Status:  models.NotificationPending,
	}
	if msg.Renewal != nil {
		n.SubscriptionID = msg.Renewal.SubscriptionID
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		return err
	}

	if name == models.ChannelPush {
		metrics.IncNotification(string(name), "queued")
		return nil
	}

	if err := ch.Send(ctx, rcpt, msg); err != nil {
		if markErr := d.store.MarkNotificationFailed(ctx, n.ID, err.Error()); markErr != nil {
			d.logger.Error().Err(markErr).Int64("notification_id", n.ID).Msg("Failed to record failure")
		}
		metrics.IncNotification(string(name), "failed")
		return err
	}

	if err := d.store.MarkNotificationSent(ctx, n.ID); err != nil {
		d.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to record delivery")
	}
	metrics.IncNotification(string(name), "sent")
	return nil
}

func (d *Dispatcher) recipient(ctx context.Context, userID int64) (Recipient, error) {
	user, err := d.store.GetUserByID(ctx, userID)
	if err != nil {
		return Recipient{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	settings, err := d.store.GetUserSettings(ctx, userID)
	if err != nil {
		return Recipient{}, fmt.Errorf("load settings for user %d: %w", userID, err)
	}
	return Recipient{User: user, Settings: settings}, nil
}

// enabledChannels lists the channels the user has switched on, in a stable
// delivery order.
func enabledChannels(s *models.UserSettings) []models.Channel {
	var out []models.Channel
	if s.EmailEnabled {
		out = append(out, models.ChannelEmail)
	}
	if s.WhatsAppEnabled {
		out = append(out, models.ChannelWhatsApp)
	}
	if s.TelegramEnabled {
		out = append(out, models.ChannelTelegram)
	}
	if s.CalendarEnabled {
		out = append(out, models.ChannelCalendar)
	}
	if s.PushEnabled {
		out = append(out, models.ChannelPush)
	}
	return out
}
