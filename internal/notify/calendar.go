package notify

import (
	"context"
	"crypto/sha256"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"subwatch/internal/database"
	"subwatch/internal/models"
	"subwatch/internal/secrets"
	"subwatch/shared/reminders"
)

// CredentialStore persists sealed per-user channel credentials.
type CredentialStore interface {
	GetChannelCredential(ctx context.Context, userID int64, channel models.Channel) (string, error)
	SaveChannelCredential(ctx context.Context, userID int64, channel models.Channel, sealed string) error
}

// CalendarChannel mirrors renewals into the user's primary Google calendar
// as all-day events. Tokens are stored sealed and refreshed on use.
type CalendarChannel struct {
	oauth *oauth2.Config
	box   *secrets.Box
	creds CredentialStore
}

func NewCalendarChannel(clientID, clientSecret, redirectURL string, box *secrets.Box, creds CredentialStore) (*CalendarChannel, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("calendar: google client id and secret are required")
	}
	return &CalendarChannel{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{calendar.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		},
		box:   box,
		creds: creds,
	}, nil
}

func (c *CalendarChannel) Name() models.Channel { return models.ChannelCalendar }

// AuthURL starts the consent flow. Offline access is requested so we get a
// refresh token, and approval is forced so reconnecting returns one too.
func (c *CalendarChannel) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades the callback code for a token and stores it sealed.
func (c *CalendarChannel) Exchange(ctx context.Context, userID int64, code string) error {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("calendar: exchange code: %w", err)
	}
	return c.storeToken(ctx, userID, tok)
}

func (c *CalendarChannel) Send(ctx context.Context, rcpt Recipient, msg *Message) error {
	svc, ts, old, err := c.service(ctx, rcpt.User.ID)
	if err != nil {
		return err
	}
	defer c.persistRefreshedToken(ctx, rcpt.User.ID, ts, old)

	if msg.Renewal == nil {
		// Test and welcome messages only prove the token still works.
		if _, err = ts.Token(); err != nil {
			return &reminders.SendError{Code: 401, Message: "google token expired, reconnect calendar"}
		}
		return nil
	}

	date := msg.Renewal.BillingDate.Format("2006-01-02")
	event := &calendar.Event{
		// Deterministic id keeps repeated reminder offsets from stacking
		// duplicate events for the same renewal.
		Id:          renewalEventID(msg.Renewal.SubscriptionID, msg.Renewal.BillingDate),
		Summary:     fmt.Sprintf("%s renews (%s %s)", msg.Renewal.Name, msg.Renewal.Amount, msg.Renewal.Currency),
		Description: msg.Text,
		Start:       &calendar.EventDateTime{Date: date},
		End:         &calendar.EventDateTime{Date: msg.Renewal.BillingDate.AddDate(0, 0, 1).Format("2006-01-02")},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			// Popup the evening before the renewal.
			Overrides:       []*calendar.EventReminder{{Method: "popup", Minutes: 6 * 60}},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	_, err = svc.Events.Insert("primary", event).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			if gerr.Code == 409 {
				// Event already created by an earlier offset.
				return nil
			}
			return &reminders.SendError{Code: gerr.Code, Message: gerr.Message}
		}
		return fmt.Errorf("calendar insert: %w", err)
	}
	return nil
}

// TestConnection only verifies the client configuration. User tokens are
// validated per send.
func (c *CalendarChannel) TestConnection(ctx context.Context) error {
	if c.oauth.ClientID == "" || c.oauth.ClientSecret == "" {
		return fmt.Errorf("calendar: not configured")
	}
	return nil
}

func (c *CalendarChannel) service(ctx context.Context, userID int64) (*calendar.Service, oauth2.TokenSource, *oauth2.Token, error) {
	sealed, err := c.creds.GetChannelCredential(ctx, userID, models.ChannelCalendar)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, nil, &reminders.SendError{Code: 400, Message: "google calendar is not connected"}
		}
		return nil, nil, nil, err
	}
	raw, err := c.box.Open(sealed)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("calendar: unseal token: %w", err)
	}
	var tok oauth2.Token
	if err = json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, nil, nil, fmt.Errorf("calendar: decode token: %w", err)
	}

	ts := c.oauth.TokenSource(ctx, &tok)
	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("calendar: init service: %w", err)
	}
	return svc, ts, &tok, nil
}

// persistRefreshedToken saves the token back when the source refreshed it,
// so the next send does not need another refresh round-trip.
func (c *CalendarChannel) persistRefreshedToken(ctx context.Context, userID int64, ts oauth2.TokenSource, old *oauth2.Token) {
	cur, err := ts.Token()
	if err != nil || cur.AccessToken == old.AccessToken {
		return
	}
	_ = c.storeToken(ctx, userID, cur)
}

func (c *CalendarChannel) storeToken(ctx context.Context, userID int64, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	sealed, err := c.box.Seal(string(raw))
	if err != nil {
		return err
	}
	return c.creds.SaveChannelCredential(ctx, userID, models.ChannelCalendar, sealed)
}

var eventIDEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// renewalEventID derives a stable id in Google's base32hex alphabet.
func renewalEventID(subscriptionID int64, date time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("subwatch-%d-%s", subscriptionID, date.Format("2006-01-02"))))
	return "sw" + strings.ToLower(eventIDEncoding.EncodeToString(sum[:15]))
}
