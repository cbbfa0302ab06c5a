package notify

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subwatch/internal/models"
	"subwatch/shared/reminders"
)

type fakeTelegramAPI struct {
	sent     []tgbotapi.Chattable
	sendErr  error
	getMeErr error
}

func (f *fakeTelegramAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.sendErr
}

func (f *fakeTelegramAPI) GetMe() (tgbotapi.User, error) {
	return tgbotapi.User{UserName: "subwatch_bot"}, f.getMeErr
}

func telegramRecipient(chatID int64) Recipient {
	settings := models.DefaultUserSettings(1)
	settings.TelegramEnabled = true
	settings.TelegramChatID = chatID
	return Recipient{
		User:     &models.User{ID: 1, Email: "alice@example.com"},
		Settings: settings,
	}
}

func TestTelegramChannel_Send(t *testing.T) {
	api := &fakeTelegramAPI{}
	ch := NewTelegramChannelWithAPI(api)

	msg := RenderTest()
	require.NoError(t, ch.Send(context.Background(), telegramRecipient(777), msg))

	require.Len(t, api.sent, 1)
	mc, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(777), mc.ChatID)
	assert.Contains(t, mc.Text, msg.Title)
	assert.Contains(t, mc.Text, msg.Text)
}

func TestTelegramChannel_RequiresChatID(t *testing.T) {
	ch := NewTelegramChannelWithAPI(&fakeTelegramAPI{})

	err := ch.Send(context.Background(), telegramRecipient(0), RenderTest())
	require.Error(t, err)

	se, ok := reminders.AsSendError(err)
	require.True(t, ok)
	assert.Equal(t, 400, se.Code)
	assert.True(t, se.Permanent())
}

func TestTelegramChannel_MapsAPIErrors(t *testing.T) {
	api := &fakeTelegramAPI{sendErr: &tgbotapi.Error{Code: 403, Message: "bot was blocked by the user"}}
	ch := NewTelegramChannelWithAPI(api)

	err := ch.Send(context.Background(), telegramRecipient(777), RenderTest())
	require.Error(t, err)

	se, ok := reminders.AsSendError(err)
	require.True(t, ok)
	assert.Equal(t, 403, se.Code)
	assert.True(t, se.Permanent(), "blocked bot should not be retried")
}

func TestTelegramChannel_TestConnection(t *testing.T) {
	ch := NewTelegramChannelWithAPI(&fakeTelegramAPI{})
	assert.NoError(t, ch.TestConnection(context.Background()))

	broken := NewTelegramChannelWithAPI(&fakeTelegramAPI{getMeErr: errors.New("unauthorized")})
	assert.Error(t, broken.TestConnection(context.Background()))
}
