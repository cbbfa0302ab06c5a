package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"subwatch/internal/models"
	"subwatch/shared/reminders"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetMe() (tgbotapi.User, error)
}

// TelegramChannel delivers messages to the chat id from the user's settings.
type TelegramChannel struct {
	bot telegramAPI
}

func NewTelegramChannel(token string, debug bool, logger zerolog.Logger) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	bot.Debug = debug
	logger.Info().Str("username", bot.Self.UserName).Msg("Telegram bot authorized")
	return &TelegramChannel{bot: bot}, nil
}

// NewTelegramChannelWithAPI wires a custom sender, used in tests.
func NewTelegramChannelWithAPI(api telegramAPI) *TelegramChannel {
	return &TelegramChannel{bot: api}
}

func (c *TelegramChannel) Name() models.Channel { return models.ChannelTelegram }

func (c *TelegramChannel) Send(ctx context.Context, rcpt Recipient, msg *Message) error {
	if rcpt.Settings.TelegramChatID == 0 {
		return &reminders.SendError{Code: 400, Message: "telegram chat id not set"}
	}

	m := tgbotapi.NewMessage(rcpt.Settings.TelegramChatID, msg.Title+"\n\n"+msg.Text)
	if _, err := c.bot.Send(m); err != nil {
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			return &reminders.SendError{Code: tgErr.Code, Message: tgErr.Message}
		}
		return err
	}
	return nil
}

func (c *TelegramChannel) TestConnection(ctx context.Context) error {
	if _, err := c.bot.GetMe(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}
