// Package telegram adapts the Telegram Bot API to the bot dispatcher: it turns
// updates into dialog events, and replies into messages with inline keyboards.
package telegram

import (
	"context"
	"fmt"

	"github.com/doctorbot/doctorbot/internal/dialog"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// API is the subset of *tgbotapi.BotAPI the client needs.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// Client sends dialog replies. It implements bot.Sender.
type Client struct {
	api    API
	logger zerolog.Logger
}

func NewClient(api API, logger zerolog.Logger) *Client {
	return &Client{api: api, logger: logger.With().Str("component", "telegram").Logger()}
}

// NewBotAPI connects with token and checks it with getMe.
func NewBotAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	api.Debug = debug
	return api, nil
}

// Send posts r to chatID with one button per keyboard row.
func (c *Client) Send(_ context.Context, chatID int64, r dialog.Reply) error {
	msg := tgbotapi.NewMessage(chatID, r.Text)
	if len(r.Buttons) > 0 {
		kb, err := Keyboard(r.Buttons)
		if err != nil {
			return err
		}
		msg.ReplyMarkup = kb
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

// AnswerCallback stops the client's loading spinner on a pressed button.
func (c *Client) AnswerCallback(_ context.Context, callbackID string) error {
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// Keyboard builds an inline keyboard. Telegram rejects callback data longer
// than dialog.MaxPayloadLen bytes.
func Keyboard(buttons []dialog.Button) (tgbotapi.InlineKeyboardMarkup, error) {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		data := dialog.EncodeAction(b.Action)
		if data == "" {
			return tgbotapi.InlineKeyboardMarkup{}, fmt.Errorf("button %q has no payload", b.Label)
		}
		if len(data) > dialog.MaxPayloadLen {
			return tgbotapi.InlineKeyboardMarkup{}, fmt.Errorf("button %q payload is %d bytes, limit is %d", b.Label, len(data), dialog.MaxPayloadLen)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Label, data)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), nil
}

// RegisterCommands publishes the command list shown in the chat menu.
func (c *Client) RegisterCommands() error {
	cmds := tgbotapi.NewSetMyCommands(tgbotapi.BotCommand{
		Command:     "start",
		Description: "Open the main menu",
	})
	if _, err := c.api.Request(cmds); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	return nil
}

// SetWebhook points Telegram at url. Telegram echoes secret back in the
// SecretHeader of every delivery.
func (c *Client) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	resp, err := c.api.MakeRequest("setWebhook", params)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("set webhook: %s", resp.Description)
	}
	c.logger.Info().Str("url", url).Msg("webhook registered")
	return nil
}

// DeleteWebhook switches the bot back to long polling.
func (c *Client) DeleteWebhook() error {
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}
