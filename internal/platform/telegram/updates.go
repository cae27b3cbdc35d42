package telegram

import (
	"context"

	"github.com/doctorbot/doctorbot/internal/dialog"
	"github.com/doctorbot/doctorbot/internal/platform/bot"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Translate converts a Telegram update into a dispatcher update. ok is false
// for updates the bot ignores: edits, channel posts, stickers and the like.
func Translate(u tgbotapi.Update) (bot.Update, bool) {
	switch {
	case u.Message != nil:
		return translateMessage(u.Message)
	case u.CallbackQuery != nil:
		return translateCallback(u.CallbackQuery)
	}
	return bot.Update{}, false
}

func translateMessage(m *tgbotapi.Message) (bot.Update, bool) {
	if m.From == nil || m.Chat == nil {
		return bot.Update{}, false
	}
	out := bot.Update{UserID: m.From.ID, ChatID: m.Chat.ID}
	switch {
	case m.IsCommand() && m.Command() == "start":
		out.Event = dialog.Start{}
	case m.IsCommand():
		out.Event = dialog.Command{Name: m.Command()}
	case m.Text != "":
		out.Event = dialog.Text{Body: m.Text}
	default:
		return bot.Update{}, false
	}
	return out, true
}

func translateCallback(q *tgbotapi.CallbackQuery) (bot.Update, bool) {
	if q.From == nil {
		return bot.Update{}, false
	}
	out := bot.Update{UserID: q.From.ID, ChatID: q.From.ID, CallbackID: q.ID}
	if q.Message != nil && q.Message.Chat != nil {
		out.ChatID = q.Message.Chat.ID
	}
	a, err := dialog.DecodeAction(q.Data)
	if err != nil {
		out.Err = err
		return out, true
	}
	out.Event = dialog.Press{Action: a}
	return out, true
}

// UpdatesAPI is the long-polling subset of *tgbotapi.BotAPI.
type UpdatesAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poll long-polls Telegram and forwards translated updates to out until ctx
// is cancelled.
func Poll(ctx context.Context, api UpdatesAPI, timeout int, out chan<- bot.Update, logger zerolog.Logger) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = timeout
	in := api.GetUpdatesChan(cfg)
	defer api.StopReceivingUpdates()

	logger.Info().Int("timeout", timeout).Msg("long polling started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-in:
			if !ok {
				return nil
			}
			bu, ok := Translate(u)
			if !ok {
				logger.Debug().Int("update_id", u.UpdateID).Msg("update ignored")
				continue
			}
			select {
			case out <- bu:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
