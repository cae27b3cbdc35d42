package telegram

import (
	"crypto/subtle"
	"net/http"

	"github.com/doctorbot/doctorbot/internal/platform/bot"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler accepts Telegram deliveries and queues them for the
// dispatcher. An empty secret disables the header check.
func WebhookHandler(secret string, out chan<- bot.Update, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if secret != "" {
			got := c.Request().Header.Get(SecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid secret token")
			}
		}

		var u tgbotapi.Update
		if err := c.Bind(&u); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid update body")
		}

		bu, ok := Translate(u)
		if !ok {
			return c.NoContent(http.StatusOK)
		}
		select {
		case out <- bu:
		case <-c.Request().Context().Done():
			logger.Warn().Int("update_id", u.UpdateID).Msg("webhook delivery abandoned")
			return echo.NewHTTPError(http.StatusServiceUnavailable, "dispatcher busy")
		}
		return c.NoContent(http.StatusOK)
	}
}
