package notify

import (
	"context"
	"time"

	"github.com/artishok-center/artclub-bot/internal/messages"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
)

const sendTimeout = 10 * time.Second

// TelegramNotifier delivers user notifications and operator alerts over the
// Bot API. Best effort: callers treat failures as non-fatal.
type TelegramNotifier struct {
	bot      *bot.Bot
	adminIDs []int64
	log      zerolog.Logger
}

func NewTelegramNotifier(b *bot.Bot, adminIDs []int64, log zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:      b,
		adminIDs: adminIDs,
		log:      log.With().Str("component", "notify").Logger(),
	}
}

func (n *TelegramNotifier) Notify(ctx context.Context, userID int64, html string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    userID,
		Text:      html,
		ParseMode: messages.ParseModeHTML,
	})
	return err
}

// SendRenewalReminder delivers the upcoming-charge reminder with the
// change-plan and cancel actions attached.
func (n *TelegramNotifier) SendRenewalReminder(ctx context.Context, userID int64, days int) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    userID,
		Text:      messages.RenewalReminder(days),
		ParseMode: messages.ParseModeHTML,
		ReplyMarkup: &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: "💳 Изменить тариф", CallbackData: "show_plans"}},
				{{Text: "ℹ️ Об автопродлении", CallbackData: "auto_renewal_info"}},
			},
		},
	})
	return err
}

func (n *TelegramNotifier) AlertAdmins(ctx context.Context, html string) {
	for _, adminID := range n.adminIDs {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		_, err := n.bot.SendMessage(sendCtx, &bot.SendMessageParams{
			ChatID:    adminID,
			Text:      html,
			ParseMode: messages.ParseModeHTML,
		})
		cancel()
		if err != nil {
			n.log.Warn().Err(err).Int64("admin_id", adminID).Msg("failed to alert admin")
		}
	}
}
