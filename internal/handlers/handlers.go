package handlers

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/artishok-center/artclub-bot/internal/config"
	"github.com/artishok-center/artclub-bot/internal/contextkeys"
	"github.com/artishok-center/artclub-bot/internal/messages"
	"github.com/artishok-center/artclub-bot/internal/promo"
	"github.com/artishok-center/artclub-bot/types"
)

type Handlers struct {
	users    types.UserStore
	subs     types.SubscriptionStore
	payments types.PaymentStore
	promos   types.PromoStore
	dialogs  types.DialogStore
	promo    *promo.Engine
	cfg      *config.Config
	log      zerolog.Logger
	now      func() time.Time
}

func NewHandlers(users types.UserStore, subs types.SubscriptionStore, payments types.PaymentStore, promos types.PromoStore, dialogs types.DialogStore, engine *promo.Engine, cfg *config.Config, log zerolog.Logger) *Handlers {
	return &Handlers{
		users:    users,
		subs:     subs,
		payments: payments,
		promos:   promos,
		dialogs:  dialogs,
		promo:    engine,
		cfg:      cfg,
		log:      log.With().Str("component", "handlers").Logger(),
		now:      time.Now,
	}
}

func (h *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := contextkeys.GetUser(ctx)
	if !ok {
		return
	}
	chatID := h.chatIDFromUpdate(update)
	if chatID == 0 {
		return
	}

	messageType, _ := contextkeys.GetMessageType(ctx)
	switch messageType {
	case contextkeys.MessageTypeCommand:
		h.HandleCommand(ctx, b, update, user)
	case contextkeys.MessageTypeText:
		h.HandleText(ctx, b, update, user)
	case contextkeys.MessageTypeClickButton:
		h.HandleCallback(ctx, b, update, user)
	default:
		h.send(ctx, b, chatID, messages.ErrorUnknownCommand(), nil)
	}
}

func (h *Handlers) chatIDFromUpdate(update *models.Update) int64 {
	if update.Message != nil {
		return update.Message.Chat.ID
	}
	if update.CallbackQuery != nil {
		if update.CallbackQuery.Message.Message != nil {
			return update.CallbackQuery.Message.Message.Chat.ID
		}
		if update.CallbackQuery.Message.InaccessibleMessage != nil {
			return update.CallbackQuery.Message.InaccessibleMessage.Chat.ID
		}
	}
	return 0
}

func (h *Handlers) send(ctx context.Context, b *bot.Bot, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		h.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (h *Handlers) answerCallback(ctx context.Context, b *bot.Bot, callbackID, text string) {
	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("answer callback failed")
	}
}

func (h *Handlers) mainMenuKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "💳 Оформить подписку", CallbackData: "show_plans"}},
			{{Text: "📋 Моя подписка", CallbackData: "my_subscription"}},
			{{Text: "🎁 Промокод", CallbackData: "promo"}},
			{{Text: "🎁 Подарить подписку", CallbackData: "gift"}},
			{{Text: "ℹ️ О клубе", CallbackData: "about"}},
			{{Text: "📞 Поддержка", CallbackData: "support"}},
		},
	}
}

func (h *Handlers) plansKeyboard(callbackPrefix string) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, 5)
	for _, p := range h.cfg.Plans.All() {
		label := p.Name + " — " + messages.FormatPrice(p.Price)
		if p.Discount > 0 {
			label += " 🔥"
		}
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: label, CallbackData: callbackPrefix + p.ID},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "◀️ Назад", CallbackData: "main_menu"},
	})
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (h *Handlers) cancelKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "❌ Отмена", CallbackData: "cancel"}},
		},
	}
}
