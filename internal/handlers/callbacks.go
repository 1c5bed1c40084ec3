package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/artishok-center/artclub-bot/internal/contextkeys"
	"github.com/artishok-center/artclub-bot/internal/messages"
	"github.com/artishok-center/artclub-bot/types"
)

func (h *Handlers) HandleCallback(ctx context.Context, b *bot.Bot, update *models.Update, user *types.User) {
	if update.CallbackQuery == nil {
		return
	}
	chatID := h.chatIDFromUpdate(update)
	data, _ := contextkeys.GetCallbackData(ctx)
	if data == "" {
		data = update.CallbackQuery.Data
	}
	data = strings.TrimSpace(data)

	h.answerCallback(ctx, b, update.CallbackQuery.ID, "")

	switch {
	case data == "main_menu":
		h.send(ctx, b, chatID, messages.StartWelcome(user.FirstName), h.mainMenuKeyboard())
	case data == "show_plans":
		h.send(ctx, b, chatID, messages.PlansIntro(), h.plansKeyboard("plan_"))
	case data == "gift":
		h.send(ctx, b, chatID, messages.GiftIntro(), h.plansKeyboard("gift_plan_"))
	case data == "promo":
		h.startPromoDialog(ctx, b, chatID, user)
	case data == "cancel":
		if err := h.dialogs.ClearDialog(user.ID); err != nil {
			h.log.Warn().Err(err).Int64("user_id", user.ID).Msg("dialog reset failed")
		}
		h.send(ctx, b, chatID, messages.ActionCancelled(), h.mainMenuKeyboard())
	case data == "my_subscription":
		h.sendSubscriptionStatus(ctx, b, chatID, user)
	case data == "about":
		h.send(ctx, b, chatID, messages.AboutClub(), h.backKeyboard())
	case data == "support":
		h.send(ctx, b, chatID, messages.Support(), h.backKeyboard())
	case data == "auto_renewal_info":
		h.send(ctx, b, chatID, messages.AutoRenewalInfo(), h.backKeyboard())
	case strings.HasPrefix(data, "gift_plan_"):
		h.startCheckout(ctx, b, chatID, user, strings.TrimPrefix(data, "gift_plan_"), true)
	case strings.HasPrefix(data, "plan_"):
		h.startCheckout(ctx, b, chatID, user, strings.TrimPrefix(data, "plan_"), false)
	case strings.HasPrefix(data, "check_payment_"):
		h.checkPayment(ctx, b, chatID, user, strings.TrimPrefix(data, "check_payment_"))
	default:
		h.send(ctx, b, chatID, messages.ErrorUnknownCommand(), nil)
	}
}

func (h *Handlers) startPromoDialog(ctx context.Context, b *bot.Bot, chatID int64, user *types.User) {
	err := h.dialogs.SetDialog(&types.Dialog{
		UserID: user.ID,
		ChatID: chatID,
		State:  types.DialogPromoWaitCode,
	})
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("dialog state write failed")
		h.send(ctx, b, chatID, messages.ErrorDefault(), nil)
		return
	}
	h.send(ctx, b, chatID, messages.PromoPrompt(), h.cancelKeyboard())
}

func (h *Handlers) checkPayment(ctx context.Context, b *bot.Bot, chatID int64, user *types.User, orderID string) {
	p, err := h.payments.GetPayment(ctx, orderID)
	if err != nil {
		h.log.Error().Err(err).Str("order_id", orderID).Msg("payment lookup failed")
		h.send(ctx, b, chatID, messages.ErrorDefault(), nil)
		return
	}
	if p == nil || p.Status != types.PaymentSuccess {
		h.send(ctx, b, chatID, messages.PaymentPendingHint(), nil)
		return
	}

	sub, err := h.subs.LatestSubscription(ctx, user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("subscription lookup failed")
		h.send(ctx, b, chatID, messages.ErrorDefault(), nil)
		return
	}
	if sub != nil && sub.ExpiresAt.After(h.now()) {
		daysLeft := int(sub.ExpiresAt.Sub(h.now()).Hours() / 24)
		h.send(ctx, b, chatID, messages.SubscriptionStatusActive(sub.ExpiresAt, daysLeft), nil)
		return
	}
	h.sendSubscriptionStatus(ctx, b, chatID, user)
}

func (h *Handlers) backKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "◀️ Назад", CallbackData: "main_menu"}},
		},
	}
}
