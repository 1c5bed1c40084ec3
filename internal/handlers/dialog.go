package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/artishok-center/artclub-bot/internal/messages"
	"github.com/artishok-center/artclub-bot/internal/promo"
	"github.com/artishok-center/artclub-bot/types"
)

func (h *Handlers) HandleText(ctx context.Context, b *bot.Bot, update *models.Update, user *types.User) {
	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)

	dlg, err := h.dialogs.GetDialog(user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("dialog lookup failed")
		h.send(ctx, b, chatID, messages.ErrorDefault(), nil)
		return
	}

	switch dlg.State {
	case types.DialogPromoWaitCode:
		h.handlePromoCode(ctx, b, chatID, user, text)
	default:
		h.send(ctx, b, chatID, messages.StartWelcome(user.FirstName), h.mainMenuKeyboard())
	}
}

func (h *Handlers) handlePromoCode(ctx context.Context, b *bot.Bot, chatID int64, user *types.User, code string) {
	res, err := h.promo.Redeem(ctx, code, user)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("promo redemption failed")
		h.send(ctx, b, chatID, messages.ErrorDefault(), nil)
		return
	}

	switch res.Outcome {
	case promo.OutcomeNotFound:
		// Stay in the dialog so the user can correct a typo.
		h.send(ctx, b, chatID, messages.PromoNotFound(), h.cancelKeyboard())
	case promo.OutcomeInactive:
		h.send(ctx, b, chatID, messages.PromoInactive(), h.cancelKeyboard())
	case promo.OutcomeExpired:
		h.send(ctx, b, chatID, messages.PromoExpired(), h.cancelKeyboard())
	case promo.OutcomeExhausted:
		h.send(ctx, b, chatID, messages.PromoExhausted(), h.cancelKeyboard())
	case promo.OutcomeNotYours:
		h.send(ctx, b, chatID, messages.PromoNotYours(), h.cancelKeyboard())
	case promo.OutcomeDiscount:
		err := h.dialogs.SetDialog(&types.Dialog{
			UserID:       user.ID,
			ChatID:       chatID,
			State:        types.DialogNone,
			AppliedPromo: res.Code,
		})
		if err != nil {
			h.log.Error().Err(err).Int64("user_id", user.ID).Msg("applied promo write failed")
			h.send(ctx, b, chatID, messages.ErrorDefault(), nil)
			return
		}
		h.send(ctx, b, chatID,
			messages.PromoDiscountApplied(res.Code, string(res.Discount.Kind), res.Discount.Value),
			h.plansKeyboard("plan_"))
	case promo.OutcomeGranted:
		if err := h.dialogs.ClearDialog(user.ID); err != nil {
			h.log.Warn().Err(err).Int64("user_id", user.ID).Msg("dialog reset failed")
		}
		sub := res.Subscription
		h.send(ctx, b, chatID,
			messages.PromoFreeActivated(sub.DurationMonths, sub.ExpiresAt, res.InviteLink), nil)
	}
}
