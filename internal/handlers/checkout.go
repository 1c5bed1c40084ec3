package handlers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/artishok-center/artclub-bot/internal/messages"
	"github.com/artishok-center/artclub-bot/internal/plans"
	"github.com/artishok-center/artclub-bot/internal/promo"
	"github.com/artishok-center/artclub-bot/types"
)

// startCheckout creates a pending payment row and hands out a gateway link.
// For regular purchases a discount code applied earlier in the dialog is
// folded into the amount; gift purchases never take discounts.
func (h *Handlers) startCheckout(ctx context.Context, b *bot.Bot, chatID int64, user *types.User, planID string, gift bool) {
	plan, ok := h.cfg.Plans.ByID(planID)
	if !ok {
		h.send(ctx, b, chatID, messages.ErrorDefault(), nil)
		return
	}

	price := plan.Price
	discounted := false
	if !gift {
		price, discounted = h.applyDialogDiscount(ctx, user, price)
	}

	orderID := h.newOrderID(user.ID, gift)
	planLabel := plan.ID
	if gift {
		planLabel = "gift_" + plan.ID
	}

	err := h.payments.CreatePendingPayment(ctx, types.Payment{
		UserID:         user.ID,
		OrderID:        orderID,
		Amount:         price,
		Currency:       "RUB",
		Plan:           planLabel,
		DurationMonths: plan.Months,
		Status:         types.PaymentPending,
	})
	if err != nil {
		h.log.Error().Err(err).Str("order_id", orderID).Msg("pending payment write failed")
		h.send(ctx, b, chatID, messages.ErrorDefault(), nil)
		return
	}

	link := h.paymentLink(orderID, user.ID, price, plan, gift)
	h.send(ctx, b, chatID, messages.CheckoutOffer(plan.Name, price, discounted), &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "💳 Перейти к оплате", URL: link}},
			{{Text: "✅ Я оплатил(а)", CallbackData: "check_payment_" + orderID}},
			{{Text: "❌ Отмена", CallbackData: "cancel"}},
		},
	})
}

// applyDialogDiscount folds a previously applied discount code into the
// price. The code is re-validated here; a code that went inactive since it
// was applied is silently dropped. The applied mark is consumed either way.
func (h *Handlers) applyDialogDiscount(ctx context.Context, user *types.User, price float64) (float64, bool) {
	dlg, err := h.dialogs.GetDialog(user.ID)
	if err != nil || dlg.AppliedPromo == "" {
		return price, false
	}

	res, err := h.promo.Redeem(ctx, dlg.AppliedPromo, user)
	if cerr := h.dialogs.ClearDialog(user.ID); cerr != nil {
		h.log.Warn().Err(cerr).Int64("user_id", user.ID).Msg("applied promo reset failed")
	}
	if err != nil || res.Outcome != promo.OutcomeDiscount {
		return price, false
	}
	return promo.DiscountedPrice(price, *res.Discount), true
}

func (h *Handlers) newOrderID(userID int64, gift bool) string {
	prefix := "artclub"
	if gift {
		prefix = "gift"
	}
	return fmt.Sprintf("%s_%d_%d", prefix, userID, h.now().Unix())
}

func (h *Handlers) paymentLink(orderID string, userID int64, amount float64, plan plans.Plan, gift bool) string {
	planLabel := plan.ID
	if gift {
		planLabel = "gift_" + plan.ID
	}

	v := url.Values{}
	v.Set("order_id", orderID)
	v.Set("customer_extra", strconv.FormatInt(userID, 10))
	v.Set("subscription_plan", planLabel)
	v.Set("products[0][name]", "Подписка Shmukler Art Club: "+plan.Name)
	v.Set("products[0][price]", strconv.FormatFloat(amount, 'f', 2, 64))
	v.Set("products[0][quantity]", "1")
	v.Set("currency", "rub")
	v.Set("do", "pay")
	return h.cfg.ProdamusBaseURL + "/?" + v.Encode()
}
