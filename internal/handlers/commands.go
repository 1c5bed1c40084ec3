package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/artishok-center/artclub-bot/internal/messages"
	"github.com/artishok-center/artclub-bot/types"
)

func (h *Handlers) HandleCommand(ctx context.Context, b *bot.Bot, update *models.Update, user *types.User) {
	chatID := update.Message.Chat.ID
	fields := strings.Fields(update.Message.Text)
	if len(fields) == 0 {
		return
	}
	cmd := fields[0]
	if strings.Contains(cmd, "@") {
		cmd = strings.SplitN(cmd, "@", 2)[0]
	}

	switch cmd {
	case "/start":
		// A fresh /start abandons whatever dialog was in flight.
		if err := h.dialogs.ClearDialog(user.ID); err != nil {
			h.log.Warn().Err(err).Int64("user_id", user.ID).Msg("dialog reset failed")
		}
		h.send(ctx, b, chatID, messages.StartWelcome(user.FirstName), h.mainMenuKeyboard())
	case "/status":
		h.sendSubscriptionStatus(ctx, b, chatID, user)
	case "/stats":
		if !h.cfg.IsAdmin(user.ID) {
			h.send(ctx, b, chatID, messages.ErrorUnknownCommand(), nil)
			return
		}
		stats, err := h.payments.Statistics(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("statistics query failed")
			h.send(ctx, b, chatID, messages.ErrorDefault(), nil)
			return
		}
		h.send(ctx, b, chatID, messages.StatsSummary(stats.TotalUsers, stats.ActiveSubscribers, stats.TotalRevenue), nil)
	case "/addpromo":
		if !h.cfg.IsAdmin(user.ID) {
			h.send(ctx, b, chatID, messages.ErrorUnknownCommand(), nil)
			return
		}
		h.handleAddPromo(ctx, b, chatID, user, fields[1:])
	case "/help":
		h.send(ctx, b, chatID, messages.Support(), nil)
	default:
		h.send(ctx, b, chatID, messages.ErrorUnknownCommand(), nil)
	}
}

var errPromoArgs = errors.New("bad promocode arguments")

func (h *Handlers) handleAddPromo(ctx context.Context, b *bot.Bot, chatID int64, admin *types.User, args []string) {
	p, err := h.buildPromocode(ctx, args)
	if errors.Is(err, errPromoArgs) {
		h.send(ctx, b, chatID, messages.PromoCreateUsage(), nil)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("promocode recipient lookup failed")
		h.send(ctx, b, chatID, messages.ErrorDefault(), nil)
		return
	}

	p.CreatedBy = admin.ID
	if err := h.promos.CreatePromocode(ctx, p); err != nil {
		h.log.Error().Err(err).Str("code", p.Code).Msg("promocode create failed")
		h.send(ctx, b, chatID, messages.ErrorDefault(), nil)
		return
	}
	h.send(ctx, b, chatID, messages.PromoCreated(p.Code), nil)
}

// buildPromocode parses `КОД тип значение [мес.] [лимит] [получатель]`.
func (h *Handlers) buildPromocode(ctx context.Context, args []string) (types.Promocode, error) {
	if len(args) < 3 {
		return types.Promocode{}, errPromoArgs
	}

	kind := types.DiscountKind(strings.ToLower(args[1]))
	switch kind {
	case types.DiscountPercent, types.DiscountFixed, types.DiscountFree:
	default:
		return types.Promocode{}, errPromoArgs
	}
	value, err := strconv.ParseFloat(args[2], 64)
	if err != nil || value < 0 {
		return types.Promocode{}, errPromoArgs
	}

	p := types.Promocode{
		Code:           strings.ToUpper(strings.TrimSpace(args[0])),
		DiscountType:   kind,
		DiscountValue:  value,
		DurationMonths: 1,
		IsActive:       true,
	}
	if p.Code == "" {
		return types.Promocode{}, errPromoArgs
	}

	if len(args) > 3 {
		months, err := strconv.Atoi(args[3])
		if err != nil || months <= 0 {
			return types.Promocode{}, errPromoArgs
		}
		p.DurationMonths = months
	}
	if len(args) > 4 {
		maxUses, err := strconv.Atoi(args[4])
		if err != nil || maxUses <= 0 {
			return types.Promocode{}, errPromoArgs
		}
		p.MaxUses = &maxUses
	}
	if len(args) > 5 {
		if err := h.bindRecipient(ctx, &p, args[5]); err != nil {
			return types.Promocode{}, err
		}
	}
	return p, nil
}

// bindRecipient pins a code to one user: by id when the handle is already
// known to the bot, by handle otherwise (the id binds on first contact).
func (h *Handlers) bindRecipient(ctx context.Context, p *types.Promocode, arg string) error {
	arg = strings.TrimSpace(arg)
	if handle, ok := strings.CutPrefix(arg, "@"); ok {
		if handle == "" {
			return errPromoArgs
		}
		u, err := h.users.GetUserByUsername(ctx, handle)
		if err != nil {
			return err
		}
		if u != nil {
			p.ForUserID = &u.ID
			return nil
		}
		p.ForUsername = handle
		return nil
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return errPromoArgs
	}
	p.ForUserID = &id
	return nil
}

func (h *Handlers) sendSubscriptionStatus(ctx context.Context, b *bot.Bot, chatID int64, user *types.User) {
	// The context user row was loaded at the start of the update; re-read so
	// a just-settled payment shows up.
	fresh, err := h.users.GetUser(ctx, user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("status lookup failed")
		h.send(ctx, b, chatID, messages.ErrorDefault(), nil)
		return
	}
	if fresh == nil {
		fresh = user
	}

	if fresh.IsSubscribed && fresh.SubscriptionUntil != nil && fresh.SubscriptionUntil.After(h.now()) {
		daysLeft := int(fresh.SubscriptionUntil.Sub(h.now()).Hours() / 24)
		h.send(ctx, b, chatID, messages.SubscriptionStatusActive(*fresh.SubscriptionUntil, daysLeft), nil)
		return
	}
	h.send(ctx, b, chatID, messages.SubscriptionStatusNone(), &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "💳 Оформить подписку", CallbackData: "show_plans"}},
		},
	})
}
