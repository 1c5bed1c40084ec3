package promo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/artishok-center/artclub-bot/internal/messages"
	"github.com/artishok-center/artclub-bot/store"
	"github.com/artishok-center/artclub-bot/types"
	"github.com/rs/zerolog"
)

// Outcome is the typed result of a redemption attempt. Every validation
// failure maps to its own outcome so the chat layer can answer with a
// specific, actionable message.
type Outcome string

const (
	OutcomeNotFound  Outcome = "not_found"
	OutcomeInactive  Outcome = "inactive"
	OutcomeExpired   Outcome = "expired"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeNotYours  Outcome = "not_yours"
	OutcomeDiscount  Outcome = "discount"
	OutcomeGranted   Outcome = "granted"
)

type RedemptionResult struct {
	Outcome Outcome
	Code    string
	// Discount is set for OutcomeDiscount: the value to fold into the next
	// checkout. Redemption itself mutates nothing in the discount case.
	Discount *types.Discount
	// Subscription and InviteLink are set for OutcomeGranted.
	Subscription *types.Subscription
	InviteLink   string
}

// Engine validates and applies promo codes.
type Engine struct {
	promos   types.PromoStore
	access   types.AccessGateway
	notifier types.Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewEngine(promos types.PromoStore, access types.AccessGateway, notifier types.Notifier, log zerolog.Logger) *Engine {
	return &Engine{
		promos:   promos,
		access:   access,
		notifier: notifier,
		log:      log.With().Str("component", "promo").Logger(),
		now:      time.Now,
	}
}

// Redeem runs the validation chain and applies the code's effect. Validation
// failures return a typed outcome and leave the ledger untouched. A free
// grant commits the subscription and the used_count increment as one
// transaction in the store; the invite link and notifications happen after
// the commit and never undo it.
func (e *Engine) Redeem(ctx context.Context, code string, user *types.User) (RedemptionResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	res := RedemptionResult{Code: code}

	p, err := e.promos.GetPromocode(ctx, code)
	if err != nil {
		return res, err
	}
	if p == nil {
		res.Outcome = OutcomeNotFound
		return res, nil
	}
	if !p.IsActive {
		res.Outcome = OutcomeInactive
		return res, nil
	}
	if p.ValidUntil != nil && p.ValidUntil.Before(e.now()) {
		res.Outcome = OutcomeExpired
		return res, nil
	}
	if p.MaxUses != nil && p.UsedCount >= *p.MaxUses {
		res.Outcome = OutcomeExhausted
		return res, nil
	}
	if !recipientMatches(p, user) {
		res.Outcome = OutcomeNotYours
		return res, nil
	}

	switch eff := p.Effect().(type) {
	case types.Discount:
		// Informational until checkout: no counter consumed, no rows written.
		res.Outcome = OutcomeDiscount
		res.Discount = &eff
		return res, nil
	case types.FreeGrant:
		sub, err := e.promos.RedeemFreeGrant(ctx, code, user.ID, eff.Months)
		if errors.Is(err, store.ErrPromoExhausted) {
			// Lost the race for the last use.
			res.Outcome = OutcomeExhausted
			return res, nil
		}
		if err != nil {
			return res, err
		}
		res.Outcome = OutcomeGranted
		res.Subscription = sub
		res.InviteLink = e.grantAccess(ctx, user.ID)
		e.log.Info().Int64("user_id", user.ID).Str("code", code).
			Time("expires_at", sub.ExpiresAt).Msg("free-grant promo redeemed")
		return res, nil
	}
	return res, nil
}

func (e *Engine) grantAccess(ctx context.Context, userID int64) string {
	link, err := e.access.Grant(ctx, userID)
	if err != nil {
		e.log.Warn().Err(err).Int64("user_id", userID).Msg("invite link after promo grant failed")
		e.notifier.AlertAdmins(ctx, messages.AlertInviteFailed(userID))
		return ""
	}
	return link
}

// recipientMatches checks recipient binding. Binding by handle takes
// precedence over binding by id; handle comparison is case-insensitive.
func recipientMatches(p *types.Promocode, user *types.User) bool {
	if p.ForUsername != "" {
		want := strings.TrimPrefix(strings.TrimSpace(p.ForUsername), "@")
		return strings.EqualFold(want, strings.TrimSpace(user.Username))
	}
	if p.ForUserID != nil {
		return *p.ForUserID == user.ID
	}
	return true
}

// DiscountedPrice applies a discount to a plan price, floored at zero.
func DiscountedPrice(price float64, d types.Discount) float64 {
	switch d.Kind {
	case types.DiscountPercent:
		price = price * (1 - d.Value/100)
	case types.DiscountFixed:
		price = price - d.Value
	case types.DiscountFree:
		price = 0
	}
	if price < 0 {
		return 0
	}
	return price
}
