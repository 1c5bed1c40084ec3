package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/artishok-center/artclub-bot/internal/messages"
	"github.com/artishok-center/artclub-bot/internal/plans"
	"github.com/artishok-center/artclub-bot/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Outcome is what happened to one normalized payment. Everything except a
// store failure is a terminal business outcome the webhook acknowledges.
type Outcome string

const (
	OutcomeProcessed          Outcome = "processed"
	OutcomeAlreadyProcessed   Outcome = "already_processed"
	OutcomeNotSuccessful      Outcome = "not_successful"
	OutcomeIdentityUnresolved Outcome = "identity_unresolved"
	OutcomeUnknownPlan        Outcome = "unknown_plan"
)

type Result struct {
	Outcome Outcome
	OrderID string
}

// Reconciler turns normalized payment notifications into ledger writes plus
// post-commit side effects. The ledger write is the source of truth: invite
// links and chat messages happen after the commit and never undo it.
type Reconciler struct {
	payments types.PaymentStore
	access   types.AccessGateway
	notifier types.Notifier
	plans    plans.Table
	log      zerolog.Logger
	now      func() time.Time
}

func NewReconciler(payments types.PaymentStore, access types.AccessGateway, notifier types.Notifier, table plans.Table, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		payments: payments,
		access:   access,
		notifier: notifier,
		plans:    table,
		log:      log.With().Str("component", "reconcile").Logger(),
		now:      time.Now,
	}
}

// Reconcile processes one normalized payment. A non-nil error means the
// ledger write itself failed and the gateway should retry the delivery;
// every other case acknowledges the notification with a business outcome.
func (r *Reconciler) Reconcile(ctx context.Context, in IncomingPayment) (Result, error) {
	res := Result{OrderID: in.OrderID}
	log := r.log.With().Str("order_id", in.OrderID).Logger()

	if in.UserID == 0 {
		// Acknowledge so the gateway stops retrying, but record nothing:
		// a payment row without an owner cannot be reconciled later.
		log.Error().Msg("payment notification without a resolvable user")
		r.notifier.AlertAdmins(ctx, messages.AlertIdentityUnresolved(in.OrderID))
		res.Outcome = OutcomeIdentityUnresolved
		return res, nil
	}

	existing, err := r.payments.GetPayment(ctx, in.OrderID)
	if err != nil {
		return res, err
	}
	if existing != nil && existing.Status == types.PaymentSuccess {
		log.Info().Msg("duplicate success delivery")
		if in.Kind == KindStandard {
			r.reissueInviteIfAbsent(ctx, existing.UserID)
		}
		res.Outcome = OutcomeAlreadyProcessed
		return res, nil
	}

	if in.Status != types.PaymentSuccess {
		log.Info().Str("status", string(in.Status)).Msg("ignoring non-success notification")
		res.Outcome = OutcomeNotSuccessful
		return res, nil
	}

	plan, ok := r.resolvePlan(in)
	if !ok {
		log.Error().Str("plan", in.PlanID).Msg("unknown plan declared on payment")
		res.Outcome = OutcomeUnknownPlan
		return res, nil
	}

	switch in.Kind {
	case KindGift:
		return r.settleGift(ctx, in, plan)
	case KindAutopayment:
		return r.settleRenewal(ctx, in, plan)
	default:
		return r.settlePurchase(ctx, in, plan)
	}
}

// resolvePlan picks the plan: an explicitly declared plan wins and must be
// known, otherwise the amount is matched against the price table, otherwise
// the default tier applies.
func (r *Reconciler) resolvePlan(in IncomingPayment) (plans.Plan, bool) {
	if in.PlanID != "" {
		return r.plans.ByID(in.PlanID)
	}
	if p, ok := r.plans.ByAmount(in.Amount); ok {
		return p, true
	}
	return r.plans.Default(), true
}

func (r *Reconciler) settlePurchase(ctx context.Context, in IncomingPayment, plan plans.Plan) (Result, error) {
	res := Result{OrderID: in.OrderID}
	sub, inserted, err := r.payments.SettlePayment(ctx, r.paymentRow(in, plan, plan.ID), types.SubscriptionGrant{
		UserID:         in.UserID,
		DurationMonths: plan.Months,
		Source:         types.SourcePayment,
	})
	if err != nil {
		return res, err
	}
	if !inserted {
		// Lost the settle race to a concurrent delivery.
		r.reissueInviteIfAbsent(ctx, in.UserID)
		res.Outcome = OutcomeAlreadyProcessed
		return res, nil
	}

	r.log.Info().Str("order_id", in.OrderID).Int64("user_id", in.UserID).
		Str("plan", plan.ID).Time("expires_at", sub.ExpiresAt).Msg("payment settled")

	link, err := r.access.Grant(ctx, in.UserID)
	if err != nil {
		r.log.Warn().Err(err).Int64("user_id", in.UserID).Msg("invite link after payment failed")
		r.notifier.AlertAdmins(ctx, messages.AlertInviteFailed(in.UserID))
		r.send(ctx, in.UserID, messages.PaymentSucceededNoInvite(sub.ExpiresAt))
	} else {
		r.send(ctx, in.UserID, messages.PaymentSucceeded(sub.ExpiresAt, link))
	}
	res.Outcome = OutcomeProcessed
	return res, nil
}

func (r *Reconciler) settleRenewal(ctx context.Context, in IncomingPayment, plan plans.Plan) (Result, error) {
	res := Result{OrderID: in.OrderID}
	sub, inserted, err := r.payments.SettlePayment(ctx, r.paymentRow(in, plan, plan.ID), types.SubscriptionGrant{
		UserID:         in.UserID,
		DurationMonths: plan.Months,
		Source:         types.SourceAutopayment,
		Extend:         true,
	})
	if err != nil {
		return res, err
	}
	if !inserted {
		res.Outcome = OutcomeAlreadyProcessed
		return res, nil
	}

	r.log.Info().Str("order_id", in.OrderID).Int64("user_id", in.UserID).
		Time("expires_at", sub.ExpiresAt).Msg("autopayment settled")

	r.reissueInviteIfAbsent(ctx, in.UserID)
	r.send(ctx, in.UserID, messages.AutopayRenewed(sub.ExpiresAt))
	res.Outcome = OutcomeProcessed
	return res, nil
}

func (r *Reconciler) settleGift(ctx context.Context, in IncomingPayment, plan plans.Plan) (Result, error) {
	res := Result{OrderID: in.OrderID}
	one := 1
	gift := types.Promocode{
		Code:           newGiftCode(),
		DiscountType:   types.DiscountFree,
		DiscountValue:  100,
		DurationMonths: plan.Months,
		MaxUses:        &one,
		ForUsername:    in.GiftFor,
		IsGift:         true,
		IsActive:       true,
		CreatedBy:      in.UserID,
	}
	inserted, err := r.payments.SettleGiftPayment(ctx, r.paymentRow(in, plan, "gift_"+plan.ID), gift)
	if err != nil {
		return res, err
	}
	if !inserted {
		res.Outcome = OutcomeAlreadyProcessed
		return res, nil
	}

	r.log.Info().Str("order_id", in.OrderID).Int64("user_id", in.UserID).
		Str("code", gift.Code).Msg("gift payment settled")

	r.send(ctx, in.UserID, messages.GiftPurchased(gift.Code, plan.Months))
	res.Outcome = OutcomeProcessed
	return res, nil
}

func (r *Reconciler) paymentRow(in IncomingPayment, plan plans.Plan, planLabel string) types.Payment {
	return types.Payment{
		UserID:         in.UserID,
		OrderID:        in.OrderID,
		Amount:         in.Amount,
		Currency:       in.Currency,
		Plan:           planLabel,
		DurationMonths: plan.Months,
		Status:         types.PaymentSuccess,
	}
}

// reissueInviteIfAbsent re-checks channel membership and hands out a fresh
// invite when the user never made it in. Covers the paid-but-never-joined
// case on duplicate deliveries and renewals.
func (r *Reconciler) reissueInviteIfAbsent(ctx context.Context, userID int64) {
	member, err := r.access.IsMember(ctx, userID)
	if err != nil {
		r.log.Warn().Err(err).Int64("user_id", userID).Msg("membership check failed")
		return
	}
	if member {
		return
	}
	link, err := r.access.Grant(ctx, userID)
	if err != nil {
		r.log.Warn().Err(err).Int64("user_id", userID).Msg("invite link reissue failed")
		r.notifier.AlertAdmins(ctx, messages.AlertInviteFailed(userID))
		return
	}
	r.send(ctx, userID, messages.InviteReissued(link))
}

func (r *Reconciler) send(ctx context.Context, userID int64, html string) {
	if err := r.notifier.Notify(ctx, userID, html); err != nil {
		r.log.Warn().Err(err).Int64("user_id", userID).Msg("notification failed")
	}
}

func newGiftCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "GIFT_" + raw[:8]
}
