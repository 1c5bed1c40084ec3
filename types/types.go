package types

import (
	"context"
	"time"
)

// SubscriptionGrant describes one subscription mutation. Extend bases the new
// expiry on max(current expiry, now); otherwise the expiry starts from now.
// Duration math uses a fixed 30-day month everywhere.
type SubscriptionGrant struct {
	UserID         int64
	DurationMonths int
	Source         ActivationSource
	Promocode      string
	Extend         bool
}

// Lookup methods return (nil, nil) when the row does not exist.

type UserStore interface {
	UpsertUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, userID int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	SetSubscriptionStatus(ctx context.Context, userID int64, subscribed bool, until *time.Time) error
	ExpiredSubscribers(ctx context.Context, now time.Time) ([]*User, error)
	ActiveSubscribers(ctx context.Context) ([]*User, error)
}

type SubscriptionStore interface {
	// GrantSubscription inserts the history row and updates the user's
	// subscription flag/expiry in one transaction.
	GrantSubscription(ctx context.Context, grant SubscriptionGrant) (*Subscription, error)
	LatestSubscription(ctx context.Context, userID int64) (*Subscription, error)
}

type PromoStore interface {
	GetPromocode(ctx context.Context, code string) (*Promocode, error)
	CreatePromocode(ctx context.Context, promo Promocode) error
	// RedeemFreeGrant performs the whole free-grant redemption as one
	// transaction: the conditional used_count increment (the quota gate),
	// the subscription insert and the user flag update. Returns
	// ErrPromoExhausted when the conditional increment affects no rows.
	RedeemFreeGrant(ctx context.Context, code string, userID int64, months int) (*Subscription, error)
}

type PaymentStore interface {
	CreatePendingPayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, orderID string) (*Payment, error)
	// SettlePayment marks the payment success and applies the subscription
	// grant in one transaction. The order_id uniqueness constraint is the
	// duplicate-detection signal: inserted=false means the order was already
	// settled and nothing was mutated.
	SettlePayment(ctx context.Context, p Payment, grant SubscriptionGrant) (sub *Subscription, inserted bool, err error)
	// SettleGiftPayment marks the payment success and creates the gift code
	// in one transaction. No subscription row is created for the purchaser.
	SettleGiftPayment(ctx context.Context, p Payment, gift Promocode) (inserted bool, err error)
	Statistics(ctx context.Context) (Stats, error)
}

type Stats struct {
	TotalUsers        int64
	ActiveSubscribers int64
	TotalRevenue      float64
}

// AccessGateway admits and removes members of the gated club channel.
// All calls are fallible remote calls and must be treated as best-effort
// relative to an already-committed ledger write.
type AccessGateway interface {
	// Grant issues a fresh single-use invite link for the user.
	Grant(ctx context.Context, userID int64) (string, error)
	// Revoke removes the user from the channel (ban followed by an
	// immediate unban, so the user is removed but not blocked).
	Revoke(ctx context.Context, userID int64) error
	IsMember(ctx context.Context, userID int64) (bool, error)
}

// Notifier delivers a templated HTML message to a user. Fire-and-forget:
// failures are logged by callers and never block ledger correctness.
// AlertAdmins fans a message out to the operator channel for cases that
// need manual remediation (unresolved identity, failed invite delivery).
type Notifier interface {
	Notify(ctx context.Context, userID int64, html string) error
	AlertAdmins(ctx context.Context, html string)
}

// Dialog is the persisted per-user conversation state. AppliedPromo carries a
// discount code redeemed earlier, to be folded into the next checkout.
type Dialog struct {
	UserID       int64       `json:"user_id"`
	ChatID       int64       `json:"chat_id"`
	State        DialogState `json:"state"`
	AppliedPromo string      `json:"applied_promo,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type DialogStore interface {
	GetDialog(userID int64) (*Dialog, error)
	SetDialog(dialog *Dialog) error
	ClearDialog(userID int64) error
}
