package reconcile

import (
	"strconv"
	"strings"

	"github.com/artishok-center/artclub-bot/types"
)

// PaymentKind classifies a gateway notification by what the charge was for.
type PaymentKind string

const (
	KindStandard    PaymentKind = "standard"
	KindGift        PaymentKind = "gift"
	KindAutopayment PaymentKind = "autopayment"
)

// RawNotification is the union of body shapes the gateway has sent over its
// iterations: form-encoded and JSON, with the payer identity appearing in
// different fields depending on how the payment link was built.
type RawNotification struct {
	OrderID       string
	PaymentStatus string
	PaymentType   string
	Amount        float64
	Currency      string

	// Identity candidates, in no particular order.
	UserID        string
	CustomerExtra string
	ParamUser     string

	// Plan and gift metadata.
	SubscriptionPlan string
	GiftFor          string

	// Nested subscription block on recurring charges.
	Subscription map[string]string
}

// IncomingPayment is the single normalized shape every notification is
// reduced to before any business decision is made.
type IncomingPayment struct {
	OrderID  string
	UserID   int64 // 0 when no identity could be extracted
	Amount   float64
	Currency string
	Status   types.PaymentStatus
	Kind     PaymentKind
	// PlanID is the explicitly declared plan with any gift_ prefix stripped;
	// empty when the notification carried no plan.
	PlanID string
	// GiftFor is an optional recipient handle attached at gift purchase time.
	GiftFor string
}

// Normalize reduces a raw gateway notification to an IncomingPayment.
// Pure: no I/O, no clock.
func Normalize(raw RawNotification) IncomingPayment {
	orderID := strings.TrimSpace(raw.OrderID)
	return IncomingPayment{
		OrderID:  orderID,
		UserID:   extractUserID(raw, orderID),
		Amount:   raw.Amount,
		Currency: strings.TrimSpace(raw.Currency),
		Status:   normalizeStatus(raw.PaymentStatus),
		Kind:     classifyKind(raw, orderID),
		PlanID:   strings.TrimPrefix(strings.TrimSpace(raw.SubscriptionPlan), "gift_"),
		GiftFor:  strings.TrimPrefix(strings.TrimSpace(raw.GiftFor), "@"),
	}
}

func normalizeStatus(raw string) types.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "paid", "order_paid":
		return types.PaymentSuccess
	case "pending", "order_pending":
		return types.PaymentPending
	default:
		return types.PaymentFailed
	}
}

// extractUserID tries the identity candidates in fixed order: the explicit
// user_id field, the customer extra field, the order id pattern
// <prefix>_<uid>_<ts>, and finally the legacy _param_user field.
func extractUserID(raw RawNotification, orderID string) int64 {
	if id := parseID(raw.UserID); id > 0 {
		return id
	}
	if id := parseID(raw.CustomerExtra); id > 0 {
		return id
	}
	if parts := strings.Split(orderID, "_"); len(parts) >= 3 {
		if id := parseID(parts[len(parts)-2]); id > 0 {
			return id
		}
	}
	if id := parseID(raw.ParamUser); id > 0 {
		return id
	}
	return 0
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

func classifyKind(raw RawNotification, orderID string) PaymentKind {
	if strings.HasPrefix(orderID, "gift_") ||
		strings.HasPrefix(strings.TrimSpace(raw.SubscriptionPlan), "gift_") {
		return KindGift
	}
	switch strings.ToLower(strings.TrimSpace(raw.PaymentType)) {
	case "autopayment", "recurrent":
		return KindAutopayment
	}
	if raw.Subscription != nil {
		switch raw.Subscription["autopayment"] {
		case "1", "true":
			return KindAutopayment
		}
	}
	return KindStandard
}
