package types

// ActivationSource records how a subscription row came to exist.
type ActivationSource string

const (
	SourcePayment     ActivationSource = "payment"
	SourcePromo       ActivationSource = "promo"
	SourceManual      ActivationSource = "manual"
	SourceMigration   ActivationSource = "migration"
	SourceAutopayment ActivationSource = "autopayment"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentSuccess  PaymentStatus = "success"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type DiscountKind string

const (
	DiscountPercent DiscountKind = "percent"
	DiscountFixed   DiscountKind = "fixed"
	DiscountFree    DiscountKind = "free"
)

// DialogState tags the multi-step conversation a user is in the middle of.
// Every state is cancelable; /start or the cancel button resets to DialogNone.
type DialogState string

const (
	DialogNone          DialogState = ""
	DialogPromoWaitCode DialogState = "promo_wait_code"
)
