package types

import "time"

type User struct {
	ID                int64
	Username          string
	FirstName         string
	LastName          string
	IsSubscribed      bool
	SubscriptionUntil *time.Time
	JoinedAt          time.Time
	LastActivity      time.Time
}

// Subscription is an append-only history row. A grant or extension always
// creates a new row; the current expiry is the most recently created active
// row's expires_at, mirrored on the user for cheap lookups.
type Subscription struct {
	ID             int64
	UserID         int64
	DurationMonths int
	StartedAt      time.Time
	ExpiresAt      time.Time
	ActivatedBy    ActivationSource
	Promocode      string
	IsActive       bool
	CancelledAt    *time.Time
}

// ExpiryFrom is the single duration rule for every grant source: a month is
// exactly 30 days, stacking linearly. Extensions pass the current expiry as
// the base; fresh grants pass now.
func ExpiryFrom(base time.Time, months int) time.Time {
	return base.Add(time.Duration(months) * 30 * 24 * time.Hour)
}

type Payment struct {
	ID             int64
	UserID         int64
	OrderID        string
	Amount         float64
	Currency       string
	Plan           string
	DurationMonths int
	Status         PaymentStatus
	CreatedAt      time.Time
	PaidAt         *time.Time
}
