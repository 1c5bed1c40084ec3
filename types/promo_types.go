package types

import "time"

type Promocode struct {
	ID             int64
	Code           string
	DiscountType   DiscountKind
	DiscountValue  float64
	DurationMonths int
	MaxUses        *int
	UsedCount      int
	ForUserID      *int64
	ForUsername    string
	IsGift         bool
	ValidFrom      time.Time
	ValidUntil     *time.Time
	IsActive       bool
	CreatedAt      time.Time
	CreatedBy      int64
}

// FreeFixedThreshold is the fixed-discount value at or above which a code is
// treated as effectively free (it exceeds any plan price).
const FreeFixedThreshold = 100000

// PromoEffect is the tagged variant of what redeeming a code does: either a
// discount to apply at checkout, or an immediate free subscription grant.
type PromoEffect interface{ promoEffect() }

type Discount struct {
	Kind  DiscountKind
	Value float64
}

type FreeGrant struct {
	Months int
}

func (Discount) promoEffect()  {}
func (FreeGrant) promoEffect() {}

// Effect classifies the code once, so no caller has to re-derive whether a
// code is secretly 100%-off and therefore free.
func (p *Promocode) Effect() PromoEffect {
	switch p.DiscountType {
	case DiscountFree:
		return FreeGrant{Months: p.DurationMonths}
	case DiscountPercent:
		if p.DiscountValue >= 100 {
			return FreeGrant{Months: p.DurationMonths}
		}
	case DiscountFixed:
		if p.DiscountValue >= FreeFixedThreshold {
			return FreeGrant{Months: p.DurationMonths}
		}
	}
	return Discount{Kind: p.DiscountType, Value: p.DiscountValue}
}
