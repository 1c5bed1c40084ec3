package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectClassification(t *testing.T) {
	free := &Promocode{DiscountType: DiscountFree, DurationMonths: 3}
	eff, ok := free.Effect().(FreeGrant)
	require.True(t, ok)
	assert.Equal(t, 3, eff.Months)

	// 100%-off is free in disguise.
	full := &Promocode{DiscountType: DiscountPercent, DiscountValue: 100, DurationMonths: 1}
	_, ok = full.Effect().(FreeGrant)
	assert.True(t, ok)

	// A fixed discount above any plan price is free too.
	huge := &Promocode{DiscountType: DiscountFixed, DiscountValue: FreeFixedThreshold, DurationMonths: 1}
	_, ok = huge.Effect().(FreeGrant)
	assert.True(t, ok)

	percent := &Promocode{DiscountType: DiscountPercent, DiscountValue: 20}
	d, ok := percent.Effect().(Discount)
	require.True(t, ok)
	assert.Equal(t, DiscountPercent, d.Kind)
	assert.Equal(t, 20.0, d.Value)

	fixed := &Promocode{DiscountType: DiscountFixed, DiscountValue: 500}
	d, ok = fixed.Effect().(Discount)
	require.True(t, ok)
	assert.Equal(t, DiscountFixed, d.Kind)
}
