package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/artishok-center/artclub-bot/types"
)

func TestNormalizeIdentityFromExplicitField(t *testing.T) {
	in := Normalize(RawNotification{
		OrderID:       "artclub_111_1700000000",
		UserID:        "222",
		CustomerExtra: "333",
		PaymentStatus: "success",
	})
	assert.Equal(t, int64(222), in.UserID, "explicit user_id wins over everything")
}

func TestNormalizeIdentityFromCustomerExtra(t *testing.T) {
	in := Normalize(RawNotification{
		OrderID:       "some-foreign-order",
		CustomerExtra: "333",
		PaymentStatus: "success",
	})
	assert.Equal(t, int64(333), in.UserID)
}

func TestNormalizeIdentityFromOrderID(t *testing.T) {
	in := Normalize(RawNotification{
		OrderID:       "artclub_444_1700000000",
		PaymentStatus: "success",
	})
	assert.Equal(t, int64(444), in.UserID)
}

func TestNormalizeIdentityFromGiftOrderID(t *testing.T) {
	in := Normalize(RawNotification{
		OrderID:       "gift_555_1700000000",
		PaymentStatus: "success",
	})
	assert.Equal(t, int64(555), in.UserID)
	assert.Equal(t, KindGift, in.Kind)
}

func TestNormalizeIdentityFromLegacyParam(t *testing.T) {
	in := Normalize(RawNotification{
		OrderID:       "order-1",
		ParamUser:     "666",
		PaymentStatus: "success",
	})
	assert.Equal(t, int64(666), in.UserID)
}

func TestNormalizeIdentityUnresolved(t *testing.T) {
	in := Normalize(RawNotification{
		OrderID:       "order-1",
		UserID:        "not-a-number",
		PaymentStatus: "success",
	})
	assert.Equal(t, int64(0), in.UserID)
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, types.PaymentSuccess, Normalize(RawNotification{PaymentStatus: "success"}).Status)
	assert.Equal(t, types.PaymentSuccess, Normalize(RawNotification{PaymentStatus: "ORDER_PAID"}).Status)
	assert.Equal(t, types.PaymentPending, Normalize(RawNotification{PaymentStatus: "pending"}).Status)
	assert.Equal(t, types.PaymentFailed, Normalize(RawNotification{PaymentStatus: "canceled"}).Status)
	assert.Equal(t, types.PaymentFailed, Normalize(RawNotification{}).Status)
}

func TestNormalizeKindAutopayment(t *testing.T) {
	assert.Equal(t, KindAutopayment, Normalize(RawNotification{
		OrderID:     "artclub_1_1700000000",
		PaymentType: "AutoPayment",
	}).Kind)

	assert.Equal(t, KindAutopayment, Normalize(RawNotification{
		OrderID:      "artclub_1_1700000000",
		Subscription: map[string]string{"autopayment": "1"},
	}).Kind)

	assert.Equal(t, KindStandard, Normalize(RawNotification{
		OrderID: "artclub_1_1700000000",
	}).Kind)
}

func TestNormalizeGiftWinsOverAutopayment(t *testing.T) {
	in := Normalize(RawNotification{
		OrderID:     "gift_1_1700000000",
		PaymentType: "autopayment",
	})
	assert.Equal(t, KindGift, in.Kind)
}

func TestNormalizeStripsGiftPlanPrefix(t *testing.T) {
	in := Normalize(RawNotification{
		OrderID:          "gift_1_1700000000",
		SubscriptionPlan: "gift_3_months",
	})
	assert.Equal(t, "3_months", in.PlanID)
	assert.Equal(t, KindGift, in.Kind)
}

func TestNormalizeGiftRecipient(t *testing.T) {
	in := Normalize(RawNotification{
		OrderID: "gift_1_1700000000",
		GiftFor: "@friend",
	})
	assert.Equal(t, "friend", in.GiftFor)
}
