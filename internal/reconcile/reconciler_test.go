package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artishok-center/artclub-bot/internal/plans"
	"github.com/artishok-center/artclub-bot/types"
)

type fakePaymentStore struct {
	payments  map[string]*types.Payment
	settleErr error

	settledGrants []types.SubscriptionGrant
	settledGifts  []types.Promocode
}

func (f *fakePaymentStore) CreatePendingPayment(_ context.Context, p types.Payment) error {
	if f.payments == nil {
		f.payments = map[string]*types.Payment{}
	}
	f.payments[p.OrderID] = &p
	return nil
}

func (f *fakePaymentStore) GetPayment(_ context.Context, orderID string) (*types.Payment, error) {
	return f.payments[orderID], nil
}

func (f *fakePaymentStore) SettlePayment(_ context.Context, p types.Payment, grant types.SubscriptionGrant) (*types.Subscription, bool, error) {
	if f.settleErr != nil {
		return nil, false, f.settleErr
	}
	if existing, ok := f.payments[p.OrderID]; ok && existing.Status == types.PaymentSuccess {
		return nil, false, nil
	}
	if f.payments == nil {
		f.payments = map[string]*types.Payment{}
	}
	p.Status = types.PaymentSuccess
	f.payments[p.OrderID] = &p
	f.settledGrants = append(f.settledGrants, grant)
	return &types.Subscription{
		UserID:         grant.UserID,
		DurationMonths: grant.DurationMonths,
		ExpiresAt:      types.ExpiryFrom(time.Now(), grant.DurationMonths),
		ActivatedBy:    grant.Source,
		IsActive:       true,
	}, true, nil
}

func (f *fakePaymentStore) SettleGiftPayment(_ context.Context, p types.Payment, gift types.Promocode) (bool, error) {
	if existing, ok := f.payments[p.OrderID]; ok && existing.Status == types.PaymentSuccess {
		return false, nil
	}
	if f.payments == nil {
		f.payments = map[string]*types.Payment{}
	}
	p.Status = types.PaymentSuccess
	f.payments[p.OrderID] = &p
	f.settledGifts = append(f.settledGifts, gift)
	return true, nil
}

func (f *fakePaymentStore) Statistics(_ context.Context) (types.Stats, error) {
	return types.Stats{}, nil
}

type fakeGateway struct {
	link     string
	grantErr error
	granted  []int64
	members  map[int64]bool
}

func (f *fakeGateway) Grant(_ context.Context, userID int64) (string, error) {
	if f.grantErr != nil {
		return "", f.grantErr
	}
	f.granted = append(f.granted, userID)
	return f.link, nil
}

func (f *fakeGateway) Revoke(_ context.Context, userID int64) error { return nil }

func (f *fakeGateway) IsMember(_ context.Context, userID int64) (bool, error) {
	return f.members[userID], nil
}

type fakeNotifier struct {
	sent   map[int64][]string
	alerts []string
}

func (f *fakeNotifier) Notify(_ context.Context, userID int64, html string) error {
	if f.sent == nil {
		f.sent = map[int64][]string{}
	}
	f.sent[userID] = append(f.sent[userID], html)
	return nil
}

func (f *fakeNotifier) AlertAdmins(_ context.Context, html string) {
	f.alerts = append(f.alerts, html)
}

func testPlans() plans.Table {
	return plans.New([]plans.Plan{
		{ID: "1_month", Months: 1, Price: 3500, Name: "1 месяц"},
		{ID: "3_months", Months: 3, Price: 9450, Name: "3 месяца"},
		{ID: "6_months", Months: 6, Price: 17850, Name: "6 месяцев"},
		{ID: "12_months", Months: 12, Price: 33600, Name: "12 месяцев"},
	}, "1_month")
}

func newTestReconciler(ps *fakePaymentStore, gw *fakeGateway, n *fakeNotifier) *Reconciler {
	return NewReconciler(ps, gw, n, testPlans(), zerolog.Nop())
}

func TestReconcileStandardPayment(t *testing.T) {
	ps := &fakePaymentStore{}
	gw := &fakeGateway{link: "https://t.me/+abc"}
	n := &fakeNotifier{}
	r := newTestReconciler(ps, gw, n)

	res, err := r.Reconcile(context.Background(), Normalize(RawNotification{
		OrderID:       "artclub_100_1700000000",
		PaymentStatus: "success",
		Amount:        9450,
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)

	require.Len(t, ps.settledGrants, 1)
	grant := ps.settledGrants[0]
	assert.Equal(t, int64(100), grant.UserID)
	assert.Equal(t, 3, grant.DurationMonths, "9450 resolves the 3-month plan by amount")
	assert.Equal(t, types.SourcePayment, grant.Source)
	assert.False(t, grant.Extend)

	assert.Equal(t, []int64{100}, gw.granted)
	require.Len(t, n.sent[100], 1)
	assert.Contains(t, n.sent[100][0], "https://t.me/+abc")
}

func TestReconcileDuplicateDeliveryIsIdempotent(t *testing.T) {
	ps := &fakePaymentStore{}
	gw := &fakeGateway{link: "https://t.me/+abc", members: map[int64]bool{100: true}}
	n := &fakeNotifier{}
	r := newTestReconciler(ps, gw, n)

	raw := RawNotification{OrderID: "artclub_100_1700000000", PaymentStatus: "success", Amount: 3500}

	res, err := r.Reconcile(context.Background(), Normalize(raw))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)

	res, err = r.Reconcile(context.Background(), Normalize(raw))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, res.Outcome)
	assert.Len(t, ps.settledGrants, 1, "no second subscription row")
	assert.Equal(t, []int64{100}, gw.granted, "member already in the channel gets no new invite")
}

func TestReconcileDuplicateReissuesInviteWhenAbsent(t *testing.T) {
	ps := &fakePaymentStore{}
	gw := &fakeGateway{link: "https://t.me/+abc", members: map[int64]bool{}}
	n := &fakeNotifier{}
	r := newTestReconciler(ps, gw, n)

	raw := RawNotification{OrderID: "artclub_100_1700000000", PaymentStatus: "success", Amount: 3500}

	_, err := r.Reconcile(context.Background(), Normalize(raw))
	require.NoError(t, err)

	res, err := r.Reconcile(context.Background(), Normalize(raw))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, res.Outcome)
	// First invite at settlement, second reissued because the user never
	// joined.
	assert.Equal(t, []int64{100, 100}, gw.granted)
}

func TestReconcileNonSuccessIsIgnored(t *testing.T) {
	ps := &fakePaymentStore{}
	r := newTestReconciler(ps, &fakeGateway{}, &fakeNotifier{})

	res, err := r.Reconcile(context.Background(), Normalize(RawNotification{
		OrderID:       "artclub_100_1700000000",
		PaymentStatus: "pending",
		Amount:        3500,
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotSuccessful, res.Outcome)
	assert.Empty(t, ps.settledGrants)
}

func TestReconcileIdentityUnresolvedAlertsAndWritesNothing(t *testing.T) {
	ps := &fakePaymentStore{}
	n := &fakeNotifier{}
	r := newTestReconciler(ps, &fakeGateway{}, n)

	res, err := r.Reconcile(context.Background(), Normalize(RawNotification{
		OrderID:       "foreign-order",
		PaymentStatus: "success",
		Amount:        3500,
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIdentityUnresolved, res.Outcome)
	assert.Empty(t, ps.settledGrants)
	assert.Empty(t, ps.payments)
	require.Len(t, n.alerts, 1)
	assert.Contains(t, n.alerts[0], "foreign-order")
}

func TestReconcileUnknownExplicitPlanRejected(t *testing.T) {
	ps := &fakePaymentStore{}
	r := newTestReconciler(ps, &fakeGateway{}, &fakeNotifier{})

	res, err := r.Reconcile(context.Background(), Normalize(RawNotification{
		OrderID:          "artclub_100_1700000000",
		PaymentStatus:    "success",
		Amount:           3500,
		SubscriptionPlan: "lifetime",
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownPlan, res.Outcome)
	assert.Empty(t, ps.settledGrants)
}

func TestReconcileUnmatchedAmountFallsBackToDefault(t *testing.T) {
	ps := &fakePaymentStore{}
	r := newTestReconciler(ps, &fakeGateway{}, &fakeNotifier{})

	res, err := r.Reconcile(context.Background(), Normalize(RawNotification{
		OrderID:       "artclub_100_1700000000",
		PaymentStatus: "success",
		Amount:        1234,
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	require.Len(t, ps.settledGrants, 1)
	assert.Equal(t, 1, ps.settledGrants[0].DurationMonths)
}

func TestReconcileAutopaymentExtends(t *testing.T) {
	ps := &fakePaymentStore{}
	gw := &fakeGateway{link: "https://t.me/+abc", members: map[int64]bool{100: true}}
	r := newTestReconciler(ps, gw, &fakeNotifier{})

	res, err := r.Reconcile(context.Background(), Normalize(RawNotification{
		OrderID:       "artclub_100_1700000099",
		PaymentStatus: "success",
		PaymentType:   "autopayment",
		Amount:        3500,
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	require.Len(t, ps.settledGrants, 1)
	assert.True(t, ps.settledGrants[0].Extend)
	assert.Equal(t, types.SourceAutopayment, ps.settledGrants[0].Source)
	assert.Empty(t, gw.granted, "existing member needs no invite on renewal")
}

func TestReconcileGiftCreatesSingleUseFreeCode(t *testing.T) {
	ps := &fakePaymentStore{}
	n := &fakeNotifier{}
	r := newTestReconciler(ps, &fakeGateway{}, n)

	res, err := r.Reconcile(context.Background(), Normalize(RawNotification{
		OrderID:          "gift_100_1700000000",
		PaymentStatus:    "success",
		Amount:           9450,
		SubscriptionPlan: "gift_3_months",
		GiftFor:          "@friend",
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)

	assert.Empty(t, ps.settledGrants, "purchaser gets no subscription")
	require.Len(t, ps.settledGifts, 1)
	gift := ps.settledGifts[0]
	assert.True(t, strings.HasPrefix(gift.Code, "GIFT_"))
	assert.Equal(t, types.DiscountFree, gift.DiscountType)
	assert.Equal(t, 3, gift.DurationMonths)
	require.NotNil(t, gift.MaxUses)
	assert.Equal(t, 1, *gift.MaxUses)
	assert.True(t, gift.IsGift)
	assert.Equal(t, "friend", gift.ForUsername)
	assert.Equal(t, int64(100), gift.CreatedBy)

	require.Len(t, n.sent[100], 1)
	assert.Contains(t, n.sent[100][0], gift.Code)
}

func TestReconcileStoreFailurePropagates(t *testing.T) {
	ps := &fakePaymentStore{settleErr: errors.New("connection reset")}
	r := newTestReconciler(ps, &fakeGateway{}, &fakeNotifier{})

	_, err := r.Reconcile(context.Background(), Normalize(RawNotification{
		OrderID:       "artclub_100_1700000000",
		PaymentStatus: "success",
		Amount:        3500,
	}))
	require.Error(t, err)
}

func TestReconcileInviteFailureDoesNotUndoSettlement(t *testing.T) {
	ps := &fakePaymentStore{}
	gw := &fakeGateway{grantErr: errors.New("chat not found")}
	n := &fakeNotifier{}
	r := newTestReconciler(ps, gw, n)

	res, err := r.Reconcile(context.Background(), Normalize(RawNotification{
		OrderID:       "artclub_100_1700000000",
		PaymentStatus: "success",
		Amount:        3500,
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Len(t, ps.settledGrants, 1)
	require.Len(t, n.alerts, 1)
	require.Len(t, n.sent[100], 1, "user still told the payment went through")
}
