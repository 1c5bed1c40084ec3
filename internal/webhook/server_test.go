package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artishok-center/artclub-bot/internal/plans"
	"github.com/artishok-center/artclub-bot/internal/reconcile"
	"github.com/artishok-center/artclub-bot/types"
)

type fakePaymentStore struct {
	payments  map[string]*types.Payment
	settleErr error
	grants    int
}

func (f *fakePaymentStore) CreatePendingPayment(_ context.Context, p types.Payment) error {
	return nil
}

func (f *fakePaymentStore) GetPayment(_ context.Context, orderID string) (*types.Payment, error) {
	return f.payments[orderID], nil
}

func (f *fakePaymentStore) SettlePayment(_ context.Context, p types.Payment, grant types.SubscriptionGrant) (*types.Subscription, bool, error) {
	if f.settleErr != nil {
		return nil, false, f.settleErr
	}
	if f.payments == nil {
		f.payments = map[string]*types.Payment{}
	}
	p.Status = types.PaymentSuccess
	f.payments[p.OrderID] = &p
	f.grants++
	return &types.Subscription{
		UserID:         grant.UserID,
		DurationMonths: grant.DurationMonths,
		ExpiresAt:      types.ExpiryFrom(time.Now(), grant.DurationMonths),
		IsActive:       true,
	}, true, nil
}

func (f *fakePaymentStore) SettleGiftPayment(_ context.Context, p types.Payment, _ types.Promocode) (bool, error) {
	if f.payments == nil {
		f.payments = map[string]*types.Payment{}
	}
	p.Status = types.PaymentSuccess
	f.payments[p.OrderID] = &p
	return true, nil
}

func (f *fakePaymentStore) Statistics(_ context.Context) (types.Stats, error) {
	return types.Stats{}, nil
}

type fakeGateway struct{}

func (fakeGateway) Grant(_ context.Context, _ int64) (string, error) {
	return "https://t.me/+invite", nil
}
func (fakeGateway) Revoke(_ context.Context, _ int64) error          { return nil }
func (fakeGateway) IsMember(_ context.Context, _ int64) (bool, error) { return true, nil }

type fakeNotifier struct{}

func (fakeNotifier) Notify(_ context.Context, _ int64, _ string) error { return nil }
func (fakeNotifier) AlertAdmins(_ context.Context, _ string)           {}

func newTestServer(ps *fakePaymentStore, secret string) *Server {
	r := reconcile.NewReconciler(ps, fakeGateway{}, fakeNotifier{}, plans.FromEnv(), zerolog.Nop())
	return NewServer(":0", r, secret, zerolog.Nop())
}

func postForm(t *testing.T, s *Server, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/prodamus", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var res result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return res
}

func TestWebhookProcessesFormPayment(t *testing.T) {
	ps := &fakePaymentStore{}
	s := newTestServer(ps, "")

	rec := postForm(t, s, url.Values{
		"order_id":       {"artclub_100_1700000000"},
		"payment_status": {"success"},
		"sum":            {"3500.00"},
		"currency":       {"rub"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "artclub_100_1700000000", res.OrderID)
	assert.Equal(t, 1, ps.grants)
}

func TestWebhookProcessesJSONPayment(t *testing.T) {
	ps := &fakePaymentStore{}
	s := newTestServer(ps, "")

	body := `{"order_id":"artclub_100_1700000001","payment_status":"success","sum":"9450","currency":"rub"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/prodamus", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ps.grants)
}

func TestWebhookMalformedBodyIsAcknowledged(t *testing.T) {
	ps := &fakePaymentStore{}
	s := newTestServer(ps, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook/prodamus", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	// The gateway retries on hard errors; a body that cannot parse gets an
	// acknowledgment instead, with no ledger write.
	assert.Equal(t, http.StatusOK, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, "error", res.Status)
	assert.Equal(t, "invalid request body", res.Message)
	assert.Equal(t, 0, ps.grants)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	ps := &fakePaymentStore{}
	s := newTestServer(ps, "topsecret")

	rec := postForm(t, s, url.Values{
		"order_id":       {"artclub_100_1700000000"},
		"payment_status": {"success"},
		"sum":            {"3500.00"},
		"sign":           {"deadbeef"},
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, ps.grants)
}

func TestWebhookAcceptsValidSignature(t *testing.T) {
	ps := &fakePaymentStore{}
	s := newTestServer(ps, "topsecret")

	mac := hmac.New(md5.New, []byte("topsecret"))
	fmt.Fprintf(mac, "%s%s", "artclub_100_1700000000", "3500.00")
	sign := hex.EncodeToString(mac.Sum(nil))

	rec := postForm(t, s, url.Values{
		"order_id":       {"artclub_100_1700000000"},
		"payment_status": {"success"},
		"sum":            {"3500.00"},
		"sign":           {sign},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ps.grants)
}

func TestWebhookUnknownPlanIsBadRequest(t *testing.T) {
	ps := &fakePaymentStore{}
	s := newTestServer(ps, "")

	rec := postForm(t, s, url.Values{
		"order_id":          {"artclub_100_1700000000"},
		"payment_status":    {"success"},
		"sum":               {"3500.00"},
		"subscription_plan": {"lifetime"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, ps.grants)
}

func TestWebhookUnresolvedIdentityIsAcknowledged(t *testing.T) {
	ps := &fakePaymentStore{}
	s := newTestServer(ps, "")

	rec := postForm(t, s, url.Values{
		"order_id":       {"foreign-order"},
		"payment_status": {"success"},
		"sum":            {"3500.00"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, "warning", res.Status)
	assert.Equal(t, 0, ps.grants)
}

func TestWebhookStoreFailureIsRetryable(t *testing.T) {
	ps := &fakePaymentStore{settleErr: errors.New("connection refused")}
	s := newTestServer(ps, "")

	rec := postForm(t, s, url.Values{
		"order_id":       {"artclub_100_1700000000"},
		"payment_status": {"success"},
		"sum":            {"3500.00"},
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookNestedSubscriptionMetadata(t *testing.T) {
	ps := &fakePaymentStore{}
	s := newTestServer(ps, "")

	rec := postForm(t, s, url.Values{
		"order_id":                  {"artclub_100_1700000000"},
		"payment_status":            {"success"},
		"sum":                       {"3500.00"},
		"subscription[autopayment]": {"1"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ps.grants)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(&fakePaymentStore{}, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
