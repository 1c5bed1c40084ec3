package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/artishok-center/artclub-bot/internal/reconcile"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Server receives payment gateway callbacks and feeds them to the
// reconciler. It acknowledges business rejections with 2xx so the gateway
// stops retrying; only a failed ledger write earns a 5xx retry.
type Server struct {
	reconciler *reconcile.Reconciler
	secret     string
	log        zerolog.Logger
	http       *http.Server
}

func NewServer(addr string, reconciler *reconcile.Reconciler, secret string, log zerolog.Logger) *Server {
	s := &Server{
		reconciler: reconciler,
		secret:     secret,
		log:        log.With().Str("component", "webhook").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/webhook/prodamus", s.handleProdamus)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("webhook server listening")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"service": "artclub-bot", "status": "running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleProdamus(w http.ResponseWriter, r *http.Request) {
	raw, sign, err := parseNotification(r)
	if err != nil {
		// Acknowledge: a body that does not parse will never parse, so a
		// retry cannot help. Nothing was mutated.
		s.log.Warn().Err(err).Msg("unparseable notification body")
		writeResult(w, http.StatusOK, "error", "", "invalid request body")
		return
	}

	if s.secret != "" && !s.verifySignature(raw, sign) {
		s.log.Warn().Str("order_id", raw.OrderID).Msg("signature mismatch")
		writeResult(w, http.StatusForbidden, "error", raw.OrderID, "invalid signature")
		return
	}

	in := reconcile.Normalize(raw)
	res, err := s.reconciler.Reconcile(r.Context(), in)
	if err != nil {
		s.log.Error().Err(err).Str("order_id", in.OrderID).Msg("reconciliation failed")
		writeResult(w, http.StatusInternalServerError, "error", in.OrderID, "internal error")
		return
	}

	switch res.Outcome {
	case reconcile.OutcomeProcessed:
		writeResult(w, http.StatusOK, "success", res.OrderID, "payment processed")
	case reconcile.OutcomeAlreadyProcessed:
		writeResult(w, http.StatusOK, "success", res.OrderID, "already processed")
	case reconcile.OutcomeNotSuccessful:
		writeResult(w, http.StatusOK, "ignored", res.OrderID, "payment not successful")
	case reconcile.OutcomeIdentityUnresolved:
		writeResult(w, http.StatusOK, "warning", res.OrderID, "user not identified")
	case reconcile.OutcomeUnknownPlan:
		writeResult(w, http.StatusBadRequest, "error", res.OrderID, "unknown subscription plan")
	default:
		writeResult(w, http.StatusOK, "success", res.OrderID, string(res.Outcome))
	}
}

// verifySignature checks the HMAC-MD5 of order_id and amount against the
// sign field. Legacy scheme kept for gateway compatibility.
func (s *Server) verifySignature(raw reconcile.RawNotification, sign string) bool {
	if sign == "" {
		return false
	}
	mac := hmac.New(md5.New, []byte(s.secret))
	fmt.Fprintf(mac, "%s%s", raw.OrderID, formatAmount(raw.Amount))
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(sign)), []byte(want))
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

// parseNotification accepts both body shapes the gateway sends: classic
// form-encoded callbacks and the newer JSON variant.
func parseNotification(r *http.Request) (reconcile.RawNotification, string, error) {
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") {
		return parseJSONNotification(r)
	}
	return parseFormNotification(r)
}

func parseFormNotification(r *http.Request) (reconcile.RawNotification, string, error) {
	if err := r.ParseForm(); err != nil {
		return reconcile.RawNotification{}, "", err
	}
	f := r.PostForm

	raw := reconcile.RawNotification{
		OrderID:          f.Get("order_id"),
		PaymentStatus:    f.Get("payment_status"),
		PaymentType:      f.Get("payment_type"),
		Amount:           parseAmount(f.Get("sum")),
		Currency:         f.Get("currency"),
		UserID:           f.Get("user_id"),
		CustomerExtra:    f.Get("customer_extra"),
		ParamUser:        f.Get("_param_user"),
		SubscriptionPlan: f.Get("subscription_plan"),
		GiftFor:          f.Get("gift_for"),
	}

	// Nested subscription metadata arrives as subscription[key] form keys.
	for key, vals := range f {
		if !strings.HasPrefix(key, "subscription[") || len(vals) == 0 {
			continue
		}
		if raw.Subscription == nil {
			raw.Subscription = make(map[string]string)
		}
		inner := strings.TrimSuffix(strings.TrimPrefix(key, "subscription["), "]")
		raw.Subscription[inner] = vals[0]
	}
	return raw, f.Get("sign"), nil
}

// flexString decodes both JSON strings and bare numbers; the gateway is not
// consistent about which it sends.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type jsonNotification struct {
	OrderID          string            `json:"order_id"`
	PaymentStatus    string            `json:"payment_status"`
	PaymentType      string            `json:"payment_type"`
	Sum              flexString        `json:"sum"`
	Currency         string            `json:"currency"`
	UserID           flexString        `json:"user_id"`
	CustomerExtra    string            `json:"customer_extra"`
	ParamUser        string            `json:"_param_user"`
	SubscriptionPlan string            `json:"subscription_plan"`
	GiftFor          string            `json:"gift_for"`
	Subscription     map[string]string `json:"subscription"`
	Sign             string            `json:"sign"`
}

func parseJSONNotification(r *http.Request) (reconcile.RawNotification, string, error) {
	var body jsonNotification
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return reconcile.RawNotification{}, "", err
	}
	raw := reconcile.RawNotification{
		OrderID:          body.OrderID,
		PaymentStatus:    body.PaymentStatus,
		PaymentType:      body.PaymentType,
		Amount:           parseAmount(string(body.Sum)),
		Currency:         body.Currency,
		UserID:           string(body.UserID),
		CustomerExtra:    body.CustomerExtra,
		ParamUser:        body.ParamUser,
		SubscriptionPlan: body.SubscriptionPlan,
		GiftFor:          body.GiftFor,
		Subscription:     body.Subscription,
	}
	return raw, body.Sign, nil
}

func parseAmount(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return n
}

type result struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id,omitempty"`
	Message string `json:"message"`
}

func writeResult(w http.ResponseWriter, code int, status, orderID, msg string) {
	writeJSON(w, code, result{Status: status, OrderID: orderID, Message: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
