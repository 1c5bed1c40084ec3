package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/artishok-center/artclub-bot/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresStore is the ledger: users, subscription history, promocodes and
// payments. All cross-row mutations happen inside single transactions here;
// callers never compose their own.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ErrPromoExhausted is returned when the conditional used_count increment
// affects no rows: the quota is spent (or the code vanished mid-redemption).
var ErrPromoExhausted = errors.New("promocode quota exhausted")

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func buildPostgresDSNFromEnv() string {
	host := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(os.Getenv("POSTGRES_PORT"))
	if port == "" {
		port = "5432"
	}
	db := strings.TrimSpace(os.Getenv("POSTGRES_DB"))
	if db == "" {
		db = "artclub"
	}
	user := strings.TrimSpace(os.Getenv("POSTGRES_USER"))
	if user == "" {
		user = "artclub"
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", urlEscape(user), urlEscape(pass), host, port, db)
}

func urlEscape(s string) string {
	r := strings.NewReplacer(
		"%", "%25",
		":", "%3A",
		"/", "%2F",
		"@", "%40",
		"?", "%3F",
		"#", "%23",
		"[", "%5B",
		"]", "%5D",
	)
	return r.Replace(s)
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// ============ users ============

func (s *PostgresStore) UpsertUser(ctx context.Context, user types.User) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO users (id, username, first_name, last_name)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
  username = EXCLUDED.username,
  first_name = EXCLUDED.first_name,
  last_name = EXCLUDED.last_name,
  last_activity = NOW();
`, user.ID, strings.TrimSpace(user.Username), strings.TrimSpace(user.FirstName), strings.TrimSpace(user.LastName))
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	row := s.pool.QueryRow(ctx, `
SELECT id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
       is_subscribed, subscription_until, joined_at, last_activity
FROM users
WHERE id = $1
`, userID)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	row := s.pool.QueryRow(ctx, `
SELECT id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
       is_subscribed, subscription_until, joined_at, last_activity
FROM users
WHERE LOWER(username) = LOWER($1)
`, strings.TrimPrefix(strings.TrimSpace(username), "@"))
	return scanUser(row)
}

func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName,
		&u.IsSubscribed, &u.SubscriptionUntil, &u.JoinedAt, &u.LastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) SetSubscriptionStatus(ctx context.Context, userID int64, subscribed bool, until *time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
UPDATE users
SET is_subscribed = $2, subscription_until = $3
WHERE id = $1
`, userID, subscribed, until)
	return err
}

func (s *PostgresStore) ExpiredSubscribers(ctx context.Context, now time.Time) ([]*types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
       is_subscribed, subscription_until, joined_at, last_activity
FROM users
WHERE is_subscribed = TRUE AND subscription_until < $1
`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *PostgresStore) ActiveSubscribers(ctx context.Context) ([]*types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
       is_subscribed, subscription_until, joined_at, last_activity
FROM users
WHERE is_subscribed = TRUE
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func collectUsers(rows pgx.Rows) ([]*types.User, error) {
	users := make([]*types.User, 0)
	for rows.Next() {
		var u types.User
		if err := rows.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName,
			&u.IsSubscribed, &u.SubscriptionUntil, &u.JoinedAt, &u.LastActivity); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// ============ subscriptions ============

func (s *PostgresStore) GrantSubscription(ctx context.Context, grant types.SubscriptionGrant) (*types.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sub, err := s.grantTx(ctx, tx, grant)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return sub, nil
}

// grantTx applies a subscription grant inside the caller's transaction:
// history row insert plus the user flag/expiry mirror update.
func (s *PostgresStore) grantTx(ctx context.Context, tx pgx.Tx, grant types.SubscriptionGrant) (*types.Subscription, error) {
	now := time.Now().UTC()
	base := now

	// A payment can arrive for a user the bot has never talked to.
	_, err := tx.Exec(ctx, `
INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING
`, grant.UserID)
	if err != nil {
		return nil, err
	}

	if grant.Extend {
		var currentUntil *time.Time
		err := tx.QueryRow(ctx, `
SELECT subscription_until
FROM users
WHERE id = $1
FOR UPDATE
`, grant.UserID).Scan(&currentUntil)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		if currentUntil != nil && currentUntil.After(base) {
			base = *currentUntil
		}
	}

	expiresAt := types.ExpiryFrom(base, grant.DurationMonths)

	sub := &types.Subscription{
		UserID:         grant.UserID,
		DurationMonths: grant.DurationMonths,
		StartedAt:      now,
		ExpiresAt:      expiresAt,
		ActivatedBy:    grant.Source,
		Promocode:      grant.Promocode,
		IsActive:       true,
	}
	err = tx.QueryRow(ctx, `
INSERT INTO subscriptions (user_id, duration_months, started_at, expires_at, activated_by, promocode)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
RETURNING id
`, sub.UserID, sub.DurationMonths, sub.StartedAt, sub.ExpiresAt, string(sub.ActivatedBy), sub.Promocode).Scan(&sub.ID)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
UPDATE users
SET is_subscribed = TRUE, subscription_until = $2
WHERE id = $1
`, grant.UserID, expiresAt)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *PostgresStore) LatestSubscription(ctx context.Context, userID int64) (*types.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var sub types.Subscription
	var promocode *string
	err := s.pool.QueryRow(ctx, `
SELECT id, user_id, duration_months, started_at, expires_at, activated_by, promocode, is_active, cancelled_at
FROM subscriptions
WHERE user_id = $1
ORDER BY started_at DESC
LIMIT 1
`, userID).Scan(&sub.ID, &sub.UserID, &sub.DurationMonths, &sub.StartedAt, &sub.ExpiresAt,
		&sub.ActivatedBy, &promocode, &sub.IsActive, &sub.CancelledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if promocode != nil {
		sub.Promocode = *promocode
	}
	return &sub, nil
}

// ============ promocodes ============

func (s *PostgresStore) GetPromocode(ctx context.Context, code string) (*types.Promocode, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var p types.Promocode
	var forUsername *string
	err := s.pool.QueryRow(ctx, `
SELECT id, code, discount_type, discount_value, duration_months, max_uses, used_count,
       for_user_id, for_username, is_gift, valid_from, valid_until, is_active, created_at, created_by
FROM promocodes
WHERE code = $1
`, canonicalCode(code)).Scan(&p.ID, &p.Code, &p.DiscountType, &p.DiscountValue, &p.DurationMonths,
		&p.MaxUses, &p.UsedCount, &p.ForUserID, &forUsername, &p.IsGift,
		&p.ValidFrom, &p.ValidUntil, &p.IsActive, &p.CreatedAt, &p.CreatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if forUsername != nil {
		p.ForUsername = *forUsername
	}
	return &p, nil
}

func (s *PostgresStore) CreatePromocode(ctx context.Context, promo types.Promocode) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO promocodes (code, discount_type, discount_value, duration_months, max_uses,
                        for_user_id, for_username, is_gift, valid_until, created_by)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
`, canonicalCode(promo.Code), string(promo.DiscountType), promo.DiscountValue, promo.DurationMonths,
		promo.MaxUses, promo.ForUserID, promo.ForUsername, promo.IsGift, promo.ValidUntil, promo.CreatedBy)
	return err
}

func canonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *PostgresStore) RedeemFreeGrant(ctx context.Context, code string, userID int64, months int) (*types.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	code = canonicalCode(code)

	// Quota gate: a single conditional increment, never read-then-write.
	tag, err := tx.Exec(ctx, `
UPDATE promocodes
SET used_count = used_count + 1
WHERE code = $1
  AND is_active = TRUE
  AND (max_uses IS NULL OR used_count < max_uses)
`, code)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrPromoExhausted
	}

	sub, err := s.grantTx(ctx, tx, types.SubscriptionGrant{
		UserID:         userID,
		DurationMonths: months,
		Source:         types.SourcePromo,
		Promocode:      code,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return sub, nil
}

// ============ payments ============

func (s *PostgresStore) CreatePendingPayment(ctx context.Context, p types.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO payments (user_id, order_id, amount, currency, subscription_plan, duration_months, status)
VALUES ($1, $2, $3, $4, $5, $6, 'pending')
ON CONFLICT (order_id) DO NOTHING
`, p.UserID, strings.TrimSpace(p.OrderID), p.Amount, currencyOrDefault(p.Currency), p.Plan, p.DurationMonths)
	return err
}

func currencyOrDefault(currency string) string {
	currency = strings.TrimSpace(currency)
	if currency == "" {
		return "RUB"
	}
	return currency
}

func (s *PostgresStore) GetPayment(ctx context.Context, orderID string) (*types.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var p types.Payment
	err := s.pool.QueryRow(ctx, `
SELECT id, user_id, order_id, amount, currency, subscription_plan, duration_months, status, created_at, paid_at
FROM payments
WHERE order_id = $1
`, strings.TrimSpace(orderID)).Scan(&p.ID, &p.UserID, &p.OrderID, &p.Amount, &p.Currency,
		&p.Plan, &p.DurationMonths, &p.Status, &p.CreatedAt, &p.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// settlePaymentTx upserts the payment into success state. The order_id
// uniqueness constraint plus the status guard make this the idempotency gate:
// zero rows affected means the order was already settled.
func settlePaymentTx(ctx context.Context, tx pgx.Tx, p types.Payment) (bool, error) {
	tag, err := tx.Exec(ctx, `
INSERT INTO payments (user_id, order_id, amount, currency, subscription_plan, duration_months, status, paid_at)
VALUES ($1, $2, $3, $4, $5, $6, 'success', NOW())
ON CONFLICT (order_id) DO UPDATE SET
  status = 'success',
  paid_at = NOW(),
  amount = EXCLUDED.amount
WHERE payments.status <> 'success'
`, p.UserID, strings.TrimSpace(p.OrderID), p.Amount, currencyOrDefault(p.Currency), p.Plan, p.DurationMonths)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SettlePayment(ctx context.Context, p types.Payment, grant types.SubscriptionGrant) (*types.Subscription, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted, err := settlePaymentTx(ctx, tx, p)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		return nil, false, nil
	}

	sub, err := s.grantTx(ctx, tx, grant)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return sub, true, nil
}

func (s *PostgresStore) SettleGiftPayment(ctx context.Context, p types.Payment, gift types.Promocode) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted, err := settlePaymentTx(ctx, tx, p)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
INSERT INTO promocodes (code, discount_type, discount_value, duration_months, max_uses,
                        for_user_id, for_username, is_gift, valid_until, created_by)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
`, canonicalCode(gift.Code), string(gift.DiscountType), gift.DiscountValue, gift.DurationMonths,
		gift.MaxUses, gift.ForUserID, gift.ForUsername, gift.IsGift, gift.ValidUntil, gift.CreatedBy)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) Statistics(ctx context.Context) (types.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var st types.Stats
	err := s.pool.QueryRow(ctx, `
SELECT
  (SELECT COUNT(*) FROM users),
  (SELECT COUNT(*) FROM users WHERE is_subscribed = TRUE),
  COALESCE((SELECT SUM(amount) FROM payments WHERE status = 'success'), 0)
`).Scan(&st.TotalUsers, &st.ActiveSubscribers, &st.TotalRevenue)
	return st, err
}
