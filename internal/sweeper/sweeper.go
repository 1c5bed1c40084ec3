package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/artishok-center/artclub-bot/internal/messages"
	"github.com/artishok-center/artclub-bot/types"
	"github.com/rs/zerolog"
)

// ReminderSender delivers the renewal reminder with its action buttons.
type ReminderSender interface {
	SendRenewalReminder(ctx context.Context, userID int64, days int) error
}

// Config is the sweep policy. Hours are UTC.
type Config struct {
	GraceDays    int
	ReminderDays int
	RevokeHour   int
	ReminderHour int
}

// Sweeper runs two daily passes over the subscriber base: the revoke pass
// removes lapsed members past their grace window, the reminder pass warns
// active members ahead of their renewal charge.
type Sweeper struct {
	users     types.UserStore
	access    types.AccessGateway
	notifier  types.Notifier
	reminders ReminderSender
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func New(users types.UserStore, access types.AccessGateway, notifier types.Notifier, reminders ReminderSender, cfg Config, log zerolog.Logger) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		users:     users,
		access:    access,
		notifier:  notifier,
		reminders: reminders,
		cfg:       cfg,
		log:       log.With().Str("component", "sweeper").Logger(),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info().Int("revoke_hour_utc", s.cfg.RevokeHour).
		Int("reminder_hour_utc", s.cfg.ReminderHour).Msg("sweeper started")

	s.wg.Add(2)
	go s.runDaily(s.cfg.RevokeHour, "revoke", s.RunRevokePassOnce)
	go s.runDaily(s.cfg.ReminderHour, "reminder", s.RunReminderPassOnce)
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.log.Info().Msg("sweeper stopped")
}

func (s *Sweeper) runDaily(hour int, name string, pass func(context.Context) error) {
	defer s.wg.Done()

	for {
		wait := time.Until(nextFireUTC(s.now(), hour))
		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := pass(s.ctx); err != nil {
				s.log.Error().Err(err).Str("pass", name).Msg("sweep pass failed")
			}
		}
	}
}

// nextFireUTC returns the next occurrence of hour:00 UTC strictly after now.
func nextFireUTC(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// RunRevokePassOnce removes every subscriber whose expiry is at least
// GraceDays in the past: channel removal first, then the ledger flag flip,
// then a lapse notice. Failures are isolated per user; a user whose channel
// removal fails keeps the flag and is retried on the next pass.
func (s *Sweeper) RunRevokePassOnce(ctx context.Context) error {
	now := s.now()
	expired, err := s.users.ExpiredSubscribers(ctx, now)
	if err != nil {
		return err
	}

	revoked := 0
	for _, u := range expired {
		if u.SubscriptionUntil == nil {
			continue
		}
		daysOver := int(now.Sub(*u.SubscriptionUntil).Hours() / 24)
		if daysOver < s.cfg.GraceDays {
			s.log.Debug().Int64("user_id", u.ID).Int("days_over", daysOver).Msg("within grace window")
			continue
		}

		if err := s.access.Revoke(ctx, u.ID); err != nil {
			s.log.Error().Err(err).Int64("user_id", u.ID).Msg("channel removal failed")
			continue
		}
		if err := s.users.SetSubscriptionStatus(ctx, u.ID, false, nil); err != nil {
			s.log.Error().Err(err).Int64("user_id", u.ID).Msg("flag flip after removal failed")
			continue
		}
		if err := s.notifier.Notify(ctx, u.ID, messages.SubscriptionLapsed()); err != nil {
			s.log.Warn().Err(err).Int64("user_id", u.ID).Msg("lapse notice failed")
		}
		revoked++
	}

	s.log.Info().Int("expired", len(expired)).Int("revoked", revoked).Msg("revoke pass done")
	return nil
}

// RunReminderPassOnce warns every active subscriber whose expiry is exactly
// ReminderDays away. Exact-day match, so each user hears about an upcoming
// charge once.
func (s *Sweeper) RunReminderPassOnce(ctx context.Context) error {
	now := s.now()
	active, err := s.users.ActiveSubscribers(ctx)
	if err != nil {
		return err
	}

	reminded := 0
	for _, u := range active {
		if u.SubscriptionUntil == nil {
			continue
		}
		daysLeft := int(u.SubscriptionUntil.Sub(now).Hours() / 24)
		if daysLeft != s.cfg.ReminderDays {
			continue
		}
		if err := s.reminders.SendRenewalReminder(ctx, u.ID, daysLeft); err != nil {
			s.log.Warn().Err(err).Int64("user_id", u.ID).Msg("renewal reminder failed")
			continue
		}
		reminded++
	}

	s.log.Info().Int("active", len(active)).Int("reminded", reminded).Msg("reminder pass done")
	return nil
}
