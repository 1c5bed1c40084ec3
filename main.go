package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/artishok-center/artclub-bot/internal/access"
	"github.com/artishok-center/artclub-bot/internal/config"
	"github.com/artishok-center/artclub-bot/internal/handlers"
	"github.com/artishok-center/artclub-bot/internal/middleware"
	"github.com/artishok-center/artclub-bot/internal/notify"
	"github.com/artishok-center/artclub-bot/internal/promo"
	"github.com/artishok-center/artclub-bot/internal/reconcile"
	"github.com/artishok-center/artclub-bot/internal/sweeper"
	"github.com/artishok-center/artclub-bot/internal/webhook"
	"github.com/artishok-center/artclub-bot/store"
)

func main() {
	_ = godotenv.Load("config.env")

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rdb, err := store.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "artclub_bot")
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect failed")
	}
	defer rdb.Close()

	dialogStore := store.NewRedisDialogStore(rdb, cfg.DialogTTLHours)

	pgStore, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pgStore.Close()

	httpClient := &http.Client{
		Timeout: 2 * time.Minute,
	}
	pollTimeout := 50 * time.Second

	b, err := bot.New(
		cfg.BotToken,
		bot.WithHTTPClient(pollTimeout, httpClient),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("bot create failed")
	}

	gateway := access.NewGateway(b, cfg.MainChannelID, log)
	notifier := notify.NewTelegramNotifier(b, cfg.AdminIDs, log)
	engine := promo.NewEngine(pgStore, gateway, notifier, log)

	reconciler := reconcile.NewReconciler(pgStore, gateway, notifier, cfg.Plans, log)
	srv := webhook.NewServer(cfg.WebhookAddr, reconciler, cfg.ProdamusSecret, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("webhook server failed")
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	sw := sweeper.New(pgStore, gateway, notifier, notifier, sweeper.Config{
		GraceDays:    cfg.GraceDays,
		ReminderDays: cfg.ReminderDays,
		RevokeHour:   cfg.RevokeHourUTC,
		ReminderHour: cfg.ReminderHourUTC,
	}, log)
	sw.Start()
	defer sw.Stop()

	h := handlers.NewHandlers(pgStore, pgStore, pgStore, pgStore, dialogStore, engine, cfg, log)
	middlewares := middleware.New(pgStore, log)

	handlerChain := middlewares.UpsertUserMiddleware(
		middlewares.AnalyzeMessageMiddleware(
			h.MainHandler,
		),
	)

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, handlerChain)

	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, handlerChain)

	log.Info().Msg("bot started")
	b.Start(ctx)
}
