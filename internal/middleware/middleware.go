package middleware

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/artishok-center/artclub-bot/internal/contextkeys"
	"github.com/artishok-center/artclub-bot/internal/messages"
	"github.com/artishok-center/artclub-bot/types"
)

type Middlewares struct {
	users types.UserStore
	log   zerolog.Logger
}

func New(users types.UserStore, log zerolog.Logger) *Middlewares {
	return &Middlewares{
		users: users,
		log:   log.With().Str("component", "middleware").Logger(),
	}
}

// UpsertUserMiddleware registers or refreshes the sender in the ledger and
// puts the current user row on the context. Updates without a sender are
// dropped here.
func (m *Middlewares) UpsertUserMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		from := senderFromUpdate(update)
		if from == nil || from.ID == 0 {
			return
		}

		if err := m.users.UpsertUser(ctx, types.User{
			ID:        from.ID,
			Username:  from.Username,
			FirstName: from.FirstName,
			LastName:  from.LastName,
		}); err != nil {
			m.log.Error().Err(err).Int64("user_id", from.ID).Msg("user upsert failed")
			if chatID := chatIDFromUpdate(update); chatID != 0 {
				b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID:    chatID,
					Text:      messages.ErrorDefault(),
					ParseMode: messages.ParseModeHTML,
				})
			}
			return
		}

		user, err := m.users.GetUser(ctx, from.ID)
		if err != nil || user == nil {
			m.log.Error().Err(err).Int64("user_id", from.ID).Msg("user lookup after upsert failed")
			return
		}

		next(contextkeys.WithUser(ctx, user), b, update)
	}
}

// AnalyzeMessageMiddleware tags the update with its coarse type so the main
// handler can route without re-inspecting the payload.
func (m *Middlewares) AnalyzeMessageMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		switch {
		case update.CallbackQuery != nil && update.CallbackQuery.Data != "":
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeClickButton)
			ctx = contextkeys.WithCallbackData(ctx, update.CallbackQuery.Data)
		case update.Message != nil && strings.HasPrefix(update.Message.Text, "/"):
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeCommand)
		case update.Message != nil && update.Message.Text != "":
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeText)
		default:
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeUnknown)
		}
		next(ctx, b, update)
	}
}

func senderFromUpdate(update *models.Update) *models.User {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From
	case update.CallbackQuery != nil:
		return &update.CallbackQuery.From
	default:
		return nil
	}
}

func chatIDFromUpdate(update *models.Update) int64 {
	if update.Message != nil {
		return update.Message.Chat.ID
	}
	if update.CallbackQuery != nil {
		if update.CallbackQuery.Message.Message != nil {
			return update.CallbackQuery.Message.Message.Chat.ID
		}
		if update.CallbackQuery.Message.InaccessibleMessage != nil {
			return update.CallbackQuery.Message.InaccessibleMessage.Chat.ID
		}
	}
	return 0
}
