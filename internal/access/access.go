package access

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
)

const callTimeout = 10 * time.Second

// Gateway manages membership of the gated club channel through the Bot API.
type Gateway struct {
	bot       *bot.Bot
	channelID int64
	log       zerolog.Logger
}

func NewGateway(b *bot.Bot, channelID int64, log zerolog.Logger) *Gateway {
	return &Gateway{
		bot:       b,
		channelID: channelID,
		log:       log.With().Str("component", "access").Logger(),
	}
}

// Grant creates a single-use invite link valid for 24 hours.
func (g *Gateway) Grant(ctx context.Context, userID int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	link, err := g.bot.CreateChatInviteLink(ctx, &bot.CreateChatInviteLinkParams{
		ChatID:      g.channelID,
		MemberLimit: 1,
		ExpireDate:  int(time.Now().Add(24 * time.Hour).Unix()),
	})
	if err != nil {
		return "", fmt.Errorf("create invite link for user %d: %w", userID, err)
	}
	g.log.Info().Int64("user_id", userID).Msg("invite link created")
	return link.InviteLink, nil
}

// Revoke removes the user from the channel: ban followed by an immediate
// unban, so the user is removed but may rejoin with a future invite.
func (g *Gateway) Revoke(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	_, err := g.bot.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID: g.channelID,
		UserID: userID,
	})
	if err != nil {
		return fmt.Errorf("ban user %d: %w", userID, err)
	}
	_, err = g.bot.UnbanChatMember(ctx, &bot.UnbanChatMemberParams{
		ChatID:       g.channelID,
		UserID:       userID,
		OnlyIfBanned: true,
	})
	if err != nil {
		return fmt.Errorf("unban user %d: %w", userID, err)
	}
	g.log.Info().Int64("user_id", userID).Msg("removed from channel")
	return nil
}

func (g *Gateway) IsMember(ctx context.Context, userID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	member, err := g.bot.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: g.channelID,
		UserID: userID,
	})
	if err != nil {
		return false, err
	}
	switch member.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true, nil
	default:
		return false, nil
	}
}
