package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/MahdiBaghbani/gatekeeper/internal/platform/logutil"
)

// Intents the gate needs: guild and member data, guild messages with
// content for commands, and reactions.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsMessageContent

// restAPI is the part of *discordgo.Session used for REST calls.
type restAPI interface {
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberNickname(guildID, userID, nickname string, options ...discordgo.RequestOption) error
}

// Session wraps a discordgo session.
type Session struct {
	dg     *discordgo.Session
	api    restAPI
	logger *slog.Logger
}

// NewSession creates a bot session for token. The gateway is not opened
// until Open.
func NewSession(token string, logger *slog.Logger) (*Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = Intents
	return &Session{dg: dg, api: dg, logger: logutil.NoopIfNil(logger)}, nil
}

// Open registers the gateway handlers that feed d and connects.
func (s *Session) Open(d *Dispatcher) error {
	s.dg.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		ev, err := FromReady(r)
		s.enqueue(d, ev, err)
	})
	s.dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		ev, err := FromMessageCreate(m)
		s.enqueue(d, ev, err)
	})
	s.dg.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		ev, err := FromReactionAdd(r)
		s.enqueue(d, ev, err)
	})

	if err := s.dg.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

func (s *Session) enqueue(d *Dispatcher, ev Event, err error) {
	if err != nil {
		s.logger.Warn("dropping malformed gateway event", "error", err)
		return
	}
	d.Enqueue(ev)
}

// Close disconnects from the gateway.
func (s *Session) Close() error {
	return s.dg.Close()
}

// GuildRoles lists the roles of a guild.
func (s *Session) GuildRoles(ctx context.Context, guildID string) ([]Role, error) {
	roles, err := s.api.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list roles of guild %s: %w", guildID, err)
	}
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if r == nil {
			continue
		}
		out = append(out, Role{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

// SendMessage posts content to a channel and returns the new message id.
func (s *Session) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	msg, err := s.api.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send message to channel %s: %w", channelID, err)
	}
	return msg.ID, nil
}

// AddReaction reacts to a message as the bot.
func (s *Session) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	if err := s.api.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("add reaction to message %s: %w", messageID, err)
	}
	return nil
}

// AddRole grants a role to a guild member.
func (s *Session) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := s.api.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("grant role %s to %s: %w", roleID, userID, err)
	}
	return nil
}

// RemoveRole revokes a role from a guild member.
func (s *Session) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := s.api.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("revoke role %s from %s: %w", roleID, userID, err)
	}
	return nil
}

// SetNickname sets a member's guild display name.
func (s *Session) SetNickname(ctx context.Context, guildID, userID, nickname string) error {
	if err := s.api.GuildMemberNickname(guildID, userID, nickname, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("set nickname of %s: %w", userID, err)
	}
	return nil
}
