// Package startup prepares the gate when the session becomes ready:
// it checks the registry, acquires the first token, resolves the roles
// and posts the gating notice.
package startup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/MahdiBaghbani/gatekeeper/internal/components/discord"
	"github.com/MahdiBaghbani/gatekeeper/internal/components/gate"
	"github.com/MahdiBaghbani/gatekeeper/internal/components/gate/promotion"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/appctx"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/logutil"
)

var (
	ErrRegistryUnreachable = errors.New("registry unreachable")
	ErrGuildNotFound       = errors.New("guild not found")
	ErrRoleNotFound        = errors.New("role not found")
)

// Prober checks registry liveness. *registry.Client implements it.
type Prober interface {
	Ping(ctx context.Context) error
}

// TokenAcquirer gets the first registry token. *token.Manager implements it.
type TokenAcquirer interface {
	Acquire(ctx context.Context) error
}

// Guild is the messaging surface used at startup. *discord.Session implements it.
type Guild interface {
	GuildRoles(ctx context.Context, guildID string) ([]discord.Role, error)
	SendMessage(ctx context.Context, channelID, content string) (string, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
}

// Config holds the deployment constants used at startup.
type Config struct {
	GuildID           string
	WelcomeChannelID  string
	ElevatedPattern   string
	RestrictedPattern string
	NoticeText        string
	AckEmoji          string
}

// Sequencer runs the startup sequence.
type Sequencer struct {
	cfg      Config
	registry Prober
	tokens   TokenAcquirer
	guild    Guild
	notice   *gate.Notice
	roles    *promotion.Roles
	logger   *slog.Logger
}

// New creates a Sequencer that stores its results in notice and roles.
func New(cfg Config, registry Prober, tokens TokenAcquirer, guild Guild, notice *gate.Notice, roles *promotion.Roles, logger *slog.Logger) *Sequencer {
	return &Sequencer{
		cfg:      cfg,
		registry: registry,
		tokens:   tokens,
		guild:    guild,
		notice:   notice,
		roles:    roles,
		logger:   logutil.NoopIfNil(logger),
	}
}

// Run executes the sequence. Any error is fatal for the process; nothing
// is posted when the registry, guild or roles checks fail.
func (s *Sequencer) Run(ctx context.Context, ready discord.Ready) error {
	logger := appctx.GetLogger(ctx, s.logger).With("guild_id", s.cfg.GuildID)
	logger.Info("starting up")

	if err := s.registry.Ping(ctx); err != nil {
		return fmt.Errorf("%w: liveness probe: %v", ErrRegistryUnreachable, err)
	}
	if err := s.tokens.Acquire(ctx); err != nil {
		return fmt.Errorf("%w: token acquisition: %v", ErrRegistryUnreachable, err)
	}

	if !slices.Contains(ready.Guilds, s.cfg.GuildID) {
		return fmt.Errorf("%w: %s is not among the %d joined guilds", ErrGuildNotFound, s.cfg.GuildID, len(ready.Guilds))
	}

	guildRoles, err := s.guild.GuildRoles(ctx, s.cfg.GuildID)
	if err != nil {
		return fmt.Errorf("fetch roles: %w", err)
	}
	handles, err := ResolveRoles(guildRoles, s.cfg.ElevatedPattern, s.cfg.RestrictedPattern, logger)
	if err != nil {
		return err
	}
	s.roles.Set(handles)
	logger.Info("resolved roles",
		"elevated_role", handles.Elevated.Name,
		"restricted_role", handles.Restricted.Name,
	)

	messageID, err := s.guild.SendMessage(ctx, s.cfg.WelcomeChannelID, s.cfg.NoticeText)
	if err != nil {
		return fmt.Errorf("post gating notice: %w", err)
	}
	if err := s.guild.AddReaction(ctx, s.cfg.WelcomeChannelID, messageID, s.cfg.AckEmoji); err != nil {
		// Members can still add the reaction themselves.
		logger.Warn("seed reaction failed", "message_id", messageID, "error", err)
	}
	s.notice.Set(gate.NoticeHandle{ChannelID: s.cfg.WelcomeChannelID, MessageID: messageID})

	logger.Info("ready to go", "channel_id", s.cfg.WelcomeChannelID, "message_id", messageID)
	return nil
}

// ResolveRoles picks the elevated and restricted roles by case-insensitive
// substring match. A role matching the elevated pattern is not considered
// for the restricted one. The first match wins; extra matches are logged.
func ResolveRoles(roles []discord.Role, elevatedPattern, restrictedPattern string, logger *slog.Logger) (promotion.RoleHandles, error) {
	logger = logutil.NoopIfNil(logger)
	elevatedPattern = strings.ToLower(elevatedPattern)
	restrictedPattern = strings.ToLower(restrictedPattern)

	var elevated, restricted []discord.Role
	for _, r := range roles {
		name := strings.ToLower(r.Name)
		switch {
		case strings.Contains(name, elevatedPattern):
			elevated = append(elevated, r)
		case strings.Contains(name, restrictedPattern):
			restricted = append(restricted, r)
		}
	}

	if len(elevated) == 0 {
		return promotion.RoleHandles{}, fmt.Errorf("%w: no role matches %q", ErrRoleNotFound, elevatedPattern)
	}
	if len(restricted) == 0 {
		return promotion.RoleHandles{}, fmt.Errorf("%w: no role matches %q", ErrRoleNotFound, restrictedPattern)
	}
	warnAmbiguous(logger, elevatedPattern, elevated)
	warnAmbiguous(logger, restrictedPattern, restricted)

	return promotion.RoleHandles{Elevated: elevated[0], Restricted: restricted[0]}, nil
}

func warnAmbiguous(logger *slog.Logger, pattern string, matches []discord.Role) {
	if len(matches) < 2 {
		return
	}
	names := make([]string, len(matches))
	for i, r := range matches {
		names[i] = r.Name
	}
	logger.Warn("role pattern is ambiguous, using first match",
		"pattern", pattern,
		"matches", names,
		"chosen", matches[0].Name,
	)
}
