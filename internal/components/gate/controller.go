// Package gate turns gateway events into gate actions: startup on
// session ready, commands on messages, and promotion on acknowledgment
// reactions to the gating notice.
package gate

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MahdiBaghbani/gatekeeper/internal/components/discord"
	"github.com/MahdiBaghbani/gatekeeper/internal/components/gate/promotion"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/appctx"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/cache"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/logutil"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/metrics"
)

// Promoter runs the promotion workflow. *promotion.Workflow implements it.
type Promoter interface {
	Promote(ctx context.Context, member promotion.Member, externalID string) (bool, error)
}

// Starter runs the startup sequence. *startup.Sequencer implements it.
type Starter interface {
	Run(ctx context.Context, ready discord.Ready) error
}

// CommandRouter answers text commands. *commands.Router implements it.
type CommandRouter interface {
	Route(ctx context.Context, msg discord.MessageCreated) bool
}

// Config holds the controller's deployment constants.
type Config struct {
	// GuildID is the guild whose members are promoted. When empty the
	// guild of the reaction is used.
	GuildID string
	// SelfID is the bot's own user id. When empty it is taken from Ready.
	SelfID string
	// AckEmoji is the reaction that counts as acknowledgment.
	AckEmoji string
	// DebounceWindow drops repeat acknowledgments from the same user
	// inside the window. Zero disables it.
	DebounceWindow time.Duration
}

// Controller dispatches events. Handle must not be called concurrently.
type Controller struct {
	cfg      Config
	notice   *Notice
	promoter Promoter
	debounce cache.Counter
	starter  Starter
	onFatal  func(error)
	commands CommandRouter
	logger   *slog.Logger
	metrics  *metrics.Metrics

	selfID  atomic.Pointer[string]
	started atomic.Bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithDebounce backs the debounce window with c.
func WithDebounce(c cache.Counter) Option {
	return func(ctl *Controller) { ctl.debounce = c }
}

// WithStartup runs s on the first Ready event. A startup error is passed
// to onFatal.
func WithStartup(s Starter, onFatal func(error)) Option {
	return func(ctl *Controller) {
		ctl.starter = s
		ctl.onFatal = onFatal
	}
}

// WithCommands routes MessageCreated events to r.
func WithCommands(r CommandRouter) Option {
	return func(ctl *Controller) { ctl.commands = r }
}

// WithLogger sets the logger used when the context carries none.
func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

// WithMetrics counts reactions by filter result.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ctl *Controller) { ctl.metrics = m }
}

// NewController creates a Controller.
func NewController(cfg Config, notice *Notice, promoter Promoter, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		notice:   notice,
		promoter: promoter,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = logutil.NoopIfNil(c.logger)
	if cfg.SelfID != "" {
		id := cfg.SelfID
		c.selfID.Store(&id)
	}
	return c
}

// SelfID returns the bot's user id, "" before it is known.
func (c *Controller) SelfID() string {
	if p := c.selfID.Load(); p != nil {
		return *p
	}
	return ""
}

// Handle dispatches one event.
func (c *Controller) Handle(ctx context.Context, ev discord.Event) {
	switch e := ev.(type) {
	case discord.Ready:
		c.onReady(ctx, e)
	case discord.MessageCreated:
		if c.commands != nil {
			c.commands.Route(ctx, e)
		}
	case discord.ReactionAdded:
		c.OnAcknowledgment(ctx, e)
	default:
		appctx.GetLogger(ctx, c.logger).Debug("ignoring unknown event", "kind", ev.Kind())
	}
}

func (c *Controller) onReady(ctx context.Context, ready discord.Ready) {
	logger := appctx.GetLogger(ctx, c.logger)

	if c.SelfID() == "" {
		id := ready.SelfID
		c.selfID.Store(&id)
	}

	if c.starter == nil {
		return
	}
	// Ready is re-sent after a full reconnect; the notice from the first
	// session stays armed.
	if !c.started.CompareAndSwap(false, true) {
		logger.Info("session re-established, gating notice already posted")
		return
	}
	if err := c.starter.Run(ctx, ready); err != nil {
		logger.Error("startup failed", "error", err)
		if c.onFatal != nil {
			c.onFatal(err)
		}
	}
}

// OnAcknowledgment promotes the reactor when the reaction is the
// acknowledgment emoji on the gating notice. The outcome is logged only.
func (c *Controller) OnAcknowledgment(ctx context.Context, ev discord.ReactionAdded) {
	logger := appctx.GetLogger(ctx, c.logger).With("external_id", ev.UserID, "message_id", ev.MessageID)

	if self := c.SelfID(); self != "" && ev.UserID == self {
		c.metrics.ObserveAck("self")
		return
	}
	handle, ok := c.notice.Get()
	if !ok || ev.MessageID != handle.MessageID {
		c.metrics.ObserveAck("wrong_message")
		return
	}
	if ev.Emoji != c.cfg.AckEmoji {
		c.metrics.ObserveAck("wrong_emoji")
		logger.Debug("ignoring non-acknowledgment reaction", "emoji", ev.Emoji)
		return
	}

	key := "ack:" + ev.UserID
	if c.debounced(ctx, logger, key) {
		c.metrics.ObserveAck("debounced")
		logger.Debug("acknowledgment debounced", "window", c.cfg.DebounceWindow.String())
		return
	}
	c.metrics.ObserveAck("accepted")

	guildID := c.cfg.GuildID
	if guildID == "" {
		guildID = ev.GuildID
	}
	member := promotion.Member{GuildID: guildID, UserID: ev.UserID}
	promoted, err := c.promoter.Promote(ctx, member, ev.UserID)
	switch {
	case err != nil:
		logger.Warn("acknowledgment handled with errors", "promoted", promoted, "error", err)
	default:
		logger.Info("acknowledgment handled", "promoted", promoted)
	}

	// Let a member retry right away when nothing was promoted, e.g. after
	// their registry status changes.
	if !promoted {
		c.resetDebounce(ctx, logger, key)
	}
}

func (c *Controller) debounced(ctx context.Context, logger *slog.Logger, key string) bool {
	if c.debounce == nil || c.cfg.DebounceWindow <= 0 {
		return false
	}
	n, err := c.debounce.Increment(ctx, key, 1, c.cfg.DebounceWindow)
	if err != nil {
		logger.Warn("debounce unavailable, continuing", "error", err)
		return false
	}
	return n > 1
}

func (c *Controller) resetDebounce(ctx context.Context, logger *slog.Logger, key string) {
	if c.debounce == nil || c.cfg.DebounceWindow <= 0 {
		return
	}
	if err := c.debounce.Reset(ctx, key); err != nil {
		logger.Debug("debounce reset failed", "error", err)
	}
}
