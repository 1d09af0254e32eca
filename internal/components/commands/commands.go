// Package commands routes prefixed text commands posted in guild channels.
package commands

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/MahdiBaghbani/gatekeeper/internal/components/discord"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/appctx"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/logutil"
)

// DefaultPrefix starts every command.
const DefaultPrefix = "-"

// CheckReply is the answer to the check command.
const CheckReply = "I'm Alive"

// Replier posts a message to a channel. *discord.Session implements it.
type Replier interface {
	SendMessage(ctx context.Context, channelID, content string) (string, error)
}

// HandlerFunc answers a command. args excludes the command name. An empty
// reply sends nothing.
type HandlerFunc func(ctx context.Context, msg discord.MessageCreated, args []string) (string, error)

// Router maps command names to handlers.
type Router struct {
	prefix  string
	replier Replier
	logger  *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRouter creates a Router with the check command registered. An empty
// prefix means DefaultPrefix.
func NewRouter(prefix string, replier Replier, logger *slog.Logger) *Router {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	r := &Router{
		prefix:   prefix,
		replier:  replier,
		logger:   logutil.NoopIfNil(logger),
		handlers: make(map[string]HandlerFunc),
	}
	r.Register("check", Check)
	return r
}

// Register adds or replaces the handler for name (without prefix,
// case-insensitive).
func (r *Router) Register(name string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strings.ToLower(name)] = fn
}

// Route runs the handler for msg, if any, and reports whether one matched.
// Messages from bots are ignored.
func (r *Router) Route(ctx context.Context, msg discord.MessageCreated) bool {
	if msg.FromBot || !strings.HasPrefix(msg.Content, r.prefix) {
		return false
	}
	fields := strings.Fields(msg.Content)
	if len(fields) == 0 {
		return false
	}
	name := strings.TrimPrefix(strings.ToLower(fields[0]), r.prefix)

	r.mu.RLock()
	fn, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	logger := appctx.GetLogger(ctx, r.logger).With("command", name, "channel_id", msg.ChannelID, "author_id", msg.AuthorID)
	reply, err := fn(ctx, msg, fields[1:])
	if err != nil {
		logger.Warn("command failed", "error", err)
		return true
	}
	if reply == "" {
		return true
	}
	if _, err := r.replier.SendMessage(ctx, msg.ChannelID, reply); err != nil {
		logger.Warn("command reply failed", "error", err)
		return true
	}
	logger.Debug("command answered")
	return true
}

// Check is the liveness command.
func Check(context.Context, discord.MessageCreated, []string) (string, error) {
	return CheckReply, nil
}
