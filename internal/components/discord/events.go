// Package discord adapts discordgo to the gatekeeper: gateway payloads
// become small typed events, and the REST calls the gate needs are
// exposed with context support.
package discord

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// ErrInvalidEvent is returned when a gateway payload lacks required fields.
var ErrInvalidEvent = errors.New("invalid gateway event")

// Event is one of Ready, MessageCreated or ReactionAdded.
type Event interface {
	Kind() string
}

// Ready is the session-established event.
type Ready struct {
	SelfID string
	Guilds []string
}

// MessageCreated is a message posted in a guild channel.
type MessageCreated struct {
	GuildID   string
	ChannelID string
	MessageID string
	AuthorID  string
	Content   string
	FromBot   bool
}

// ReactionAdded is a reaction added to a message.
type ReactionAdded struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
}

func (Ready) Kind() string          { return "ready" }
func (MessageCreated) Kind() string { return "message_created" }
func (ReactionAdded) Kind() string  { return "reaction_added" }

// Role is a guild role.
type Role struct {
	ID   string
	Name string
}

func invalid(kind, field string) error {
	return fmt.Errorf("%w: %s without %s", ErrInvalidEvent, kind, field)
}

// FromReady converts a gateway READY payload.
func FromReady(r *discordgo.Ready) (Ready, error) {
	if r == nil || r.User == nil || r.User.ID == "" {
		return Ready{}, invalid("ready", "user id")
	}
	ev := Ready{SelfID: r.User.ID}
	for _, g := range r.Guilds {
		if g != nil && g.ID != "" {
			ev.Guilds = append(ev.Guilds, g.ID)
		}
	}
	return ev, nil
}

// FromMessageCreate converts a MESSAGE_CREATE payload.
func FromMessageCreate(m *discordgo.MessageCreate) (MessageCreated, error) {
	if m == nil || m.Message == nil {
		return MessageCreated{}, invalid("message", "payload")
	}
	switch {
	case m.ChannelID == "":
		return MessageCreated{}, invalid("message", "channel id")
	case m.ID == "":
		return MessageCreated{}, invalid("message", "message id")
	case m.Author == nil || m.Author.ID == "":
		return MessageCreated{}, invalid("message", "author")
	}
	return MessageCreated{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		AuthorID:  m.Author.ID,
		Content:   m.Content,
		FromBot:   m.Author.Bot,
	}, nil
}

// FromReactionAdd converts a MESSAGE_REACTION_ADD payload. Custom emoji
// are rendered as name:id, the form the REST API accepts.
func FromReactionAdd(r *discordgo.MessageReactionAdd) (ReactionAdded, error) {
	if r == nil || r.MessageReaction == nil {
		return ReactionAdded{}, invalid("reaction", "payload")
	}
	switch {
	case r.UserID == "":
		return ReactionAdded{}, invalid("reaction", "user id")
	case r.MessageID == "":
		return ReactionAdded{}, invalid("reaction", "message id")
	case r.ChannelID == "":
		return ReactionAdded{}, invalid("reaction", "channel id")
	case r.GuildID == "":
		return ReactionAdded{}, invalid("reaction", "guild id")
	case r.Emoji.Name == "" && r.Emoji.ID == "":
		return ReactionAdded{}, invalid("reaction", "emoji")
	}
	return ReactionAdded{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.APIName(),
	}, nil
}
