package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
)

type call struct {
	op   string
	args []string
}

type fakeREST struct {
	calls []call
	err   error
}

func (f *fakeREST) record(op string, args ...string) { f.calls = append(f.calls, call{op, args}) }

func (f *fakeREST) GuildRoles(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	f.record("roles", guildID)
	if f.err != nil {
		return nil, f.err
	}
	return []*discordgo.Role{{ID: "r1", Name: "Hacker"}, nil, {ID: "r2", Name: "Unregistered"}}, nil
}

func (f *fakeREST) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.record("send", channelID, content)
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Message{ID: "m1", ChannelID: channelID}, nil
}

func (f *fakeREST) MessageReactionAdd(channelID, messageID, emojiID string, _ ...discordgo.RequestOption) error {
	f.record("react", channelID, messageID, emojiID)
	return f.err
}

func (f *fakeREST) GuildMemberRoleAdd(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.record("grant", guildID, userID, roleID)
	return f.err
}

func (f *fakeREST) GuildMemberRoleRemove(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.record("revoke", guildID, userID, roleID)
	return f.err
}

func (f *fakeREST) GuildMemberNickname(guildID, userID, nickname string, _ ...discordgo.RequestOption) error {
	f.record("nick", guildID, userID, nickname)
	return f.err
}

func TestSession_Operations(t *testing.T) {
	api := &fakeREST{}
	s := &Session{api: api}
	ctx := context.Background()

	roles, err := s.GuildRoles(ctx, "g1")
	if err != nil {
		t.Fatalf("GuildRoles failed: %v", err)
	}
	if len(roles) != 2 || roles[0] != (Role{ID: "r1", Name: "Hacker"}) {
		t.Errorf("roles = %+v", roles)
	}

	id, err := s.SendMessage(ctx, "welcome", "hello")
	if err != nil || id != "m1" {
		t.Errorf("SendMessage = %q, %v", id, err)
	}

	s.AddReaction(ctx, "welcome", "m1", "\U0001F44D")
	s.AddRole(ctx, "g1", "42", "r1")
	s.RemoveRole(ctx, "g1", "42", "r2")
	s.SetNickname(ctx, "g1", "42", "Alice Lin")

	wantOps := []string{"roles", "send", "react", "grant", "revoke", "nick"}
	if len(api.calls) != len(wantOps) {
		t.Fatalf("calls = %+v", api.calls)
	}
	for i, op := range wantOps {
		if api.calls[i].op != op {
			t.Errorf("call %d = %s, want %s", i, api.calls[i].op, op)
		}
	}
	if last := api.calls[5].args; last[2] != "Alice Lin" {
		t.Errorf("nickname = %q", last[2])
	}
}

func TestSession_WrapsErrors(t *testing.T) {
	sentinel := errors.New("discord 403")
	s := &Session{api: &fakeREST{err: sentinel}}
	ctx := context.Background()

	checks := map[string]error{
		"AddRole":     s.AddRole(ctx, "g", "u", "r"),
		"RemoveRole":  s.RemoveRole(ctx, "g", "u", "r"),
		"SetNickname": s.SetNickname(ctx, "g", "u", "n"),
		"AddReaction": s.AddReaction(ctx, "c", "m", "e"),
	}
	if _, err := s.GuildRoles(ctx, "g"); !errors.Is(err, sentinel) {
		t.Errorf("GuildRoles err = %v", err)
	}
	if _, err := s.SendMessage(ctx, "c", "x"); !errors.Is(err, sentinel) {
		t.Errorf("SendMessage err = %v", err)
	}
	for name, err := range checks {
		if !errors.Is(err, sentinel) {
			t.Errorf("%s err = %v, want wrapped sentinel", name, err)
		}
	}
}
