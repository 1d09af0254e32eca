package gate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MahdiBaghbani/gatekeeper/internal/components/discord"
	"github.com/MahdiBaghbani/gatekeeper/internal/components/gate"
	"github.com/MahdiBaghbani/gatekeeper/internal/components/gate/promotion"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/cache/memory"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/metrics"
)

const (
	selfID   = "bot-1"
	noticeID = "notice-1"
	ack      = "\U0001F44D"
)

type promoteCall struct {
	member     promotion.Member
	externalID string
}

type fakePromoter struct {
	calls    []promoteCall
	promoted bool
	err      error
}

func (f *fakePromoter) Promote(_ context.Context, m promotion.Member, externalID string) (bool, error) {
	f.calls = append(f.calls, promoteCall{m, externalID})
	return f.promoted, f.err
}

func armedNotice() *gate.Notice {
	var n gate.Notice
	n.Set(gate.NoticeHandle{ChannelID: "welcome", MessageID: noticeID})
	return &n
}

func reaction(user, message, emoji string) discord.ReactionAdded {
	return discord.ReactionAdded{GuildID: "guild", ChannelID: "welcome", MessageID: message, UserID: user, Emoji: emoji}
}

func TestOnAcknowledgment_Filters(t *testing.T) {
	tests := []struct {
		name string
		ev   discord.ReactionAdded
		want int
	}{
		{"accepted", reaction("42", noticeID, ack), 1},
		{"self on notice with ack", reaction(selfID, noticeID, ack), 0},
		{"self elsewhere", reaction(selfID, "other", "x"), 0},
		{"other message with ack", reaction("42", "other", ack), 0},
		{"notice with wrong emoji", reaction("42", noticeID, "✅"), 0},
		{"notice with custom emoji", reaction("42", noticeID, "thumbsup:123"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePromoter{}
			c := gate.NewController(gate.Config{SelfID: selfID, AckEmoji: ack}, armedNotice(), p)

			c.OnAcknowledgment(context.Background(), tt.ev)

			if len(p.calls) != tt.want {
				t.Fatalf("Promote calls = %d, want %d", len(p.calls), tt.want)
			}
			if tt.want == 1 {
				want := promoteCall{promotion.Member{GuildID: "guild", UserID: "42"}, "42"}
				if p.calls[0] != want {
					t.Errorf("call = %+v, want %+v", p.calls[0], want)
				}
			}
		})
	}
}

func TestOnAcknowledgment_NoNoticeYet(t *testing.T) {
	p := &fakePromoter{}
	c := gate.NewController(gate.Config{SelfID: selfID, AckEmoji: ack}, &gate.Notice{}, p)

	c.OnAcknowledgment(context.Background(), reaction("42", noticeID, ack))
	c.OnAcknowledgment(context.Background(), reaction("42", "", ack))
	if len(p.calls) != 0 {
		t.Errorf("expected no promotion before the notice is posted, got %d", len(p.calls))
	}
}

func TestOnAcknowledgment_ErrorsAreSwallowed(t *testing.T) {
	p := &fakePromoter{promoted: true, err: errors.New("partial")}
	c := gate.NewController(gate.Config{SelfID: selfID, AckEmoji: ack}, armedNotice(), p)

	c.OnAcknowledgment(context.Background(), reaction("42", noticeID, ack))
	if len(p.calls) != 1 {
		t.Errorf("Promote calls = %d", len(p.calls))
	}
}

func TestOnAcknowledgment_Metrics(t *testing.T) {
	m := metrics.New()
	c := gate.NewController(gate.Config{SelfID: selfID, AckEmoji: ack}, armedNotice(), &fakePromoter{}, gate.WithMetrics(m))
	ctx := context.Background()

	c.OnAcknowledgment(ctx, reaction(selfID, noticeID, ack))
	c.OnAcknowledgment(ctx, reaction("42", "other", ack))
	c.OnAcknowledgment(ctx, reaction("42", noticeID, "x"))
	c.OnAcknowledgment(ctx, reaction("42", noticeID, ack))

	for _, label := range []string{"self", "wrong_message", "wrong_emoji", "accepted"} {
		if got := testutil.ToFloat64(m.AcksReceived.WithLabelValues(label)); got != 1 {
			t.Errorf("%s = %v, want 1", label, got)
		}
	}
}

func TestOnAcknowledgment_Debounce(t *testing.T) {
	counter := memory.New(0)
	defer counter.Close()

	p := &fakePromoter{promoted: true}
	c := gate.NewController(
		gate.Config{SelfID: selfID, AckEmoji: ack, DebounceWindow: time.Minute},
		armedNotice(), p, gate.WithDebounce(counter),
	)
	ctx := context.Background()

	c.OnAcknowledgment(ctx, reaction("42", noticeID, ack))
	c.OnAcknowledgment(ctx, reaction("42", noticeID, ack))
	c.OnAcknowledgment(ctx, reaction("7", noticeID, ack))

	if len(p.calls) != 2 {
		t.Fatalf("Promote calls = %d, want 2 (repeat from 42 dropped)", len(p.calls))
	}
	if p.calls[1].externalID != "7" {
		t.Errorf("second promotion for %s, want 7", p.calls[1].externalID)
	}
}

func TestOnAcknowledgment_DebounceResetWhenNotPromoted(t *testing.T) {
	counter := memory.New(0)
	defer counter.Close()

	p := &fakePromoter{promoted: false}
	c := gate.NewController(
		gate.Config{SelfID: selfID, AckEmoji: ack, DebounceWindow: time.Minute},
		armedNotice(), p, gate.WithDebounce(counter),
	)

	c.OnAcknowledgment(context.Background(), reaction("7", noticeID, ack))
	c.OnAcknowledgment(context.Background(), reaction("7", noticeID, ack))
	if len(p.calls) != 2 {
		t.Errorf("Promote calls = %d, want 2 after an unsuccessful attempt", len(p.calls))
	}
}

func TestOnAcknowledgment_DebounceDisabled(t *testing.T) {
	counter := memory.New(0)
	defer counter.Close()

	p := &fakePromoter{promoted: true}
	c := gate.NewController(gate.Config{SelfID: selfID, AckEmoji: ack}, armedNotice(), p, gate.WithDebounce(counter))

	c.OnAcknowledgment(context.Background(), reaction("42", noticeID, ack))
	c.OnAcknowledgment(context.Background(), reaction("42", noticeID, ack))
	if len(p.calls) != 2 {
		t.Errorf("Promote calls = %d, want 2 with a zero window", len(p.calls))
	}
}

type brokenCounter struct{}

func (brokenCounter) Increment(context.Context, string, int64, time.Duration) (int64, error) {
	return 0, errors.New("redis down")
}
func (brokenCounter) Reset(context.Context, string) error { return errors.New("redis down") }
func (brokenCounter) Close() error                        { return nil }

func TestOnAcknowledgment_CacheErrorsDoNotBlock(t *testing.T) {
	p := &fakePromoter{}
	c := gate.NewController(
		gate.Config{SelfID: selfID, AckEmoji: ack, DebounceWindow: time.Minute},
		armedNotice(), p, gate.WithDebounce(brokenCounter{}),
	)

	c.OnAcknowledgment(context.Background(), reaction("42", noticeID, ack))
	if len(p.calls) != 1 {
		t.Errorf("Promote calls = %d, want 1", len(p.calls))
	}
}

type fakeStarter struct {
	runs  int
	ready discord.Ready
	err   error
}

func (f *fakeStarter) Run(_ context.Context, r discord.Ready) error {
	f.runs++
	f.ready = r
	return f.err
}

type fakeRouter struct{ routed []discord.MessageCreated }

func (f *fakeRouter) Route(_ context.Context, m discord.MessageCreated) bool {
	f.routed = append(f.routed, m)
	return true
}

func TestHandle_Dispatch(t *testing.T) {
	p := &fakePromoter{}
	s := &fakeStarter{}
	r := &fakeRouter{}
	c := gate.NewController(gate.Config{AckEmoji: ack}, armedNotice(), p,
		gate.WithStartup(s, nil),
		gate.WithCommands(r),
	)
	ctx := context.Background()

	c.Handle(ctx, discord.Ready{SelfID: "bot-from-ready", Guilds: []string{"guild"}})
	c.Handle(ctx, discord.MessageCreated{ChannelID: "c", MessageID: "m", AuthorID: "u", Content: "-check"})
	c.Handle(ctx, reaction("42", noticeID, ack))

	if s.runs != 1 || s.ready.SelfID != "bot-from-ready" {
		t.Errorf("starter runs = %d, ready = %+v", s.runs, s.ready)
	}
	if len(r.routed) != 1 {
		t.Errorf("routed = %d, want 1", len(r.routed))
	}
	if len(p.calls) != 1 {
		t.Errorf("promotions = %d, want 1", len(p.calls))
	}
	if c.SelfID() != "bot-from-ready" {
		t.Errorf("SelfID = %q, want taken from Ready", c.SelfID())
	}

	// The bot's own seed reaction is ignored once Ready taught us our id.
	c.Handle(ctx, reaction("bot-from-ready", noticeID, ack))
	if len(p.calls) != 1 {
		t.Errorf("self reaction promoted")
	}
}

func TestHandle_ConfiguredSelfIDWins(t *testing.T) {
	c := gate.NewController(gate.Config{SelfID: selfID, AckEmoji: ack}, armedNotice(), &fakePromoter{})
	c.Handle(context.Background(), discord.Ready{SelfID: "other"})
	if c.SelfID() != selfID {
		t.Errorf("SelfID = %q, want configured %q", c.SelfID(), selfID)
	}
}

func TestHandle_StartupRunsOnce(t *testing.T) {
	s := &fakeStarter{}
	c := gate.NewController(gate.Config{AckEmoji: ack}, &gate.Notice{}, &fakePromoter{}, gate.WithStartup(s, nil))

	c.Handle(context.Background(), discord.Ready{SelfID: "bot"})
	c.Handle(context.Background(), discord.Ready{SelfID: "bot"})
	if s.runs != 1 {
		t.Errorf("startup runs = %d, want 1", s.runs)
	}
}

func TestHandle_StartupFailureIsFatal(t *testing.T) {
	boom := errors.New("registry unreachable")
	var fatal error
	c := gate.NewController(gate.Config{AckEmoji: ack}, &gate.Notice{}, &fakePromoter{},
		gate.WithStartup(&fakeStarter{err: boom}, func(err error) { fatal = err }),
	)

	c.Handle(context.Background(), discord.Ready{SelfID: "bot"})
	if !errors.Is(fatal, boom) {
		t.Errorf("onFatal got %v, want %v", fatal, boom)
	}
}

func TestNotice(t *testing.T) {
	var n gate.Notice
	if n.Posted() {
		t.Error("zero Notice should not be posted")
	}
	if _, ok := n.Get(); ok {
		t.Error("Get on zero Notice should report false")
	}

	n.Set(gate.NoticeHandle{ChannelID: "c", MessageID: "m"})
	h, ok := n.Get()
	if !ok || h.MessageID != "m" || !n.Posted() {
		t.Errorf("Get = %+v, %v", h, ok)
	}
}
