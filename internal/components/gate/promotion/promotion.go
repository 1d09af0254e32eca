// Package promotion decides whether an acknowledging member is eligible
// and, if so, swaps their roles and sets their display name.
package promotion

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MahdiBaghbani/gatekeeper/internal/components/discord"
	"github.com/MahdiBaghbani/gatekeeper/internal/components/registry"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/appctx"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/logutil"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/metrics"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/store"
)

// ErrRolesUnresolved is returned when Promote runs before startup stored the roles.
var ErrRolesUnresolved = errors.New("role handles not resolved")

// ParticipantFetcher looks up registry records. *registry.Client implements it.
type ParticipantFetcher interface {
	FetchParticipant(ctx context.Context, externalID string) (*registry.Participant, error)
}

// MemberMutator changes a guild member. *discord.Session implements it.
type MemberMutator interface {
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	SetNickname(ctx context.Context, guildID, userID, nickname string) error
}

// Member identifies the guild member being promoted.
type Member struct {
	GuildID string
	UserID  string
}

// RoleHandles are the two roles swapped on promotion.
type RoleHandles struct {
	Elevated   discord.Role
	Restricted discord.Role
}

// Roles holds the RoleHandles resolved at startup.
type Roles struct {
	p atomic.Pointer[RoleHandles]
}

// Set stores the resolved handles.
func (r *Roles) Set(h RoleHandles) { r.p.Store(&h) }

// Get returns the handles and whether they were set.
func (r *Roles) Get() (RoleHandles, bool) {
	h := r.p.Load()
	if h == nil {
		return RoleHandles{}, false
	}
	return *h, true
}

// Workflow runs promotions.
type Workflow struct {
	fetcher ParticipantFetcher
	guild   MemberMutator
	roles   *Roles
	audit   store.Recorder
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithAudit appends every outcome to r. Write failures are only logged.
func WithAudit(r store.Recorder) Option {
	return func(w *Workflow) { w.audit = r }
}

// WithMetrics counts outcomes and failed mutations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workflow) { w.metrics = m }
}

// WithLogger sets the logger used when the context carries none.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// New creates a Workflow.
func New(fetcher ParticipantFetcher, guild MemberMutator, roles *Roles, opts ...Option) *Workflow {
	w := &Workflow{
		fetcher: fetcher,
		guild:   guild,
		roles:   roles,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	w.logger = logutil.NoopIfNil(w.logger)
	return w
}

// Promote verifies externalID against the registry and promotes member
// when eligible. It returns true when the participant was eligible and
// the mutations were attempted; a *PartialError reports the ones that
// failed. Lookup failures and ineligible statuses return (false, nil).
func (w *Workflow) Promote(ctx context.Context, member Member, externalID string) (bool, error) {
	logger := appctx.GetLogger(ctx, w.logger).With("external_id", externalID)

	roles, ok := w.roles.Get()
	if !ok {
		logger.Error("promotion before role handles were resolved", "stage", "roles")
		return false, ErrRolesUnresolved
	}

	participant, err := w.fetcher.FetchParticipant(ctx, externalID)
	if err != nil {
		logger.Warn("participant lookup failed",
			"stage", string(StageFetch),
			"category", string(registry.CategoryOf(err)),
			"error", err,
		)
		w.record(ctx, logger, store.Entry{
			ExternalID: externalID,
			Outcome:    store.OutcomeFetchFailed,
			Detail:     err.Error(),
		})
		return false, nil
	}

	if !participant.Eligible() {
		logger.Info("participant not eligible", "stage", "eligibility", "status", participant.Status)
		w.record(ctx, logger, store.Entry{
			ExternalID: externalID,
			Status:     participant.Status,
			Outcome:    store.OutcomeIneligible,
		})
		return false, nil
	}

	name := participant.DisplayName()
	steps := []struct {
		stage Stage
		run   func() error
	}{
		{StageGrant, func() error { return w.guild.AddRole(ctx, member.GuildID, member.UserID, roles.Elevated.ID) }},
		{StageRevoke, func() error { return w.guild.RemoveRole(ctx, member.GuildID, member.UserID, roles.Restricted.ID) }},
		{StageRename, func() error { return w.guild.SetNickname(ctx, member.GuildID, member.UserID, name) }},
	}

	var failed []*StepError
	for _, step := range steps {
		if err := step.run(); err != nil {
			logger.Error("promotion step failed", "stage", string(step.stage), "error", err)
			w.metrics.ObserveMutationFailure(string(step.stage))
			failed = append(failed, &StepError{Stage: step.stage, Err: err})
		}
	}

	if len(failed) > 0 {
		perr := newPartialError(failed)
		w.record(ctx, logger, store.Entry{
			ExternalID: externalID,
			Status:     participant.Status,
			Outcome:    store.OutcomePartial,
			Detail:     perr.Error(),
		})
		return true, perr
	}

	logger.Info("participant promoted", "stage", "done", "status", participant.Status, "display_name", name)
	w.record(ctx, logger, store.Entry{
		ExternalID: externalID,
		Status:     participant.Status,
		Outcome:    store.OutcomePromoted,
	})
	return true, nil
}

func (w *Workflow) record(ctx context.Context, logger *slog.Logger, e store.Entry) {
	w.metrics.ObservePromotion(string(e.Outcome))
	if w.audit == nil {
		return
	}
	e.EventID = appctx.EventID(ctx)
	store.Stamp(&e, w.now())
	if err := w.audit.Record(ctx, e); err != nil {
		logger.Warn("audit write failed", "outcome", string(e.Outcome), "error", err)
	}
}
