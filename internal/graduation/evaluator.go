package graduation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/metrics"
	"github.com/fyrsmithlabs/patternd/internal/pattern"
	"github.com/fyrsmithlabs/patternd/internal/statestore"
)

// Common errors for graduation operations. Only the administrative mutation
// entry points return errors; CanGraduate reports failures as structured
// negative results.
var (
	ErrCriteriaNotMet      = errors.New("graduation criteria not met")
	ErrApprovalNotRequired = errors.New("this hop does not require approval")
	ErrEmptyAdminUser      = errors.New("admin user ID cannot be empty")
	ErrAtMaxLevel          = errors.New("pattern is already at the global level")
	ErrDemotionNotEligible = errors.New("pattern is not eligible for demotion")
)

// demotionStrikes is the hysteresis guard for administrative demotion: the
// pattern's score must have stayed below the decay threshold for this many
// consecutive decay runs.
const demotionStrikes = 2

// Result reports a single-hop eligibility evaluation.
type Result struct {
	// CanGraduate is true when every criterion of the next hop is met.
	CanGraduate bool `json:"can_graduate"`

	// FromLevel and ToLevel bound the evaluated hop. Hops are never skipped.
	FromLevel pattern.Level `json:"from_level"`
	ToLevel   pattern.Level `json:"to_level"`

	// RequiresApproval is true when the hop is admin-gated.
	RequiresApproval bool `json:"requires_approval"`

	// Stats echoes the evaluated statistics.
	Stats pattern.GraduationStats `json:"stats"`

	// Reason names the first failing criterion when CanGraduate is false.
	Reason string `json:"reason,omitempty"`

	// Progress is the fraction of criteria currently met, for partial-credit UI.
	Progress float64 `json:"progress"`

	// MissingCriteria lists every unmet criterion.
	MissingCriteria []string `json:"missing_criteria,omitempty"`
}

// Approval records an approved graduation.
type Approval struct {
	// Pattern is the advanced pattern copy, anonymized where the tier
	// mandates it.
	Pattern *pattern.Pattern `json:"pattern"`

	FromLevel pattern.Level `json:"from_level"`
	ToLevel   pattern.Level `json:"to_level"`

	// ApprovedBy is the admin who approved the hop.
	ApprovedBy string `json:"approved_by"`

	// Comment is the optional approval note.
	Comment string `json:"comment,omitempty"`

	// GraduatedAt is the approval timestamp.
	GraduatedAt time.Time `json:"graduated_at"`

	// Anonymized is true when tenant-identifying fields were stripped.
	Anonymized bool `json:"anonymized"`

	// OriginalTenant survives only in this audit record after anonymization.
	OriginalTenant pattern.TenantKey `json:"original_tenant"`
}

// Evaluator applies the per-hop criteria tables.
type Evaluator struct {
	criteria map[pattern.Level]Criteria
	states   *statestore.StateStore
	logger   *zap.Logger
	now      func() time.Time
}

// NewEvaluator creates an evaluator with the given criteria table. A nil or
// empty table falls back to DefaultCriteria. states may be nil for pure
// evaluation without persistence.
func NewEvaluator(criteria map[pattern.Level]Criteria, states *statestore.StateStore, logger *zap.Logger) *Evaluator {
	if len(criteria) == 0 {
		criteria = DefaultCriteria()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		criteria: criteria,
		states:   states,
		logger:   logger,
		now:      time.Now,
	}
}

// check is one named criterion evaluation.
type check struct {
	name string
	met  bool
}

// CanGraduate evaluates the single next hop for a pattern.
//
// Any unmet criterion yields CanGraduate=false with Reason naming the first
// failing check in evaluation order. Malformed input yields a structured
// negative result, never an error.
func (e *Evaluator) CanGraduate(ctx context.Context, p *pattern.Pattern, stats pattern.GraduationStats) *Result {
	if p == nil {
		return &Result{Reason: "pattern is nil"}
	}
	if err := p.Validate(); err != nil {
		return &Result{FromLevel: p.Level, Reason: fmt.Sprintf("invalid pattern: %v", err)}
	}

	next, ok := p.Level.Next()
	if !ok {
		return &Result{
			FromLevel: p.Level,
			ToLevel:   p.Level,
			Stats:     stats,
			Progress:  1.0,
			Reason:    "already at the global level",
		}
	}

	criteria, ok := e.criteria[p.Level]
	if !ok {
		return &Result{
			FromLevel: p.Level,
			ToLevel:   next,
			Stats:     stats,
			Reason:    fmt.Sprintf("no criteria configured for hop %s -> %s", p.Level, next),
		}
	}

	checks := evaluateChecks(criteria, stats)

	result := &Result{
		FromLevel:        p.Level,
		ToLevel:          next,
		RequiresApproval: criteria.RequiresApproval,
		Stats:            stats,
	}

	met := 0
	for _, c := range checks {
		if c.met {
			met++
			continue
		}
		if result.Reason == "" {
			result.Reason = c.name
		}
		result.MissingCriteria = append(result.MissingCriteria, c.name)
	}
	if len(checks) > 0 {
		result.Progress = float64(met) / float64(len(checks))
	} else {
		result.Progress = 1.0
	}
	result.CanGraduate = len(result.MissingCriteria) == 0

	if result.CanGraduate && e.states != nil {
		st := e.states.LoadState(ctx, p.ID, p.Tenant)
		if st.GraduationStatus == pattern.StatusActive {
			st.GraduationStatus = pattern.StatusCandidate
			if err := e.states.SaveState(ctx, st, p.Level); err != nil {
				e.logger.Warn("marking graduation candidate failed",
					zap.String("pattern_id", p.ID),
					zap.Error(err))
			}
		}
	}

	return result
}

// evaluateChecks walks the hop's criteria in fixed order.
func evaluateChecks(c Criteria, stats pattern.GraduationStats) []check {
	var checks []check
	if c.MinObservations > 0 {
		checks = append(checks, check{
			name: fmt.Sprintf("needs at least %d observations (have %d)", c.MinObservations, stats.TotalObservations),
			met:  stats.TotalObservations >= c.MinObservations,
		})
	}
	if c.MinUsers > 0 {
		checks = append(checks, check{
			name: fmt.Sprintf("needs at least %d unique users (have %d)", c.MinUsers, stats.UniqueUsers),
			met:  stats.UniqueUsers >= c.MinUsers,
		})
	}
	if c.MinCompanies > 0 {
		checks = append(checks, check{
			name: fmt.Sprintf("needs at least %d unique companies (have %d)", c.MinCompanies, stats.UniqueCompanies),
			met:  stats.UniqueCompanies >= c.MinCompanies,
		})
	}
	if c.MinAcceptanceRate > 0 {
		checks = append(checks, check{
			name: fmt.Sprintf("needs acceptance rate >= %.0f%% (have %.0f%%)", c.MinAcceptanceRate*100, stats.AcceptanceRate*100),
			met:  stats.AcceptanceRate >= c.MinAcceptanceRate,
		})
	}
	if c.MaxModificationRate > 0 {
		checks = append(checks, check{
			name: fmt.Sprintf("needs modification rate <= %.0f%% (have %.0f%%)", c.MaxModificationRate*100, stats.ModificationRate*100),
			met:  stats.ModificationRate <= c.MaxModificationRate,
		})
	}
	if c.SameUser {
		checks = append(checks, check{
			name: "needs all observations from the originating user",
			met:  stats.AllSameUser,
		})
	}
	if c.SameCompany {
		checks = append(checks, check{
			name: "needs all observations within the originating company",
			met:  stats.AllSameCompany,
		})
	}
	return checks
}

// Graduate advances a pattern one ungated hop.
//
// For admin-gated hops use ApproveGraduation instead; calling Graduate on a
// gated hop fails. This is an administrative mutation: persistence failures
// surface to the caller.
func (e *Evaluator) Graduate(ctx context.Context, p *pattern.Pattern, stats pattern.GraduationStats) (*pattern.Pattern, error) {
	result := e.CanGraduate(ctx, p, stats)
	if !result.CanGraduate {
		return nil, fmt.Errorf("%w: %s", ErrCriteriaNotMet, result.Reason)
	}
	if result.RequiresApproval {
		return nil, fmt.Errorf("hop %s -> %s requires admin approval", result.FromLevel, result.ToLevel)
	}
	return e.advance(ctx, p, result, false)
}

// ApproveGraduation records an admin approval and advances the pattern by
// exactly one level.
//
// Only valid when the hop requires approval and the criteria are met. When
// the target tier mandates anonymization, tenant-identifying fields are
// stripped from the advanced copy and the persisted state; the original
// tenancy survives only in the returned audit record.
func (e *Evaluator) ApproveGraduation(ctx context.Context, p *pattern.Pattern, stats pattern.GraduationStats, adminUserID, comment string) (*Approval, error) {
	if adminUserID == "" {
		return nil, ErrEmptyAdminUser
	}

	result := e.CanGraduate(ctx, p, stats)
	if !result.CanGraduate {
		return nil, fmt.Errorf("%w: %s", ErrCriteriaNotMet, result.Reason)
	}
	if !result.RequiresApproval {
		return nil, fmt.Errorf("%w: hop %s -> %s", ErrApprovalNotRequired, result.FromLevel, result.ToLevel)
	}

	originalTenant := p.Tenant
	anonymize := e.criteria[p.Level].RequiresAnonymization

	advanced, err := e.advance(ctx, p, result, anonymize)
	if err != nil {
		return nil, err
	}

	e.logger.Info("graduation approved",
		zap.String("pattern_id", p.ID),
		zap.String("from", result.FromLevel.String()),
		zap.String("to", result.ToLevel.String()),
		zap.String("approved_by", adminUserID),
		zap.Bool("anonymized", anonymize))

	return &Approval{
		Pattern:        advanced,
		FromLevel:      result.FromLevel,
		ToLevel:        result.ToLevel,
		ApprovedBy:     adminUserID,
		Comment:        comment,
		GraduatedAt:    *advanced.GraduatedAt,
		Anonymized:     anonymize,
		OriginalTenant: originalTenant,
	}, nil
}

// advance returns an advanced copy of the pattern and persists the state
// transition.
func (e *Evaluator) advance(ctx context.Context, p *pattern.Pattern, result *Result, anonymize bool) (*pattern.Pattern, error) {
	now := e.now()
	advanced := *p
	advanced.Level = result.ToLevel
	advanced.GraduatedAt = &now
	if anonymize {
		advanced.Tenant = p.Tenant.Anonymize()
	}

	if e.states != nil {
		st := e.states.LoadState(ctx, p.ID, p.Tenant)
		st.GraduationStatus = pattern.StatusGraduated
		if anonymize {
			st.Tenant = advanced.Tenant
		}
		if err := e.states.SaveState(ctx, st, advanced.Level); err != nil {
			return nil, fmt.Errorf("persisting graduation: %w", err)
		}
	}

	metrics.Graduations.WithLabelValues(result.ToLevel.String()).Inc()
	return &advanced, nil
}

// Demote explicitly drops a graduated pattern one level after sustained
// quality collapse.
//
// Levels never regress automatically; this administrative call is the only
// demotion path, and it is guarded by hysteresis: the pattern must have
// finished at least two consecutive decay runs below the threshold.
func (e *Evaluator) Demote(ctx context.Context, p *pattern.Pattern, adminUserID string) (*pattern.Pattern, error) {
	if adminUserID == "" {
		return nil, ErrEmptyAdminUser
	}
	if p.Level <= pattern.LevelObservation {
		return nil, fmt.Errorf("%w: already at the observation level", ErrDemotionNotEligible)
	}
	if e.states == nil {
		return nil, fmt.Errorf("%w: no state store wired", ErrDemotionNotEligible)
	}

	st := e.states.LoadState(ctx, p.ID, p.Tenant)
	if st.DecayStrikes < demotionStrikes {
		return nil, fmt.Errorf("%w: %d/%d decay strikes", ErrDemotionNotEligible, st.DecayStrikes, demotionStrikes)
	}

	demoted := *p
	demoted.Level = p.Level - 1

	st.GraduationStatus = pattern.StatusDemoted
	st.DecayStrikes = 0
	if err := e.states.SaveState(ctx, st, demoted.Level); err != nil {
		return nil, fmt.Errorf("persisting demotion: %w", err)
	}

	e.logger.Info("pattern demoted",
		zap.String("pattern_id", p.ID),
		zap.String("from", p.Level.String()),
		zap.String("to", demoted.Level.String()),
		zap.String("demoted_by", adminUserID))

	return &demoted, nil
}
