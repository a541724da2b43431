// Package pattern defines the domain entities for learned patterns and the
// adaptive state this daemon maintains for them.
//
// A Pattern is a reusable structural suggestion an agent applies repeatedly.
// The pattern rows themselves are owned by the external pattern library; this
// core reads them, rewrites their quality/confidence/level fields, and persists
// its own AdaptivePatternState alongside.
package pattern

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors for pattern operations.
var (
	ErrInvalidPattern  = errors.New("invalid pattern")
	ErrEmptyPatternID  = errors.New("pattern ID cannot be empty")
	ErrEmptyName       = errors.New("pattern name cannot be empty")
	ErrInvalidScore    = errors.New("quality score must be between 0 and 100")
	ErrInvalidLevel    = errors.New("invalid tenancy level")
	ErrEmptyTenant     = errors.New("tenant user ID cannot be empty")
	ErrInvalidSuccess  = errors.New("success rate must be between 0.0 and 1.0")
	ErrInvalidBase     = errors.New("confidence base must be between 0.0 and 1.0")
)

// Level is the tenancy visibility tier of a pattern. Levels only ever
// increase; demotion is an explicit administrative action, never automatic.
type Level int

const (
	// LevelObservation is a raw observation not yet promoted to any tier.
	LevelObservation Level = iota

	// LevelUser makes the pattern visible to its originating user.
	LevelUser

	// LevelProject shares the pattern within its originating project.
	LevelProject

	// LevelOrg shares the pattern across the originating organization.
	LevelOrg

	// LevelCrossOrg shares the pattern across organizations. Requires admin
	// approval and anonymization of tenant-identifying fields.
	LevelCrossOrg

	// LevelGlobal is the widest tier. Same gating as LevelCrossOrg.
	LevelGlobal
)

var levelNames = map[Level]string{
	LevelObservation: "observation",
	LevelUser:        "user",
	LevelProject:     "project",
	LevelOrg:         "org",
	LevelCrossOrg:    "cross_org",
	LevelGlobal:      "global",
}

// String returns the lowercase name of the level.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether the level is a defined tier.
func (l Level) Valid() bool {
	return l >= LevelObservation && l <= LevelGlobal
}

// Next returns the next broader tier. The second return is false when the
// level is already LevelGlobal.
func (l Level) Next() (Level, bool) {
	if l >= LevelGlobal {
		return l, false
	}
	return l + 1, true
}

// AnonymizedTenantValue replaces tenant-identifying fields when a pattern
// graduates into a cross-org tier.
const AnonymizedTenantValue = "anonymized"

// TenantKey scopes a pattern to its originating user, project, and org.
type TenantKey struct {
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`
	OrgID     string `json:"org_id"`
}

// Anonymize returns a copy with all identifying fields replaced.
func (t TenantKey) Anonymize() TenantKey {
	return TenantKey{
		UserID:    AnonymizedTenantValue,
		ProjectID: AnonymizedTenantValue,
		OrgID:     AnonymizedTenantValue,
	}
}

// Confidence tracks grounding evidence for a pattern.
//
// Grounding is a confirmed real-world usage. LastGrounded drives both the
// recency score factor and time decay; GroundingCount feeds the consistency
// factor.
type Confidence struct {
	// Base is the baseline confidence in [0.0, 1.0].
	Base float64 `json:"base"`

	// LastGrounded is when the pattern was last confirmed in use.
	// Nil when the pattern has never been grounded.
	LastGrounded *time.Time `json:"last_grounded,omitempty"`

	// GroundingCount is how many confirmed usages have been recorded.
	GroundingCount int `json:"grounding_count"`

	// DecayRate scales how quickly confidence erodes with disuse.
	DecayRate float64 `json:"decay_rate"`
}

// Metadata carries the usage statistics the external library maintains.
type Metadata struct {
	// UsageCount is how many times the pattern has been applied.
	UsageCount int `json:"usage_count"`

	// SuccessRate is the accepted fraction of applications, in [0.0, 1.0].
	SuccessRate float64 `json:"success_rate"`

	// CreatedAt is when the pattern row was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the pattern row was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// Pattern is a learned structural suggestion with an evolving quality score
// and tenancy level.
//
// The structural fields (Sections, ApplicabilityRules, Workflows) are opaque
// here; the matching engine that interprets them is a separate system. This
// core only checks their presence for the completeness score factor.
type Pattern struct {
	// ID is the unique pattern identifier (UUID).
	ID string `json:"id"`

	// Name is a short human-readable label.
	Name string `json:"name"`

	// Description explains when the pattern applies.
	Description string `json:"description,omitempty"`

	// Sections are the structural blocks the pattern suggests.
	Sections []string `json:"sections,omitempty"`

	// ApplicabilityRules gate when the matching engine may suggest this pattern.
	ApplicabilityRules []string `json:"applicability_rules,omitempty"`

	// Workflows are the step sequences attached to the pattern.
	Workflows []string `json:"workflows,omitempty"`

	// QualityScore is the current 0-100 score, always clamped.
	QualityScore int `json:"quality_score"`

	// Confidence is the grounding record. Nil for patterns that predate
	// confidence tracking; score factors fall back to neutral defaults.
	Confidence *Confidence `json:"confidence,omitempty"`

	// Metadata carries usage statistics.
	Metadata Metadata `json:"metadata"`

	// Level is the current tenancy tier.
	Level Level `json:"level"`

	// Tenant scopes visibility and quotas.
	Tenant TenantKey `json:"tenant"`

	// GraduatedAt is stamped on each approved graduation.
	GraduatedAt *time.Time `json:"graduated_at,omitempty"`
}

// New creates a pattern at the observation tier with a generated UUID.
func New(tenant TenantKey, name string) (*Pattern, error) {
	if tenant.UserID == "" {
		return nil, ErrEmptyTenant
	}
	if name == "" {
		return nil, ErrEmptyName
	}

	now := time.Now()
	return &Pattern{
		ID:     uuid.New().String(),
		Name:   name,
		Level:  LevelObservation,
		Tenant: tenant,
		Metadata: Metadata{
			CreatedAt: now,
			UpdatedAt: now,
		},
	}, nil
}

// Validate checks the pattern invariants.
func (p *Pattern) Validate() error {
	if p.ID == "" {
		return ErrEmptyPatternID
	}
	if p.Name == "" {
		return ErrEmptyName
	}
	if p.QualityScore < 0 || p.QualityScore > 100 {
		return ErrInvalidScore
	}
	if !p.Level.Valid() {
		return ErrInvalidLevel
	}
	if p.Metadata.SuccessRate < 0.0 || p.Metadata.SuccessRate > 1.0 {
		return ErrInvalidSuccess
	}
	if p.Confidence != nil && (p.Confidence.Base < 0.0 || p.Confidence.Base > 1.0) {
		return ErrInvalidBase
	}
	return nil
}

// LastActivity returns the most recent grounding or update timestamp.
// The second return is false when neither exists.
func (p *Pattern) LastActivity() (time.Time, bool) {
	if p.Confidence != nil && p.Confidence.LastGrounded != nil {
		return *p.Confidence.LastGrounded, true
	}
	if !p.Metadata.UpdatedAt.IsZero() {
		return p.Metadata.UpdatedAt, true
	}
	return time.Time{}, false
}

// ClampScore clamps a raw score into the valid [0, 100] range.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
