package pattern

import "time"

// GraduationStatus is the lifecycle state of a pattern's adaptive record.
type GraduationStatus string

const (
	// StatusActive is the default state for a tracked pattern.
	StatusActive GraduationStatus = "active"

	// StatusCandidate marks a pattern that currently meets the criteria for
	// its next hop and is awaiting approval where the hop requires one.
	StatusCandidate GraduationStatus = "candidate"

	// StatusGraduated marks a pattern promoted at least once.
	StatusGraduated GraduationStatus = "graduated"

	// StatusDemoted marks a pattern explicitly demoted after sustained
	// quality collapse.
	StatusDemoted GraduationStatus = "demoted"
)

// Valid reports whether the status is a defined state.
func (s GraduationStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCandidate, StatusGraduated, StatusDemoted:
		return true
	}
	return false
}

// Default adaptive state values returned when the backing store has no record
// or is unreachable. Read paths never fail; they degrade to these.
const (
	DefaultWeight      = 0.5
	DefaultDecayFactor = 1.0
)

// DefaultLevel is the tier assumed for a pattern with no persisted state.
const DefaultLevel = LevelUser

// AdaptivePatternState is the per-pattern record this core owns.
//
// Created on first write, updated on every boost, decay, and graduation
// transition. Never deleted here; tenant-erasure is handled by the external
// repository layer.
type AdaptivePatternState struct {
	// PatternID joins the state to its pattern row.
	PatternID string `json:"pattern_id"`

	// Weight is the adaptive suggestion weight in [0.0, 1.0].
	Weight float64 `json:"weight"`

	// FeedbackCount is how many boost/decay events touched this record.
	FeedbackCount int `json:"feedback_count"`

	// LastUsed is the timestamp of the most recent confirmed usage.
	LastUsed time.Time `json:"last_used"`

	// DecayFactor is the multiplier applied by the most recent decay run.
	DecayFactor float64 `json:"decay_factor"`

	// GraduationStatus is the lifecycle state.
	GraduationStatus GraduationStatus `json:"graduation_status"`

	// DecayStrikes counts consecutive decay runs that left the score below
	// the demotion threshold. Reset on boost. Demotion requires two strikes.
	DecayStrikes int `json:"decay_strikes"`

	// Tenant scopes the record.
	Tenant TenantKey `json:"tenant"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState creates the initial adaptive state for a pattern.
func NewState(patternID string, tenant TenantKey) *AdaptivePatternState {
	now := time.Now()
	return &AdaptivePatternState{
		PatternID:        patternID,
		Weight:           DefaultWeight,
		DecayFactor:      DefaultDecayFactor,
		GraduationStatus: StatusActive,
		Tenant:           tenant,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// GraduationStats are the externally computed usage statistics consumed by
// graduation evaluation. They are inputs only; this core never persists them.
type GraduationStats struct {
	TotalObservations int     `json:"total_observations"`
	UniqueUsers       int     `json:"unique_users"`
	UniqueCompanies   int     `json:"unique_companies"`
	AcceptanceRate    float64 `json:"acceptance_rate"`
	ModificationRate  float64 `json:"modification_rate"`
	RejectionRate     float64 `json:"rejection_rate"`

	// AllSameUser reports whether every observation came from the
	// pattern's originating user.
	AllSameUser bool `json:"all_same_user"`

	// AllSameCompany reports whether every observation stayed within the
	// originating company.
	AllSameCompany bool `json:"all_same_company"`
}
