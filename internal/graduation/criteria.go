// Package graduation evaluates whether a pattern's accumulated statistics
// qualify it to advance one tenancy tier, and records admin approval for the
// gated cross-org tiers.
package graduation

import (
	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

// Criteria is the fixed lookup entry for a single level hop.
//
// A zero threshold disables that check for the hop. Evaluation walks the
// checks in a fixed order and names the first failing one.
type Criteria struct {
	// MinObservations is the minimum total observations.
	MinObservations int `koanf:"min_observations"`

	// MinUsers is the minimum count of distinct users who applied the pattern.
	MinUsers int `koanf:"min_users"`

	// MinCompanies is the minimum count of distinct companies.
	MinCompanies int `koanf:"min_companies"`

	// MinAcceptanceRate is the minimum accepted fraction in [0.0, 1.0].
	MinAcceptanceRate float64 `koanf:"min_acceptance_rate"`

	// MaxModificationRate is the maximum modified fraction in [0.0, 1.0].
	MaxModificationRate float64 `koanf:"max_modification_rate"`

	// SameUser requires all observations to come from the originating user.
	SameUser bool `koanf:"same_user"`

	// SameCompany requires all observations to stay within the originating
	// company.
	SameCompany bool `koanf:"same_company"`

	// RequiresApproval gates the hop behind an explicit admin approval.
	RequiresApproval bool `koanf:"requires_approval"`

	// RequiresAnonymization strips tenant-identifying fields when the hop
	// completes, before the pattern becomes visible outside its company.
	RequiresAnonymization bool `koanf:"requires_anonymization"`
}

// DefaultCriteria returns the per-hop lookup table, keyed by the level the
// pattern currently holds.
//
// The local hop keeps the pattern with its user; the company hops demand
// broader adoption and tighter quality; the cross-org hops additionally
// demand near-perfect acceptance, mandatory admin approval, and
// anonymization.
func DefaultCriteria() map[pattern.Level]Criteria {
	return map[pattern.Level]Criteria{
		pattern.LevelObservation: {
			MinObservations:     3,
			MinAcceptanceRate:   0.70,
			MaxModificationRate: 0.30,
			SameUser:            true,
			SameCompany:         true,
		},
		pattern.LevelUser: {
			MinUsers:            5,
			MinAcceptanceRate:   0.80,
			MaxModificationRate: 0.20,
			SameCompany:         true,
		},
		pattern.LevelProject: {
			MinUsers:            5,
			MinAcceptanceRate:   0.80,
			MaxModificationRate: 0.20,
			SameCompany:         true,
		},
		pattern.LevelOrg: {
			MinCompanies:          3,
			MinAcceptanceRate:     0.90,
			MaxModificationRate:   0.10,
			RequiresApproval:      true,
			RequiresAnonymization: true,
		},
		pattern.LevelCrossOrg: {
			MinCompanies:          3,
			MinAcceptanceRate:     0.90,
			MaxModificationRate:   0.10,
			RequiresApproval:      true,
			RequiresAnonymization: true,
		},
	}
}
