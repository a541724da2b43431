// Package quality computes and maintains the 0-100 quality score attached to
// every pattern.
//
// The score is a weighted blend of five factors (usage frequency, acceptance
// rate, consistency, recency, completeness). Confirmed usage boosts the score;
// disuse erodes it on a half-life curve. All score reads are total functions:
// a pattern missing confidence or metadata still scores, using neutral
// defaults for the absent factors.
package quality

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
	"github.com/fyrsmithlabs/patternd/internal/statestore"
)

// Factor weights. They sum to exactly 1.0.
const (
	WeightUsageFrequency = 0.30
	WeightAcceptanceRate = 0.30
	WeightConsistency    = 0.20
	WeightRecency        = 0.10
	WeightCompleteness   = 0.10
)

// neutralFactor is the score assigned to a factor with no evidence either
// way. Cold start is not "known bad".
const neutralFactor = 50

// completenessCheckpoints is the number of structural checkpoints, each worth
// an equal share of the completeness factor.
const completenessCheckpoints = 5

// Config holds the decay and boost tuning.
type Config struct {
	// HalfLife is the disuse interval after which a pattern's score
	// contribution roughly halves. Default: 30 days.
	HalfLife time.Duration `koanf:"half_life"`

	// MinScore is the decay floor. Decay never pushes a score below it.
	// Default: 10.
	MinScore int `koanf:"min_score"`

	// UsageBoost is the score increment per confirmed usage. Default: 2.
	UsageBoost int `koanf:"usage_boost"`

	// AcceptanceWeight blends historical acceptance into the decay rate;
	// higher acceptance slows decay. Default: 0.5.
	AcceptanceWeight float64 `koanf:"acceptance_weight"`

	// DecayThreshold is the score below which a decay run reports a pattern
	// as dropped. Default: 30.
	DecayThreshold int `koanf:"decay_threshold"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.HalfLife == 0 {
		c.HalfLife = 30 * 24 * time.Hour
	}
	if c.MinScore == 0 {
		c.MinScore = 10
	}
	if c.UsageBoost == 0 {
		c.UsageBoost = 2
	}
	if c.AcceptanceWeight == 0 {
		c.AcceptanceWeight = 0.5
	}
	if c.DecayThreshold == 0 {
		c.DecayThreshold = 30
	}
}

// Engine scores patterns and applies usage boosts and time decay.
//
// The adaptive state store is optional; when present, boosts and decay runs
// write through to the per-pattern state record best-effort. State write
// failures are logged, never propagated: scores are heuristics, not ledger
// balances.
type Engine struct {
	config Config
	states *statestore.StateStore
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a quality score engine. states may be nil for pure
// scoring without persistence.
func NewEngine(config Config, states *statestore.StateStore, logger *zap.Logger) *Engine {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		config: config,
		states: states,
		logger: logger,
		now:    time.Now,
	}
}

// FactorBreakdown is the per-factor decomposition of a score, each factor
// bucketed to [0, 100] before weighting.
type FactorBreakdown struct {
	UsageFrequency int `json:"usage_frequency"`
	AcceptanceRate int `json:"acceptance_rate"`
	Consistency    int `json:"consistency"`
	Recency        int `json:"recency"`
	Completeness   int `json:"completeness"`
}

// CalculateScore computes the weighted quality score for a pattern.
// The result is rounded and clamped to [0, 100].
func (e *Engine) CalculateScore(p *pattern.Pattern) int {
	f := e.Factors(p)
	raw := float64(f.UsageFrequency)*WeightUsageFrequency +
		float64(f.AcceptanceRate)*WeightAcceptanceRate +
		float64(f.Consistency)*WeightConsistency +
		float64(f.Recency)*WeightRecency +
		float64(f.Completeness)*WeightCompleteness
	return pattern.ClampScore(int(math.Round(raw)))
}

// Factors returns the factor breakdown used by CalculateScore.
func (e *Engine) Factors(p *pattern.Pattern) FactorBreakdown {
	return FactorBreakdown{
		UsageFrequency: usageFrequencyScore(p),
		AcceptanceRate: acceptanceRateScore(p),
		Consistency:    consistencyScore(p),
		Recency:        e.recencyScore(p),
		Completeness:   completenessScore(p),
	}
}

// usageFrequencyScore buckets raw usage counts into stepped bands.
func usageFrequencyScore(p *pattern.Pattern) int {
	uc := p.Metadata.UsageCount
	switch {
	case uc == 0:
		return neutralFactor
	case uc >= 100:
		return 100
	case uc >= 50:
		return 80
	case uc >= 20:
		return 60
	case uc >= 5:
		return 40
	default:
		return 20
	}
}

// acceptanceRateScore maps the success rate onto [0, 100]. A pattern with no
// usage and no recorded successes gets the neutral cold-start score.
func acceptanceRateScore(p *pattern.Pattern) int {
	if p.Metadata.UsageCount == 0 && p.Metadata.SuccessRate == 0 {
		return neutralFactor
	}
	return pattern.ClampScore(int(math.Round(p.Metadata.SuccessRate * 100)))
}

// consistencyScore rewards repeated grounding plus baseline confidence.
func consistencyScore(p *pattern.Pattern) int {
	if p.Confidence == nil {
		return neutralFactor
	}
	grounding := p.Confidence.GroundingCount * 10
	if grounding > 50 {
		grounding = 50
	}
	return pattern.ClampScore(grounding + int(math.Round(p.Confidence.Base*50)))
}

// recencyScore bands the days since the pattern was last grounded, falling
// back to the metadata update time.
func (e *Engine) recencyScore(p *pattern.Pattern) int {
	last, ok := p.LastActivity()
	if !ok {
		return neutralFactor
	}
	days := e.now().Sub(last).Hours() / 24
	switch {
	case days <= 7:
		return 100
	case days <= 30:
		return 80
	case days <= 90:
		return 60
	case days <= 180:
		return 40
	case days <= 365:
		return 20
	default:
		return 10
	}
}

// completenessScore grants an equal share per present structural checkpoint:
// name, description, at least one section, applicability rule, and workflow.
func completenessScore(p *pattern.Pattern) int {
	present := 0
	if p.Name != "" {
		present++
	}
	if p.Description != "" {
		present++
	}
	if len(p.Sections) > 0 {
		present++
	}
	if len(p.ApplicabilityRules) > 0 {
		present++
	}
	if len(p.Workflows) > 0 {
		present++
	}
	return present * (100 / completenessCheckpoints)
}
