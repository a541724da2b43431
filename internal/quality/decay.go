package quality

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/metrics"
	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

// DecayJobResult summarizes one decay batch.
type DecayJobResult struct {
	// ProcessedCount is how many patterns the batch touched.
	ProcessedCount int `json:"processed_count"`

	// DroppedBelowThreshold lists patterns whose score crossed below the
	// threshold during this run. Downstream consumers (graduation demotion
	// review, anomaly triage) act on these; this job only reports them.
	DroppedBelowThreshold []string `json:"dropped_below_threshold"`

	// Timestamp is when the batch ran.
	Timestamp time.Time `json:"timestamp"`
}

// DecayPreview is a pure projection of where a score is heading.
type DecayPreview struct {
	CurrentScore           int     `json:"current_score"`
	ProjectedScore         int     `json:"projected_score"`
	DecayAmount            int     `json:"decay_amount"`
	DaysSinceLastUse       float64 `json:"days_since_last_use"`
	WillDropBelowThreshold bool    `json:"will_drop_below_threshold"`
}

// decayedScore applies the half-life curve to a score.
//
// The decay fraction grows monotonically with elapsed time; historical
// acceptance scales it down so proven patterns erode slower. The result
// floors at MinScore and never goes negative.
func (e *Engine) decayedScore(score int, days, successRate float64) int {
	if days <= 0 || score <= e.config.MinScore {
		return score
	}
	halfLifeDays := e.config.HalfLife.Hours() / 24
	fraction := 1 - math.Pow(0.5, days/halfLifeDays)
	scale := 1 - e.config.AcceptanceWeight*successRate
	decayed := float64(score) - float64(score)*fraction*scale
	result := int(math.Round(decayed))
	if result < e.config.MinScore {
		return e.config.MinScore
	}
	return result
}

// ApplyDecay returns a copy of the pattern with disuse decay applied to its
// quality score. The input is not mutated.
func (e *Engine) ApplyDecay(p *pattern.Pattern) *pattern.Pattern {
	decayed := *p

	last, ok := p.LastActivity()
	if !ok {
		return &decayed
	}
	days := e.now().Sub(last).Hours() / 24
	decayed.QualityScore = e.decayedScore(p.QualityScore, days, p.Metadata.SuccessRate)
	return &decayed
}

// BoostOnUsage returns a copy of the pattern with a confirmed-usage boost
// applied: score up by UsageBoost (capped at 100), usage and grounding counts
// incremented, and the grounding timestamp advanced to now.
//
// When a state store is wired, the pattern's adaptive record is updated
// best-effort: feedback count up, last-used stamped, decay strikes cleared.
func (e *Engine) BoostOnUsage(ctx context.Context, p *pattern.Pattern) *pattern.Pattern {
	now := e.now()
	boosted := *p

	boosted.QualityScore = pattern.ClampScore(p.QualityScore + e.config.UsageBoost)
	boosted.Metadata.UsageCount++
	boosted.Metadata.UpdatedAt = now

	conf := pattern.Confidence{}
	if p.Confidence != nil {
		conf = *p.Confidence
	}
	conf.GroundingCount++
	conf.LastGrounded = &now
	boosted.Confidence = &conf

	if e.states != nil {
		st := e.states.LoadState(ctx, p.ID, p.Tenant)
		st.FeedbackCount++
		st.LastUsed = now
		st.DecayStrikes = 0
		if err := e.states.SaveState(ctx, st, p.Level); err != nil {
			e.logger.Warn("persisting boost state failed",
				zap.String("pattern_id", p.ID),
				zap.Error(err))
		}
	}
	metrics.QualityBoosts.Inc()

	return &boosted
}

// RunDecayJob applies decay to every pattern in the batch and records which
// ones crossed below the threshold as they decayed.
//
// The job mutates the supplied patterns in place (they are the caller's batch
// copies) and writes decay bookkeeping through the state store when one is
// wired. Each run is idempotent with respect to scheduling: scores depend on
// elapsed time, not run count.
func (e *Engine) RunDecayJob(ctx context.Context, patterns []*pattern.Pattern, threshold int) *DecayJobResult {
	if threshold <= 0 {
		threshold = e.config.DecayThreshold
	}

	result := &DecayJobResult{
		Timestamp:             e.now(),
		DroppedBelowThreshold: []string{},
	}

	for _, p := range patterns {
		before := p.QualityScore
		decayed := e.ApplyDecay(p)
		p.QualityScore = decayed.QualityScore
		result.ProcessedCount++

		if before >= threshold && p.QualityScore < threshold {
			result.DroppedBelowThreshold = append(result.DroppedBelowThreshold, p.ID)
		}

		if e.states != nil {
			st := e.states.LoadState(ctx, p.ID, p.Tenant)
			if before > 0 {
				st.DecayFactor = float64(p.QualityScore) / float64(before)
			}
			if p.QualityScore < threshold {
				st.DecayStrikes++
			} else {
				st.DecayStrikes = 0
			}
			if err := e.states.SaveState(ctx, st, p.Level); err != nil {
				e.logger.Warn("persisting decay state failed",
					zap.String("pattern_id", p.ID),
					zap.Error(err))
			}
		}
	}

	metrics.DecayRuns.Inc()
	metrics.DecayDropped.Add(float64(len(result.DroppedBelowThreshold)))
	e.logger.Info("decay job completed",
		zap.Int("processed", result.ProcessedCount),
		zap.Int("dropped", len(result.DroppedBelowThreshold)))

	return result
}

// GetDecayPreview projects the score after the given number of additional
// days of disuse. Pure: neither the pattern nor any stored state changes.
func (e *Engine) GetDecayPreview(p *pattern.Pattern, days int) *DecayPreview {
	var sinceLastUse float64
	if last, ok := p.LastActivity(); ok {
		sinceLastUse = e.now().Sub(last).Hours() / 24
		if sinceLastUse < 0 {
			sinceLastUse = 0
		}
	}

	projected := e.decayedScore(p.QualityScore, sinceLastUse+float64(days), p.Metadata.SuccessRate)
	return &DecayPreview{
		CurrentScore:           p.QualityScore,
		ProjectedScore:         projected,
		DecayAmount:            p.QualityScore - projected,
		DaysSinceLastUse:       sinceLastUse,
		WillDropBelowThreshold: projected < e.config.DecayThreshold,
	}
}
