package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

// testEngine returns an engine with a pinned clock and no state store.
func testEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(Config{}, nil, nil)
	e.now = func() time.Time { return testNow }
	return e
}

// completePattern has every structural checkpoint present and was just
// created, with no usage history yet.
func completePattern() *pattern.Pattern {
	return &pattern.Pattern{
		ID:                 "p1",
		Name:               "table-driven-tests",
		Description:        "prefer table-driven tests for parser edge cases",
		Sections:           []string{"testing"},
		ApplicabilityRules: []string{"language == go"},
		Workflows:          []string{"add-case"},
		Level:              pattern.LevelUser,
		Tenant:             pattern.TenantKey{UserID: "u1", OrgID: "acme"},
		Metadata: pattern.Metadata{
			CreatedAt: testNow,
			UpdatedAt: testNow,
		},
	}
}

func TestWeightsSumToOne(t *testing.T) {
	sum := WeightUsageFrequency + WeightAcceptanceRate + WeightConsistency +
		WeightRecency + WeightCompleteness
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestCalculateScore_FreshCompletePattern(t *testing.T) {
	e := testEngine(t)
	p := completePattern()

	// Neutral usage, neutral acceptance, neutral consistency, full recency,
	// full completeness.
	assert.Equal(t, 60, e.CalculateScore(p))
}

func TestCalculateScore_AlwaysInRange(t *testing.T) {
	e := testEngine(t)

	tests := []struct {
		name string
		p    *pattern.Pattern
	}{
		{"zero value", &pattern.Pattern{}},
		{"no confidence", &pattern.Pattern{Name: "x", Metadata: pattern.Metadata{UsageCount: 500, SuccessRate: 1.0, UpdatedAt: testNow}}},
		{"no metadata", &pattern.Pattern{Name: "x", Confidence: &pattern.Confidence{Base: 1.0, GroundingCount: 100}}},
		{"everything maxed", func() *pattern.Pattern {
			p := completePattern()
			p.Metadata.UsageCount = 200
			p.Metadata.SuccessRate = 1.0
			p.Confidence = &pattern.Confidence{Base: 1.0, GroundingCount: 50, LastGrounded: &testNow}
			return p
		}()},
		{"stale and unsuccessful", func() *pattern.Pattern {
			p := completePattern()
			old := testNow.Add(-500 * 24 * time.Hour)
			p.Metadata.UpdatedAt = old
			p.Metadata.UsageCount = 1
			p.Metadata.SuccessRate = 0.01
			return p
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := e.CalculateScore(tt.p)
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, 100)
		})
	}
}

func TestUsageFrequencyScore_Bands(t *testing.T) {
	tests := []struct {
		usage int
		want  int
	}{
		{0, 50},
		{1, 20},
		{4, 20},
		{5, 40},
		{19, 40},
		{20, 60},
		{49, 60},
		{50, 80},
		{99, 80},
		{100, 100},
		{5000, 100},
	}
	for _, tt := range tests {
		p := &pattern.Pattern{Metadata: pattern.Metadata{UsageCount: tt.usage}}
		assert.Equal(t, tt.want, usageFrequencyScore(p), "usage=%d", tt.usage)
	}
}

func TestAcceptanceRateScore(t *testing.T) {
	// Cold start is neutral, not zero.
	cold := &pattern.Pattern{}
	assert.Equal(t, 50, acceptanceRateScore(cold))

	used := &pattern.Pattern{Metadata: pattern.Metadata{UsageCount: 10, SuccessRate: 0.85}}
	assert.Equal(t, 85, acceptanceRateScore(used))

	failed := &pattern.Pattern{Metadata: pattern.Metadata{UsageCount: 10, SuccessRate: 0}}
	assert.Equal(t, 0, acceptanceRateScore(failed))
}

func TestConsistencyScore(t *testing.T) {
	none := &pattern.Pattern{}
	assert.Equal(t, 50, consistencyScore(none))

	some := &pattern.Pattern{Confidence: &pattern.Confidence{Base: 0.5, GroundingCount: 3}}
	assert.Equal(t, 55, consistencyScore(some))

	// Grounding contribution caps at 50.
	maxed := &pattern.Pattern{Confidence: &pattern.Confidence{Base: 1.0, GroundingCount: 500}}
	assert.Equal(t, 100, consistencyScore(maxed))
}

func TestRecencyScore_Bands(t *testing.T) {
	e := testEngine(t)

	tests := []struct {
		daysAgo int
		want    int
	}{
		{0, 100},
		{7, 100},
		{8, 80},
		{30, 80},
		{31, 60},
		{90, 60},
		{91, 40},
		{180, 40},
		{181, 20},
		{365, 20},
		{366, 10},
	}
	for _, tt := range tests {
		last := testNow.Add(-time.Duration(tt.daysAgo) * 24 * time.Hour)
		p := &pattern.Pattern{Metadata: pattern.Metadata{UpdatedAt: last}}
		assert.Equal(t, tt.want, e.recencyScore(p), "daysAgo=%d", tt.daysAgo)
	}

	never := &pattern.Pattern{}
	assert.Equal(t, 50, e.recencyScore(never))
}

func TestCompletenessScore(t *testing.T) {
	assert.Equal(t, 0, completenessScore(&pattern.Pattern{}))
	assert.Equal(t, 20, completenessScore(&pattern.Pattern{Name: "x"}))
	assert.Equal(t, 100, completenessScore(completePattern()))
}

func TestFactors_MissingFieldsAreNeutral(t *testing.T) {
	e := testEngine(t)

	f := e.Factors(&pattern.Pattern{})
	assert.Equal(t, 50, f.UsageFrequency)
	assert.Equal(t, 50, f.AcceptanceRate)
	assert.Equal(t, 50, f.Consistency)
	assert.Equal(t, 50, f.Recency)
	assert.Equal(t, 0, f.Completeness)
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	require.Equal(t, 30*24*time.Hour, cfg.HalfLife)
	assert.Equal(t, 10, cfg.MinScore)
	assert.Equal(t, 2, cfg.UsageBoost)
	assert.Equal(t, 0.5, cfg.AcceptanceWeight)
	assert.Equal(t, 30, cfg.DecayThreshold)
}
