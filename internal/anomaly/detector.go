package anomaly

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/metrics"
	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

// PatternSource supplies the externally-owned pattern collection the
// detectors scan. The repository layer implements it; tests use fixtures.
type PatternSource interface {
	// ListPatterns returns all patterns belonging to a tenant.
	ListPatterns(ctx context.Context, tenant string) ([]*pattern.Pattern, error)

	// ListTenants returns every tenant with at least one pattern.
	ListTenants(ctx context.Context) ([]string, error)
}

// Scorer computes a pattern's quality score. The quality engine implements it.
type Scorer interface {
	CalculateScore(p *pattern.Pattern) int
}

// Config holds detection thresholds and sweep tuning.
type Config struct {
	// BurstWindow is the trailing window for burst detection. Default: 1h.
	BurstWindow time.Duration `koanf:"burst_window"`

	// BurstThreshold fires burst detection when exceeded. Default: 20.
	BurstThreshold int `koanf:"burst_threshold"`

	// BurstMedium and BurstHigh band the burst severity. Defaults: 30, 50.
	BurstMedium int `koanf:"burst_medium"`
	BurstHigh   int `koanf:"burst_high"`

	// FloodRatio fires flood detection when exceeded. Default: 0.5.
	FloodRatio float64 `koanf:"flood_ratio"`

	// FloodMedium and FloodHigh band the flood severity. Defaults: 0.65, 0.8.
	FloodMedium float64 `koanf:"flood_medium"`
	FloodHigh   float64 `koanf:"flood_high"`

	// LowScoreThreshold is the quality score below which a pattern counts
	// toward the flood ratio. Default: 30.
	LowScoreThreshold int `koanf:"low_score_threshold"`

	// DuplicateMedium and DuplicateHigh band duplicate-spam severity by
	// total excess duplicates. Defaults: 5, 10.
	DuplicateMedium int `koanf:"duplicate_medium"`
	DuplicateHigh   int `koanf:"duplicate_high"`

	// SweepWorkers bounds concurrent per-tenant sweeps. Default: 4.
	SweepWorkers int `koanf:"sweep_workers"`

	// Collection is the document-store collection for findings.
	// Default: "pattern_anomalies".
	Collection string `koanf:"collection"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BurstWindow == 0 {
		c.BurstWindow = time.Hour
	}
	if c.BurstThreshold == 0 {
		c.BurstThreshold = 20
	}
	if c.BurstMedium == 0 {
		c.BurstMedium = 30
	}
	if c.BurstHigh == 0 {
		c.BurstHigh = 50
	}
	if c.FloodRatio == 0 {
		c.FloodRatio = 0.5
	}
	if c.FloodMedium == 0 {
		c.FloodMedium = 0.65
	}
	if c.FloodHigh == 0 {
		c.FloodHigh = 0.8
	}
	if c.LowScoreThreshold == 0 {
		c.LowScoreThreshold = 30
	}
	if c.DuplicateMedium == 0 {
		c.DuplicateMedium = 5
	}
	if c.DuplicateHigh == 0 {
		c.DuplicateHigh = 10
	}
	if c.SweepWorkers == 0 {
		c.SweepWorkers = 4
	}
	if c.Collection == "" {
		c.Collection = "pattern_anomalies"
	}
}

// Detector runs the three abuse-signature detectors over tenant pattern
// populations.
//
// Sweeps over distinct tenants run concurrently under a bounded worker pool;
// a tenant's three detectors run together on one worker, so writes for the
// same tenant are naturally serialized within a sweep.
type Detector struct {
	config  Config
	source  PatternSource
	scorer  Scorer
	store   *AnomalyStore
	logger  *zap.Logger
	now     func() time.Time
}

// NewDetector creates a detector. store may be nil to keep findings in
// process only.
func NewDetector(config Config, source PatternSource, scorer Scorer, store *AnomalyStore, logger *zap.Logger) (*Detector, error) {
	if source == nil {
		return nil, fmt.Errorf("pattern source cannot be nil")
	}
	if scorer == nil {
		return nil, fmt.Errorf("scorer cannot be nil")
	}
	config.ApplyDefaults()
	if store == nil {
		store = NewAnomalyStore(nil, config.Collection, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		config: config,
		source: source,
		scorer: scorer,
		store:  store,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Store exposes the finding store for lifecycle operations.
func (d *Detector) Store() *AnomalyStore {
	return d.store
}

// RunDetectionSweep runs all three detectors for the given tenant, or for
// every tenant with at least one pattern when tenant is empty.
func (d *Detector) RunDetectionSweep(ctx context.Context, tenant string) ([]*DetectionResult, error) {
	start := d.now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	tenants := []string{tenant}
	if tenant == "" {
		all, err := d.source.ListTenants(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing tenants: %w", err)
		}
		tenants = all
	}

	var (
		mu      sync.Mutex
		results []*DetectionResult
		wg      sync.WaitGroup
		sem     = make(chan struct{}, d.config.SweepWorkers)
	)

	for _, t := range tenants {
		wg.Add(1)
		sem <- struct{}{}
		go func(tenant string) {
			defer wg.Done()
			defer func() { <-sem }()

			result := d.sweepTenant(ctx, tenant)
			if result == nil {
				return
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(t)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Tenant < results[j].Tenant })
	return results, nil
}

// sweepTenant runs the three detectors for one tenant and persists findings.
// Detection reads are total: a pattern-source failure logs and yields nil
// rather than failing the whole sweep.
func (d *Detector) sweepTenant(ctx context.Context, tenant string) *DetectionResult {
	patterns, err := d.source.ListPatterns(ctx, tenant)
	if err != nil {
		d.logger.Warn("listing tenant patterns failed, skipping sweep",
			zap.String("tenant", tenant),
			zap.Error(err))
		return nil
	}

	result := &DetectionResult{
		Tenant:          tenant,
		Anomalies:       []*DetectedAnomaly{},
		ScannedEntities: len(patterns),
		SweepAt:         d.now(),
	}
	if len(patterns) == 0 {
		return result
	}

	if a := d.detectBurstCreation(tenant, patterns); a != nil {
		result.Anomalies = append(result.Anomalies, a)
	}
	if a := d.detectLowQualityFlood(tenant, patterns); a != nil {
		result.Anomalies = append(result.Anomalies, a)
	}
	if a := d.detectDuplicateSpam(tenant, patterns); a != nil {
		result.Anomalies = append(result.Anomalies, a)
	}

	for _, a := range result.Anomalies {
		d.store.Record(ctx, a)
		metrics.AnomaliesDetected.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
		d.logger.Info("anomaly detected",
			zap.String("tenant", tenant),
			zap.String("type", string(a.Type)),
			zap.String("severity", string(a.Severity)),
			zap.Int("evidence", len(a.Evidence)))
	}

	return result
}

// detectBurstCreation counts patterns created inside the trailing window.
func (d *Detector) detectBurstCreation(tenant string, patterns []*pattern.Pattern) *DetectedAnomaly {
	cutoff := d.now().Add(-d.config.BurstWindow)

	var evidence []Evidence
	for _, p := range patterns {
		if p.Metadata.CreatedAt.After(cutoff) {
			created := p.Metadata.CreatedAt
			evidence = append(evidence, Evidence{
				Type:      "pattern_created",
				Value:     p.ID,
				Timestamp: &created,
			})
		}
	}

	count := len(evidence)
	if count <= d.config.BurstThreshold {
		return nil
	}

	severity := SeverityLow
	switch {
	case count > d.config.BurstHigh:
		severity = SeverityHigh
	case count > d.config.BurstMedium:
		severity = SeverityMedium
	}

	return d.newAnomaly(tenant, TypeBurstCreation, severity,
		fmt.Sprintf("%d patterns created within %s (threshold %d)",
			count, d.config.BurstWindow, d.config.BurstThreshold),
		evidence)
}

// detectLowQualityFlood checks the ratio of low-scoring patterns.
func (d *Detector) detectLowQualityFlood(tenant string, patterns []*pattern.Pattern) *DetectedAnomaly {
	var evidence []Evidence
	for _, p := range patterns {
		if d.scorer.CalculateScore(p) < d.config.LowScoreThreshold {
			evidence = append(evidence, Evidence{
				Type:  "low_quality_pattern",
				Value: p.ID,
			})
		}
	}

	ratio := float64(len(evidence)) / float64(len(patterns))
	if ratio <= d.config.FloodRatio {
		return nil
	}

	severity := SeverityLow
	switch {
	case ratio > d.config.FloodHigh:
		severity = SeverityHigh
	case ratio > d.config.FloodMedium:
		severity = SeverityMedium
	}

	return d.newAnomaly(tenant, TypeLowQualityFlood, severity,
		fmt.Sprintf("%.0f%% of %d patterns score below %d",
			ratio*100, len(patterns), d.config.LowScoreThreshold),
		evidence)
}

// detectDuplicateSpam groups patterns by normalized name.
func (d *Detector) detectDuplicateSpam(tenant string, patterns []*pattern.Pattern) *DetectedAnomaly {
	groups := make(map[string][]string)
	for _, p := range patterns {
		key := normalizeName(p.Name)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], p.ID)
	}

	var evidence []Evidence
	excess := 0
	for name, ids := range groups {
		if len(ids) <= 1 {
			continue
		}
		excess += len(ids) - 1
		evidence = append(evidence, Evidence{
			Type:  "duplicate_name",
			Value: fmt.Sprintf("%s (x%d)", name, len(ids)),
		})
	}
	if len(evidence) == 0 {
		return nil
	}
	sort.Slice(evidence, func(i, j int) bool { return evidence[i].Value < evidence[j].Value })

	severity := SeverityLow
	switch {
	case excess > d.config.DuplicateHigh:
		severity = SeverityHigh
	case excess > d.config.DuplicateMedium:
		severity = SeverityMedium
	}

	return d.newAnomaly(tenant, TypeDuplicateSpam, severity,
		fmt.Sprintf("%d duplicate pattern names across %d groups", excess, len(evidence)),
		evidence)
}

func (d *Detector) newAnomaly(tenant string, typ Type, severity Severity, description string, evidence []Evidence) *DetectedAnomaly {
	return &DetectedAnomaly{
		ID:          uuid.New().String(),
		Type:        typ,
		Severity:    severity,
		EntityType:  "tenant",
		EntityID:    tenant,
		Tenant:      tenant,
		Description: description,
		Evidence:    evidence,
		DetectedAt:  d.now(),
		Status:      StatusOpen,
	}
}

// normalizeName lowercases a pattern name and collapses internal whitespace,
// so case and spacing variants land in the same duplicate group.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
