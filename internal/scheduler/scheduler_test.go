package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/anomaly"
	"github.com/fyrsmithlabs/patternd/internal/pattern"
	"github.com/fyrsmithlabs/patternd/internal/quality"
	"github.com/fyrsmithlabs/patternd/internal/statestore"
)

// countingSource serves a fixed snapshot and counts listings.
type countingSource struct {
	listCalls atomic.Int64
}

func (s *countingSource) ListPatterns(ctx context.Context, tenant string) ([]*pattern.Pattern, error) {
	p, _ := pattern.New(pattern.TenantKey{UserID: "u1", OrgID: tenant}, "decay scheduling")
	p.QualityScore = 80
	p.Metadata.CreatedAt = time.Now().Add(-45 * 24 * time.Hour)
	return []*pattern.Pattern{p}, nil
}

func (s *countingSource) ListTenants(ctx context.Context) ([]string, error) {
	s.listCalls.Add(1)
	return []string{"acme"}, nil
}

func testScheduler(t *testing.T, source anomaly.PatternSource, opts ...Option) *Scheduler {
	t.Helper()

	states := statestore.NewStateStore(statestore.NewMemoryStore(), nil)
	engine := quality.NewEngine(quality.Config{}, states, zap.NewNop())

	detector, err := anomaly.NewDetector(anomaly.Config{}, source, engine, anomaly.NewAnomalyStore(nil, "anomalies", nil), zap.NewNop())
	require.NoError(t, err)

	sched, err := New(engine, detector, source, zap.NewNop(), opts...)
	require.NoError(t, err)
	return sched
}

func TestNew_Validation(t *testing.T) {
	source := &countingSource{}
	states := statestore.NewStateStore(statestore.NewMemoryStore(), nil)
	engine := quality.NewEngine(quality.Config{}, states, zap.NewNop())
	detector, err := anomaly.NewDetector(anomaly.Config{}, source, engine, anomaly.NewAnomalyStore(nil, "anomalies", nil), zap.NewNop())
	require.NoError(t, err)

	_, err = New(nil, detector, source, zap.NewNop())
	assert.ErrorContains(t, err, "quality engine")

	_, err = New(engine, nil, source, zap.NewNop())
	assert.ErrorContains(t, err, "anomaly detector")

	_, err = New(engine, detector, nil, zap.NewNop())
	assert.ErrorContains(t, err, "pattern source")

	_, err = New(engine, detector, source, nil)
	assert.ErrorContains(t, err, "logger")
}

func TestOptions(t *testing.T) {
	sched := testScheduler(t, &countingSource{},
		WithDecayInterval(5*time.Minute),
		WithSweepInterval(time.Minute),
		WithDecayThreshold(40),
	)

	assert.Equal(t, 5*time.Minute, sched.decayInterval)
	assert.Equal(t, time.Minute, sched.sweepInterval)
	assert.Equal(t, 40, sched.decayThreshold)
}

func TestScheduler_StartIsExclusive(t *testing.T) {
	sched := testScheduler(t, &countingSource{})

	require.NoError(t, sched.Start())
	defer sched.Stop()

	err := sched.Start()
	assert.ErrorContains(t, err, "already running")
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	sched := testScheduler(t, &countingSource{})

	require.NoError(t, sched.Start())
	require.NoError(t, sched.Stop())
	assert.NoError(t, sched.Stop())
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	sched := testScheduler(t, &countingSource{})
	assert.NoError(t, sched.Stop())
}

func TestScheduler_JobsRun(t *testing.T) {
	source := &countingSource{}
	sched := testScheduler(t, source,
		WithDecayInterval(10*time.Millisecond),
		WithSweepInterval(10*time.Millisecond),
	)

	require.NoError(t, sched.Start())
	defer sched.Stop()

	// Both loops list tenants, so a couple of ticks is enough to prove
	// the jobs fire.
	assert.Eventually(t, func() bool {
		return source.listCalls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_RestartAfterStop(t *testing.T) {
	source := &countingSource{}
	sched := testScheduler(t, source,
		WithDecayInterval(10*time.Millisecond),
		WithSweepInterval(10*time.Millisecond),
	)

	require.NoError(t, sched.Start())
	require.NoError(t, sched.Stop())

	require.NoError(t, sched.Start())
	defer sched.Stop()

	assert.Eventually(t, func() bool {
		return source.listCalls.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)
}
