package anomaly

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/patternd/internal/qdrant"
)

// fakeDocClient records upserts in memory.
type fakeDocClient struct {
	collections map[string]uint64
	points      map[uint64]*qdrant.Point
	healthErr   error
	upsertErr   error
}

func newFakeDocClient() *fakeDocClient {
	return &fakeDocClient{
		collections: make(map[string]uint64),
		points:      make(map[uint64]*qdrant.Point),
	}
}

func (f *fakeDocClient) EnsureCollection(_ context.Context, name string, vectorSize uint64) error {
	f.collections[name] = vectorSize
	return nil
}

func (f *fakeDocClient) Upsert(_ context.Context, _ string, points []*qdrant.Point) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeDocClient) Scroll(_ context.Context, _ string, filter *qdrant.Filter, _ uint32) ([]*qdrant.Point, error) {
	var out []*qdrant.Point
	for _, p := range f.points {
		match := true
		for _, cond := range filter.Must {
			if p.Payload[cond.Field] != cond.Match {
				match = false
				break
			}
		}
		if match {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeDocClient) Health(_ context.Context) error { return f.healthErr }
func (f *fakeDocClient) Close() error                   { return nil }

func openAnomaly(id string) *DetectedAnomaly {
	return &DetectedAnomaly{
		ID:          id,
		Type:        TypeBurstCreation,
		Severity:    SeverityLow,
		EntityType:  "tenant",
		EntityID:    "acme",
		Tenant:      "acme",
		Description: "25 patterns created within 1h",
		DetectedAt:  time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		Status:      StatusOpen,
	}
}

func TestAnomalyStore_RecordAndGet(t *testing.T) {
	s := NewAnomalyStore(nil, "", nil)
	s.Record(context.Background(), openAnomaly("a1"))

	got, err := s.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrAnomalyNotFound)
}

func TestAnomalyStore_ListByTenant(t *testing.T) {
	s := NewAnomalyStore(nil, "", nil)
	s.Record(context.Background(), openAnomaly("a1"))

	other := openAnomaly("a2")
	other.Tenant = "beta"
	s.Record(context.Background(), other)

	assert.Len(t, s.List("acme"), 1)
	assert.Len(t, s.List("beta"), 1)
	assert.Len(t, s.List(""), 2)
	assert.Empty(t, s.List("ghost"))
}

func TestAnomalyStore_LifecycleOrdering(t *testing.T) {
	s := NewAnomalyStore(nil, "", nil)
	ctx := context.Background()
	s.Record(ctx, openAnomaly("a1"))

	// Resolving an open anomaly skips acknowledgement: rejected.
	err := s.Resolve(ctx, "a1", "admin-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.Acknowledge(ctx, "a1", "admin-1"))
	got, err := s.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, StatusAcknowledged, got.Status)
	assert.Equal(t, "admin-1", got.AcknowledgedBy)
	require.NotNil(t, got.AcknowledgedAt)

	// Double acknowledge is rejected.
	err = s.Acknowledge(ctx, "a1", "admin-2")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.Resolve(ctx, "a1", "admin-2"))
	got, err = s.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, got.Status)
	assert.Equal(t, "admin-2", got.ResolvedBy)

	// Resolved findings are immutable.
	assert.ErrorIs(t, s.Acknowledge(ctx, "a1", "admin-3"), ErrAlreadyResolved)
	assert.ErrorIs(t, s.Resolve(ctx, "a1", "admin-3"), ErrAlreadyResolved)
}

func TestAnomalyStore_LifecycleUnknownID(t *testing.T) {
	s := NewAnomalyStore(nil, "", nil)
	assert.ErrorIs(t, s.Acknowledge(context.Background(), "nope", "admin-1"), ErrAnomalyNotFound)
	assert.ErrorIs(t, s.Resolve(context.Background(), "nope", "admin-1"), ErrAnomalyNotFound)
}

func TestAnomalyStore_PersistsThrough(t *testing.T) {
	client := newFakeDocClient()
	s := NewAnomalyStore(client, "findings", nil)

	a := openAnomaly("a1")
	s.Record(context.Background(), a)

	assert.Equal(t, uint64(anomalyVectorSize), client.collections["findings"])
	point, ok := client.points[a.PointID()]
	require.True(t, ok)
	assert.Equal(t, "acme", point.Payload["tenant"])
	assert.Equal(t, "burst_creation", point.Payload["type"])
	assert.Equal(t, "2026-09-01T12:00:00Z", point.Payload["detected_at"])
	assert.Len(t, point.Vector, anomalyVectorSize)
}

func TestAnomalyStore_PersistFailureStaysInProcess(t *testing.T) {
	client := newFakeDocClient()
	client.upsertErr = errors.New("connection refused")
	s := NewAnomalyStore(client, "findings", nil)

	s.Record(context.Background(), openAnomaly("a1"))

	// Write-through failed, but the finding is still indexed and mutable.
	_, err := s.Get("a1")
	require.NoError(t, err)
	assert.NoError(t, s.Acknowledge(context.Background(), "a1", "admin-1"))
}

func TestAnomalyStore_ListPersisted(t *testing.T) {
	client := newFakeDocClient()
	s := NewAnomalyStore(client, "findings", nil)
	ctx := context.Background()

	s.Record(ctx, openAnomaly("a1"))
	other := openAnomaly("a2")
	other.Tenant = "beta"
	other.EntityID = "beta"
	s.Record(ctx, other)

	points, err := s.ListPersisted(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "acme", points[0].Payload["tenant"])
}

func TestAnomalyStore_IsAvailable(t *testing.T) {
	assert.False(t, NewAnomalyStore(nil, "", nil).IsAvailable(context.Background()))

	client := newFakeDocClient()
	s := NewAnomalyStore(client, "", nil)
	assert.True(t, s.IsAvailable(context.Background()))

	client.healthErr = errors.New("unreachable")
	assert.False(t, s.IsAvailable(context.Background()))
}

func TestPointID_DeterministicPerDay(t *testing.T) {
	a := openAnomaly("a1")
	b := openAnomaly("a2") // different UUID, same type/tenant/day
	b.DetectedAt = a.DetectedAt.Add(3 * time.Hour)

	assert.Equal(t, a.PointID(), b.PointID())

	// Different day yields a different point.
	c := openAnomaly("a3")
	c.DetectedAt = a.DetectedAt.Add(24 * time.Hour)
	assert.NotEqual(t, a.PointID(), c.PointID())

	// Different tenant yields a different point.
	d := openAnomaly("a4")
	d.Tenant = "beta"
	assert.NotEqual(t, a.PointID(), d.PointID())
}

func TestIndexVector_UnitRange(t *testing.T) {
	v := openAnomaly("a1").IndexVector()
	require.Len(t, v, anomalyVectorSize)
	for _, x := range v {
		assert.GreaterOrEqual(t, x, float32(0))
		assert.Less(t, x, float32(1.0000001))
	}
}

func TestFlatten(t *testing.T) {
	a := openAnomaly("a1")
	ts := time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC)
	a.Evidence = []Evidence{{Type: "pattern_created", Value: "p1", Timestamp: &ts}}
	a.Status = StatusAcknowledged
	a.AcknowledgedBy = "admin-1"
	a.AcknowledgedAt = &ts

	payload := a.flatten()
	assert.Equal(t, "a1", payload["id"])
	assert.Equal(t, "acknowledged", payload["status"])
	assert.Equal(t, "admin-1", payload["acknowledged_by"])
	assert.Equal(t, "2026-09-01T13:00:00Z", payload["acknowledged_at"])
	assert.Contains(t, payload["evidence"], `"value":"p1"`)
	_, hasResolved := payload["resolved_by"]
	assert.False(t, hasResolved)
}
