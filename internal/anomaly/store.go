package anomaly

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/qdrant"
)

// anomalyVectorSize is the dimensionality of the indexing vector. The vector
// is derived from hashed categorical fields purely to satisfy the document
// store's indexing API; it is not an embedding.
const anomalyVectorSize = 4

// scrollLimit bounds the read path when listing a tenant's persisted findings.
const scrollLimit = 256

// AnomalyStore holds findings in an in-process index and writes them through
// best-effort to the external document store.
//
// The in-process index is always authoritative for lifecycle operations. When
// the external store is unavailable, findings remain valid in process only;
// callers who require durability must check IsAvailable.
type AnomalyStore struct {
	client     qdrant.Client
	collection string
	logger     *zap.Logger

	mu    sync.RWMutex
	index map[string]*DetectedAnomaly
	ready bool
}

// NewAnomalyStore creates a finding store. client may be nil to keep findings
// in process only.
func NewAnomalyStore(client qdrant.Client, collection string, logger *zap.Logger) *AnomalyStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collection == "" {
		collection = "pattern_anomalies"
	}
	return &AnomalyStore{
		client:     client,
		collection: collection,
		logger:     logger,
		index:      make(map[string]*DetectedAnomaly),
	}
}

// IsAvailable reports whether the external document store answered its most
// recent health probe. Always false when no client is wired.
func (s *AnomalyStore) IsAvailable(ctx context.Context) bool {
	if s.client == nil {
		return false
	}
	if err := s.client.Health(ctx); err != nil {
		s.mu.Lock()
		s.ready = false
		s.mu.Unlock()
		return false
	}
	return true
}

// Record indexes a finding and writes it through to the document store.
// Write-through failures are logged, never propagated: detection must not
// fail because the durability layer is down.
func (s *AnomalyStore) Record(ctx context.Context, a *DetectedAnomaly) {
	s.mu.Lock()
	s.index[a.ID] = a
	s.mu.Unlock()

	s.persist(ctx, a)
}

// Get returns a finding by ID from the in-process index.
func (s *AnomalyStore) Get(id string) (*DetectedAnomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.index[id]
	if !ok {
		return nil, ErrAnomalyNotFound
	}
	copied := *a
	return &copied, nil
}

// List returns the indexed findings for a tenant, or all findings when
// tenant is empty.
func (s *AnomalyStore) List(tenant string) []*DetectedAnomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*DetectedAnomaly, 0, len(s.index))
	for _, a := range s.index {
		if tenant != "" && a.Tenant != tenant {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}
	return out
}

// Acknowledge moves an open finding to acknowledged.
func (s *AnomalyStore) Acknowledge(ctx context.Context, id, by string) error {
	return s.transition(ctx, id, by, StatusOpen, StatusAcknowledged)
}

// Resolve moves an acknowledged finding to resolved. Resolved findings are
// immutable.
func (s *AnomalyStore) Resolve(ctx context.Context, id, by string) error {
	return s.transition(ctx, id, by, StatusAcknowledged, StatusResolved)
}

func (s *AnomalyStore) transition(ctx context.Context, id, by string, from, to Status) error {
	s.mu.Lock()
	a, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return ErrAnomalyNotFound
	}
	if a.Status == StatusResolved {
		s.mu.Unlock()
		return ErrAlreadyResolved
	}
	if a.Status != from {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}

	now := time.Now()
	a.Status = to
	switch to {
	case StatusAcknowledged:
		a.AcknowledgedBy = by
		a.AcknowledgedAt = &now
	case StatusResolved:
		a.ResolvedBy = by
		a.ResolvedAt = &now
	}
	copied := *a
	s.mu.Unlock()

	s.persist(ctx, &copied)
	return nil
}

// persist upserts a finding into the document store, best-effort.
func (s *AnomalyStore) persist(ctx context.Context, a *DetectedAnomaly) {
	if s.client == nil {
		return
	}

	s.mu.Lock()
	needSetup := !s.ready
	s.mu.Unlock()

	if needSetup {
		if err := s.client.EnsureCollection(ctx, s.collection, anomalyVectorSize); err != nil {
			s.logger.Warn("ensuring anomaly collection failed",
				zap.String("collection", s.collection),
				zap.Error(err))
			return
		}
		s.mu.Lock()
		s.ready = true
		s.mu.Unlock()
	}

	point := &qdrant.Point{
		ID:      a.PointID(),
		Vector:  a.IndexVector(),
		Payload: a.flatten(),
	}
	if err := s.client.Upsert(ctx, s.collection, []*qdrant.Point{point}); err != nil {
		s.logger.Warn("persisting anomaly failed, finding remains in-process only",
			zap.String("anomaly_id", a.ID),
			zap.Error(err))
	}
}

// ListPersisted reads a tenant's findings back from the document store.
func (s *AnomalyStore) ListPersisted(ctx context.Context, tenant string) ([]*qdrant.Point, error) {
	if s.client == nil {
		return nil, fmt.Errorf("no document store configured")
	}
	filter := &qdrant.Filter{
		Must: []qdrant.Condition{{Field: "tenant", Match: tenant}},
	}
	return s.client.Scroll(ctx, s.collection, filter, scrollLimit)
}

// PointID derives the deterministic numeric point ID for the finding.
//
// The key is type|tenant|UTC-day, so repeated sweeps over an unresolved
// condition upsert the same row within a day instead of accumulating
// duplicates.
func (a *DetectedAnomaly) PointID() uint64 {
	day := a.DetectedAt.UTC().Format("2006-01-02")
	sum := sha1.Sum([]byte(string(a.Type) + "|" + a.Tenant + "|" + day))
	return binary.BigEndian.Uint64(sum[:8])
}

// IndexVector derives the 4-dimensional indexing vector from hashed
// categorical fields. Opaque indexing key only.
func (a *DetectedAnomaly) IndexVector() []float32 {
	return []float32{
		hashUnit(string(a.Type)),
		hashUnit(a.Tenant),
		hashUnit(string(a.Severity)),
		hashUnit(string(a.Status)),
	}
}

// hashUnit maps a string into [0, 1) via FNV-1a.
func hashUnit(s string) float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return float32(h.Sum32()) / float32(^uint32(0))
}

// flatten produces the document-store payload: scalar fields plus ISO-8601
// timestamps, with evidence JSON-stringified.
func (a *DetectedAnomaly) flatten() map[string]interface{} {
	payload := map[string]interface{}{
		"id":          a.ID,
		"type":        string(a.Type),
		"severity":    string(a.Severity),
		"entity_type": a.EntityType,
		"entity_id":   a.EntityID,
		"tenant":      a.Tenant,
		"description": a.Description,
		"detected_at": a.DetectedAt.UTC().Format(time.RFC3339),
		"status":      string(a.Status),
	}

	if evidence, err := json.Marshal(a.Evidence); err == nil {
		payload["evidence"] = string(evidence)
	}
	if a.AcknowledgedBy != "" {
		payload["acknowledged_by"] = a.AcknowledgedBy
	}
	if a.AcknowledgedAt != nil {
		payload["acknowledged_at"] = a.AcknowledgedAt.UTC().Format(time.RFC3339)
	}
	if a.ResolvedBy != "" {
		payload["resolved_by"] = a.ResolvedBy
	}
	if a.ResolvedAt != nil {
		payload["resolved_at"] = a.ResolvedAt.UTC().Format(time.RFC3339)
	}
	return payload
}
