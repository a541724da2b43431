package statestore

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

// Hash field names for persisted adaptive state.
const (
	fieldWeight           = "weight"
	fieldFeedbackCount    = "feedback_count"
	fieldLastUsed         = "last_used"
	fieldDecayFactor      = "decay_factor"
	fieldGraduationStatus = "graduation_status"
	fieldDecayStrikes     = "decay_strikes"
	fieldLevel            = "level"
	fieldUserID           = "user_id"
	fieldProjectID        = "project_id"
	fieldOrgID            = "org_id"
	fieldCreatedAt        = "created_at"
	fieldUpdatedAt        = "updated_at"
)

// StateStore is the typed facade components use for adaptive pattern state.
//
// All read methods are total: on backend absence or error they return defined
// defaults (weight 0.5, level user, active status) and record the degradation
// in the log rather than failing the caller.
type StateStore struct {
	store  Store
	logger *zap.Logger
}

// NewStateStore wraps a Store with the typed facade.
func NewStateStore(store Store, logger *zap.Logger) *StateStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateStore{store: store, logger: logger}
}

// Raw exposes the underlying Store for components that speak primitives
// directly (the rate limiter's pipeline, counters).
func (s *StateStore) Raw() Store {
	return s.store
}

// Available reports backend availability.
func (s *StateStore) Available() bool {
	return s.store.Available()
}

// LoadState returns the adaptive state for a pattern.
//
// Missing records and store failures both yield the default state so scoring
// reads stay total functions.
func (s *StateStore) LoadState(ctx context.Context, patternID string, tenant pattern.TenantKey) *pattern.AdaptivePatternState {
	fields, err := s.store.HGetAll(ctx, PatternStateKey(patternID))
	if err != nil {
		s.logger.Warn("loading adaptive state failed, using defaults",
			zap.String("pattern_id", patternID),
			zap.Error(err))
		return pattern.NewState(patternID, tenant)
	}
	if len(fields) == 0 {
		return pattern.NewState(patternID, tenant)
	}
	return decodeState(patternID, fields)
}

// LoadLevel returns the persisted tenancy level for a pattern, or
// pattern.DefaultLevel when no record exists or the store is unreachable.
func (s *StateStore) LoadLevel(ctx context.Context, patternID string) pattern.Level {
	fields, err := s.store.HGetAll(ctx, PatternStateKey(patternID))
	if err != nil || len(fields) == 0 {
		return pattern.DefaultLevel
	}
	if raw, ok := fields[fieldLevel]; ok {
		if n, err := strconv.Atoi(raw); err == nil && pattern.Level(n).Valid() {
			return pattern.Level(n)
		}
	}
	return pattern.DefaultLevel
}

// SaveState persists the adaptive state and indexes the pattern under its
// tenant. Unlike reads, persistence surfaces failures so administrative
// callers can react.
func (s *StateStore) SaveState(ctx context.Context, st *pattern.AdaptivePatternState, level pattern.Level) error {
	st.UpdatedAt = time.Now()
	if err := s.store.HSet(ctx, PatternStateKey(st.PatternID), encodeState(st, level)); err != nil {
		return err
	}
	if st.Tenant.OrgID != "" {
		if err := s.store.SAdd(ctx, TenantIndexKey(st.Tenant.OrgID), st.PatternID); err != nil {
			return err
		}
	}
	return nil
}

// ListTenantPatternIDs enumerates the pattern IDs indexed under a tenant.
// Total: returns an empty slice on store failure.
func (s *StateStore) ListTenantPatternIDs(ctx context.Context, tenant string) []string {
	ids, err := s.store.SMembers(ctx, TenantIndexKey(tenant))
	if err != nil {
		s.logger.Warn("listing tenant patterns failed",
			zap.String("tenant", tenant),
			zap.Error(err))
		return []string{}
	}
	return ids
}

// IncrCounter bumps a named counter. Total: returns 0 on store failure.
func (s *StateStore) IncrCounter(ctx context.Context, name string, delta int64) int64 {
	v, err := s.store.IncrBy(ctx, CounterKey(name), delta)
	if err != nil {
		s.logger.Warn("incrementing counter failed",
			zap.String("counter", name),
			zap.Error(err))
		return 0
	}
	return v
}

func encodeState(st *pattern.AdaptivePatternState, level pattern.Level) map[string]string {
	return map[string]string{
		fieldWeight:           strconv.FormatFloat(st.Weight, 'f', -1, 64),
		fieldFeedbackCount:    strconv.Itoa(st.FeedbackCount),
		fieldLastUsed:         st.LastUsed.UTC().Format(time.RFC3339Nano),
		fieldDecayFactor:      strconv.FormatFloat(st.DecayFactor, 'f', -1, 64),
		fieldGraduationStatus: string(st.GraduationStatus),
		fieldDecayStrikes:     strconv.Itoa(st.DecayStrikes),
		fieldLevel:            strconv.Itoa(int(level)),
		fieldUserID:           st.Tenant.UserID,
		fieldProjectID:        st.Tenant.ProjectID,
		fieldOrgID:            st.Tenant.OrgID,
		fieldCreatedAt:        st.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt:        st.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeState(patternID string, fields map[string]string) *pattern.AdaptivePatternState {
	st := pattern.NewState(patternID, pattern.TenantKey{
		UserID:    fields[fieldUserID],
		ProjectID: fields[fieldProjectID],
		OrgID:     fields[fieldOrgID],
	})
	if v, err := strconv.ParseFloat(fields[fieldWeight], 64); err == nil {
		st.Weight = v
	}
	if v, err := strconv.Atoi(fields[fieldFeedbackCount]); err == nil {
		st.FeedbackCount = v
	}
	if v, err := time.Parse(time.RFC3339Nano, fields[fieldLastUsed]); err == nil {
		st.LastUsed = v
	}
	if v, err := strconv.ParseFloat(fields[fieldDecayFactor], 64); err == nil {
		st.DecayFactor = v
	}
	if status := pattern.GraduationStatus(fields[fieldGraduationStatus]); status.Valid() {
		st.GraduationStatus = status
	}
	if v, err := strconv.Atoi(fields[fieldDecayStrikes]); err == nil {
		st.DecayStrikes = v
	}
	if v, err := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt]); err == nil {
		st.CreatedAt = v
	}
	if v, err := time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt]); err == nil {
		st.UpdatedAt = v
	}
	return st
}
