// Package anomaly scans tenant pattern populations for abusive or low-value
// submission behavior and manages the lifecycle of its findings.
//
// Three independent signatures are detected per tenant: burst creation,
// low-quality flood, and duplicate spam. Each sweep yields at most one
// anomaly per signature per tenant. Findings live in an in-process index and
// are written through best-effort to an external document store.
package anomaly

import (
	"errors"
	"time"
)

// Common errors for anomaly lifecycle operations.
var (
	// ErrAnomalyNotFound is returned for lifecycle calls on unknown IDs.
	ErrAnomalyNotFound = errors.New("anomaly not found")

	// ErrInvalidTransition is returned when a lifecycle call violates the
	// strict open -> acknowledged -> resolved ordering.
	ErrInvalidTransition = errors.New("invalid anomaly status transition")

	// ErrAlreadyResolved is returned for any mutation of a resolved anomaly.
	ErrAlreadyResolved = errors.New("anomaly is resolved and immutable")
)

// Type identifies the abuse signature an anomaly represents.
type Type string

const (
	// TypeBurstCreation fires on abnormally high pattern-creation rate.
	TypeBurstCreation Type = "burst_creation"

	// TypeLowQualityFlood fires when most of a tenant's patterns score low.
	TypeLowQualityFlood Type = "low_quality_flood"

	// TypeDuplicateSpam fires on repeated near-identical pattern names.
	TypeDuplicateSpam Type = "duplicate_spam"
)

// Severity bands an anomaly by magnitude.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Status is the lifecycle state of an anomaly. Transitions are strictly
// open -> acknowledged -> resolved; once resolved, the record is immutable.
type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Evidence is one supporting observation attached to an anomaly.
type Evidence struct {
	// Type names what the observation is (e.g. "pattern_created").
	Type string `json:"type"`

	// Value is the observation payload, usually a pattern ID or a ratio.
	Value string `json:"value"`

	// Timestamp is when the observed event happened, when applicable.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// DetectedAnomaly is one finding from a detection sweep.
type DetectedAnomaly struct {
	// ID is the unique anomaly identifier (UUID).
	ID string `json:"id"`

	Type     Type     `json:"type"`
	Severity Severity `json:"severity"`

	// EntityType and EntityID name what the anomaly is about. Detection is
	// tenant-scoped, so EntityType is "tenant" and EntityID the tenant key.
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`

	// Tenant scopes the finding.
	Tenant string `json:"tenant"`

	// Description is a human-readable summary.
	Description string `json:"description"`

	// Evidence lists the supporting observations.
	Evidence []Evidence `json:"evidence"`

	// DetectedAt is when the sweep found the condition.
	DetectedAt time.Time `json:"detected_at"`

	Status Status `json:"status"`

	// Actor and timestamp for each lifecycle transition.
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// DetectionResult is the outcome of one tenant's sweep.
type DetectionResult struct {
	// Tenant is the swept tenant.
	Tenant string `json:"tenant"`

	// Anomalies holds at most one finding per signature.
	Anomalies []*DetectedAnomaly `json:"anomalies"`

	// ScannedEntities records how many patterns the sweep examined, for audit.
	ScannedEntities int `json:"scanned_entities"`

	// SweepAt is when the sweep ran.
	SweepAt time.Time `json:"sweep_at"`
}
