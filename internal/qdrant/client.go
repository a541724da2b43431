// Package qdrant provides the document-store client used for anomaly
// persistence.
//
// Points carry a hash-derived 4-dimensional vector purely to satisfy the
// store's indexing API; it is an opaque indexing key, not an embedding, and
// must never be used for semantic search.
package qdrant

import (
	"context"
)

// Client is the subset of document-store operations anomaly persistence
// needs. The gRPC implementation is GRPCClient; tests use fakes.
type Client interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string, vectorSize uint64) error

	// Upsert inserts or updates points in a collection. Point IDs are
	// deterministic numeric hashes, so re-upserting the same condition
	// overwrites rather than duplicates.
	Upsert(ctx context.Context, collection string, points []*Point) error

	// Scroll reads points matching the filter, without vector search.
	Scroll(ctx context.Context, collection string, filter *Filter, limit uint32) ([]*Point, error)

	// Health checks connectivity.
	Health(ctx context.Context) error

	// Close closes the client connection.
	Close() error
}

// Point is a stored document with its indexing vector.
type Point struct {
	// ID is a numeric hash derived from the document's dedup key.
	ID uint64

	// Vector is the 4-dimensional indexing key.
	Vector []float32

	// Payload is the flattened document.
	Payload map[string]interface{}
}

// Filter restricts a scroll to matching payload fields.
type Filter struct {
	Must []Condition
}

// Condition is an exact-match payload condition.
type Condition struct {
	Field string
	Match string
}
