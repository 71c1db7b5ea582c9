// internal/domain/catalog/problem.go
package catalog

import "context"

// ProblemInfo is a problem as described by the external catalog.
type ProblemInfo struct {
	ExternalID int
	Title      string
	Tier       int
	Tags       []string
}

// Query describes one recommendation request.
type Query struct {
	Handles []string // Problems solved by any of these are excluded
	Count   int
	MinTier int
	MaxTier int
	Tags    []string // Any-of inclusion filter; empty means no filter
}

// Recommender returns up to q.Count problems in recommendation order.
type Recommender interface {
	Recommend(ctx context.Context, q Query) ([]ProblemInfo, error)
}

// Syncer stores catalog problems locally. Upsert is idempotent by ExternalID
// and returns the local problem id.
type Syncer interface {
	Upsert(ctx context.Context, p ProblemInfo) (int64, error)
}
