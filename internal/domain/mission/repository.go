// internal/domain/mission/repository.go
package mission

import (
	"context"
	"time"
)

// Repository persists batches, their problems, member deliveries and member
// problem records.
type Repository interface {
	// Batch methods
	// CreateBatch fails with a duplicate error when the scope already has a
	// batch for b.CycleStart.
	CreateBatch(ctx context.Context, b *Batch) error
	GetBatchByID(ctx context.Context, id int64) (*Batch, error)
	// FindBatchInWindow returns the latest batch of the scope created in [from, to].
	FindBatchInWindow(ctx context.Context, scopeKey string, from, to time.Time) (*Batch, error)

	// BatchProblem methods
	AddBatchProblems(ctx context.Context, batchID int64, problems []BatchProblem) error
	ListBatchProblems(ctx context.Context, batchID int64) ([]BatchProblem, error) // Ordered by position

	// MemberDelivery methods
	CreateDelivery(ctx context.Context, d *MemberDelivery) error
	GetDeliveryByID(ctx context.Context, id int64) (*MemberDelivery, error)
	ListDeliveriesByBatch(ctx context.Context, batchID int64) ([]*MemberDelivery, error)
	// ListPendingDeliveries returns PENDING deliveries whose batch was created in [from, to].
	ListPendingDeliveries(ctx context.Context, from, to time.Time) ([]*MemberDelivery, error)
	// ClaimDelivery moves a PENDING row to SENDING. Only the caller whose claim
	// succeeds may send the email.
	ClaimDelivery(ctx context.Context, id int64) error
	// MarkDeliverySent and MarkDeliveryFailed only transition SENDING rows.
	MarkDeliverySent(ctx context.Context, id int64, sentAt time.Time) error
	MarkDeliveryFailed(ctx context.Context, id int64) error

	// ProblemRecord methods
	CreateProblemRecord(ctx context.Context, r *ProblemRecord) error
	GetProblemRecord(ctx context.Context, id int64) (*ProblemRecord, error)
	MarkProblemSolved(ctx context.Context, id int64, solvedAt time.Time) error
}
