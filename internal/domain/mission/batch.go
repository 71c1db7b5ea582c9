// internal/domain/mission/batch.go
package mission

import (
	"database/sql"
	"time"
)

// TriggerKind records what caused a batch to be created.
type TriggerKind string

const (
	TriggerScheduled TriggerKind = "SCHEDULED"
	TriggerManual    TriggerKind = "MANUAL"
)

// Batch is one problem selection for one scope.
// Corresponds to the 'recommendation_batches' table.
type Batch struct {
	ID         int64
	ScopeKey   string        // squad.Scope.Key(), unique together with CycleStart
	TeamID     int64         // Foreign Key to teams.id
	SquadID    sql.NullInt64 // Optional sub-group inside the team
	ScopeName  string        // Display name at creation time
	Trigger    TriggerKind
	CycleStart time.Time
	CreatedAt  time.Time

	// Populated by the creator and by read paths that need them.
	Problems   []BatchProblem
	Deliveries []*MemberDelivery
}

// BatchProblem is one problem of a batch. Position is 1-based and follows the
// order the recommender returned.
type BatchProblem struct {
	BatchID   int64
	ProblemID int64 // Foreign Key to problems.id
	Position  int

	// Catalog fields joined on read.
	ExternalID int
	Title      string
	Tier       int
}
