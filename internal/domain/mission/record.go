// internal/domain/mission/record.go
package mission

import (
	"database/sql"
	"time"
)

// ProblemRecord tracks whether a member solved one recommended problem.
// Every recommendation creates a new record, so re-recommending a problem never
// touches the solved state of earlier records. Scope identity and name are
// copied in so history outlives the scope.
type ProblemRecord struct {
	ID        int64
	MemberID  int64
	BatchID   int64
	ProblemID int64
	ScopeKey  string
	TeamID    int64
	SquadID   sql.NullInt64
	ScopeName string
	SolvedAt  sql.NullTime
	CreatedAt time.Time
}

func (r *ProblemRecord) IsSolved() bool {
	return r.SolvedAt.Valid
}
