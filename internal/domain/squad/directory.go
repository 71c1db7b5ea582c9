// internal/domain/squad/directory.go
package squad

import (
	"context"
	"database/sql"
	"time"
)

// Directory is the read side of team/squad membership and settings.
type Directory interface {
	// ListActiveOn returns every scope whose settings mark day as active.
	ListActiveOn(ctx context.Context, day time.Weekday) ([]*Scope, error)
	GetScope(ctx context.Context, teamID int64, squadID sql.NullInt64) (*Scope, error)
	// VerifiedHandles returns the verified external handles of the scope's members.
	VerifiedHandles(ctx context.Context, scope *Scope) ([]string, error)
	// CurrentMembers returns every current member, verified or not.
	CurrentMembers(ctx context.Context, scope *Scope) ([]*Member, error)
	GetMember(ctx context.Context, id int64) (*Member, error)
}
