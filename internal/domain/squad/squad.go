// internal/domain/squad/squad.go
package squad

import (
	"database/sql"
	"fmt"
	"strings"
)

// Scope is a team, or a sub-group (squad) inside a team, that receives one
// shared batch per cycle.
type Scope struct {
	TeamID   int64
	SquadID  sql.NullInt64 // Valid for a squad, null for the team itself
	Name     string
	Settings Settings
}

// Key identifies the scope in batch rows.
func (s *Scope) Key() string {
	if s.SquadID.Valid {
		return fmt.Sprintf("team:%d/squad:%d", s.TeamID, s.SquadID.Int64)
	}
	return fmt.Sprintf("team:%d", s.TeamID)
}

// Member is a user belonging to a scope.
type Member struct {
	ID             int64
	DisplayName    string
	Email          sql.NullString
	Handle         sql.NullString // External skill-tracking handle
	HandleVerified bool
}

// ContactAddress returns the trimmed email, or "" when the member has none.
func (m *Member) ContactAddress() string {
	if !m.Email.Valid {
		return ""
	}
	return strings.TrimSpace(m.Email.String)
}

// VerifiedHandle returns the handle and whether it may be used for catalog queries.
func (m *Member) VerifiedHandle() (string, bool) {
	if !m.HandleVerified || !m.Handle.Valid {
		return "", false
	}
	h := strings.TrimSpace(m.Handle.String)
	return h, h != ""
}
