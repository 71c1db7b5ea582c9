package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"squad_recommender/internal/domain/squad"

	"github.com/lib/pq"
)

// Custom errors
var ErrScopeNotFound = fmt.Errorf("scope not found")
var ErrMemberNotFound = fmt.Errorf("member not found")

// scopeSelect joins settings to the team and optional squad for the display name.
const scopeSelect = `SELECT s.team_id, s.squad_id, COALESCE(sq.name, t.name),
                s.active_days, s.difficulty, s.custom_min_tier, s.custom_max_tier, s.include_tags, s.problem_count
           FROM scope_settings s
           JOIN teams t ON t.id = s.team_id
           LEFT JOIN squads sq ON sq.id = s.squad_id`

const memberColumns = `m.id, m.display_name, m.email, m.handle, m.handle_verified`

// PostgresSquadDirectory reads scopes, settings and memberships.
type PostgresSquadDirectory struct {
	db *sql.DB
}

func NewPostgresSquadDirectory(db *sql.DB) *PostgresSquadDirectory {
	return &PostgresSquadDirectory{db: db}
}

func scanScope(row interface{ Scan(...any) error }) (*squad.Scope, error) {
	sc := &squad.Scope{}
	var activeDays int16
	var tags []string
	err := row.Scan(&sc.TeamID, &sc.SquadID, &sc.Name,
		&activeDays, &sc.Settings.Difficulty, &sc.Settings.CustomMinTier, &sc.Settings.CustomMaxTier,
		pq.Array(&tags), &sc.Settings.ProblemCount)
	if err != nil {
		return nil, err
	}
	sc.Settings.ActiveDays = squad.Weekdays(activeDays)
	sc.Settings.IncludeTags = tags
	return sc, nil
}

func (r *PostgresSquadDirectory) ListActiveOn(ctx context.Context, day time.Weekday) ([]*squad.Scope, error) {
	query := scopeSelect + ` WHERE (s.active_days & $1) <> 0 ORDER BY s.team_id, s.squad_id NULLS FIRST`
	mask := int16(squad.NewWeekdays(day))
	rows, err := r.db.QueryContext(ctx, query, mask)
	if err != nil {
		return nil, fmt.Errorf("error listing scopes active on %s: %w", day, err)
	}
	defer rows.Close()

	scopes := make([]*squad.Scope, 0)
	for rows.Next() {
		sc, err := scanScope(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning active scope: %w", err)
		}
		scopes = append(scopes, sc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active scopes: %w", err)
	}
	return scopes, nil
}

func (r *PostgresSquadDirectory) GetScope(ctx context.Context, teamID int64, squadID sql.NullInt64) (*squad.Scope, error) {
	query := scopeSelect + ` WHERE s.team_id = $1 AND s.squad_id IS NOT DISTINCT FROM $2`
	sc, err := scanScope(r.db.QueryRowContext(ctx, query, teamID, squadID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrScopeNotFound
		}
		return nil, fmt.Errorf("error getting scope: %w", err)
	}
	return sc, nil
}

// membersQuery picks the membership table that backs the scope.
func membersQuery(scope *squad.Scope) (string, int64) {
	if scope.SquadID.Valid {
		return `SELECT ` + memberColumns + ` FROM members m
               JOIN squad_members sm ON sm.member_id = m.id
               WHERE sm.squad_id = $1 ORDER BY sm.joined_at, m.id`, scope.SquadID.Int64
	}
	return `SELECT ` + memberColumns + ` FROM members m
               JOIN team_members tm ON tm.member_id = m.id
               WHERE tm.team_id = $1 ORDER BY tm.joined_at, m.id`, scope.TeamID
}

func (r *PostgresSquadDirectory) CurrentMembers(ctx context.Context, scope *squad.Scope) ([]*squad.Member, error) {
	query, id := membersQuery(scope)
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("error listing members of %s: %w", scope.Key(), err)
	}
	defer rows.Close()

	members := make([]*squad.Member, 0)
	for rows.Next() {
		m := &squad.Member{}
		if err := rows.Scan(&m.ID, &m.DisplayName, &m.Email, &m.Handle, &m.HandleVerified); err != nil {
			return nil, fmt.Errorf("error scanning member: %w", err)
		}
		members = append(members, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

func (r *PostgresSquadDirectory) VerifiedHandles(ctx context.Context, scope *squad.Scope) ([]string, error) {
	members, err := r.CurrentMembers(ctx, scope)
	if err != nil {
		return nil, err
	}
	handles := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		h, ok := m.VerifiedHandle()
		if !ok {
			continue
		}
		key := strings.ToLower(h)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		handles = append(handles, h)
	}
	return handles, nil
}

func (r *PostgresSquadDirectory) GetMember(ctx context.Context, id int64) (*squad.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members m WHERE m.id = $1`
	m := &squad.Member{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.DisplayName, &m.Email, &m.Handle, &m.HandleVerified)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("error getting member by ID: %w", err)
	}
	return m, nil
}

// SaveSettings validates and upserts the settings of a scope.
func (r *PostgresSquadDirectory) SaveSettings(ctx context.Context, scope *squad.Scope) error {
	if err := scope.Settings.Validate(); err != nil {
		return err
	}
	query := `INSERT INTO scope_settings (scope_key, team_id, squad_id, active_days, difficulty, custom_min_tier, custom_max_tier, include_tags, problem_count, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
               ON CONFLICT (scope_key) DO UPDATE SET
                   active_days = EXCLUDED.active_days,
                   difficulty = EXCLUDED.difficulty,
                   custom_min_tier = EXCLUDED.custom_min_tier,
                   custom_max_tier = EXCLUDED.custom_max_tier,
                   include_tags = EXCLUDED.include_tags,
                   problem_count = EXCLUDED.problem_count,
                   updated_at = NOW()`
	s := scope.Settings
	_, err := r.db.ExecContext(ctx, query,
		scope.Key(), scope.TeamID, scope.SquadID, int16(s.ActiveDays), s.Difficulty,
		s.CustomMinTier, s.CustomMaxTier, pq.Array(s.Tags()), s.Count())
	if err != nil {
		return fmt.Errorf("error saving settings for %s: %w", scope.Key(), err)
	}
	return nil
}
