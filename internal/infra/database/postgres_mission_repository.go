// internal/infra/database/postgres_mission_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"squad_recommender/internal/domain/mission"
	"time"
)

// Custom errors specific to mission repository
var ErrBatchNotFound = fmt.Errorf("recommendation batch not found")
var ErrDuplicateBatch = fmt.Errorf("recommendation batch already exists for this scope and cycle (scope_key, cycle_start)")
var ErrDeliveryNotFound = fmt.Errorf("member delivery not found")
var ErrDuplicateDelivery = fmt.Errorf("duplicate member delivery (member_id, batch_id)")
var ErrDeliveryNotPending = fmt.Errorf("member delivery is not pending")
var ErrDeliveryNotClaimed = fmt.Errorf("member delivery is not claimed for sending")
var ErrProblemRecordNotFound = fmt.Errorf("member problem record not found")

const (
	batchColumns    = `id, scope_key, team_id, squad_id, scope_name, trigger_kind, cycle_start, created_at`
	deliveryColumns = `d.id, d.member_id, d.batch_id, d.status, d.sent_at, d.created_at`
	recordColumns   = `id, member_id, batch_id, problem_id, scope_key, team_id, squad_id, scope_name, solved_at, created_at`
)

type PostgresMissionRepository struct {
	db *sql.DB
}

func NewPostgresMissionRepository(db *sql.DB) *PostgresMissionRepository {
	return &PostgresMissionRepository{db: db}
}

// --- Batch Methods ---

func (r *PostgresMissionRepository) CreateBatch(ctx context.Context, b *mission.Batch) error {
	query := `INSERT INTO recommendation_batches (scope_key, team_id, squad_id, scope_name, trigger_kind, cycle_start, created_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7)
               RETURNING id`
	err := r.db.QueryRowContext(ctx, query, b.ScopeKey, b.TeamID, b.SquadID, b.ScopeName, b.Trigger, b.CycleStart, b.CreatedAt).Scan(&b.ID)
	if err != nil {
		if isUniqueViolation(err, "batches_scope_cycle_unique") {
			return ErrDuplicateBatch
		}
		return fmt.Errorf("error creating recommendation batch: %w", err)
	}
	return nil
}

func scanBatch(row interface{ Scan(...any) error }) (*mission.Batch, error) {
	b := mission.Batch{}
	err := row.Scan(&b.ID, &b.ScopeKey, &b.TeamID, &b.SquadID, &b.ScopeName, &b.Trigger, &b.CycleStart, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PostgresMissionRepository) GetBatchByID(ctx context.Context, id int64) (*mission.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM recommendation_batches WHERE id = $1`
	b, err := scanBatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("error getting recommendation batch by ID: %w", err)
	}
	return b, nil
}

func (r *PostgresMissionRepository) FindBatchInWindow(ctx context.Context, scopeKey string, from, to time.Time) (*mission.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM recommendation_batches
               WHERE scope_key = $1 AND created_at >= $2 AND created_at <= $3
               ORDER BY created_at DESC LIMIT 1`
	b, err := scanBatch(r.db.QueryRowContext(ctx, query, scopeKey, from, to))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("error finding recommendation batch in window: %w", err)
	}
	return b, nil
}

// --- BatchProblem Methods ---

func (r *PostgresMissionRepository) AddBatchProblems(ctx context.Context, batchID int64, problems []mission.BatchProblem) error {
	if len(problems) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for batch problems: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	stmt, err := txn.PrepareContext(ctx, `INSERT INTO batch_problems (batch_id, problem_id, position) VALUES ($1, $2, $3)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for batch problems: %w", err)
	}
	defer stmt.Close()

	for _, p := range problems {
		if _, err := stmt.ExecContext(ctx, batchID, p.ProblemID, p.Position); err != nil {
			return fmt.Errorf("error inserting batch problem (B:%d, P:%d, pos:%d): %w", batchID, p.ProblemID, p.Position, err)
		}
	}

	return txn.Commit()
}

func (r *PostgresMissionRepository) ListBatchProblems(ctx context.Context, batchID int64) ([]mission.BatchProblem, error) {
	query := `SELECT bp.batch_id, bp.problem_id, bp.position, p.external_id, p.title, p.tier
               FROM batch_problems bp
               JOIN problems p ON p.id = bp.problem_id
               WHERE bp.batch_id = $1
               ORDER BY bp.position`
	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("error querying batch problems: %w", err)
	}
	defer rows.Close()

	problems := make([]mission.BatchProblem, 0)
	for rows.Next() {
		p := mission.BatchProblem{}
		if err := rows.Scan(&p.BatchID, &p.ProblemID, &p.Position, &p.ExternalID, &p.Title, &p.Tier); err != nil {
			return nil, fmt.Errorf("error scanning batch problem row: %w", err)
		}
		problems = append(problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batch problem rows: %w", err)
	}
	return problems, nil
}

// --- MemberDelivery Methods ---

func (r *PostgresMissionRepository) CreateDelivery(ctx context.Context, d *mission.MemberDelivery) error {
	query := `INSERT INTO member_deliveries (member_id, batch_id, status, sent_at)
               VALUES ($1, $2, $3, $4)
               RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, d.MemberID, d.BatchID, d.Status, d.SentAt).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "deliveries_member_batch_unique") {
			return ErrDuplicateDelivery
		}
		return fmt.Errorf("error creating member delivery: %w", err)
	}
	return nil
}

func (r *PostgresMissionRepository) GetDeliveryByID(ctx context.Context, id int64) (*mission.MemberDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM member_deliveries d WHERE d.id = $1`
	d := mission.MemberDelivery{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.MemberID, &d.BatchID, &d.Status, &d.SentAt, &d.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("error getting member delivery by ID: %w", err)
	}
	return &d, nil
}

// Helper to scan multiple rows
func scanDeliveries(rows *sql.Rows) ([]*mission.MemberDelivery, error) {
	deliveries := make([]*mission.MemberDelivery, 0)
	for rows.Next() {
		d := mission.MemberDelivery{}
		if err := rows.Scan(&d.ID, &d.MemberID, &d.BatchID, &d.Status, &d.SentAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning member delivery row: %w", err)
		}
		deliveries = append(deliveries, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member delivery rows: %w", err)
	}
	return deliveries, nil
}

func (r *PostgresMissionRepository) ListDeliveriesByBatch(ctx context.Context, batchID int64) ([]*mission.MemberDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM member_deliveries d
               WHERE d.batch_id = $1 ORDER BY d.id`
	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("error querying member deliveries by batch: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

func (r *PostgresMissionRepository) ListPendingDeliveries(ctx context.Context, from, to time.Time) ([]*mission.MemberDelivery, error) {
	query := `SELECT ` + deliveryColumns + `
               FROM member_deliveries d
               JOIN recommendation_batches b ON b.id = d.batch_id
               WHERE d.status = $1 AND b.created_at >= $2 AND b.created_at <= $3
               ORDER BY d.batch_id, d.id`
	rows, err := r.db.QueryContext(ctx, query, mission.DeliveryPending, from, to)
	if err != nil {
		return nil, fmt.Errorf("error querying pending member deliveries: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

// moveDelivery changes status only when the row is still in from, so concurrent
// senders cannot both win the same transition. notMoved is returned when the
// row exists in another state.
func (r *PostgresMissionRepository) moveDelivery(ctx context.Context, id int64, from, status mission.DeliveryStatus, sentAt sql.NullTime, notMoved error) error {
	query := `UPDATE member_deliveries SET status = $1, sent_at = $2
               WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, status, sentAt, id, from)
	if err != nil {
		return fmt.Errorf("error updating member delivery %d to %s: %w", id, status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows for member delivery %d: %w", id, err)
	}
	if n == 0 {
		if _, err := r.GetDeliveryByID(ctx, id); err != nil {
			return err
		}
		return notMoved
	}
	return nil
}

func (r *PostgresMissionRepository) ClaimDelivery(ctx context.Context, id int64) error {
	return r.moveDelivery(ctx, id, mission.DeliveryPending, mission.DeliverySending, sql.NullTime{}, ErrDeliveryNotPending)
}

func (r *PostgresMissionRepository) MarkDeliverySent(ctx context.Context, id int64, sentAt time.Time) error {
	return r.moveDelivery(ctx, id, mission.DeliverySending, mission.DeliverySent, sql.NullTime{Time: sentAt, Valid: true}, ErrDeliveryNotClaimed)
}

func (r *PostgresMissionRepository) MarkDeliveryFailed(ctx context.Context, id int64) error {
	return r.moveDelivery(ctx, id, mission.DeliverySending, mission.DeliveryFailed, sql.NullTime{}, ErrDeliveryNotClaimed)
}

// --- ProblemRecord Methods ---

func (r *PostgresMissionRepository) CreateProblemRecord(ctx context.Context, rec *mission.ProblemRecord) error {
	query := `INSERT INTO member_problem_records (member_id, batch_id, problem_id, scope_key, team_id, squad_id, scope_name, solved_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
               RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		rec.MemberID, rec.BatchID, rec.ProblemID, rec.ScopeKey, rec.TeamID, rec.SquadID, rec.ScopeName, rec.SolvedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating member problem record: %w", err)
	}
	return nil
}

func (r *PostgresMissionRepository) GetProblemRecord(ctx context.Context, id int64) (*mission.ProblemRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM member_problem_records WHERE id = $1`
	rec := mission.ProblemRecord{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.MemberID, &rec.BatchID, &rec.ProblemID, &rec.ScopeKey,
		&rec.TeamID, &rec.SquadID, &rec.ScopeName, &rec.SolvedAt, &rec.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProblemRecordNotFound
		}
		return nil, fmt.Errorf("error getting member problem record by ID: %w", err)
	}
	return &rec, nil
}

// MarkProblemSolved stamps solved_at on one record. Already solved records keep
// their first timestamp.
func (r *PostgresMissionRepository) MarkProblemSolved(ctx context.Context, id int64, solvedAt time.Time) error {
	query := `UPDATE member_problem_records SET solved_at = COALESCE(solved_at, $1) WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, solvedAt, id)
	if err != nil {
		return fmt.Errorf("error marking member problem record %d solved: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows for member problem record %d: %w", id, err)
	}
	if n == 0 {
		return ErrProblemRecordNotFound
	}
	return nil
}
