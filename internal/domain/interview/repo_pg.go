package interview

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careflow/careflow/internal/platform/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// -- Assignments --

type assignmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAssignmentRepo(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepoPG{pool: pool}
}

func (r *assignmentRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const asgCols = `id, encounter_id, module_type, answers, status, status_changed_at, started_at,
	score, risk, suicide_index_score, suicide_index_label, current_attempt, plan_and_intent, created_at`

func (r *assignmentRepoPG) Create(ctx context.Context, a *Assignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO module_assignment (
			id, encounter_id, module_type, answers, status, status_changed_at, started_at,
			score, risk, suicide_index_score, suicide_index_label, current_attempt, plan_and_intent, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.EncounterID, a.Type, answers, a.Status, a.StatusChangedAt, a.StartedAt,
		a.Score, a.Risk, a.SuicideIndexScore, a.SuicideIndexLabel, a.CurrentAttempt, a.PlanAndIntent, a.CreatedAt,
	)
	return err
}

func (r *assignmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	return scanAsg(r.conn(ctx).QueryRow(ctx, `SELECT `+asgCols+` FROM module_assignment WHERE id = $1`, id))
}

func (r *assignmentRepoPG) ListByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*Assignment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+asgCols+` FROM module_assignment WHERE encounter_id = $1 ORDER BY created_at, id`,
		encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var asgs []*Assignment
	for rows.Next() {
		a, err := scanAsgRow(rows)
		if err != nil {
			return nil, err
		}
		asgs = append(asgs, a)
	}
	return asgs, rows.Err()
}

func (r *assignmentRepoPG) UpdateAnswers(ctx context.Context, a *Assignment) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE module_assignment SET
			answers=$2, started_at=$3,
			score=$4, risk=$5, suicide_index_score=$6, suicide_index_label=$7,
			current_attempt=$8, plan_and_intent=$9
		WHERE id = $1`,
		a.ID, answers, a.StartedAt,
		a.Score, a.Risk, a.SuicideIndexScore, a.SuicideIndexLabel,
		a.CurrentAttempt, a.PlanAndIntent,
	)
	return err
}

func (r *assignmentRepoPG) UpdateStatus(ctx context.Context, a *Assignment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE module_assignment SET status=$2, status_changed_at=$3, started_at=$4
		WHERE id = $1`,
		a.ID, a.Status, a.StatusChangedAt, a.StartedAt,
	)
	return err
}

func scanAsg(row pgx.Row) (*Assignment, error) {
	var a Assignment
	var answers []byte
	err := row.Scan(
		&a.ID, &a.EncounterID, &a.Type, &answers, &a.Status, &a.StatusChangedAt, &a.StartedAt,
		&a.Score, &a.Risk, &a.SuicideIndexScore, &a.SuicideIndexLabel, &a.CurrentAttempt, &a.PlanAndIntent, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalAnswers(&a, answers); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAsgRow(rows pgx.Rows) (*Assignment, error) {
	var a Assignment
	var answers []byte
	err := rows.Scan(
		&a.ID, &a.EncounterID, &a.Type, &answers, &a.Status, &a.StatusChangedAt, &a.StartedAt,
		&a.Score, &a.Risk, &a.SuicideIndexScore, &a.SuicideIndexLabel, &a.CurrentAttempt, &a.PlanAndIntent, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalAnswers(&a, answers); err != nil {
		return nil, err
	}
	return &a, nil
}

func unmarshalAnswers(a *Assignment, raw []byte) error {
	a.Answers = make(map[string]interface{})
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &a.Answers); err != nil {
		return fmt.Errorf("unmarshal answers: %w", err)
	}
	return nil
}

// -- Lock events --

type lockEventRepoPG struct {
	pool *pgxpool.Pool
}

func NewLockEventRepo(pool *pgxpool.Pool) LockEventRepository {
	return &lockEventRepoPG{pool: pool}
}

func (r *lockEventRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *lockEventRepoPG) Create(ctx context.Context, ev *LockEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO assignment_lock_event (id, assignment_id, locked, created_at)
		VALUES ($1,$2,$3,$4)`,
		ev.ID, ev.AssignmentID, ev.Locked, ev.CreatedAt,
	)
	return err
}

func (r *lockEventRepoPG) ListByAssignment(ctx context.Context, assignmentID uuid.UUID) ([]*LockEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, assignment_id, locked, created_at
		FROM assignment_lock_event WHERE assignment_id = $1 ORDER BY created_at DESC, id DESC`,
		assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*LockEvent
	for rows.Next() {
		var ev LockEvent
		if err := rows.Scan(&ev.ID, &ev.AssignmentID, &ev.Locked, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (r *lockEventRepoPG) Latest(ctx context.Context, assignmentID uuid.UUID) (*LockEvent, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT id, assignment_id, locked, created_at
		FROM assignment_lock_event WHERE assignment_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		assignmentID)

	var ev LockEvent
	if err := row.Scan(&ev.ID, &ev.AssignmentID, &ev.Locked, &ev.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

// -- Transaction runner --

// pgTxRunner serializes writers per encounter: every mutation runs in one
// transaction holding a transaction-scoped advisory lock on the encounter id,
// so read-modify-write of the module list and answers is atomic with respect
// to other writers on the same encounter.
type pgTxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) TxRunner {
	return &pgTxRunner{pool: pool}
}

func (r *pgTxRunner) InEncounterTx(ctx context.Context, encounterID uuid.UUID, fn func(ctx context.Context) error) error {
	return db.InTx(ctx, r.pool, func(txCtx context.Context) error {
		if err := db.AcquireEncounterLock(txCtx, encounterID); err != nil {
			return err
		}
		return fn(txCtx)
	})
}
