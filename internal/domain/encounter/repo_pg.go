package encounter

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careflow/careflow/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const encCols = `id, patient_id, current_section_uid, section_changed_at, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, enc *Encounter) error {
	enc.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO encounter (id, patient_id, current_section_uid, section_changed_at)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		enc.ID, enc.PatientID, enc.CurrentSectionUID, enc.SectionChangedAt,
	).Scan(&enc.CreatedAt, &enc.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return scanEnc(r.conn(ctx).QueryRow(ctx, `SELECT `+encCols+` FROM encounter WHERE id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM encounter WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+encCols+` FROM encounter WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var encs []*Encounter
	for rows.Next() {
		var e Encounter
		if err := rows.Scan(&e.ID, &e.PatientID, &e.CurrentSectionUID, &e.SectionChangedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		encs = append(encs, &e)
	}
	return encs, total, rows.Err()
}

func (r *repoPG) UpdateCurrentSection(ctx context.Context, id uuid.UUID, sectionUID string, changedAt time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE encounter SET current_section_uid=$2, section_changed_at=$3, updated_at=NOW()
		WHERE id = $1`,
		id, sectionUID, changedAt,
	)
	return err
}

func scanEnc(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(&e.ID, &e.PatientID, &e.CurrentSectionUID, &e.SectionChangedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
