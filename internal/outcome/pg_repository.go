package outcome

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const recordColumns = `id, appointment_id, project_type_id, start_time, end_time, contact_outcome_id,
	supervisor_team_id, supervisor_officer_code, notes, hi_vis_worn, worked_intensively,
	penalty_minutes, work_quality, behaviour, enforcement_action_id, respond_by,
	created_at, updated_at`

// Helpers

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record

	err := row.Scan(
		&r.ID,
		&r.AppointmentID,
		&r.ProjectTypeID,
		&r.StartTime,
		&r.EndTime,
		&r.ContactOutcomeID,
		&r.SupervisorTeamID,
		&r.SupervisorOfficerCode,
		&r.Notes,
		&r.HiVisWorn,
		&r.WorkedIntensively,
		&r.PenaltyMinutes,
		&r.WorkQuality,
		&r.Behaviour,
		&r.EnforcementActionID,
		&r.RespondBy,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	r.Content = r.Content.Normalize()
	return &r, nil
}

func findLatest(ctx context.Context, q pgx.Tx, appointmentID int64) (*Record, error) {
	row := q.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM appointment_outcomes
		WHERE appointment_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, appointmentID)
	return scanRecord(row)
}

// Interface methods

func (r *PgRepository) FindLatest(ctx context.Context, appointmentID int64) (*Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM appointment_outcomes
		WHERE appointment_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, appointmentID)
	return scanRecord(row)
}

// InsertIfChanged takes a transaction scoped advisory lock on the appointment
// id, so concurrent writers for the same appointment queue behind each other
// even when no Redis lock is in front of the store.
func (r *PgRepository) InsertIfChanged(ctx context.Context, rec *Record) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, rec.AppointmentID); err != nil {
		return false, fmt.Errorf("advisory lock: %w", err)
	}

	latest, err := findLatest(ctx, tx, rec.AppointmentID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return false, fmt.Errorf("find latest outcome: %w", err)
	}
	if latest != nil && latest.IsLogicallyIdentical(rec.Content) {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointment_outcomes (
			id, appointment_id, project_type_id, start_time, end_time, contact_outcome_id,
			supervisor_team_id, supervisor_officer_code, notes, hi_vis_worn, worked_intensively,
			penalty_minutes, work_quality, behaviour, enforcement_action_id, respond_by,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		rec.ID,
		rec.AppointmentID,
		rec.ProjectTypeID,
		rec.StartTime,
		rec.EndTime,
		rec.ContactOutcomeID,
		rec.SupervisorTeamID,
		rec.SupervisorOfficerCode,
		rec.Notes,
		rec.HiVisWorn,
		rec.WorkedIntensively,
		rec.PenaltyMinutes,
		ratingArg(rec.WorkQuality),
		ratingArg(rec.Behaviour),
		rec.EnforcementActionID,
		rec.RespondBy,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert outcome: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit outcome: %w", err)
	}

	return true, nil
}

func (r *PgRepository) FindByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM appointment_outcomes
		WHERE id = $1
	`, id)
	return scanRecord(row)
}

func (r *PgRepository) History(ctx context.Context, appointmentID int64) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM appointment_outcomes
		WHERE appointment_id = $1
		ORDER BY created_at ASC, seq ASC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UnknownAppointments(ctx context.Context, appointmentIDs []int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT requested.id
		FROM unnest($1::bigint[]) AS requested(id)
		LEFT JOIN community_payback_appointments a ON a.id = requested.id
		WHERE a.id IS NULL
	`, appointmentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var unknown []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		unknown = append(unknown, id)
	}

	return unknown, rows.Err()
}

func ratingArg(r *Rating) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}
