package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSource reads the requirement and appointment mirror tables kept in sync
// with the case-management system.
type PgSource struct {
	pool *pgxpool.Pool
}

func NewPgSource(pool *pgxpool.Pool) *PgSource {
	return &PgSource{pool: pool}
}

func (s *PgSource) Sources() Sources {
	return Sources{Requirements: s, Required: s, Existing: s}
}

func (s *PgSource) Requirement(ctx context.Context, crn string) (Requirement, error) {
	var r Requirement

	err := s.pool.QueryRow(ctx, `
		SELECT crn, event_number, required_minutes, adjustment_minutes, completed_minutes, start_date, end_date
		FROM community_payback_requirements
		WHERE crn = $1
	`, crn).Scan(
		&r.CRN,
		&r.EventNumber,
		&r.RequiredMinutes,
		&r.AdjustmentMinutes,
		&r.CompletedMinutes,
		&r.StartDate,
		&r.EndDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Requirement{}, ErrRequirementNotFound
		}
		return Requirement{}, err
	}

	return r, nil
}

func (s *PgSource) RequiredAppointments(ctx context.Context, req Requirement) ([]RequiredAppointment, error) {
	from, to := window(req)

	rows, err := s.pool.Query(ctx, `
		SELECT project_code, start_time, end_time
		FROM community_payback_required_appointments
		WHERE crn = $1
		  AND start_time >= $2
		  AND ($3::timestamptz IS NULL OR start_time < $3)
		ORDER BY start_time, end_time, project_code
	`, req.CRN, from, to)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RequiredAppointment, error) {
		var a RequiredAppointment
		err := row.Scan(&a.ProjectCode, &a.StartTime, &a.EndTime)
		return a, err
	})
}

func (s *PgSource) ExistingAppointments(ctx context.Context, req Requirement) ([]ExistingAppointment, error) {
	from, to := window(req)

	rows, err := s.pool.Query(ctx, `
		SELECT id, project_code, start_time, end_time, minutes_credited
		FROM community_payback_appointments
		WHERE crn = $1
		  AND start_time >= $2
		  AND ($3::timestamptz IS NULL OR start_time < $3)
		ORDER BY start_time, end_time, id
	`, req.CRN, from, to)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ExistingAppointment, error) {
		var a ExistingAppointment
		err := row.Scan(&a.ID, &a.ProjectCode, &a.StartTime, &a.EndTime, &a.MinutesCredited)
		return a, err
	})
}

// window is the half-open interval covered by the requirement. A missing end
// date leaves the window open.
func window(req Requirement) (time.Time, *time.Time) {
	if req.EndDate == nil {
		return req.StartDate, nil
	}
	to := req.EndDate.AddDate(0, 0, 1)
	return req.StartDate, &to
}
