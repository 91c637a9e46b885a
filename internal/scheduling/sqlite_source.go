package scheduling

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/community-payback-reconciler/internal/db"
)

// SQLiteSource is the SQLite counterpart of PgSource.
type SQLiteSource struct {
	db *sql.DB
}

func NewSQLiteSource(sqlDB *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: sqlDB}
}

func (s *SQLiteSource) Sources() Sources {
	return Sources{Requirements: s, Required: s, Existing: s}
}

func (s *SQLiteSource) Requirement(ctx context.Context, crn string) (Requirement, error) {
	var (
		r         Requirement
		startDate string
		endDate   sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT crn, event_number, required_minutes, adjustment_minutes, completed_minutes, start_date, end_date
		FROM community_payback_requirements
		WHERE crn = ?
	`, crn).Scan(
		&r.CRN,
		&r.EventNumber,
		&r.RequiredMinutes,
		&r.AdjustmentMinutes,
		&r.CompletedMinutes,
		&startDate,
		&endDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Requirement{}, ErrRequirementNotFound
		}
		return Requirement{}, err
	}

	if r.StartDate, err = time.Parse(db.SQLiteDateLayout, startDate); err != nil {
		return Requirement{}, fmt.Errorf("parse start date: %w", err)
	}
	if endDate.Valid {
		end, err := time.Parse(db.SQLiteDateLayout, endDate.String)
		if err != nil {
			return Requirement{}, fmt.Errorf("parse end date: %w", err)
		}
		r.EndDate = &end
	}

	return r, nil
}

func (s *SQLiteSource) RequiredAppointments(ctx context.Context, req Requirement) ([]RequiredAppointment, error) {
	from, to := sqliteWindow(req)

	rows, err := s.db.QueryContext(ctx, `
		SELECT project_code, start_time, end_time
		FROM community_payback_required_appointments
		WHERE crn = ?
		  AND start_time >= ?
		  AND (? IS NULL OR start_time < ?)
		ORDER BY start_time, end_time, project_code
	`, req.CRN, from, to, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RequiredAppointment
	for rows.Next() {
		var (
			a          RequiredAppointment
			start, end string
		)
		if err := rows.Scan(&a.ProjectCode, &start, &end); err != nil {
			return nil, err
		}
		if a.StartTime, err = db.ParseSQLiteTime(start); err != nil {
			return nil, err
		}
		if a.EndTime, err = db.ParseSQLiteTime(end); err != nil {
			return nil, err
		}
		result = append(result, a)
	}

	return result, rows.Err()
}

func (s *SQLiteSource) ExistingAppointments(ctx context.Context, req Requirement) ([]ExistingAppointment, error) {
	from, to := sqliteWindow(req)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_code, start_time, end_time, minutes_credited
		FROM community_payback_appointments
		WHERE crn = ?
		  AND start_time >= ?
		  AND (? IS NULL OR start_time < ?)
		ORDER BY start_time, end_time, id
	`, req.CRN, from, to, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ExistingAppointment
	for rows.Next() {
		var (
			a          ExistingAppointment
			start, end string
		)
		if err := rows.Scan(&a.ID, &a.ProjectCode, &start, &end, &a.MinutesCredited); err != nil {
			return nil, err
		}
		if a.StartTime, err = db.ParseSQLiteTime(start); err != nil {
			return nil, err
		}
		if a.EndTime, err = db.ParseSQLiteTime(end); err != nil {
			return nil, err
		}
		result = append(result, a)
	}

	return result, rows.Err()
}

func sqliteWindow(req Requirement) (string, *string) {
	from, to := window(req)
	if to == nil {
		return db.FormatSQLiteTime(from), nil
	}
	end := db.FormatSQLiteTime(*to)
	return db.FormatSQLiteTime(from), &end
}
