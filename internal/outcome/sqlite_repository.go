package outcome

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/community-payback-reconciler/internal/db"
)

// SQLiteRepository is the single-node store used for local runs and tests.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(sqlDB *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: sqlDB}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*Record, error) {
	var (
		r                              Record
		id, contactOutcomeID           string
		startTime, endTime             string
		createdAt, updatedAt           string
		notes                          sql.NullString
		hiVisWorn, workedIntensively   sql.NullBool
		penaltyMinutes                 sql.NullInt64
		workQuality, behaviour         sql.NullString
		enforcementActionID, respondBy sql.NullString
	)

	err := row.Scan(
		&id,
		&r.AppointmentID,
		&r.ProjectTypeID,
		&startTime,
		&endTime,
		&contactOutcomeID,
		&r.SupervisorTeamID,
		&r.SupervisorOfficerCode,
		&notes,
		&hiVisWorn,
		&workedIntensively,
		&penaltyMinutes,
		&workQuality,
		&behaviour,
		&enforcementActionID,
		&respondBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse record id: %w", err)
	}
	if r.ContactOutcomeID, err = uuid.Parse(contactOutcomeID); err != nil {
		return nil, fmt.Errorf("parse contact outcome id: %w", err)
	}
	if r.StartTime, err = db.ParseSQLiteTime(startTime); err != nil {
		return nil, err
	}
	if r.EndTime, err = db.ParseSQLiteTime(endTime); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = db.ParseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = db.ParseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}

	if notes.Valid {
		r.Notes = &notes.String
	}
	if hiVisWorn.Valid {
		r.HiVisWorn = &hiVisWorn.Bool
	}
	if workedIntensively.Valid {
		r.WorkedIntensively = &workedIntensively.Bool
	}
	if penaltyMinutes.Valid {
		r.PenaltyMinutes = &penaltyMinutes.Int64
	}
	if workQuality.Valid {
		q := Rating(workQuality.String)
		r.WorkQuality = &q
	}
	if behaviour.Valid {
		b := Rating(behaviour.String)
		r.Behaviour = &b
	}
	if enforcementActionID.Valid {
		ea, err := uuid.Parse(enforcementActionID.String)
		if err != nil {
			return nil, fmt.Errorf("parse enforcement action id: %w", err)
		}
		r.EnforcementActionID = &ea
	}
	if respondBy.Valid {
		d, err := time.Parse(db.SQLiteDateLayout, respondBy.String)
		if err != nil {
			return nil, fmt.Errorf("parse respond by: %w", err)
		}
		r.RespondBy = &d
	}

	r.Content = r.Content.Normalize()
	return &r, nil
}

type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteFindLatest(ctx context.Context, q sqliteQuerier, appointmentID int64) (*Record, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM appointment_outcomes
		WHERE appointment_id = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, appointmentID)
	return scanSQLiteRecord(row)
}

func (r *SQLiteRepository) FindLatest(ctx context.Context, appointmentID int64) (*Record, error) {
	return sqliteFindLatest(ctx, r.db, appointmentID)
}

func (r *SQLiteRepository) InsertIfChanged(ctx context.Context, rec *Record) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	latest, err := sqliteFindLatest(ctx, tx, rec.AppointmentID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return false, fmt.Errorf("find latest outcome: %w", err)
	}
	if latest != nil && latest.IsLogicallyIdentical(rec.Content) {
		return false, nil
	}

	c := rec.Content.Normalize()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO appointment_outcomes (
			id, appointment_id, project_type_id, start_time, end_time, contact_outcome_id,
			supervisor_team_id, supervisor_officer_code, notes, hi_vis_worn, worked_intensively,
			penalty_minutes, work_quality, behaviour, enforcement_action_id, respond_by,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID.String(),
		rec.AppointmentID,
		c.ProjectTypeID,
		db.FormatSQLiteTime(c.StartTime),
		db.FormatSQLiteTime(c.EndTime),
		c.ContactOutcomeID.String(),
		c.SupervisorTeamID,
		c.SupervisorOfficerCode,
		c.Notes,
		c.HiVisWorn,
		c.WorkedIntensively,
		c.PenaltyMinutes,
		ratingArg(c.WorkQuality),
		ratingArg(c.Behaviour),
		uuidArg(c.EnforcementActionID),
		dateArg(c.RespondBy),
		db.FormatSQLiteTime(rec.CreatedAt),
		db.FormatSQLiteTime(rec.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert outcome: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit outcome: %w", err)
	}

	return true, nil
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM appointment_outcomes
		WHERE id = ?
	`, id.String())
	return scanSQLiteRecord(row)
}

func (r *SQLiteRepository) History(ctx context.Context, appointmentID int64) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM appointment_outcomes
		WHERE appointment_id = ?
		ORDER BY created_at ASC, seq ASC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}

	return result, rows.Err()
}

func (r *SQLiteRepository) UnknownAppointments(ctx context.Context, appointmentIDs []int64) ([]int64, error) {
	if len(appointmentIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(appointmentIDs)), ",")
	args := make([]any, len(appointmentIDs))
	for i, id := range appointmentIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM community_payback_appointments WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	known := make(map[int64]struct{}, len(appointmentIDs))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		known[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var unknown []int64
	for _, id := range appointmentIDs {
		if _, ok := known[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	return unknown, nil
}

func uuidArg(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func dateArg(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(db.SQLiteDateLayout)
	return &s
}
