package scheduling

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/community-payback-reconciler/internal/db"
)

func setupSchedulingTestDB(t *testing.T) *sql.DB {
	t.Helper()

	sqlDB, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	_, err = sqlDB.Exec(`
		INSERT INTO community_payback_requirements (crn, event_number, required_minutes, adjustment_minutes, completed_minutes, start_date, end_date)
		VALUES ('X123456', 1, 6000, 0, 1200, '2026-06-01', '2026-06-30'),
		       ('X999999', 2, 600, 0, 600, '2026-06-01', NULL)
	`)
	require.NoError(t, err)

	return sqlDB
}

func insertRequired(t *testing.T, sqlDB *sql.DB, crn string, r RequiredAppointment) {
	t.Helper()
	_, err := sqlDB.Exec(`
		INSERT INTO community_payback_required_appointments (crn, project_code, start_time, end_time)
		VALUES (?, ?, ?, ?)
	`, crn, r.ProjectCode, db.FormatSQLiteTime(r.StartTime), db.FormatSQLiteTime(r.EndTime))
	require.NoError(t, err)
}

func insertExisting(t *testing.T, sqlDB *sql.DB, crn string, a ExistingAppointment) {
	t.Helper()
	_, err := sqlDB.Exec(`
		INSERT INTO community_payback_appointments (id, crn, project_code, start_time, end_time, minutes_credited)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, crn, a.ProjectCode, db.FormatSQLiteTime(a.StartTime), db.FormatSQLiteTime(a.EndTime), a.MinutesCredited)
	require.NoError(t, err)
}

func TestService_Reconcile_PlansMissingAppointments(t *testing.T) {
	sqlDB := setupSchedulingTestDB(t)
	matched := slot(1, "PRJ1")
	insertRequired(t, sqlDB, "X123456", matched)
	insertRequired(t, sqlDB, "X123456", slot(2, "PRJ1"))
	insertRequired(t, sqlDB, "X123456", slot(40, "PRJ1")) // outside the requirement window
	insertExisting(t, sqlDB, "X123456", booked(10, matched))

	client := new(mockTelemetryClient)
	client.On("TrackEvent", EventSchedulingComplete, map[string]string{
		"crn":                      "X123456",
		"triggerType":              "AppointmentChange",
		"outcome":                  "ExistingAppointmentsInsufficient",
		"appointmentCreationCount": "1",
	}).Once()

	svc := NewService(NewSQLiteSource(sqlDB).Sources(), NewScheduler(nil), NewTelemetryPublisher(client), zap.NewNop())

	id := int64(10)
	outcome, err := svc.Reconcile(context.Background(), "X123456", Trigger{Type: TriggerAppointmentChange, AppointmentID: &id})
	require.NoError(t, err)

	insufficient, ok := outcome.(ExistingAppointmentsInsufficient)
	require.True(t, ok)
	require.Len(t, insufficient.Plan, 2)
	assert.True(t, insufficient.Plan[0].(RetainAppointment).Existing.StartTime.Equal(matched.StartTime))
	client.AssertExpectations(t)
}

func TestService_Reconcile_SatisfiedRequirement(t *testing.T) {
	sqlDB := setupSchedulingTestDB(t)
	insertRequired(t, sqlDB, "X999999", slot(1, "PRJ1"))

	client := new(mockTelemetryClient)
	client.On("TrackEvent", EventSchedulingComplete, mock.Anything).Once()

	svc := NewService(NewSQLiteSource(sqlDB).Sources(), NewScheduler(nil), NewTelemetryPublisher(client), zap.NewNop())

	outcome, err := svc.Reconcile(context.Background(), "X999999", Trigger{Type: TriggerManual})
	require.NoError(t, err)
	assert.Equal(t, RequirementAlreadySatisfied{}, outcome)
	client.AssertExpectations(t)
}

func TestService_Reconcile_UnknownCRN(t *testing.T) {
	client := new(mockTelemetryClient)
	svc := NewService(NewSQLiteSource(setupSchedulingTestDB(t)).Sources(), NewScheduler(nil), NewTelemetryPublisher(client), zap.NewNop())

	_, err := svc.Reconcile(context.Background(), "NOPE", Trigger{Type: TriggerManual})
	assert.ErrorIs(t, err, ErrRequirementNotFound)
	client.AssertNotCalled(t, "TrackEvent", mock.Anything, mock.Anything)
}

func TestSQLiteSource_Requirement(t *testing.T) {
	src := NewSQLiteSource(setupSchedulingTestDB(t))

	req, err := src.Requirement(context.Background(), "X123456")
	require.NoError(t, err)
	assert.Equal(t, int64(4800), req.RemainingMinutes())
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), req.StartDate)
	require.NotNil(t, req.EndDate)

	open, err := src.Requirement(context.Background(), "X999999")
	require.NoError(t, err)
	assert.Nil(t, open.EndDate)
	assert.True(t, open.IsSatisfied())
}
