package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/community-payback-reconciler/internal/db"
	"github.com/hackgods/community-payback-reconciler/internal/outcome"
	redisclient "github.com/hackgods/community-payback-reconciler/internal/redis"
	"github.com/hackgods/community-payback-reconciler/internal/scheduling"
	"github.com/hackgods/community-payback-reconciler/internal/telemetry"
)

var shiftStart = time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)

func setupRouter(t *testing.T, checks ...Check) (http.Handler, *sql.DB) {
	t.Helper()

	sqlDB, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	_, err = sqlDB.Exec(`
		INSERT INTO community_payback_requirements (crn, event_number, required_minutes, adjustment_minutes, completed_minutes, start_date, end_date)
		VALUES ('X123456', 1, 6000, 0, 1200, '2026-06-01', '2026-06-30')
	`)
	require.NoError(t, err)

	for _, id := range []int64{10, 11} {
		start := shiftStart.AddDate(0, 0, int(id-10))
		_, err := sqlDB.Exec(`
			INSERT INTO community_payback_appointments (id, crn, project_code, start_time, end_time)
			VALUES (?, 'X123456', 'PRJ1', ?, ?)
		`, id, db.FormatSQLiteTime(start), db.FormatSQLiteTime(start.Add(7*time.Hour)))
		require.NoError(t, err)
	}

	repo := outcome.NewSQLiteRepository(sqlDB)
	outcomes := outcome.NewService(repo, repo, redisclient.NewLocalLocker(), zap.NewNop())

	reconciler := scheduling.NewService(
		scheduling.NewSQLiteSource(sqlDB).Sources(),
		scheduling.NewScheduler(nil),
		scheduling.NewTelemetryPublisher(telemetry.NewLogClient(zap.NewNop())),
		zap.NewNop(),
	)

	return NewRouter(RouterConfig{
		Outcomes:   outcomes,
		Scheduling: reconciler,
		Checks:     checks,
		Env:        "test",
		Version:    "v0.0.0",
	}), sqlDB
}

func validUpdate(appointmentID int64) OutcomeUpdate {
	quality := "GOOD"
	respondBy := "2026-06-09"
	hiVis := true
	return OutcomeUpdate{
		AppointmentID:         appointmentID,
		ProjectTypeID:         3,
		StartTime:             shiftStart,
		EndTime:               shiftStart.Add(7 * time.Hour),
		ContactOutcomeID:      uuid.MustParse("5a4fa8a3-7c3c-4b0e-9b35-0f0b8b4a6c11"),
		SupervisorTeamID:      12,
		SupervisorOfficerCode: "N56A108",
		HiVisWorn:             &hiVis,
		WorkQuality:           &quality,
		RespondBy:             &respondBy,
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestUpdateOutcomes_RecordsOnceAndServesHistory(t *testing.T) {
	h, _ := setupRouter(t)
	body := OutcomeUpdateRequest{Outcomes: []OutcomeUpdate{validUpdate(10)}}

	rec := doJSON(t, h, http.MethodPut, "/appointments/outcomes", body)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/appointments/outcomes", body)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/appointments/10/outcomes", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var history OutcomeHistoryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	require.Len(t, history.Records, 1)

	got := history.Records[0]
	assert.Equal(t, int64(10), got.AppointmentID)
	require.NotNil(t, got.WorkQuality)
	assert.Equal(t, "GOOD", *got.WorkQuality)
	require.NotNil(t, got.RespondBy)
	assert.Equal(t, "2026-06-09", *got.RespondBy)
	assert.Nil(t, got.Behaviour)

	rec = doJSON(t, h, http.MethodGet, "/appointment-outcomes/"+got.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var single OutcomeRecordResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&single))
	assert.Equal(t, got.ID, single.ID)
}

func TestUpdateOutcomes_UnknownAppointmentsRejectedTogether(t *testing.T) {
	h, sqlDB := setupRouter(t)
	body := OutcomeUpdateRequest{Outcomes: []OutcomeUpdate{validUpdate(10), validUpdate(99), validUpdate(42)}}

	rec := doJSON(t, h, http.MethodPut, "/appointments/outcomes", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, "invalid_appointment_reference", resp.Error)
	assert.Contains(t, resp.Details, "42, 99")

	var count int
	require.NoError(t, sqlDB.QueryRow(`SELECT COUNT(*) FROM appointment_outcomes`).Scan(&count))
	assert.Zero(t, count)
}

func TestUpdateOutcomes_Validation(t *testing.T) {
	h, _ := setupRouter(t)

	badRating := validUpdate(10)
	rating := "AMAZING"
	badRating.WorkQuality = &rating

	badDate := validUpdate(10)
	date := "09/06/2026"
	badDate.RespondBy = &date

	backwards := validUpdate(10)
	backwards.EndTime = backwards.StartTime.Add(-time.Hour)

	noContact := validUpdate(10)
	noContact.ContactOutcomeID = uuid.Nil

	for name, update := range map[string]OutcomeUpdate{
		"unknown rating":     badRating,
		"bad respond_by":     badDate,
		"end before start":   backwards,
		"no contact outcome": noContact,
	} {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPut, "/appointments/outcomes", OutcomeUpdateRequest{Outcomes: []OutcomeUpdate{update}})
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_outcome", decodeError(t, rec).Error)
		})
	}

	rec := doJSON(t, h, http.MethodPut, "/appointments/outcomes", OutcomeUpdateRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_outcomes", decodeError(t, rec).Error)
}

func TestGetOutcomeRecord_Errors(t *testing.T) {
	h, _ := setupRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/appointment-outcomes/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/appointment-outcomes/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "outcome_not_found", decodeError(t, rec).Error)
}

type lockedOutcomes struct{ OutcomeService }

func (lockedOutcomes) UpdateOutcomes(context.Context, []outcome.Update) error {
	return fmt.Errorf("apply: %w", redisclient.ErrLockNotAcquired)
}

func TestUpdateOutcomes_LockContention(t *testing.T) {
	h := NewRouter(RouterConfig{Outcomes: lockedOutcomes{}})

	rec := doJSON(t, h, http.MethodPut, "/appointments/outcomes", OutcomeUpdateRequest{Outcomes: []OutcomeUpdate{validUpdate(10)}})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "appointment_being_updated", decodeError(t, rec).Error)
}

func TestReconcile(t *testing.T) {
	h, sqlDB := setupRouter(t)

	for _, day := range []int{0, 1} {
		start := shiftStart.AddDate(0, 0, day)
		_, err := sqlDB.Exec(`
			INSERT INTO community_payback_required_appointments (crn, project_code, start_time, end_time)
			VALUES ('X123456', 'PRJ1', ?, ?)
		`, db.FormatSQLiteTime(start), db.FormatSQLiteTime(start.Add(7*time.Hour)))
		require.NoError(t, err)
	}
	start := shiftStart.AddDate(0, 0, 5)
	_, err := sqlDB.Exec(`
		INSERT INTO community_payback_required_appointments (crn, project_code, start_time, end_time)
		VALUES ('X123456', 'PRJ2', ?, ?)
	`, db.FormatSQLiteTime(start), db.FormatSQLiteTime(start.Add(7*time.Hour)))
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodPost, "/scheduling/X123456/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ReconcileResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "X123456", resp.CRN)
	assert.Equal(t, "ExistingAppointmentsInsufficient", resp.Outcome)
	assert.Equal(t, 1, resp.AppointmentCreationCount)
	require.Len(t, resp.Plan, 3)
	assert.Equal(t, "retain", resp.Plan[0].Action)
	require.NotNil(t, resp.Plan[0].AppointmentID)
	assert.Equal(t, int64(10), *resp.Plan[0].AppointmentID)
	assert.Equal(t, "create", resp.Plan[2].Action)
	assert.Equal(t, "PRJ2", resp.Plan[2].ProjectCode)
}

func TestReconcile_Errors(t *testing.T) {
	h, _ := setupRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/scheduling/NOPE/reconcile", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "requirement_not_found", decodeError(t, rec).Error)

	rec = doJSON(t, h, http.MethodPost, "/scheduling/X123456/reconcile", ReconcileRequest{TriggerType: "Whenever"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestReadiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	cases := []struct {
		name   string
		checks []Check
		status string
		code   int
	}{
		{"all up", []Check{{Name: "sqlite", Required: true, Ping: ok}, {Name: "redis", Ping: ok}}, "ok", http.StatusOK},
		{"optional down", []Check{{Name: "sqlite", Required: true, Ping: ok}, {Name: "redis", Ping: down}}, "degraded", http.StatusOK},
		{"required down", []Check{{Name: "sqlite", Required: true, Ping: down}, {Name: "redis", Ping: ok}}, "error", http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewRouter(RouterConfig{Checks: tc.checks})
			rec := doJSON(t, h, http.MethodGet, "/health/ready", nil)
			require.Equal(t, tc.code, rec.Code)

			var resp ReadinessResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tc.status, resp.Status)
			assert.Len(t, resp.Dependencies, 2)
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := NewRouter(RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}
