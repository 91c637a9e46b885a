package outcome

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/community-payback-reconciler/internal/db"
)

// setupOutcomeTestDB opens an in-memory SQLite database with the schema applied
// and registers the given appointment ids as known upstream appointments.
func setupOutcomeTestDB(t *testing.T, appointmentIDs ...int64) *sql.DB {
	t.Helper()

	sqlDB, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	for _, id := range appointmentIDs {
		_, err := sqlDB.Exec(`
			INSERT INTO community_payback_appointments (id, crn, project_code, start_time, end_time)
			VALUES (?, 'X123456', 'PRJ1', ?, ?)
		`, id, db.FormatSQLiteTime(start), db.FormatSQLiteTime(start.Add(7*time.Hour)))
		require.NoError(t, err)
	}

	return sqlDB
}

func newRecord(appointmentID int64, c Content, createdAt time.Time) *Record {
	return &Record{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		Content:       c,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestSQLiteRepository_InsertIfChanged(t *testing.T) {
	repo := NewSQLiteRepository(setupOutcomeTestDB(t, 1))
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 17, 0, 0, 0, time.UTC)

	written, err := repo.InsertIfChanged(ctx, newRecord(1, sampleContent(), now))
	require.NoError(t, err)
	assert.True(t, written)

	written, err = repo.InsertIfChanged(ctx, newRecord(1, sampleContent(), now.Add(time.Minute)))
	require.NoError(t, err)
	assert.False(t, written)

	changed := sampleContent()
	changed.HiVisWorn = ptr(false)
	written, err = repo.InsertIfChanged(ctx, newRecord(1, changed, now.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.True(t, written)

	history, err := repo.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].IsLogicallyIdentical(sampleContent()))
	assert.True(t, history[1].IsLogicallyIdentical(changed))
}

func TestSQLiteRepository_FindLatest_TieBreaksOnInsertionOrder(t *testing.T) {
	repo := NewSQLiteRepository(setupOutcomeTestDB(t, 1))
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 17, 0, 0, 0, time.UTC)

	first := sampleContent()
	second := sampleContent()
	second.PenaltyMinutes = ptr(int64(15))

	_, err := repo.InsertIfChanged(ctx, newRecord(1, first, now))
	require.NoError(t, err)
	latestRec := newRecord(1, second, now)
	_, err = repo.InsertIfChanged(ctx, latestRec)
	require.NoError(t, err)

	latest, err := repo.FindLatest(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, latestRec.ID, latest.ID)
	assert.Equal(t, int64(15), *latest.PenaltyMinutes)

	// Going back to the first content is a new version, not a no-op.
	written, err := repo.InsertIfChanged(ctx, newRecord(1, first, now))
	require.NoError(t, err)
	assert.True(t, written)
}

func TestSQLiteRepository_FindByID_RoundTripsOptionalFields(t *testing.T) {
	repo := NewSQLiteRepository(setupOutcomeTestDB(t, 1))
	ctx := context.Background()

	c := sampleContent()
	c.EnforcementActionID = ptr(uuid.New())
	rec := newRecord(1, c, time.Date(2026, 5, 4, 17, 0, 0, 0, time.UTC))

	_, err := repo.InsertIfChanged(ctx, rec)
	require.NoError(t, err)

	found, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)
	assert.Equal(t, int64(1), found.AppointmentID)
	assert.True(t, found.IsLogicallyIdentical(c))
	assert.True(t, found.CreatedAt.Equal(rec.CreatedAt))

	bare := Content{
		ProjectTypeID:         1,
		StartTime:             c.StartTime,
		EndTime:               c.EndTime,
		ContactOutcomeID:      c.ContactOutcomeID,
		SupervisorTeamID:      2,
		SupervisorOfficerCode: "N56A100",
	}
	bareRec := newRecord(1, bare, rec.CreatedAt.Add(time.Second))
	_, err = repo.InsertIfChanged(ctx, bareRec)
	require.NoError(t, err)

	found, err = repo.FindByID(ctx, bareRec.ID)
	require.NoError(t, err)
	assert.Nil(t, found.Notes)
	assert.Nil(t, found.HiVisWorn)
	assert.Nil(t, found.WorkQuality)
	assert.Nil(t, found.RespondBy)
	assert.True(t, found.IsLogicallyIdentical(bare))
}

func TestSQLiteRepository_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupOutcomeTestDB(t))
	ctx := context.Background()

	_, err := repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = repo.FindLatest(ctx, 99)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSQLiteRepository_UnknownAppointments(t *testing.T) {
	repo := NewSQLiteRepository(setupOutcomeTestDB(t, 1, 2))

	unknown, err := repo.UnknownAppointments(context.Background(), []int64{1, 5, 2, 7})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 7}, unknown)
}
