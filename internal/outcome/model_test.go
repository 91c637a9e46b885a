package outcome

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func sampleContent() Content {
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	return Content{
		ProjectTypeID:         3,
		StartTime:             start,
		EndTime:               start.Add(7 * time.Hour),
		ContactOutcomeID:      uuid.MustParse("5a4fa8a3-7c3c-4b0e-9b35-0f0b8b4a6c11"),
		SupervisorTeamID:      12,
		SupervisorOfficerCode: "N56A108",
		Notes:                 ptr("arrived on time"),
		HiVisWorn:             ptr(true),
		WorkedIntensively:     ptr(false),
		PenaltyMinutes:        ptr(int64(0)),
		WorkQuality:           ptr(RatingGood),
		Behaviour:             ptr(RatingExcellent),
		RespondBy:             ptr(time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)),
	}
}

func TestContentEqual_IgnoresBookkeeping(t *testing.T) {
	c := sampleContent()

	a := Record{ID: uuid.New(), AppointmentID: 1, Content: c, CreatedAt: time.Now()}
	b := Record{ID: uuid.New(), AppointmentID: 1, Content: c, CreatedAt: time.Now().Add(time.Hour), UpdatedAt: time.Now()}

	assert.True(t, a.IsLogicallyIdentical(b.Content))
	assert.NotEqual(t, a.ID, b.ID)
}

func TestContentEqual_EveryFieldMatters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Content)
	}{
		{"project type", func(c *Content) { c.ProjectTypeID = 4 }},
		{"start time", func(c *Content) { c.StartTime = c.StartTime.Add(time.Minute) }},
		{"end time", func(c *Content) { c.EndTime = c.EndTime.Add(-time.Minute) }},
		{"contact outcome", func(c *Content) { c.ContactOutcomeID = uuid.New() }},
		{"supervisor team", func(c *Content) { c.SupervisorTeamID = 13 }},
		{"supervisor officer", func(c *Content) { c.SupervisorOfficerCode = "N56A109" }},
		{"notes changed", func(c *Content) { c.Notes = ptr("left early") }},
		{"notes removed", func(c *Content) { c.Notes = nil }},
		{"hi vis worn", func(c *Content) { c.HiVisWorn = ptr(false) }},
		{"worked intensively", func(c *Content) { c.WorkedIntensively = ptr(true) }},
		{"penalty minutes", func(c *Content) { c.PenaltyMinutes = ptr(int64(30)) }},
		{"work quality", func(c *Content) { c.WorkQuality = ptr(RatingPoor) }},
		{"behaviour", func(c *Content) { c.Behaviour = nil }},
		{"enforcement action", func(c *Content) { c.EnforcementActionID = ptr(uuid.New()) }},
		{"respond by", func(c *Content) { c.RespondBy = ptr(c.RespondBy.AddDate(0, 0, 1)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := sampleContent()
			changed := sampleContent()
			tt.mutate(&changed)

			assert.False(t, base.Equal(changed))
			assert.False(t, changed.Equal(base))
		})
	}
}

func TestContentEqual_NormalizesTimes(t *testing.T) {
	a := sampleContent()
	b := sampleContent()

	london := time.FixedZone("BST", 3600)
	b.StartTime = a.StartTime.In(london).Add(300 * time.Nanosecond)
	b.RespondBy = ptr(time.Date(2026, 5, 11, 17, 30, 0, 0, time.UTC))

	assert.True(t, a.Equal(b))
}

func TestRatingValid(t *testing.T) {
	assert.True(t, RatingSatisfactory.Valid())
	assert.True(t, RatingNotApplicable.Valid())
	assert.False(t, Rating("AVERAGE").Valid())
}

func TestInvalidReferenceError(t *testing.T) {
	err := newInvalidReferenceError([]int64{9, 3})

	assert.ErrorIs(t, err, ErrInvalidReference)
	assert.Equal(t, "appointment(s) not found: 3, 9", err.Error())
}
