package outcome

import (
	"time"

	"github.com/google/uuid"
)

// Rating is shared by the work quality and behaviour assessments.
type Rating string

const (
	RatingExcellent      Rating = "EXCELLENT"
	RatingGood           Rating = "GOOD"
	RatingNotApplicable  Rating = "NOT_APPLICABLE"
	RatingPoor           Rating = "POOR"
	RatingSatisfactory   Rating = "SATISFACTORY"
	RatingUnsatisfactory Rating = "UNSATISFACTORY"
)

type (
	WorkQuality = Rating
	Behaviour   = Rating
)

func (r Rating) Valid() bool {
	switch r {
	case RatingExcellent, RatingGood, RatingNotApplicable, RatingPoor, RatingSatisfactory, RatingUnsatisfactory:
		return true
	}
	return false
}

// Content holds every field that takes part in the logical identity of an
// outcome. Bookkeeping lives on Record.
type Content struct {
	ProjectTypeID         int64
	StartTime             time.Time
	EndTime               time.Time
	ContactOutcomeID      uuid.UUID
	SupervisorTeamID      int64
	SupervisorOfficerCode string
	Notes                 *string
	HiVisWorn             *bool
	WorkedIntensively     *bool
	PenaltyMinutes        *int64
	WorkQuality           *WorkQuality
	Behaviour             *Behaviour
	EnforcementActionID   *uuid.UUID
	RespondBy             *time.Time
}

// Normalize puts times into the precision every store can round-trip:
// UTC microseconds, and a bare date for RespondBy.
func (c Content) Normalize() Content {
	c.StartTime = normalizeTime(c.StartTime)
	c.EndTime = normalizeTime(c.EndTime)
	if c.RespondBy != nil {
		d := dateOnly(*c.RespondBy)
		c.RespondBy = &d
	}
	return c
}

// Equal reports whether two contents are logically identical.
func (c Content) Equal(o Content) bool {
	a, b := c.Normalize(), o.Normalize()

	return a.ProjectTypeID == b.ProjectTypeID &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime) &&
		a.ContactOutcomeID == b.ContactOutcomeID &&
		a.SupervisorTeamID == b.SupervisorTeamID &&
		a.SupervisorOfficerCode == b.SupervisorOfficerCode &&
		ptrEqual(a.Notes, b.Notes) &&
		ptrEqual(a.HiVisWorn, b.HiVisWorn) &&
		ptrEqual(a.WorkedIntensively, b.WorkedIntensively) &&
		ptrEqual(a.PenaltyMinutes, b.PenaltyMinutes) &&
		ptrEqual(a.WorkQuality, b.WorkQuality) &&
		ptrEqual(a.Behaviour, b.Behaviour) &&
		ptrEqual(a.EnforcementActionID, b.EnforcementActionID) &&
		timePtrEqual(a.RespondBy, b.RespondBy)
}

// Record is one entry in the append-only outcome history of an appointment.
// Two records are the same record only when their IDs match.
type Record struct {
	ID            uuid.UUID
	AppointmentID int64
	Content
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLogicallyIdentical compares content only, ignoring ID and timestamps.
func (r *Record) IsLogicallyIdentical(c Content) bool {
	return r.Content.Equal(c)
}

// Update is one entry of a batch submission.
type Update struct {
	AppointmentID int64
	Content       Content
}

// Result tells the caller whether Apply wrote anything.
type Result int

const (
	ResultRecorded Result = iota + 1
	ResultUnchanged
)

func (r Result) String() string {
	switch r {
	case ResultRecorded:
		return "recorded"
	case ResultUnchanged:
		return "already_up_to_date"
	}
	return "unknown"
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
