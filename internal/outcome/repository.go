package outcome

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrRecordNotFound   = errors.New("outcome record not found")
	ErrInvalidReference = errors.New("invalid appointment reference")
	ErrPersistence      = errors.New("outcome persistence failed")
	ErrEmptyBatch       = errors.New("no outcome updates supplied")
)

// InvalidReferenceError names every appointment id the directory did not recognise.
type InvalidReferenceError struct {
	AppointmentIDs []int64
}

func (e *InvalidReferenceError) Error() string {
	ids := make([]string, 0, len(e.AppointmentIDs))
	for _, id := range e.AppointmentIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return fmt.Sprintf("appointment(s) not found: %s", strings.Join(ids, ", "))
}

func (e *InvalidReferenceError) Is(target error) bool {
	return target == ErrInvalidReference
}

func newInvalidReferenceError(ids []int64) *InvalidReferenceError {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &InvalidReferenceError{AppointmentIDs: sorted}
}

// Store is the append-only outcome log. Implementations never update or
// delete rows.
type Store interface {
	// FindLatest returns the newest record for an appointment, ordered by
	// creation time then insertion order, or ErrRecordNotFound.
	FindLatest(ctx context.Context, appointmentID int64) (*Record, error)

	// InsertIfChanged inserts rec unless the latest record for the same
	// appointment already has identical content. The read and the insert run
	// in one unit of work. It reports whether a row was written.
	InsertIfChanged(ctx context.Context, rec *Record) (bool, error)

	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)

	// History returns every record for an appointment, oldest first.
	History(ctx context.Context, appointmentID int64) ([]Record, error)
}

// Directory knows which appointment ids exist upstream.
type Directory interface {
	// UnknownAppointments returns the subset of ids that do not exist.
	UnknownAppointments(ctx context.Context, appointmentIDs []int64) ([]int64, error)
}
