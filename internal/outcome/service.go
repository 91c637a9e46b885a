package outcome

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/community-payback-reconciler/internal/redis"
)

type Service struct {
	repo      Store
	directory Directory
	locker    redisclient.Locker
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(repo Store, directory Directory, locker redisclient.Locker, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		locker:    locker,
		logger:    logger.Named("outcome.service"),
		now:       time.Now,
	}
}

// UpdateOutcomes applies a batch of outcome updates. Every appointment id is
// checked before anything is written and all unknown ids are reported in a
// single InvalidReferenceError. Updates are then applied one by one; a
// storage failure stops the batch but earlier updates stay recorded.
func (s *Service) UpdateOutcomes(ctx context.Context, updates []Update) error {
	if len(updates) == 0 {
		return ErrEmptyBatch
	}

	ids := make([]int64, 0, len(updates))
	seen := make(map[int64]struct{}, len(updates))
	for _, u := range updates {
		if _, ok := seen[u.AppointmentID]; ok {
			continue
		}
		seen[u.AppointmentID] = struct{}{}
		ids = append(ids, u.AppointmentID)
	}

	if err := s.checkReferences(ctx, ids); err != nil {
		return err
	}

	recorded := 0
	for _, u := range updates {
		res, err := s.apply(ctx, u.AppointmentID, u.Content)
		if err != nil {
			s.logger.Warn("outcome_batch_aborted",
				zap.Int64("appointment_id", u.AppointmentID),
				zap.Int("recorded", recorded),
				zap.Int("batch_size", len(updates)),
				zap.Error(err),
			)
			return err
		}
		if res == ResultRecorded {
			recorded++
		}
	}

	s.logger.Debug("outcome_batch_applied",
		zap.Int("batch_size", len(updates)),
		zap.Int("recorded", recorded),
	)
	return nil
}

// Apply records content for one appointment unless the most recent record
// already holds the same values, in which case nothing is written.
func (s *Service) Apply(ctx context.Context, appointmentID int64, content Content) (Result, error) {
	if err := s.checkReferences(ctx, []int64{appointmentID}); err != nil {
		return 0, err
	}
	return s.apply(ctx, appointmentID, content)
}

func (s *Service) apply(ctx context.Context, appointmentID int64, content Content) (Result, error) {
	var result Result

	err := s.locker.WithAppointmentLock(ctx, appointmentID, func(lockCtx context.Context) error {
		now := s.now().UTC()
		rec := &Record{
			ID:            uuid.New(),
			AppointmentID: appointmentID,
			Content:       content.Normalize(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		written, err := s.repo.InsertIfChanged(lockCtx, rec)
		if err != nil {
			return fmt.Errorf("%w: appointment %d: %w", ErrPersistence, appointmentID, err)
		}

		if !written {
			result = ResultUnchanged
			s.logger.Debug("outcome_already_up_to_date", zap.Int64("appointment_id", appointmentID))
			return nil
		}

		result = ResultRecorded
		s.logger.Info("outcome_recorded",
			zap.Int64("appointment_id", appointmentID),
			zap.String("record_id", rec.ID.String()),
		)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return result, nil
}

func (s *Service) checkReferences(ctx context.Context, ids []int64) error {
	unknown, err := s.directory.UnknownAppointments(ctx, ids)
	if err != nil {
		return fmt.Errorf("%w: check appointment references: %w", ErrPersistence, err)
	}
	if len(unknown) > 0 {
		return newInvalidReferenceError(unknown)
	}
	return nil
}

// GetRecord returns a single record by its id.
func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: get record: %w", ErrPersistence, err)
	}
	return rec, nil
}

// History returns every outcome recorded for an appointment, oldest first.
func (s *Service) History(ctx context.Context, appointmentID int64) ([]Record, error) {
	if err := s.checkReferences(ctx, []int64{appointmentID}); err != nil {
		return nil, err
	}

	records, err := s.repo.History(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: appointment history: %w", ErrPersistence, err)
	}
	return records, nil
}

// Latest returns the most recent outcome recorded for an appointment.
func (s *Service) Latest(ctx context.Context, appointmentID int64) (*Record, error) {
	if err := s.checkReferences(ctx, []int64{appointmentID}); err != nil {
		return nil, err
	}

	rec, err := s.repo.FindLatest(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: latest record: %w", ErrPersistence, err)
	}
	return rec, nil
}
