package database

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/models"
	"gorm.io/gorm"
)

// JobStore accesses the jobs_history collection
type JobStore struct {
	db *gorm.DB
}

// Ensure registers a job row if it does not exist yet and keeps its
// interval in sync with the registration
func (s *JobStore) Ensure(ctx context.Context, name, interval string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.JobRecord
		err := tx.First(&record, "name = ?", name).Error
		switch {
		case err == nil:
			if record.Interval == interval {
				return nil
			}
			return tx.Model(&models.JobRecord{}).
				Where("name = ?", name).
				Updates(map[string]interface{}{
					"interval":     interval,
					"last_updated": time.Now(),
				}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.JobRecord{
				Name:        name,
				Status:      models.JobStatusIdle,
				Interval:    interval,
				LastUpdated: time.Now(),
			}).Error
		default:
			return err
		}
	})
	if err != nil {
		return apperrors.PersistenceError("failed to ensure job record", err)
	}
	return nil
}

// Get loads one job record by name
func (s *JobStore) Get(ctx context.Context, name string) (*models.JobRecord, error) {
	var record models.JobRecord
	err := s.db.WithContext(ctx).First(&record, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundError("job", name)
	}
	if err != nil {
		return nil, apperrors.PersistenceError("failed to load job record", err)
	}
	return &record, nil
}

// List returns all registered job records
func (s *JobStore) List(ctx context.Context) ([]models.JobRecord, error) {
	var records []models.JobRecord
	err := s.db.WithContext(ctx).Order("name").Find(&records).Error
	if err != nil {
		return nil, apperrors.PersistenceError("failed to list job records", err)
	}
	return records, nil
}

// TryStart claims the running state for one job. The guarded update makes
// the claim atomic: a second caller sees zero affected rows and gets an
// already-running error instead of a duplicate run. The claim does not
// touch last_execution; only a successful finish advances it.
func (s *JobStore) TryStart(ctx context.Context, name string, startedAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.JobRecord{}).
		Where("name = ? AND status <> ?", name, models.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":       models.JobStatusRunning,
			"last_updated": startedAt,
			"last_error":   "",
		})
	if result.Error != nil {
		return apperrors.PersistenceError("failed to claim job", result.Error)
	}
	if result.RowsAffected == 0 {
		var record models.JobRecord
		err := s.db.WithContext(ctx).First(&record, "name = ?", name).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFoundError("job", name)
		}
		return apperrors.AlreadyRunning(name)
	}
	return nil
}

// Complete records a successful finish. last_execution advances to the
// run's claim time so the next incremental pass never misses updates that
// landed while the job ran.
func (s *JobStore) Complete(ctx context.Context, name, result string, startedAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.JobRecord{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{
			"status":         models.JobStatusCompleted,
			"last_execution": startedAt,
			"last_result":    result,
			"last_error":     "",
			"last_updated":   time.Now(),
		}).Error
	if err != nil {
		return apperrors.PersistenceError("failed to finish job record", err)
	}
	return nil
}

// Fail records a failed finish without advancing last_execution
func (s *JobStore) Fail(ctx context.Context, name, errMessage string) error {
	return s.finish(ctx, name, models.JobStatusFailed, "", errMessage)
}

// Cancel records an interrupted finish without advancing last_execution
func (s *JobStore) Cancel(ctx context.Context, name string) error {
	return s.finish(ctx, name, models.JobStatusCancelled, "", "cancelled")
}

func (s *JobStore) finish(ctx context.Context, name string, status models.JobStatus, result, errMessage string) error {
	err := s.db.WithContext(ctx).Model(&models.JobRecord{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{
			"status":       status,
			"last_result":  result,
			"last_error":   errMessage,
			"last_updated": time.Now(),
		}).Error
	if err != nil {
		return apperrors.PersistenceError("failed to finish job record", err)
	}
	return nil
}

// ResetStale marks any job left in the running state as failed. Called at
// startup so a crashed process does not permanently block its jobs.
func (s *JobStore) ResetStale(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.JobRecord{}).
		Where("status = ?", models.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":       models.JobStatusFailed,
			"last_error":   "interrupted by restart",
			"last_updated": time.Now(),
		})
	if result.Error != nil {
		return 0, apperrors.PersistenceError("failed to reset stale jobs", result.Error)
	}
	return result.RowsAffected, nil
}
