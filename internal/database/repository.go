package database

import (
	"time"

	"github.com/hugo/loupe/internal/models"

	"github.com/pkg/errors"

	"gorm.io/gorm"
)

// Repository handles all database operations for session diagnostics
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new session event into the database
func (r *Repository) Create(event *models.SessionEvent) error {
	result := r.db.Create(event)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert session event")
	}
	return nil
}

// GetEventsSince retrieves all session events since a given time in
// arrival order
func (r *Repository) GetEventsSince(since time.Time) ([]*models.SessionEvent, error) {
	var events []*models.SessionEvent
	result := r.db.Where("timestamp >= ?", since).Order("timestamp ASC").Find(&events)

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query session events")
	}

	return events, nil
}

// GetLatest retrieves the most recent session event
func (r *Repository) GetLatest() (*models.SessionEvent, error) {
	var event models.SessionEvent
	result := r.db.Order("timestamp DESC").First(&event)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to get latest event")
	}
	return &event, nil
}

// GetKindSummarySince returns per-kind aggregates since a given time.
// SQL does the counting; callers derive percentages at runtime.
func (r *Repository) GetKindSummarySince(since time.Time) ([]models.KindSummary, error) {
	var summaries []models.KindSummary

	result := r.db.Model(&models.SessionEvent{}).
		Select("kind, COUNT(*) as event_count, SUM(verified) as verified_count, AVG(latency_micros) as avg_latency_micros").
		Where("timestamp >= ?", since).
		Group("kind").
		Order("event_count DESC").
		Scan(&summaries)

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query kind summary")
	}

	return summaries, nil
}

// CountErrorsSince returns the number of recovered errors since a given time
func (r *Repository) CountErrorsSince(since time.Time) (int64, error) {
	var count int64
	result := r.db.Model(&models.ErrorLog{}).Where("timestamp >= ?", since).Count(&count)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to count error logs")
	}
	return count, nil
}

// GetErrorsSince retrieves recovered errors since a given time
func (r *Repository) GetErrorsSince(since time.Time) ([]*models.ErrorLog, error) {
	var logs []*models.ErrorLog
	result := r.db.Where("timestamp >= ?", since).Order("timestamp ASC").Find(&logs)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query error logs")
	}
	return logs, nil
}

// CreateErrorLog inserts a new error log into the database
func (r *Repository) CreateErrorLog(errorLog *models.ErrorLog) error {
	result := r.db.Create(errorLog)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert error log")
	}
	return nil
}

// DeleteOldEvents deletes events older than a specified date (soft delete)
func (r *Repository) DeleteOldEvents(before time.Time) (int64, error) {
	result := r.db.Where("timestamp < ?", before).Delete(&models.SessionEvent{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete old events")
	}
	return result.RowsAffected, nil
}

// Clear removes all diagnostics data from the database
func (r *Repository) Clear() error {
	result := r.db.Exec("DELETE FROM session_events")
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to clear session events")
	}
	result = r.db.Exec("DELETE FROM error_logs")
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to clear error logs")
	}
	return nil
}
