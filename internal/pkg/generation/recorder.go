package generation

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/glorifyai/glorify/app/models"
)

// Recorder persists job lifecycle transitions. The driver treats persistence
// as best-effort: a storage hiccup must not abort a running generation.
type Recorder interface {
	JobSubmitted(job *models.GenerationJob) error
	JobUpdated(job *models.GenerationJob) error
}

type gormRecorder struct {
	db *gorm.DB
}

// NewRecorder creates a GORM-backed job recorder.
func NewRecorder(db *gorm.DB) Recorder {
	return &gormRecorder{db: db}
}

func (r *gormRecorder) JobSubmitted(job *models.GenerationJob) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_job_id"}},
		DoNothing: true,
	}).Create(job).Error
}

func (r *gormRecorder) JobUpdated(job *models.GenerationJob) error {
	return r.db.Model(&models.GenerationJob{}).
		Where("provider_job_id = ?", job.ProviderJobID).
		Updates(map[string]interface{}{
			"status":        job.Status,
			"result_ref":    job.ResultRef,
			"error_message": job.ErrorMessage,
			"attempt_count": job.AttemptCount,
			"completed_at":  job.CompletedAt,
		}).Error
}

// NopRecorder discards all transitions. Used when no store is wired.
type NopRecorder struct{}

func (NopRecorder) JobSubmitted(*models.GenerationJob) error { return nil }
func (NopRecorder) JobUpdated(*models.GenerationJob) error   { return nil }
