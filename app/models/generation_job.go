package models

import "time"

// Generation job statuses. The last three are terminal and never revisited.
const (
	GenerationStatusSubmitted = "submitted"
	GenerationStatusRunning   = "running"
	GenerationStatusSucceeded = "succeeded"
	GenerationStatusFailed    = "failed"
	GenerationStatusTimedOut  = "timed_out"
)

// GenerationJob tracks one remote image generation from submission to its
// single terminal outcome. Mutated only by the driver's own poll loop.
type GenerationJob struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ProviderJobID string     `gorm:"type:varchar(191);not null;index:ux_generation_jobs_provider_job,unique" json:"provider_job_id"`
	UserID        string     `gorm:"type:varchar(191);not null;default:'';index" json:"user_id"`
	InputRef      string     `gorm:"type:longtext" json:"input_ref"`
	Prompt        string     `gorm:"type:text" json:"prompt"`
	Status        string     `gorm:"type:varchar(16);not null;default:'submitted';index" json:"status"`
	ResultRef     string     `gorm:"type:text" json:"result_ref"`
	ErrorMessage  string     `gorm:"type:text" json:"error_message"`
	AttemptCount  int        `gorm:"not null;default:0" json:"attempt_count"`
	CompletedAt   *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminalGenerationStatus reports whether a job status is final.
func IsTerminalGenerationStatus(status string) bool {
	switch status {
	case GenerationStatusSucceeded, GenerationStatusFailed, GenerationStatusTimedOut:
		return true
	default:
		return false
	}
}
