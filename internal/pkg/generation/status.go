package generation

import (
	"fmt"
	"time"

	"github.com/glorifyai/glorify/internal/pkg/cache"
)

// Cache key format for generation job status
const (
	JobStatusKeyFormat          = "generation:status:%s"           // Format: generation:status:<job-id>
	JobStatusTimestampKeyFormat = "generation:status:timestamp:%s" // Format: generation:status:timestamp:<job-id>
)

const jobStatusTTL = 24 * time.Hour

// SetJobStatus sets the processing status of a generation job in the cache
func SetJobStatus(jobID string, status string) error {
	key := fmt.Sprintf(JobStatusKeyFormat, jobID)
	SetJobStatusTimestamp(jobID, time.Now())
	return cache.Set(key, status, jobStatusTTL)
}

// SetJobStatusTimestamp sets the timestamp when the status was set
func SetJobStatusTimestamp(jobID string, timestamp time.Time) error {
	cacheKey := fmt.Sprintf(JobStatusTimestampKeyFormat, jobID)
	return cache.Set(cacheKey, timestamp.Format(time.RFC3339), jobStatusTTL)
}

// GetJobStatus retrieves the processing status of a generation job from the cache
func GetJobStatus(jobID string) (string, error) {
	key := fmt.Sprintf(JobStatusKeyFormat, jobID)
	return cache.Get(key)
}

// GetJobStatusTimestamp gets the timestamp when the status was set
func GetJobStatusTimestamp(jobID string) (time.Time, error) {
	cacheKey := fmt.Sprintf(JobStatusTimestampKeyFormat, jobID)
	timestampStr, err := cache.Get(cacheKey)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, timestampStr)
}
