package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/glorifyai/glorify/app/models"
	"github.com/glorifyai/glorify/internal/pkg/metrics/counter"
)

const (
	// DefaultPollInterval is the fixed wait between status fetches.
	DefaultPollInterval = 1 * time.Second
	// DefaultMaxAttempts bounds the poll loop; with the default interval
	// this is a 90 second wall-clock budget.
	DefaultMaxAttempts = 90
)

// Sleeper is the injectable wait between polls, so tests can run the full
// attempt budget without real wall-clock delay.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type wallClockSleeper struct{}

func (wallClockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Result is the single terminal outcome of a driven job.
type Result struct {
	JobID     string
	ResultRef string
	Attempts  int
}

// Driver submits a generation request and polls it to completion. It never
// touches the ledger: debiting a credit for a succeeded result is the
// caller's responsibility, which keeps the driver idempotent under retry.
type Driver struct {
	PollInterval time.Duration
	MaxAttempts  int
	Sleeper      Sleeper

	client   Client
	recorder Recorder
}

// NewDriver creates a driver with the default poll budget.
func NewDriver(client Client, recorder Recorder) *Driver {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Driver{
		PollInterval: DefaultPollInterval,
		MaxAttempts:  DefaultMaxAttempts,
		Sleeper:      wallClockSleeper{},
		client:       client,
		recorder:     recorder,
	}
}

// Run drives one job to its terminal outcome: the result ref on success,
// ErrGenerationFailed with the provider reason, or ErrGenerationTimedOut
// once the attempt budget is exhausted. A transport failure during a poll
// consumes an attempt and is retried at the next interval; an authentication
// failure aborts immediately. An abandoned context stops polling but the
// remote job keeps running with no further effect here.
func (d *Driver) Run(ctx context.Context, userID string, in PredictionInput) (*Result, error) {
	pred, err := d.client.CreatePrediction(ctx, in)
	if err != nil {
		return nil, err
	}
	log.Infof("[Generation] prediction %s submitted", pred.ID)

	job := &models.GenerationJob{
		ProviderJobID: pred.ID,
		UserID:        userID,
		InputRef:      in.InputImage,
		Prompt:        in.Prompt,
		Status:        mapProviderStatus(pred.Status),
	}
	if err := d.recorder.JobSubmitted(job); err != nil {
		log.Errorf("[Generation] could not record job %s: %v", pred.ID, err)
	}
	d.cacheStatus(pred.ID, job.Status)

	attempts := 0
	for !isTerminalProviderStatus(pred.Status) && attempts < d.MaxAttempts {
		if err := d.Sleeper.Sleep(ctx, d.PollInterval); err != nil {
			return nil, err
		}
		attempts++

		next, err := d.client.GetPrediction(ctx, pred.ID)
		if err != nil {
			if errors.Is(err, ErrAuthFailed) {
				d.finishJob(job, models.GenerationStatusFailed, "", err.Error(), attempts)
				return nil, err
			}
			// Transient poll failure: spend the attempt, try again.
			log.Warnf("[Generation] poll %d for %s failed: %v", attempts, pred.ID, err)
			continue
		}
		pred = next

		status := mapProviderStatus(pred.Status)
		if status != job.Status {
			job.Status = status
			job.AttemptCount = attempts
			if err := d.recorder.JobUpdated(job); err != nil {
				log.Errorf("[Generation] could not update job %s: %v", pred.ID, err)
			}
			d.cacheStatus(pred.ID, status)
		}
		log.Debugf("[Generation] poll %d for %s: %s", attempts, pred.ID, pred.Status)
	}

	switch pred.Status {
	case providerStatusSucceeded:
		d.finishJob(job, models.GenerationStatusSucceeded, pred.Output, "", attempts)
		return &Result{JobID: pred.ID, ResultRef: pred.Output, Attempts: attempts}, nil
	case providerStatusFailed, providerStatusCanceled:
		reason := pred.Error
		if reason == "" {
			reason = pred.Status
		}
		d.finishJob(job, models.GenerationStatusFailed, "", reason, attempts)
		if err := counter.AddSignal(counter.SignalGenerationFailed); err != nil {
			log.Warnf("[Generation] failure counter: %v", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrGenerationFailed, reason)
	default:
		// Attempt budget exhausted while still non-terminal. The remote job
		// is left in place; the provider may still complete it.
		d.finishJob(job, models.GenerationStatusTimedOut, "", "attempt budget exhausted", attempts)
		if err := counter.AddSignal(counter.SignalGenerationTimedOut); err != nil {
			log.Warnf("[Generation] timeout counter: %v", err)
		}
		return nil, ErrGenerationTimedOut
	}
}

func (d *Driver) finishJob(job *models.GenerationJob, status, resultRef, errMsg string, attempts int) {
	now := time.Now()
	job.Status = status
	job.ResultRef = resultRef
	job.ErrorMessage = errMsg
	job.AttemptCount = attempts
	job.CompletedAt = &now
	if err := d.recorder.JobUpdated(job); err != nil {
		log.Errorf("[Generation] could not finalize job %s: %v", job.ProviderJobID, err)
	}
	d.cacheStatus(job.ProviderJobID, status)
}

func (d *Driver) cacheStatus(jobID, status string) {
	if err := SetJobStatus(jobID, status); err != nil {
		log.Debugf("[Generation] status cache for %s unavailable: %v", jobID, err)
	}
}
