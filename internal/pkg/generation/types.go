package generation

import (
	"encoding/json"
	"errors"

	"github.com/glorifyai/glorify/app/models"
)

// Terminal outcomes of the driver. ErrGenerationTimedOut leaves the remote
// job in place: the provider may still complete it, and callers must not
// assume cleanup occurred.
var (
	ErrGenerationFailed   = errors.New("generation: job failed")
	ErrGenerationTimedOut = errors.New("generation: timed out waiting for job")
	ErrAuthFailed         = errors.New("generation: provider authentication failed")
)

// PredictionInput is one submission to the generation provider.
type PredictionInput struct {
	InputImage string
	Prompt     string
}

// Prediction is the provider's view of a job.
type Prediction struct {
	ID     string
	Status string
	Output string
	Error  string
}

// Provider statuses as reported by the remote API.
const (
	providerStatusStarting   = "starting"
	providerStatusProcessing = "processing"
	providerStatusSucceeded  = "succeeded"
	providerStatusFailed     = "failed"
	providerStatusCanceled   = "canceled"
)

// mapProviderStatus translates remote statuses into our job lifecycle.
func mapProviderStatus(status string) string {
	switch status {
	case providerStatusProcessing:
		return models.GenerationStatusRunning
	case providerStatusSucceeded:
		return models.GenerationStatusSucceeded
	case providerStatusFailed, providerStatusCanceled:
		return models.GenerationStatusFailed
	default:
		return models.GenerationStatusSubmitted
	}
}

func isTerminalProviderStatus(status string) bool {
	switch status {
	case providerStatusSucceeded, providerStatusFailed, providerStatusCanceled:
		return true
	default:
		return false
	}
}

// normalizeOutput flattens the provider output field, which may be a single
// URL or an array of URLs depending on the model.
func normalizeOutput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}
