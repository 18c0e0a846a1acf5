package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/glorifyai/glorify/internal/pkg/env"
)

const (
	defaultReplicateAPIBaseURL = "https://api.replicate.com/v1"
	defaultModelVersion        = "6c4785d791d08ec65ff2ca5e9a7a0c2b0ac4e07ffadfb367231aa16bc7a52cbb"
	defaultPrompt              = "Ghibli Studio style, Charming hand-drawn anime-style illustration"
)

// Client is the injected generation-provider capability.
type Client interface {
	CreatePrediction(ctx context.Context, in PredictionInput) (*Prediction, error)
	GetPrediction(ctx context.Context, id string) (*Prediction, error)
}

// ReplicateClient drives a Replicate-style predictions API.
type ReplicateClient struct {
	Token        string
	APIBaseURL   string
	ModelVersion string

	HTTPClient *http.Client
}

func NewReplicateClientFromEnv() *ReplicateClient {
	return &ReplicateClient{
		Token:        strings.TrimSpace(env.GetEnv("REPLICATE_API_TOKEN", "")),
		APIBaseURL:   strings.TrimRight(env.GetEnv("REPLICATE_API_BASE_URL", defaultReplicateAPIBaseURL), "/"),
		ModelVersion: strings.TrimSpace(env.GetEnv("REPLICATE_MODEL_VERSION", defaultModelVersion)),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type predictionInput struct {
	Seed              int     `json:"seed"`
	Prompt            string  `json:"prompt"`
	InputImage        string  `json:"input_image"`
	LoraWeight        float64 `json:"lora_weight"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
	Detail string          `json:"detail"`
}

// CreatePrediction submits a generation job and returns its id and initial
// status.
func (c *ReplicateClient) CreatePrediction(ctx context.Context, in PredictionInput) (*Prediction, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		prompt = defaultPrompt
	}

	payload, err := json.Marshal(predictionRequest{
		Version: c.ModelVersion,
		Input: predictionInput{
			Seed:              -1,
			Prompt:            prompt,
			InputImage:        in.InputImage,
			LoraWeight:        1,
			GuidanceScale:     3.5,
			NumInferenceSteps: 25,
		},
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/predictions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return nil, fmt.Errorf("generation: prediction response has no id")
	}
	return toPrediction(resp), nil
}

// GetPrediction fetches the current status of a submitted job.
func (c *ReplicateClient) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("generation: prediction id is required")
	}
	resp, err := c.do(ctx, http.MethodGet, "/predictions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return toPrediction(resp), nil
}

func (c *ReplicateClient) do(ctx context.Context, method, path string, body io.Reader) (*predictionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation: provider request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status=%d", ErrAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var parsed predictionResponse
		_ = json.Unmarshal(raw, &parsed)
		detail := parsed.Detail
		if detail == "" {
			detail = fmt.Sprintf("status=%d", resp.StatusCode)
		}
		return nil, fmt.Errorf("generation: provider error: %s", detail)
	}

	var out predictionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("generation: malformed provider response: %w", err)
	}
	return &out, nil
}

func toPrediction(resp *predictionResponse) *Prediction {
	return &Prediction{
		ID:     resp.ID,
		Status: resp.Status,
		Output: normalizeOutput(resp.Output),
		Error:  resp.Error,
	}
}

var _ Client = (*ReplicateClient)(nil)
