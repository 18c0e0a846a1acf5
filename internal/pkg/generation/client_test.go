package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReplicateClient(serverURL string) *ReplicateClient {
	return &ReplicateClient{
		Token:        "r8_test_token",
		APIBaseURL:   serverURL,
		ModelVersion: "version-abc",
		HTTPClient:   http.DefaultClient,
	}
}

func TestCreatePrediction(t *testing.T) {
	var gotBody map[string]interface{}
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/predictions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pred-1","status":"starting"}`))
	}))
	defer server.Close()

	client := newTestReplicateClient(server.URL)
	pred, err := client.CreatePrediction(context.Background(), PredictionInput{
		InputImage: "data:image/png;base64,xxx",
		Prompt:     "a watercolor fox",
	})
	require.NoError(t, err)
	assert.Equal(t, "pred-1", pred.ID)
	assert.Equal(t, "starting", pred.Status)

	assert.Equal(t, "Token r8_test_token", gotAuth)
	assert.Equal(t, "version-abc", gotBody["version"])

	input, ok := gotBody["input"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "a watercolor fox", input["prompt"])
	assert.Equal(t, "data:image/png;base64,xxx", input["input_image"])
	assert.Equal(t, float64(-1), input["seed"])
	assert.Equal(t, float64(1), input["lora_weight"])
	assert.Equal(t, 3.5, input["guidance_scale"])
	assert.Equal(t, float64(25), input["num_inference_steps"])
}

func TestCreatePredictionDefaultPrompt(t *testing.T) {
	var gotBody predictionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		_, _ = w.Write([]byte(`{"id":"pred-1","status":"starting"}`))
	}))
	defer server.Close()

	client := newTestReplicateClient(server.URL)
	_, err := client.CreatePrediction(context.Background(), PredictionInput{InputImage: "img"})
	require.NoError(t, err)
	assert.Equal(t, defaultPrompt, gotBody.Input.Prompt)
}

func TestGetPrediction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/predictions/pred-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"pred-1","status":"succeeded","output":["https://cdn.example/a.png","https://cdn.example/b.png"]}`))
	}))
	defer server.Close()

	client := newTestReplicateClient(server.URL)
	pred, err := client.GetPrediction(context.Background(), "pred-1")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", pred.Status)
	// first element of an array output wins
	assert.Equal(t, "https://cdn.example/a.png", pred.Output)

	_, err = client.GetPrediction(context.Background(), "")
	assert.Error(t, err)
}

func TestClientAuthFailure(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"detail":"Invalid token"}`))
		}))

		client := newTestReplicateClient(server.URL)
		_, err := client.GetPrediction(context.Background(), "pred-1")
		assert.True(t, errors.Is(err, ErrAuthFailed), "status %d: %v", code, err)
		server.Close()
	}
}

func TestClientProviderErrorDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"input_image is required"}`))
	}))
	defer server.Close()

	client := newTestReplicateClient(server.URL)
	_, err := client.CreatePrediction(context.Background(), PredictionInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input_image is required")
	assert.False(t, errors.Is(err, ErrAuthFailed))
}

func TestNormalizeOutput(t *testing.T) {
	assert.Equal(t, "https://x/a.png", normalizeOutput(json.RawMessage(`"https://x/a.png"`)))
	assert.Equal(t, "https://x/a.png", normalizeOutput(json.RawMessage(`["https://x/a.png","https://x/b.png"]`)))
	assert.Empty(t, normalizeOutput(json.RawMessage(`[]`)))
	assert.Empty(t, normalizeOutput(json.RawMessage(`{"unexpected":true}`)))
	assert.Empty(t, normalizeOutput(nil))
}
