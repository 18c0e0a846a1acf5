package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/glorifyai/glorify/internal/pkg/billing"
	"github.com/glorifyai/glorify/internal/pkg/database"
	"github.com/glorifyai/glorify/internal/pkg/generation"
	"github.com/glorifyai/glorify/internal/pkg/resultstore"
)

type generateImageRequest struct {
	Image  string `json:"image" validate:"required"`
	Prompt string `json:"prompt"`
	UserID string `json:"user_id"`
}

// HandleGenerateImage submits a generation job and blocks until its single
// terminal outcome. The credit debit happens here after success, keyed by
// the job id; the driver itself never touches the ledger.
func HandleGenerateImage(c *fiber.Ctx) error {
	var req generateImageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "No image provided"})
	}

	userID := strings.TrimSpace(req.UserID)
	svc := newBillingService()

	if userID != "" && userID != "anonymous" {
		if err := svc.RequireSpendableCredit(context.Background(), userID); err != nil {
			if errors.Is(err, billing.ErrInsufficientCredits) {
				return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "insufficient_credits", "message": "Not enough credits"})
			}
			log.Errorf("[Generate] balance check for %s failed: %v", userID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
	}

	driver := generation.NewDriver(
		generation.NewReplicateClientFromEnv(),
		generation.NewRecorder(database.GetDB()),
	)

	// The request context drives cancellation: an abandoned request stops
	// polling, but the remote job keeps running and consumes no credits
	// because the debit only happens on an observed success.
	result, err := driver.Run(c.Context(), userID, generation.PredictionInput{
		InputImage: req.Image,
		Prompt:     req.Prompt,
	})
	if err != nil {
		switch {
		case errors.Is(err, generation.ErrGenerationTimedOut):
			return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": "generation_timed_out", "message": "Generation timed out"})
		case errors.Is(err, generation.ErrGenerationFailed):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "generation_failed", "message": err.Error()})
		case errors.Is(err, generation.ErrAuthFailed):
			log.Error("[Generate] generation provider credentials rejected")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "provider_not_configured"})
		default:
			log.Errorf("[Generate] generation failed: %v", err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_unavailable", "message": err.Error()})
		}
	}

	if userID != "" && userID != "anonymous" {
		// Idempotent on the job id, so a retried response cannot double-debit.
		if err := svc.SpendGenerationCredit(context.Background(), userID, result.JobID); err != nil {
			log.Errorf("[Generate] credit debit for job %s failed: %v", result.JobID, err)
		}
	}

	go archiveResult(result.JobID, result.ResultRef)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"image_url": result.ResultRef,
		"job_id":    result.JobID,
	})
}

// archiveResult copies the provider output to the S3 archive. Best-effort:
// the provider URL stays valid long enough for the client either way.
func archiveResult(jobID, resultURL string) {
	cfg, err := resultstore.LoadConfig()
	if err != nil || !cfg.IsEnabled() {
		return
	}
	client, err := resultstore.NewClient(cfg)
	if err != nil {
		log.Warnf("[Generate] result archive unavailable: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := client.ArchiveResult(ctx, jobID, resultURL); err != nil {
		log.Warnf("[Generate] result archive for job %s failed: %v", jobID, err)
	}
}

// HandleGetGenerationStatus reports the cached status of a job.
func HandleGetGenerationStatus(c *fiber.Ctx) error {
	jobID := strings.TrimSpace(c.Params("id"))
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "job id missing"})
	}

	status, err := generation.GetJobStatus(jobID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}

	resp := fiber.Map{"job_id": jobID, "status": status}
	if ts, err := generation.GetJobStatusTimestamp(jobID); err == nil {
		resp["updated_at"] = ts.Format(time.RFC3339)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
