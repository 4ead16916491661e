package handler

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fadilmartias/cv-screening/internal/dto"
	"github.com/fadilmartias/cv-screening/internal/extract"
	"github.com/fadilmartias/cv-screening/internal/middleware"
	"github.com/fadilmartias/cv-screening/internal/repository"
	"github.com/fadilmartias/cv-screening/internal/usecase"
	"github.com/fadilmartias/cv-screening/internal/util"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type EvaluateHandler struct {
	uc        *usecase.EvaluationUsecase
	uploadDir string
}

func NewEvaluateHandler(uc *usecase.EvaluationUsecase, uploadDir string) *EvaluateHandler {
	return &EvaluateHandler{uc: uc, uploadDir: uploadDir}
}

func (h *EvaluateHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/evaluate", middleware.RateLimiter(1, 4*time.Second), h.Evaluate)
	app.Get("/result/:id", h.Result)
}

// Evaluate accepts a multipart CV upload plus the job-requirement prompt,
// stores the file and submits the evaluation job. Unreadable documents are
// rejected here; no job record is created for them.
func (h *EvaluateHandler) Evaluate(c *fiber.Ctx) error {
	prompt := strings.TrimSpace(c.FormValue("prompt"))
	if prompt == "" {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "prompt is required",
		})
	}

	file, err := c.FormFile("cv")
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "cv file is required",
		}, err)
	}

	if file.Size > 5*1024*1024 {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "cv file size is too large (max 5MB)",
		})
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".pdf" {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "unsupported cv file type",
		})
	}

	// The stored name is the document ref handed to the pipeline.
	ref := fmt.Sprintf("%s%s", uuid.New().String(), ext)
	if err := c.SaveFile(file, filepath.Join(h.uploadDir, ref)); err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "cannot save cv file",
		}, err)
	}

	ownerID := c.Get("X-User-ID")

	id, err := h.uc.Submit(c.Context(), prompt, ref, ownerID)
	if err != nil {
		if errors.Is(err, extract.ErrUnreadableDocument) {
			return util.ErrorResponse(c, util.ErrorResponseFormat{
				Code:    fiber.StatusUnprocessableEntity,
				Message: "cv document is unreadable",
			}, err)
		}
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "failed to submit evaluation",
		}, err)
	}

	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusAccepted,
		Message: "Success submit evaluation",
		Data:    fiber.Map{"id": id, "status": "pending"},
	})
}

// Result returns the latest persisted state of an evaluation, for polling.
func (h *EvaluateHandler) Result(c *fiber.Ctx) error {
	id := c.Params("id")
	req, err := h.uc.GetStatus(id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return util.ErrorResponse(c, util.ErrorResponseFormat{
				Code:    fiber.StatusNotFound,
				Message: "evaluation not found",
			})
		}
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "failed to load evaluation",
		}, err)
	}

	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Success get evaluation result",
		Data:    dto.FromEvaluationRequest(req),
	})
}
