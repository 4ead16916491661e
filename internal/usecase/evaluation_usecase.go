package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/fadilmartias/cv-screening/internal/breaker"
	"github.com/fadilmartias/cv-screening/internal/config"
	"github.com/fadilmartias/cv-screening/internal/model"
	"github.com/fadilmartias/cv-screening/internal/queue"
	"github.com/fadilmartias/cv-screening/internal/repository"
	"github.com/fadilmartias/cv-screening/internal/service"
	"github.com/fadilmartias/cv-screening/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EvaluationRepositoryInterface interface {
	Create(req *model.EvaluationRequest) error
	FindByID(id string) (*model.EvaluationRequest, error)
	UpdateWithVersion(req *model.EvaluationRequest, expectedVersion int) error
}

type ExtractorInterface interface {
	Extract(data []byte) (string, error)
}

// EvaluationUsecase owns the job lifecycle: intake validation, the
// pending→processing→{completed,failed} state machine, retries with backoff
// and the terminal writes. It is the only component that mutates records.
type EvaluationUsecase struct {
	repo      EvaluationRepositoryInterface
	store     storage.Store
	extractor ExtractorInterface
	aiClient  service.AIClientInterface
	queue     queue.Queue
	breakers  *breaker.Registry
	logger    *zap.Logger

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewEvaluationUsecase(
	repo EvaluationRepositoryInterface,
	store storage.Store,
	extractor ExtractorInterface,
	aiClient service.AIClientInterface,
	q queue.Queue,
	breakers *breaker.Registry,
	cfg *config.PipelineConfig,
	logger *zap.Logger,
) *EvaluationUsecase {
	return &EvaluationUsecase{
		repo:       repo,
		store:      store,
		extractor:  extractor,
		aiClient:   aiClient,
		queue:      q,
		breakers:   breakers,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
	}
}

// Submit validates the document, creates the pending record and enqueues it.
// An unreadable document fails here and no job is created.
func (uc *EvaluationUsecase) Submit(ctx context.Context, prompt, documentRef, ownerID string) (string, error) {
	data, err := uc.store.Fetch(ctx, documentRef)
	if err != nil {
		return "", fmt.Errorf("fetch document: %w", err)
	}

	text, err := uc.extractor.Extract(data)
	if err != nil {
		return "", err
	}

	now := time.Now()
	req := &model.EvaluationRequest{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Prompt:      prompt,
		DocumentRef: documentRef,
		CVText:      text,
		Status:      model.StatusPending,
		Matches:     "[]",
		Gaps:        "[]",
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(req); err != nil {
		return "", fmt.Errorf("create evaluation request: %w", err)
	}

	if err := uc.queue.Enqueue(ctx, req.ID.String()); err != nil {
		// The record stays visibly pending; a requeue sweep can pick it up.
		uc.logger.Error("enqueue failed after create", zap.String("id", req.ID.String()), zap.Error(err))
		return "", fmt.Errorf("enqueue evaluation request: %w", err)
	}

	uc.logger.Info("evaluation submitted",
		zap.String("id", req.ID.String()),
		zap.String("owner", ownerID),
		zap.Int("cv_text_length", len(text)))
	return req.ID.String(), nil
}

// GetStatus returns the latest persisted state, for polling.
func (uc *EvaluationUsecase) GetStatus(id string) (*model.EvaluationRequest, error) {
	return uc.repo.FindByID(id)
}

// Process handles one queue delivery end to end. A nil return acknowledges
// the delivery; an error means infrastructure trouble and triggers
// re-delivery. Evaluation failures are not errors here: they are persisted
// as the failed status and acknowledged.
func (uc *EvaluationUsecase) Process(ctx context.Context, id string) error {
	req, err := uc.repo.FindByID(id)
	if errors.Is(err, repository.ErrNotFound) {
		uc.logger.Warn("delivered job has no record", zap.String("id", id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load evaluation request: %w", err)
	}

	// Re-delivery of a terminal job is a no-op.
	if req.Status.Terminal() {
		uc.logger.Debug("skipping terminal job", zap.String("id", id), zap.String("status", string(req.Status)))
		return nil
	}

	if req.Status == model.StatusPending {
		expected := req.Version
		req.Status = model.StatusProcessing
		err := uc.repo.UpdateWithVersion(req, expected)
		if errors.Is(err, repository.ErrVersionConflict) {
			// Another worker claimed it first.
			uc.logger.Debug("lost claim race", zap.String("id", id))
			return nil
		}
		if err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}
	}

	result, evalErr := uc.evaluateWithRetry(ctx, req)
	if evalErr != nil {
		// Shutdown mid-backoff is not an evaluation verdict; re-deliver
		// instead of failing the job.
		if service.KindOf(evalErr) == service.KindUnknown && errors.Is(evalErr, context.Canceled) {
			return evalErr
		}
		return uc.markFailed(req, evalErr)
	}
	return uc.markCompleted(req, result)
}

// evaluateWithRetry runs the AI call with the orchestrator's retry policy:
// transient kinds get up to maxRetries re-attempts with exponential backoff
// and jitter, permanent kinds fail immediately, and an open breaker
// fast-fails instead of waiting out the backoff window.
func (uc *EvaluationUsecase) evaluateWithRetry(ctx context.Context, req *model.EvaluationRequest) (*service.EvaluationResult, error) {
	br := uc.breakers.Get(uc.aiClient.Key())

	// The attempt in flight is allowed to finish even when shutdown begins;
	// ctx is only consulted between attempts.
	callCtx := context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 0; attempt <= uc.maxRetries; attempt++ {
		if attempt > 0 {
			if br.State() == breaker.StateOpen {
				return nil, &service.Error{
					Kind:    service.KindServiceUnavailable,
					Message: "circuit breaker open, abandoning retries",
					Err:     lastErr,
				}
			}

			delay := uc.calculateBackoff(attempt)
			uc.logger.Info("retrying evaluation",
				zap.String("id", req.ID.String()),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", uc.maxRetries),
				zap.Duration("delay", delay))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("shutdown during retry backoff: %w", ctx.Err())
			}
		}

		result, err := uc.aiClient.Evaluate(callCtx, req.CVText, req.Prompt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, breaker.ErrOpen) {
			// Fast-fail: keep backpressure off the overwhelmed endpoint.
			return nil, err
		}
		if !service.KindOf(err).Transient() {
			return nil, err
		}

		uc.logger.Warn("transient evaluation failure",
			zap.String("id", req.ID.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", uc.maxRetries, lastErr)
}

func (uc *EvaluationUsecase) markCompleted(req *model.EvaluationRequest, result *service.EvaluationResult) error {
	expected := req.Version
	score := result.Score
	req.Status = model.StatusCompleted
	req.Score = &score
	req.Rationale = result.Rationale
	req.Matches = marshalList(result.Matches)
	req.Gaps = marshalList(result.Gaps)
	req.ScoreClamped = result.ScoreClamped
	req.ErrorDetail = ""

	err := uc.repo.UpdateWithVersion(req, expected)
	if errors.Is(err, repository.ErrVersionConflict) {
		uc.logger.Warn("terminal write lost race, abandoning", zap.String("id", req.ID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist completed status: %w", err)
	}

	uc.logger.Info("evaluation completed",
		zap.String("id", req.ID.String()),
		zap.Float64("score", result.Score))
	return nil
}

func (uc *EvaluationUsecase) markFailed(req *model.EvaluationRequest, evalErr error) error {
	expected := req.Version
	req.Status = model.StatusFailed
	req.Score = nil
	req.Rationale = ""
	req.Matches = "[]"
	req.Gaps = "[]"
	req.ScoreClamped = false
	req.ErrorDetail = evalErr.Error()

	err := uc.repo.UpdateWithVersion(req, expected)
	if errors.Is(err, repository.ErrVersionConflict) {
		uc.logger.Warn("terminal write lost race, abandoning", zap.String("id", req.ID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist failed status: %w", err)
	}

	uc.logger.Info("evaluation failed",
		zap.String("id", req.ID.String()),
		zap.String("kind", service.KindOf(evalErr).String()),
		zap.Error(evalErr))
	return nil
}

func (uc *EvaluationUsecase) calculateBackoff(attempt int) time.Duration {
	delay := uc.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))

	if delay > uc.maxDelay {
		delay = uc.maxDelay
	}

	jitter := time.Duration(float64(delay) * 0.25)
	delay = delay - jitter/2 + time.Duration(rand.Float64()*float64(jitter))

	return delay
}

func marshalList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}
