package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fadilmartias/cv-screening/internal/breaker"
	"github.com/fadilmartias/cv-screening/internal/config"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiService is the alternate AI backend over the Gemini API. It carries
// its own breaker key, so an unhealthy Gemini endpoint does not open the
// OpenRouter breaker or vice versa.
type GeminiService struct {
	client   *genai.Client
	breakers *breaker.Registry
	model    string
	timeout  time.Duration
	logger   *zap.Logger
}

func NewGeminiService(ctx context.Context, cfg *config.GeminiConfig, breakers *breaker.Registry, logger *zap.Logger) (*GeminiService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiService{
		client:   client,
		breakers: breakers,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		logger:   logger,
	}, nil
}

func (s *GeminiService) Key() string {
	return "gemini/" + s.model
}

func (s *GeminiService) Evaluate(ctx context.Context, cvText, prompt string) (*EvaluationResult, error) {
	br := s.breakers.Get(s.Key())
	if err := br.Allow(); err != nil {
		return nil, &Error{Kind: KindServiceUnavailable, Message: "circuit breaker rejected call", Err: err}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	genConfig := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.3)),
		ResponseMIMEType: "application/json",
	}

	fullPrompt := systemPrompt + "\n\n" + buildUserMessage(cvText, prompt)
	result, err := s.client.Models.GenerateContent(timeoutCtx, s.model, genai.Text(fullPrompt), genConfig)
	if err != nil {
		kind := s.classify(err)
		if kind == KindUpstreamRejected {
			br.Discard()
		} else {
			br.Failure()
		}
		return nil, &Error{Kind: kind, Message: "gemini generate content failed", Err: err}
	}

	text := result.Text()
	if strings.TrimSpace(text) == "" {
		br.Failure()
		return nil, &Error{Kind: KindInvalidResponse, Message: "response has no completion content"}
	}

	parsed, err := parseEvaluation(text)
	if err != nil {
		br.Failure()
		return nil, err
	}

	br.Success()
	s.logger.Info("gemini evaluation completed",
		zap.Float64("score", parsed.Score),
		zap.Bool("score_clamped", parsed.ScoreClamped))
	return parsed, nil
}

func (s *GeminiService) classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return KindRateLimited
		case apiErr.Code >= http.StatusInternalServerError:
			return KindServiceUnavailable
		case apiErr.Code >= http.StatusBadRequest:
			return KindUpstreamRejected
		}
	}

	return KindServiceUnavailable
}
