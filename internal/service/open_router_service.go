package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/fadilmartias/cv-screening/internal/breaker"
	"github.com/fadilmartias/cv-screening/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// OpenRouterService talks to the OpenRouter chat-completions API. Every call
// passes through the per-model circuit breaker; the service itself never
// retries.
type OpenRouterService struct {
	client   *resty.Client
	breakers *breaker.Registry
	apiKey   string
	model    string
	logger   *zap.Logger
}

func NewOpenRouterService(cfg *config.OpenRouterConfig, breakers *breaker.Registry, logger *zap.Logger) *OpenRouterService {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Title", "CV Screening API")

	return &OpenRouterService{
		client:   client,
		breakers: breakers,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		logger:   logger,
	}
}

func (s *OpenRouterService) Key() string {
	return "openrouter/" + s.model
}

func (s *OpenRouterService) Evaluate(ctx context.Context, cvText, prompt string) (*EvaluationResult, error) {
	br := s.breakers.Get(s.Key())
	if err := br.Allow(); err != nil {
		return nil, &Error{Kind: KindServiceUnavailable, Message: "circuit breaker rejected call", Err: err}
	}

	s.logger.Info("openrouter evaluation started",
		zap.String("model", s.model),
		zap.Int("cv_text_length", len(cvText)),
		zap.Int("prompt_length", len(prompt)))

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+s.apiKey).
		SetBody(map[string]any{
			"model": s.model,
			"messages": []map[string]string{
				{"role": "system", "content": systemPrompt},
				{"role": "user", "content": buildUserMessage(cvText, prompt)},
			},
			"temperature": 0.3,
			"max_tokens":  2000,
			"stream":      false,
		}).
		Post("/chat/completions")
	if err != nil {
		br.Failure()
		if isTimeout(err) {
			return nil, &Error{Kind: KindTimeout, Message: "openrouter request timed out", Err: err}
		}
		return nil, &Error{Kind: KindServiceUnavailable, Message: "openrouter request failed", Err: err}
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		br.Failure()
		return nil, &Error{Kind: KindRateLimited, Message: "openrouter rate limit exceeded"}
	case resp.StatusCode() >= http.StatusInternalServerError:
		br.Failure()
		return nil, &Error{Kind: KindServiceUnavailable, Message: fmt.Sprintf("openrouter returned status %d", resp.StatusCode())}
	case resp.IsError():
		// Well-formed client-fault response. Not evidence of endpoint
		// unhealthiness, so it does not count toward the breaker.
		br.Discard()
		msg := gjson.GetBytes(resp.Body(), "error.message").String()
		if msg == "" {
			msg = fmt.Sprintf("openrouter rejected request with status %d", resp.StatusCode())
		}
		return nil, &Error{Kind: KindUpstreamRejected, Message: msg}
	}

	content := gjson.GetBytes(resp.Body(), "choices.0.message.content").String()
	if content == "" {
		br.Failure()
		return nil, &Error{Kind: KindInvalidResponse, Message: "response has no completion content"}
	}

	result, err := parseEvaluation(content)
	if err != nil {
		// Malformed response body counts as an endpoint failure.
		br.Failure()
		return nil, err
	}

	br.Success()
	s.logger.Info("openrouter evaluation completed",
		zap.Float64("score", result.Score),
		zap.Bool("score_clamped", result.ScoreClamped),
		zap.Int("matches_count", len(result.Matches)),
		zap.Int("gaps_count", len(result.Gaps)))
	return result, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
