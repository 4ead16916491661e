package dto

import (
	"encoding/json"
	"time"

	"github.com/fadilmartias/cv-screening/internal/model"
	"github.com/google/uuid"
)

type EvaluationRequestDTO struct {
	ID           uuid.UUID `json:"id"`
	Status       string    `json:"status"` // e.g. "pending", "processing", "completed", "failed"
	Score        *float64  `json:"score,omitempty"`
	Rationale    string    `json:"rationale,omitempty"`
	Matches      []string  `json:"matches,omitempty"`
	Gaps         []string  `json:"gaps,omitempty"`
	ScoreClamped bool      `json:"score_clamped,omitempty"`
	ErrorDetail  string    `json:"error_detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FromEvaluationRequest maps the stored record to the polling response.
// Result fields only appear on completed records, errorDetail only on failed
// ones; the jsonb list columns are decoded back into slices.
func FromEvaluationRequest(req *model.EvaluationRequest) EvaluationRequestDTO {
	d := EvaluationRequestDTO{
		ID:        req.ID,
		Status:    string(req.Status),
		CreatedAt: req.CreatedAt,
		UpdatedAt: req.UpdatedAt,
	}
	switch req.Status {
	case model.StatusCompleted:
		d.Score = req.Score
		d.Rationale = req.Rationale
		d.Matches = unmarshalList(req.Matches)
		d.Gaps = unmarshalList(req.Gaps)
		d.ScoreClamped = req.ScoreClamped
	case model.StatusFailed:
		d.ErrorDetail = req.ErrorDetail
	}
	return d
}

func unmarshalList(raw string) []string {
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return []string{}
	}
	return items
}
