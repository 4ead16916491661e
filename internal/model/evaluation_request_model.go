package model

import (
	"time"

	"github.com/google/uuid"
)

type EvaluationStatus string

const (
	StatusPending    EvaluationStatus = "pending"
	StatusProcessing EvaluationStatus = "processing"
	StatusCompleted  EvaluationStatus = "completed"
	StatusFailed     EvaluationStatus = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s EvaluationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EvaluationRequest is the job record for one CV evaluation. The Version
// column backs optimistic locking: every status transition goes through a
// compare-and-set on (id, version) so concurrent re-deliveries of the same
// job cannot both write a terminal state.
type EvaluationRequest struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerID      string           `gorm:"type:varchar(100);index" json:"owner_id"`
	Prompt       string           `gorm:"type:text" json:"prompt"`
	DocumentRef  string           `gorm:"type:varchar(500)" json:"document_ref"`
	CVText       string           `gorm:"type:text" json:"-"`
	Status       EvaluationStatus `gorm:"type:varchar(50)" json:"status"`
	Score        *float64         `gorm:"type:float" json:"score,omitempty"`
	Rationale    string           `gorm:"type:text" json:"rationale,omitempty"`
	Matches      string           `gorm:"type:jsonb" json:"matches,omitempty"`
	Gaps         string           `gorm:"type:jsonb" json:"gaps,omitempty"`
	ScoreClamped bool             `json:"score_clamped,omitempty"`
	ErrorDetail  string           `gorm:"type:text" json:"error_detail,omitempty"`
	Version      int              `json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (r *EvaluationRequest) TableName() string {
	return "evaluation_requests"
}
