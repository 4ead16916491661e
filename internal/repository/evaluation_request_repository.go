package repository

import (
	"errors"
	"time"

	"github.com/fadilmartias/cv-screening/internal/model"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("evaluation request not found")
	ErrVersionConflict = errors.New("evaluation request was modified concurrently")
)

type EvaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) *EvaluationRepository {
	return &EvaluationRepository{db}
}

func (r *EvaluationRepository) Create(req *model.EvaluationRequest) error {
	return r.db.Create(req).Error
}

func (r *EvaluationRepository) FindByID(id string) (*model.EvaluationRequest, error) {
	var req model.EvaluationRequest
	err := r.db.First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateWithVersion persists req only if the stored row still carries
// expectedVersion. Exactly one of two racing writers observes RowsAffected=1;
// the loser gets ErrVersionConflict and must re-read.
func (r *EvaluationRepository) UpdateWithVersion(req *model.EvaluationRequest, expectedVersion int) error {
	req.Version = expectedVersion + 1
	req.UpdatedAt = time.Now()

	res := r.db.Model(&model.EvaluationRequest{}).
		Where("id = ? AND version = ?", req.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(req)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}
