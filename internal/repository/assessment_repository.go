package repository

import (
	"context"

	"lms_backend/internal/model"

	"gorm.io/gorm"
)

type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

func (r *AssessmentRepository) WithTx(tx *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: tx}
}

// FindByID 题库按 order 排序一并加载
func (r *AssessmentRepository) FindByID(ctx context.Context, id uint) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.WithContext(ctx).
		Preload("Course").
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order asc, id asc")
		}).
		First(&a, id).Error
	return &a, err
}

func (r *AssessmentRepository) CountAttempts(ctx context.Context, assessmentID, enrollmentID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.AssessmentAttempt{}).
		Where("assessment_id = ? AND enrollment_id = ?", assessmentID, enrollmentID).
		Count(&count).Error
	return count, err
}

func (r *AssessmentRepository) CreateAttempt(ctx context.Context, attempt *model.AssessmentAttempt) error {
	return r.DB.WithContext(ctx).Create(attempt).Error
}

func (r *AssessmentRepository) FindAttempt(ctx context.Context, id uint) (*model.AssessmentAttempt, error) {
	var a model.AssessmentAttempt
	err := r.DB.WithContext(ctx).First(&a, id).Error
	return &a, err
}

func (r *AssessmentRepository) ListAttempts(ctx context.Context, assessmentID, enrollmentID uint, offset, limit int) ([]model.AssessmentAttempt, int64, error) {
	var as []model.AssessmentAttempt
	var total int64
	query := r.DB.WithContext(ctx).Model(&model.AssessmentAttempt{}).
		Where("assessment_id = ?", assessmentID)
	if enrollmentID > 0 {
		query = query.Where("enrollment_id = ?", enrollmentID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("enrollment_id asc, attempt_number asc").Offset(offset).Limit(limit).Find(&as).Error
	return as, total, err
}
