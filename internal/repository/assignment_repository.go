package repository

import (
	"context"

	"lms_backend/internal/model"

	"gorm.io/gorm"
)

type AssignmentRepository struct {
	DB *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{DB: db}
}

func (r *AssignmentRepository) FindByID(ctx context.Context, id uint) (*model.Assignment, error) {
	var a model.Assignment
	err := r.DB.WithContext(ctx).Preload("Course").First(&a, id).Error
	return &a, err
}

func (r *AssignmentRepository) FindSubmission(ctx context.Context, assignmentID, enrollmentID uint) (*model.AssignmentSubmission, error) {
	var s model.AssignmentSubmission
	err := r.DB.WithContext(ctx).
		Where("assignment_id = ? AND enrollment_id = ?", assignmentID, enrollmentID).
		First(&s).Error
	return &s, err
}

func (r *AssignmentRepository) FindSubmissionByID(ctx context.Context, id uint) (*model.AssignmentSubmission, error) {
	var s model.AssignmentSubmission
	err := r.DB.WithContext(ctx).First(&s, id).Error
	return &s, err
}

func (r *AssignmentRepository) CreateSubmission(ctx context.Context, s *model.AssignmentSubmission) error {
	return r.DB.WithContext(ctx).Create(s).Error
}

// UpdateGrade 批改只允许修改这几个字段
func (r *AssignmentRepository) UpdateGrade(ctx context.Context, s *model.AssignmentSubmission) error {
	return r.DB.WithContext(ctx).Model(s).
		Select("score", "feedback", "status", "graded_by", "graded_at").
		Updates(s).Error
}

func (r *AssignmentRepository) ListSubmissions(ctx context.Context, assignmentID uint, offset, limit int) ([]model.AssignmentSubmission, int64, error) {
	var ss []model.AssignmentSubmission
	var total int64
	query := r.DB.WithContext(ctx).Model(&model.AssignmentSubmission{}).
		Where("assignment_id = ?", assignmentID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("submitted_at asc, id asc").Offset(offset).Limit(limit).Find(&ss).Error
	return ss, total, err
}

func (r *AssignmentRepository) WithTx(tx *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{DB: tx}
}
