package repository

import (
	"context"

	"lms_backend/internal/model"

	"gorm.io/gorm"
)

type PrerequisiteRepository struct {
	DB *gorm.DB
}

func NewPrerequisiteRepository(db *gorm.DB) *PrerequisiteRepository {
	return &PrerequisiteRepository{DB: db}
}

func (r *PrerequisiteRepository) WithTx(tx *gorm.DB) *PrerequisiteRepository {
	return &PrerequisiteRepository{DB: tx}
}

func (r *PrerequisiteRepository) ListByCourse(ctx context.Context, courseID uint) ([]model.CoursePrerequisite, error) {
	var ps []model.CoursePrerequisite
	err := r.DB.WithContext(ctx).
		Preload("PrerequisiteCourse").
		Where("course_id = ?", courseID).
		Order("id asc").
		Find(&ps).Error
	return ps, err
}

func (r *PrerequisiteRepository) ListMandatory(ctx context.Context, courseID uint) ([]model.CoursePrerequisite, error) {
	var ps []model.CoursePrerequisite
	err := r.DB.WithContext(ctx).
		Preload("PrerequisiteCourse").
		Where("course_id = ? AND is_mandatory = ?", courseID, true).
		Order("id asc").
		Find(&ps).Error
	return ps, err
}

func (r *PrerequisiteRepository) Find(ctx context.Context, courseID, prerequisiteID uint) (*model.CoursePrerequisite, error) {
	var p model.CoursePrerequisite
	err := r.DB.WithContext(ctx).
		Where("course_id = ? AND prerequisite_course_id = ?", courseID, prerequisiteID).
		First(&p).Error
	return &p, err
}

func (r *PrerequisiteRepository) Create(ctx context.Context, p *model.CoursePrerequisite) error {
	return r.DB.WithContext(ctx).Create(p).Error
}

func (r *PrerequisiteRepository) Delete(ctx context.Context, courseID, prerequisiteID uint) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("course_id = ? AND prerequisite_course_id = ?", courseID, prerequisiteID).
		Delete(&model.CoursePrerequisite{})
	return res.RowsAffected, res.Error
}

// Edges 组织内全部前置关系 course -> prerequisites，用于环检测
func (r *PrerequisiteRepository) Edges(ctx context.Context, organizationID uint) (map[uint][]uint, error) {
	var rows []model.CoursePrerequisite
	err := r.DB.WithContext(ctx).
		Joins("JOIN courses ON courses.id = course_prerequisites.course_id AND courses.deleted_at IS NULL").
		Where("courses.organization_id = ?", organizationID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	edges := make(map[uint][]uint, len(rows))
	for _, row := range rows {
		edges[row.CourseID] = append(edges[row.CourseID], row.PrerequisiteCourseID)
	}
	return edges, nil
}
