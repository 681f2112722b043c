package repository

import (
	"context"

	"lms_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CourseRepository 课程、模块、内容的只读访问；课程本身的增删改由外部 CRUD 层负责
type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) WithTx(tx *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: tx}
}

func (r *CourseRepository) FindByID(ctx context.Context, id uint) (*model.Course, error) {
	var c model.Course
	err := r.DB.WithContext(ctx).First(&c, id).Error
	return &c, err
}

// FindByIDForUpdate 选课时锁住课程行，名额检查和写入串行执行
func (r *CourseRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.Course, error) {
	var c model.Course
	err := r.DB.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, id).Error
	return &c, err
}

// ListModulesWithContents 课程结构快照，进度汇总使用
func (r *CourseRepository) ListModulesWithContents(ctx context.Context, courseID uint) ([]model.Module, error) {
	var ms []model.Module
	err := r.DB.WithContext(ctx).
		Preload("Contents", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order asc, id asc")
		}).
		Where("course_id = ?", courseID).
		Order("sort_order asc, id asc").
		Find(&ms).Error
	return ms, err
}

func (r *CourseRepository) FindModule(ctx context.Context, id uint) (*model.Module, error) {
	var m model.Module
	err := r.DB.WithContext(ctx).First(&m, id).Error
	return &m, err
}

func (r *CourseRepository) FindContent(ctx context.Context, id uint) (*model.Content, error) {
	var c model.Content
	err := r.DB.WithContext(ctx).First(&c, id).Error
	return &c, err
}

func (r *CourseRepository) ListRequiredContentIDs(ctx context.Context, moduleID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&model.Content{}).
		Where("module_id = ? AND is_required = ?", moduleID, true).
		Order("id asc").
		Pluck("id", &ids).Error
	return ids, err
}
