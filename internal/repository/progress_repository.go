package repository

import (
	"context"

	"lms_backend/internal/model"

	"gorm.io/gorm"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) WithTx(tx *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: tx}
}

func (r *ProgressRepository) scopeKey(enrollmentID uint, key model.ProgressKey) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("enrollment_id = ? AND module_id = ?", enrollmentID, key.ModuleID())
		if contentID, ok := key.ContentID(); ok {
			return db.Where("content_id = ?", contentID)
		}
		return db.Where("content_id IS NULL")
	}
}

func (r *ProgressRepository) FindByKey(ctx context.Context, enrollmentID uint, key model.ProgressKey) (*model.Progress, error) {
	var p model.Progress
	err := r.DB.WithContext(ctx).
		Scopes(r.scopeKey(enrollmentID, key)).
		Order("id asc").
		First(&p).Error
	return &p, err
}

func (r *ProgressRepository) Create(ctx context.Context, p *model.Progress) error {
	return r.DB.WithContext(ctx).Create(p).Error
}

func (r *ProgressRepository) Save(ctx context.Context, p *model.Progress) error {
	return r.DB.WithContext(ctx).Save(p).Error
}

// ListByEnrollment 一次性读取报名的全部台账，进度汇总基于这份快照
func (r *ProgressRepository) ListByEnrollment(ctx context.Context, enrollmentID uint) ([]model.Progress, error) {
	var ps []model.Progress
	err := r.DB.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("module_id asc, id asc").
		Find(&ps).Error
	return ps, err
}

// CompletedContentIDs 模块内已完成的内容
func (r *ProgressRepository) CompletedContentIDs(ctx context.Context, enrollmentID, moduleID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&model.Progress{}).
		Where("enrollment_id = ? AND module_id = ? AND content_id IS NOT NULL AND status = ?",
			enrollmentID, moduleID, model.ProgressCompleted).
		Pluck("content_id", &ids).Error
	return ids, err
}
