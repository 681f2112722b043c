package repository

import (
	"context"
	"time"

	"lms_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentRepository struct {
	DB *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

func (r *EnrollmentRepository) WithTx(tx *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: tx}
}

func (r *EnrollmentRepository) FindByID(ctx context.Context, id uint) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).Preload("Course").First(&e, id).Error
	return &e, err
}

// FindByIDForUpdate 提交测验时锁住报名行，次数检查和写入串行执行
func (r *EnrollmentRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&e, id).Error
	return &e, err
}

// FindByTraineeAndCourse 包含 dropped 的记录，重新报名时复用
func (r *EnrollmentRepository) FindByTraineeAndCourse(ctx context.Context, traineeID, courseID uint) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).
		Where("trainee_id = ? AND course_id = ?", traineeID, courseID).
		First(&e).Error
	return &e, err
}

func (r *EnrollmentRepository) CountActive(ctx context.Context, courseID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("course_id = ? AND status <> ?", courseID, model.EnrollmentDropped).
		Count(&count).Error
	return count, err
}

// CompletedCourseIDs 返回 courseIDs 中学员已完成的课程
func (r *EnrollmentRepository) CompletedCourseIDs(ctx context.Context, traineeID uint, courseIDs []uint) (map[uint]bool, error) {
	done := make(map[uint]bool)
	if len(courseIDs) == 0 {
		return done, nil
	}
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("trainee_id = ? AND course_id IN ? AND status = ?", traineeID, courseIDs, model.EnrollmentCompleted).
		Pluck("course_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		done[id] = true
	}
	return done, nil
}

func (r *EnrollmentRepository) Create(ctx context.Context, e *model.Enrollment) error {
	return r.DB.WithContext(ctx).Create(e).Error
}

func (r *EnrollmentRepository) Save(ctx context.Context, e *model.Enrollment) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Save(e).Error
}

// UpdateProgress 只写进度相关字段，避免覆盖并发写入的其他列
func (r *EnrollmentRepository) UpdateProgress(ctx context.Context, id uint, pct float64, status model.EnrollmentStatus, completedAt *time.Time) error {
	return r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress_percentage": pct,
			"status":              status,
			"completed_at":        completedAt,
		}).Error
}

type EnrollmentFilter struct {
	CourseID  uint
	TraineeID uint
	Status    model.EnrollmentStatus
	// 调用方范围，0 表示不限
	OrganizationID uint
	InstructorID   uint
}

func (r *EnrollmentRepository) List(ctx context.Context, f EnrollmentFilter, offset, limit int) ([]model.Enrollment, int64, error) {
	var es []model.Enrollment
	var total int64

	query := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Joins("JOIN courses ON courses.id = enrollments.course_id AND courses.deleted_at IS NULL")
	if f.CourseID > 0 {
		query = query.Where("enrollments.course_id = ?", f.CourseID)
	}
	if f.TraineeID > 0 {
		query = query.Where("enrollments.trainee_id = ?", f.TraineeID)
	}
	if f.Status != "" {
		query = query.Where("enrollments.status = ?", f.Status)
	}
	if f.OrganizationID > 0 {
		query = query.Where("courses.organization_id = ?", f.OrganizationID)
	}
	if f.InstructorID > 0 {
		query = query.Where("courses.instructor_id = ?", f.InstructorID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Preload("Course").
		Order("enrollments.created_at desc, enrollments.id desc").
		Offset(offset).Limit(limit).
		Find(&es).Error
	return es, total, err
}
