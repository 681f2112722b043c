package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"
	"lms_backend/pkg/monitoring"
	"lms_backend/pkg/tracing"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DeriveStatus 每次重新计算进度后推导报名状态。
// dropped 和 completed 不会被数值改变；仅记录学习时长也可能让 enrolled 变成 in_progress。
func DeriveStatus(pct float64, current model.EnrollmentStatus) model.EnrollmentStatus {
	switch current {
	case model.EnrollmentDropped, model.EnrollmentCompleted:
		return current
	}
	switch {
	case pct >= 100:
		return model.EnrollmentCompleted
	case pct > 0:
		return model.EnrollmentInProgress
	}
	return current
}

// EnrollmentService 报名状态的唯一写入方
type EnrollmentService struct {
	DB             *gorm.DB
	CourseRepo     *repository.CourseRepository
	EnrollmentRepo *repository.EnrollmentRepository
	Prerequisites  *PrerequisiteService
	Progress       *ProgressService
	Events         EventPublisher
}

func NewEnrollmentService(db *gorm.DB, prerequisites *PrerequisiteService, progress *ProgressService, events EventPublisher) *EnrollmentService {
	if events == nil {
		events = NopPublisher{}
	}
	return &EnrollmentService{
		DB:             db,
		CourseRepo:     repository.NewCourseRepository(db),
		EnrollmentRepo: repository.NewEnrollmentRepository(db),
		Prerequisites:  prerequisites,
		Progress:       progress,
		Events:         events,
	}
}

func (s *EnrollmentService) WithTx(tx *gorm.DB) *EnrollmentService {
	return &EnrollmentService{
		DB:             tx,
		CourseRepo:     s.CourseRepo.WithTx(tx),
		EnrollmentRepo: s.EnrollmentRepo.WithTx(tx),
		Prerequisites:  s.Prerequisites.WithTx(tx),
		Progress:       s.Progress.WithTx(tx),
		Events:         s.Events,
	}
}

type EnrollRequest struct {
	CourseID uint `json:"courseId" binding:"required"`
	// 管理员/讲师代学员报名时填写，学员本人报名可省略
	TraineeID uint   `json:"traineeId"`
	DueDate   string `json:"dueDate"`
}

func (s *EnrollmentService) Enroll(ctx context.Context, caller model.Caller, req EnrollRequest) (*model.Enrollment, error) {
	ctx, span := tracing.StartSpan(ctx, "EnrollmentService.Enroll")
	defer span.End()

	dueDate, err := util.ParseOptionalDate(req.DueDate)
	if err != nil {
		return nil, err
	}
	traineeID := req.TraineeID
	if caller.IsTrainee() {
		if traineeID != 0 && traineeID != caller.UserID {
			return nil, util.Forbiddenf("trainees can only enroll themselves")
		}
		traineeID = caller.UserID
	}
	if traineeID == 0 {
		return nil, util.BadRequestf("traineeId is required")
	}

	var enrollment *model.Enrollment
	reactivated := false
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		txs := s.WithTx(tx)

		course, err := txs.CourseRepo.FindByIDForUpdate(ctx, req.CourseID)
		if err != nil {
			return lookupErr(err, "course")
		}
		if caller.IsTrainee() {
			if !caller.CanViewCourse(course) {
				return util.Forbiddenf("not allowed to enroll in course %d", course.ID)
			}
		} else if !caller.CanManageCourse(course) {
			return util.Forbiddenf("not allowed to manage course %d", course.ID)
		}
		if !course.IsPublished() {
			return util.BadRequestf("course is not published")
		}

		if course.MaxEnrollments != nil {
			active, err := txs.EnrollmentRepo.CountActive(ctx, course.ID)
			if err != nil {
				return fmt.Errorf("count enrollments: %w", err)
			}
			if active >= int64(*course.MaxEnrollments) {
				return util.Conflictf("course enrollment limit reached")
			}
		}

		existing, err := txs.EnrollmentRepo.FindByTraineeAndCourse(ctx, traineeID, course.ID)
		switch {
		case err == nil:
			if existing.Status.IsActive() {
				return util.Conflictf("trainee is already enrolled in this course")
			}
		case isNotFound(err):
			existing = nil
		default:
			return fmt.Errorf("load enrollment: %w", err)
		}

		check, err := txs.Prerequisites.CheckPrerequisites(ctx, course, traineeID)
		if err != nil {
			return err
		}
		if !check.Satisfied {
			titles := make([]string, 0, len(check.Missing))
			for _, m := range check.Missing {
				titles = append(titles, m.Title)
			}
			return util.BadRequestf("missing prerequisites: %s", strings.Join(titles, ", ")).
				WithDetails(map[string]interface{}{"missingPrerequisites": check.Missing})
		}

		now := time.Now()
		if existing != nil {
			// 重新报名复用原记录，台账保留
			existing.Status = model.EnrollmentEnrolled
			existing.StartedAt = &now
			existing.CompletedAt = nil
			existing.DroppedAt = nil
			existing.ProgressPercentage = 0
			existing.DueDate = dueDate
			if err := txs.EnrollmentRepo.Save(ctx, existing); err != nil {
				return fmt.Errorf("reactivate enrollment: %w", err)
			}
			enrollment = existing
			reactivated = true
		} else {
			enrollment = &model.Enrollment{
				TraineeID: traineeID,
				CourseID:  course.ID,
				Status:    model.EnrollmentEnrolled,
				StartedAt: &now,
				DueDate:   dueDate,
			}
			if err := txs.EnrollmentRepo.Create(ctx, enrollment); err != nil {
				if isDuplicate(err) {
					return util.Conflictf("trainee is already enrolled in this course")
				}
				return fmt.Errorf("create enrollment: %w", err)
			}
		}
		enrollment.Course = course
		return nil
	})
	if err != nil {
		monitoring.RecordEnrollment("rejected")
		return nil, err
	}

	result := "created"
	if reactivated {
		result = "reactivated"
	}
	monitoring.RecordEnrollment(result)
	logger.Log.Info("trainee enrolled",
		zap.Uint("enrollment_id", enrollment.ID),
		zap.Uint("course_id", enrollment.CourseID),
		zap.Uint("trainee_id", enrollment.TraineeID),
		zap.Bool("reactivated", reactivated))
	return enrollment, nil
}

// Drop 已退课的报名再次退课返回 Conflict
func (s *EnrollmentService) Drop(ctx context.Context, caller model.Caller, enrollmentID uint) (*model.Enrollment, error) {
	ctx, span := tracing.StartSpan(ctx, "EnrollmentService.Drop")
	defer span.End()

	var enrollment *model.Enrollment
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		txs := s.WithTx(tx)
		e, err := txs.EnrollmentRepo.FindByIDForUpdate(ctx, enrollmentID)
		if err != nil {
			return lookupErr(err, "enrollment")
		}
		course, err := txs.CourseRepo.FindByID(ctx, e.CourseID)
		if err != nil {
			return lookupErr(err, "course")
		}
		if e.TraineeID != caller.UserID && !caller.CanManageCourse(course) {
			return util.Forbiddenf("not allowed to drop enrollment %d", e.ID)
		}
		switch e.Status {
		case model.EnrollmentDropped:
			return util.Conflictf("enrollment is already dropped")
		case model.EnrollmentCompleted:
			return util.BadRequestf("completed enrollment cannot be dropped")
		}

		now := time.Now()
		e.Status = model.EnrollmentDropped
		e.DroppedAt = &now
		if err := txs.EnrollmentRepo.Save(ctx, e); err != nil {
			return fmt.Errorf("drop enrollment: %w", err)
		}
		e.Course = course
		enrollment = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("enrollment dropped",
		zap.Uint("enrollment_id", enrollment.ID),
		zap.Uint("by", caller.UserID))
	return enrollment, nil
}

// Complete 强制完成，completedAt 只写一次
func (s *EnrollmentService) Complete(ctx context.Context, caller model.Caller, enrollmentID uint) (*model.Enrollment, error) {
	ctx, span := tracing.StartSpan(ctx, "EnrollmentService.Complete")
	defer span.End()

	var enrollment *model.Enrollment
	first := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		txs := s.WithTx(tx)
		e, err := txs.EnrollmentRepo.FindByIDForUpdate(ctx, enrollmentID)
		if err != nil {
			return lookupErr(err, "enrollment")
		}
		course, err := txs.CourseRepo.FindByID(ctx, e.CourseID)
		if err != nil {
			return lookupErr(err, "course")
		}
		if !caller.CanManageCourse(course) {
			return util.Forbiddenf("not allowed to complete enrollment %d", e.ID)
		}
		if e.Status == model.EnrollmentDropped {
			return util.BadRequestf("dropped enrollment cannot be completed")
		}

		e.Status = model.EnrollmentCompleted
		e.ProgressPercentage = 100
		if e.CompletedAt == nil {
			now := time.Now()
			e.CompletedAt = &now
			first = true
		}
		if err := txs.EnrollmentRepo.Save(ctx, e); err != nil {
			return fmt.Errorf("complete enrollment: %w", err)
		}
		e.Course = course
		enrollment = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("enrollment completed",
		zap.Uint("enrollment_id", enrollment.ID),
		zap.Uint("by", caller.UserID),
		zap.Bool("first_completion", first))
	if first {
		s.publishCompleted(ctx, enrollment)
	}
	return enrollment, nil
}

// Recalculation 一次进度重算的结果
type Recalculation struct {
	Enrollment *model.Enrollment `json:"enrollment"`
	Rollup     *Rollup           `json:"rollup"`
	// 本次重算首次进入 completed
	FirstCompletion bool `json:"-"`
}

// Recalculate 汇总进度并写回百分比和推导出的状态，需在事务内使用 WithTx 后的实例调用
func (s *EnrollmentService) Recalculate(ctx context.Context, e *model.Enrollment) (*Recalculation, error) {
	rollup, err := s.Progress.CalculateEnrollmentProgress(ctx, e)
	if err != nil {
		return nil, err
	}

	first := false
	status := DeriveStatus(rollup.Percentage, e.Status)
	pct := rollup.Percentage
	if status == model.EnrollmentCompleted {
		// 已完成的报名保持 100，包括讲师手动完成的情况
		pct = 100
		if e.CompletedAt == nil {
			now := time.Now()
			e.CompletedAt = &now
			first = true
		}
	}
	if err := s.EnrollmentRepo.UpdateProgress(ctx, e.ID, pct, status, e.CompletedAt); err != nil {
		return nil, fmt.Errorf("update enrollment progress: %w", err)
	}
	e.ProgressPercentage = pct
	e.Status = status
	monitoring.ProgressRecalculations.Inc()
	return &Recalculation{Enrollment: e, Rollup: rollup, FirstCompletion: first}, nil
}

func (s *EnrollmentService) CalculateProgress(ctx context.Context, caller model.Caller, enrollmentID uint) (*Recalculation, error) {
	ctx, span := tracing.StartSpan(ctx, "EnrollmentService.CalculateProgress")
	defer span.End()

	var result *Recalculation
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		txs := s.WithTx(tx)
		e, course, err := txs.lockOwned(ctx, caller, enrollmentID, true)
		if err != nil {
			return err
		}
		if result, err = txs.Recalculate(ctx, e); err != nil {
			return err
		}
		result.Enrollment.Course = course
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterRecalculate(ctx, result)
	return result, nil
}

// lockOwned 锁住报名行并校验调用方：学员本人、管理员，allowManager 时课程讲师也可以
func (s *EnrollmentService) lockOwned(ctx context.Context, caller model.Caller, enrollmentID uint, allowManager bool) (*model.Enrollment, *model.Course, error) {
	e, err := s.EnrollmentRepo.FindByIDForUpdate(ctx, enrollmentID)
	if err != nil {
		return nil, nil, lookupErr(err, "enrollment")
	}
	course, err := s.CourseRepo.FindByID(ctx, e.CourseID)
	if err != nil {
		return nil, nil, lookupErr(err, "course")
	}
	allowed := e.TraineeID == caller.UserID || caller.IsAdmin() ||
		(allowManager && caller.CanManageCourse(course))
	if !allowed {
		return nil, nil, util.Forbiddenf("not allowed to access enrollment %d", e.ID)
	}
	return e, course, nil
}

func (s *EnrollmentService) afterRecalculate(ctx context.Context, r *Recalculation) {
	if r != nil && r.FirstCompletion {
		logger.Log.Info("enrollment completed by progress",
			zap.Uint("enrollment_id", r.Enrollment.ID),
			zap.Float64("progress", r.Enrollment.ProgressPercentage))
		s.publishCompleted(ctx, r.Enrollment)
	}
}

func (s *EnrollmentService) publishCompleted(ctx context.Context, e *model.Enrollment) {
	err := s.Events.Publish(ctx, Event{
		Type:         EventEnrollmentCompleted,
		EnrollmentID: e.ID,
		TraineeID:    e.TraineeID,
		CourseID:     e.CourseID,
		OccurredAt:   time.Now(),
	})
	if err != nil {
		logger.Log.Warn("publish event failed",
			zap.String("type", EventEnrollmentCompleted),
			zap.Uint("enrollment_id", e.ID),
			zap.Error(err))
	}
}

type RecordProgressRequest struct {
	ModuleID   uint                 `json:"moduleId" binding:"required"`
	ContentID  *uint                `json:"contentId"`
	Status     model.ProgressStatus `json:"status" binding:"required"`
	Percentage float64              `json:"progressPercentage"`
	TimeSpent  int                  `json:"timeSpent"`
}

type ProgressResult struct {
	Progress   *model.Progress   `json:"progress"`
	Enrollment *model.Enrollment `json:"enrollment"`
	Rollup     *Rollup           `json:"rollup"`
}

// resolveKey 校验模块属于报名课程、内容属于模块
func (s *EnrollmentService) resolveKey(ctx context.Context, e *model.Enrollment, moduleID uint, contentID *uint) (model.ProgressKey, error) {
	module, err := s.CourseRepo.FindModule(ctx, moduleID)
	if err != nil {
		return model.ProgressKey{}, lookupErr(err, "module")
	}
	if module.CourseID != e.CourseID {
		return model.ProgressKey{}, util.BadRequestf("module %d does not belong to course %d", moduleID, e.CourseID)
	}
	if contentID == nil {
		return model.ModuleLevel(module.ID), nil
	}
	content, err := s.CourseRepo.FindContent(ctx, *contentID)
	if err != nil {
		return model.ProgressKey{}, lookupErr(err, "content")
	}
	if content.ModuleID != module.ID {
		return model.ProgressKey{}, util.BadRequestf("content %d does not belong to module %d", content.ID, module.ID)
	}
	return model.ContentLevel(module.ID, content.ID), nil
}

func (s *EnrollmentService) RecordProgress(ctx context.Context, caller model.Caller, enrollmentID uint, req RecordProgressRequest) (*ProgressResult, error) {
	ctx, span := tracing.StartSpan(ctx, "EnrollmentService.RecordProgress")
	defer span.End()

	upd := ProgressUpdate{Status: req.Status, Percentage: req.Percentage, TimeSpent: req.TimeSpent}
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	var result *ProgressResult
	var recalc *Recalculation
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		txs := s.WithTx(tx)
		e, course, err := txs.lockOwned(ctx, caller, enrollmentID, false)
		if err != nil {
			return err
		}
		if e.Status == model.EnrollmentDropped {
			return util.BadRequestf("enrollment is dropped")
		}
		key, err := txs.resolveKey(ctx, e, req.ModuleID, req.ContentID)
		if err != nil {
			return err
		}
		// 模块级完成只能在必修内容全部完成后写入
		if key.IsModuleLevel() && upd.Status == model.ProgressCompleted {
			ok, err := txs.Progress.RequiredContentComplete(ctx, e.ID, key.ModuleID())
			if err != nil {
				return err
			}
			if !ok {
				return util.BadRequestf("module %d has incomplete required content", key.ModuleID())
			}
		}

		p, err := txs.Progress.Record(ctx, e.ID, key, upd)
		if err != nil {
			return err
		}
		if !key.IsModuleLevel() && p.IsCompleted() {
			if _, err := txs.Progress.CheckModuleCompletion(ctx, e.ID, key.ModuleID()); err != nil {
				return err
			}
		}
		if recalc, err = txs.Recalculate(ctx, e); err != nil {
			return err
		}
		e.Course = course
		result = &ProgressResult{Progress: p, Enrollment: e, Rollup: recalc.Rollup}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("progress recorded",
		zap.Uint("enrollment_id", enrollmentID),
		zap.String("key", result.Progress.Key().String()),
		zap.String("status", string(result.Progress.Status)),
		zap.Int("time_spent", req.TimeSpent))
	s.afterRecalculate(ctx, recalc)
	return result, nil
}

type CompleteContentRequest struct {
	ModuleID  uint `json:"moduleId" binding:"required"`
	ContentID uint `json:"contentId" binding:"required"`
	TimeSpent int  `json:"timeSpent"`
}

func (s *EnrollmentService) CompleteContent(ctx context.Context, caller model.Caller, enrollmentID uint, req CompleteContentRequest) (*ProgressResult, error) {
	ctx, span := tracing.StartSpan(ctx, "EnrollmentService.CompleteContent")
	defer span.End()

	if req.TimeSpent < 0 {
		return nil, util.BadRequestf("timeSpent must not be negative")
	}

	var result *ProgressResult
	var recalc *Recalculation
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		txs := s.WithTx(tx)
		e, course, err := txs.lockOwned(ctx, caller, enrollmentID, false)
		if err != nil {
			return err
		}
		if e.Status == model.EnrollmentDropped {
			return util.BadRequestf("enrollment is dropped")
		}
		contentID := req.ContentID
		if _, err := txs.resolveKey(ctx, e, req.ModuleID, &contentID); err != nil {
			return err
		}
		p, err := txs.Progress.CompleteContent(ctx, e.ID, req.ModuleID, req.ContentID, req.TimeSpent)
		if err != nil {
			return err
		}
		if recalc, err = txs.Recalculate(ctx, e); err != nil {
			return err
		}
		e.Course = course
		result = &ProgressResult{Progress: p, Enrollment: e, Rollup: recalc.Rollup}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("content completed",
		zap.Uint("enrollment_id", enrollmentID),
		zap.Uint("module_id", req.ModuleID),
		zap.Uint("content_id", req.ContentID))
	s.afterRecalculate(ctx, recalc)
	return result, nil
}

// canViewEnrollment 学员只能看自己的报名，讲师只能看自己课程的报名
func canViewEnrollment(caller model.Caller, e *model.Enrollment) bool {
	switch {
	case caller.IsAdmin():
		return true
	case caller.IsTrainee():
		return e.TraineeID == caller.UserID
	}
	return e.Course != nil && caller.CanManageCourse(e.Course)
}

func (s *EnrollmentService) GetEnrollment(ctx context.Context, caller model.Caller, id uint) (*model.Enrollment, error) {
	e, err := s.EnrollmentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "enrollment")
	}
	if !canViewEnrollment(caller, e) {
		return nil, util.Forbiddenf("not allowed to view enrollment %d", id)
	}
	return e, nil
}

type ListEnrollmentsQuery struct {
	CourseID  uint
	TraineeID uint
	Status    model.EnrollmentStatus
	Page      util.PageQuery
}

func (s *EnrollmentService) ListEnrollments(ctx context.Context, caller model.Caller, q ListEnrollmentsQuery) ([]model.Enrollment, util.Pagination, error) {
	f := repository.EnrollmentFilter{
		CourseID:  q.CourseID,
		TraineeID: q.TraineeID,
		Status:    q.Status,
	}
	switch caller.Role {
	case model.Admin:
	case model.Instructor:
		f.OrganizationID = caller.OrganizationID
		f.InstructorID = caller.UserID
	case model.Trainee:
		f.TraineeID = caller.UserID
	default:
		return nil, util.Pagination{}, util.Forbiddenf("unknown role %q", caller.Role)
	}

	es, total, err := s.EnrollmentRepo.List(ctx, f, q.Page.Offset(), q.Page.Limit)
	if err != nil {
		return nil, util.Pagination{}, fmt.Errorf("list enrollments: %w", err)
	}
	return es, q.Page.Result(total), nil
}

func (s *EnrollmentService) GetProgressSummary(ctx context.Context, caller model.Caller, id uint) (*ProgressSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "EnrollmentService.GetProgressSummary")
	defer span.End()

	e, err := s.GetEnrollment(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.Progress.Summary(ctx, e)
}
