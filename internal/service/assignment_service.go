package service

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"
	"lms_backend/pkg/monitoring"
	"lms_backend/pkg/tracing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AssignmentService struct {
	DB             *gorm.DB
	AssignmentRepo *repository.AssignmentRepository
	EnrollmentRepo *repository.EnrollmentRepository
	CourseRepo     *repository.CourseRepository
	Enrollments    *EnrollmentService
	Storage        *StorageService
}

func NewAssignmentService(db *gorm.DB, enrollments *EnrollmentService, storage *StorageService) *AssignmentService {
	return &AssignmentService{
		DB:             db,
		AssignmentRepo: repository.NewAssignmentRepository(db),
		EnrollmentRepo: repository.NewEnrollmentRepository(db),
		CourseRepo:     repository.NewCourseRepository(db),
		Enrollments:    enrollments,
		Storage:        storage,
	}
}

type SubmitAssignmentRequest struct {
	EnrollmentID uint     `json:"enrollmentId" binding:"required"`
	Content      string   `json:"content"`
	Attachments  []string `json:"attachments"`
}

func validateAttachments(urls []string) error {
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return util.BadRequestf("invalid attachment url: %q", raw)
		}
	}
	return nil
}

// Submit 每个报名只能提交一次；逾期提交只记录警告
func (s *AssignmentService) Submit(ctx context.Context, caller model.Caller, assignmentID uint, req SubmitAssignmentRequest) (*model.AssignmentSubmission, error) {
	ctx, span := tracing.StartSpan(ctx, "AssignmentService.Submit")
	defer span.End()

	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		return nil, util.BadRequestf("content or attachments required")
	}
	if err := validateAttachments(req.Attachments); err != nil {
		return nil, err
	}

	assignment, err := s.AssignmentRepo.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, lookupErr(err, "assignment")
	}
	e, err := s.EnrollmentRepo.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		return nil, lookupErr(err, "enrollment")
	}
	if e.TraineeID != caller.UserID {
		return nil, util.Forbiddenf("enrollment %d does not belong to caller", e.ID)
	}
	if e.CourseID != assignment.CourseID {
		return nil, util.BadRequestf("enrollment course does not match assignment course")
	}
	if e.Status == model.EnrollmentDropped {
		return nil, util.BadRequestf("enrollment is dropped")
	}

	if _, err := s.AssignmentRepo.FindSubmission(ctx, assignment.ID, e.ID); err == nil {
		return nil, util.Conflictf("assignment already submitted")
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("load submission: %w", err)
	}

	now := time.Now()
	sub := &model.AssignmentSubmission{
		AssignmentID: assignment.ID,
		EnrollmentID: e.ID,
		Content:      req.Content,
		Attachments:  req.Attachments,
		Status:       model.SubmissionSubmitted,
		SubmittedAt:  now,
		IsLate:       assignment.IsLate(now),
	}
	if sub.Attachments == nil {
		sub.Attachments = []string{}
	}
	if err := s.AssignmentRepo.CreateSubmission(ctx, sub); err != nil {
		if isDuplicate(err) {
			return nil, util.Conflictf("assignment already submitted")
		}
		return nil, fmt.Errorf("create submission: %w", err)
	}

	monitoring.RecordSubmission(sub.IsLate)
	if sub.IsLate {
		logger.Log.Warn("late assignment submission",
			zap.Uint("assignment_id", assignment.ID),
			zap.Uint("enrollment_id", e.ID),
			zap.Time("due_date", *assignment.DueDate))
	}
	logger.Log.Info("assignment submitted",
		zap.Uint("submission_id", sub.ID),
		zap.Uint("assignment_id", assignment.ID),
		zap.Uint("enrollment_id", e.ID))
	return sub, nil
}

type GradeSubmissionRequest struct {
	Score    *float64               `json:"score" binding:"required"`
	Feedback string                 `json:"feedback"`
	Status   model.SubmissionStatus `json:"status"`
}

// Grade 可重复批改，后一次覆盖前一次。状态为 graded 且作业关联了内容时，同时完成该内容并重算进度。
func (s *AssignmentService) Grade(ctx context.Context, caller model.Caller, submissionID uint, req GradeSubmissionRequest) (*model.AssignmentSubmission, error) {
	ctx, span := tracing.StartSpan(ctx, "AssignmentService.Grade")
	defer span.End()

	if req.Status == "" {
		req.Status = model.SubmissionGraded
	}
	if req.Status != model.SubmissionGraded && req.Status != model.SubmissionReturned {
		return nil, util.BadRequestf("status must be graded or returned")
	}
	if req.Score == nil {
		return nil, util.BadRequestf("score is required")
	}

	sub, err := s.AssignmentRepo.FindSubmissionByID(ctx, submissionID)
	if err != nil {
		return nil, lookupErr(err, "submission")
	}
	assignment, err := s.AssignmentRepo.FindByID(ctx, sub.AssignmentID)
	if err != nil {
		return nil, lookupErr(err, "assignment")
	}
	if assignment.Course == nil || !caller.CanManageCourse(assignment.Course) {
		return nil, util.Forbiddenf("not allowed to grade assignment %d", assignment.ID)
	}
	if *req.Score < 0 || *req.Score > assignment.MaxScore {
		return nil, util.BadRequestf("score must be between 0 and %g", assignment.MaxScore)
	}

	now := time.Now()
	grader := caller.UserID
	sub.Score = req.Score
	sub.Feedback = req.Feedback
	sub.Status = req.Status
	sub.GradedBy = &grader
	sub.GradedAt = &now

	var recalc *Recalculation
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.AssignmentRepo.WithTx(tx).UpdateGrade(ctx, sub); err != nil {
			return fmt.Errorf("grade submission: %w", err)
		}
		if sub.Status != model.SubmissionGraded || assignment.ContentID == nil {
			return nil
		}

		enrollments := s.Enrollments.WithTx(tx)
		content, err := enrollments.CourseRepo.FindContent(ctx, *assignment.ContentID)
		if err != nil {
			return lookupErr(err, "content")
		}
		e, err := enrollments.EnrollmentRepo.FindByIDForUpdate(ctx, sub.EnrollmentID)
		if err != nil {
			return lookupErr(err, "enrollment")
		}
		if e.Status == model.EnrollmentDropped {
			return nil
		}
		if _, err := enrollments.Progress.CompleteContent(ctx, e.ID, content.ModuleID, content.ID, 0); err != nil {
			return err
		}
		recalc, err = enrollments.Recalculate(ctx, e)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("submission graded",
		zap.Uint("submission_id", sub.ID),
		zap.Float64("score", *sub.Score),
		zap.String("status", string(sub.Status)),
		zap.Uint("by", grader))
	s.Enrollments.afterRecalculate(ctx, recalc)
	return sub, nil
}

func (s *AssignmentService) ListSubmissions(ctx context.Context, caller model.Caller, assignmentID uint, page util.PageQuery) ([]model.AssignmentSubmission, util.Pagination, error) {
	assignment, err := s.AssignmentRepo.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, util.Pagination{}, lookupErr(err, "assignment")
	}
	if assignment.Course == nil || !caller.CanManageCourse(assignment.Course) {
		return nil, util.Pagination{}, util.Forbiddenf("not allowed to view submissions of assignment %d", assignmentID)
	}
	subs, total, err := s.AssignmentRepo.ListSubmissions(ctx, assignmentID, page.Offset(), page.Limit)
	if err != nil {
		return nil, util.Pagination{}, fmt.Errorf("list submissions: %w", err)
	}
	return subs, page.Result(total), nil
}

func (s *AssignmentService) GetMySubmission(ctx context.Context, caller model.Caller, assignmentID uint) (*model.AssignmentSubmission, error) {
	assignment, err := s.AssignmentRepo.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, lookupErr(err, "assignment")
	}
	e, err := s.EnrollmentRepo.FindByTraineeAndCourse(ctx, caller.UserID, assignment.CourseID)
	if err != nil {
		return nil, lookupErr(err, "enrollment")
	}
	sub, err := s.AssignmentRepo.FindSubmission(ctx, assignment.ID, e.ID)
	if err != nil {
		return nil, lookupErr(err, "submission")
	}
	return sub, nil
}

type AttachmentUploadRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType"`
}

// RequestAttachmentUpload 返回预签名上传地址，文件内容不经过服务端
func (s *AssignmentService) RequestAttachmentUpload(ctx context.Context, caller model.Caller, assignmentID uint, req AttachmentUploadRequest) (*UploadTicket, error) {
	if err := util.ValidateAttachmentName(req.FileName, req.ContentType); err != nil {
		return nil, err
	}
	assignment, err := s.AssignmentRepo.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, lookupErr(err, "assignment")
	}
	if caller.IsTrainee() {
		e, err := s.EnrollmentRepo.FindByTraineeAndCourse(ctx, caller.UserID, assignment.CourseID)
		if err != nil || !e.Status.IsActive() {
			return nil, util.Forbiddenf("not enrolled in the assignment course")
		}
	} else if assignment.Course == nil || !caller.CanManageCourse(assignment.Course) {
		return nil, util.Forbiddenf("not allowed to upload for assignment %d", assignmentID)
	}

	key := fmt.Sprintf("assignments/%d/%d/%s%s",
		assignment.ID, caller.UserID, uuid.New().String(), strings.ToLower(filepath.Ext(req.FileName)))
	ticket, err := s.Storage.PresignUpload(ctx, key, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	logger.Log.Info("attachment upload presigned",
		zap.Uint("assignment_id", assignment.ID),
		zap.String("key", key))
	return ticket, nil
}
