package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"
	"lms_backend/pkg/monitoring"
	"lms_backend/pkg/tracing"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultQuestionPoints 题目未设置分值时使用
const DefaultQuestionPoints = 10

type AssessmentService struct {
	DB             *gorm.DB
	AssessmentRepo *repository.AssessmentRepository
	EnrollmentRepo *repository.EnrollmentRepository
	Enrollments    *EnrollmentService
	Events         EventPublisher
}

func NewAssessmentService(db *gorm.DB, enrollments *EnrollmentService, events EventPublisher) *AssessmentService {
	if events == nil {
		events = NopPublisher{}
	}
	return &AssessmentService{
		DB:             db,
		AssessmentRepo: repository.NewAssessmentRepository(db),
		EnrollmentRepo: repository.NewEnrollmentRepository(db),
		Enrollments:    enrollments,
		Events:         events,
	}
}

func questionPoints(q *model.AssessmentQuestion) int {
	if q.Points == nil {
		return DefaultQuestionPoints
	}
	return *q.Points
}

// parseIndices 接受单个下标 (1) 或下标数组 ([1] / [0,2])
func parseIndices(raw []byte) ([]int, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var single int
	if err := json.Unmarshal(raw, &single); err == nil {
		return []int{single}, true
	}
	var many []int
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, true
	}
	return nil, false
}

// singleIndex 单选/判断题的答案，数组必须恰好一个元素
func singleIndex(raw []byte) (int, bool) {
	idx, ok := parseIndices(raw)
	if !ok || len(idx) != 1 {
		return 0, false
	}
	return idx[0], true
}

// indexSet 排序去重
func indexSet(raw []byte) ([]int, bool) {
	idx, ok := parseIndices(raw)
	if !ok || len(idx) == 0 {
		return nil, false
	}
	sort.Ints(idx)
	out := idx[:1]
	for _, v := range idx[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out, true
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IsCorrect 多选题只有完全一致才得分，不支持部分得分
func IsCorrect(q *model.AssessmentQuestion, answer json.RawMessage) bool {
	switch q.QuestionType {
	case model.QuestionMultipleChoice, model.QuestionTrueFalse:
		want, ok := singleIndex(q.CorrectAnswers)
		if !ok {
			return false
		}
		got, ok := singleIndex(answer)
		return ok && got == want
	case model.QuestionMultipleSelect:
		want, ok := indexSet(q.CorrectAnswers)
		if !ok {
			return false
		}
		got, ok := indexSet(answer)
		return ok && sameInts(got, want)
	}
	return false
}

type GradeResult struct {
	EarnedPoints int     `json:"earnedPoints"`
	TotalPoints  int     `json:"totalPoints"`
	Score        float64 `json:"score"`
	IsPassed     bool    `json:"isPassed"`
}

// GradeAttempt 每道题都计入总分，无论是否作答；不存在的题目 id 忽略
func GradeAttempt(a *model.Assessment, answers map[uint]json.RawMessage) GradeResult {
	var r GradeResult
	for i := range a.Questions {
		q := &a.Questions[i]
		points := questionPoints(q)
		r.TotalPoints += points
		if answer, ok := answers[q.ID]; ok && IsCorrect(q, answer) {
			r.EarnedPoints += points
		}
	}
	if r.TotalPoints > 0 {
		r.Score = round2(float64(r.EarnedPoints) / float64(r.TotalPoints) * 100)
		// 用精确比例判断是否通过，舍入只用于存储
		r.IsPassed = r.EarnedPoints*100 >= a.PassingScore*r.TotalPoints
	} else {
		r.IsPassed = a.PassingScore <= 0
	}
	return r
}

type SubmitAttemptRequest struct {
	EnrollmentID uint                     `json:"enrollmentId" binding:"required"`
	Answers      map[uint]json.RawMessage `json:"answers"`
	TimeTaken    *int                     `json:"timeTaken"` // 秒
}

func (s *AssessmentService) Submit(ctx context.Context, caller model.Caller, assessmentID uint, req SubmitAttemptRequest) (*model.AssessmentAttempt, error) {
	ctx, span := tracing.StartSpan(ctx, "AssessmentService.Submit")
	defer span.End()

	if req.TimeTaken != nil && *req.TimeTaken < 0 {
		return nil, util.BadRequestf("timeTaken must not be negative")
	}
	assessment, err := s.AssessmentRepo.FindByID(ctx, assessmentID)
	if err != nil {
		return nil, lookupErr(err, "assessment")
	}
	answersJSON, err := json.Marshal(req.Answers)
	if err != nil {
		return nil, util.BadRequestf("invalid answers")
	}

	var attempt *model.AssessmentAttempt
	var recalc *Recalculation
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		repo := s.AssessmentRepo.WithTx(tx)
		enrollments := s.Enrollments.WithTx(tx)

		e, err := enrollments.EnrollmentRepo.FindByIDForUpdate(ctx, req.EnrollmentID)
		if err != nil {
			return lookupErr(err, "enrollment")
		}
		if e.TraineeID != caller.UserID {
			return util.Forbiddenf("enrollment %d does not belong to caller", e.ID)
		}
		if e.CourseID != assessment.CourseID {
			return util.BadRequestf("enrollment course does not match assessment course")
		}
		if e.Status == model.EnrollmentDropped {
			return util.BadRequestf("enrollment is dropped")
		}

		// 报名行已锁，计数和写入之间不会插入其他提交
		count, err := repo.CountAttempts(ctx, assessment.ID, e.ID)
		if err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		if assessment.MaxAttempts != nil && count >= int64(*assessment.MaxAttempts) {
			return util.BadRequestf("max attempts reached")
		}

		grade := GradeAttempt(assessment, req.Answers)
		attempt = &model.AssessmentAttempt{
			AssessmentID:  assessment.ID,
			EnrollmentID:  e.ID,
			AttemptNumber: int(count) + 1,
			Answers:       datatypes.JSON(answersJSON),
			EarnedPoints:  grade.EarnedPoints,
			TotalPoints:   grade.TotalPoints,
			Score:         grade.Score,
			IsPassed:      grade.IsPassed,
			TimeTaken:     req.TimeTaken,
			SubmittedAt:   time.Now(),
		}
		if assessment.TimeLimit > 0 && req.TimeTaken != nil && *req.TimeTaken > assessment.TimeLimit*60 {
			attempt.IsOverTime = true
		}
		if err := repo.CreateAttempt(ctx, attempt); err != nil {
			if isDuplicate(err) {
				return util.Conflictf("attempt %d already recorded", attempt.AttemptNumber)
			}
			return fmt.Errorf("create attempt: %w", err)
		}

		recalc, err = enrollments.Recalculate(ctx, e)
		return err
	})
	if err != nil {
		return nil, err
	}

	monitoring.RecordAttempt(attempt.IsPassed)
	if attempt.IsOverTime {
		logger.Log.Warn("assessment attempt over time limit",
			zap.Uint("assessment_id", assessment.ID),
			zap.Uint("enrollment_id", attempt.EnrollmentID),
			zap.Int("time_taken", *attempt.TimeTaken),
			zap.Int("time_limit_minutes", assessment.TimeLimit))
	}
	logger.Log.Info("assessment attempt graded",
		zap.Uint("assessment_id", assessment.ID),
		zap.Uint("enrollment_id", attempt.EnrollmentID),
		zap.Int("attempt_number", attempt.AttemptNumber),
		zap.Float64("score", attempt.Score),
		zap.Bool("passed", attempt.IsPassed))

	if attempt.IsPassed {
		err := s.Events.Publish(ctx, Event{
			Type:         EventAssessmentPassed,
			EnrollmentID: attempt.EnrollmentID,
			TraineeID:    caller.UserID,
			CourseID:     assessment.CourseID,
			Data: map[string]interface{}{
				"assessmentId":  assessment.ID,
				"attemptNumber": attempt.AttemptNumber,
				"score":         attempt.Score,
			},
			OccurredAt: attempt.SubmittedAt,
		})
		if err != nil {
			logger.Log.Warn("publish event failed",
				zap.String("type", EventAssessmentPassed),
				zap.Uint("attempt_id", attempt.ID),
				zap.Error(err))
		}
	}
	s.Enrollments.afterRecalculate(ctx, recalc)
	return attempt, nil
}

// GetAssessment 学员查看时去掉正确答案和解析
func (s *AssessmentService) GetAssessment(ctx context.Context, caller model.Caller, id uint) (*model.Assessment, error) {
	a, err := s.AssessmentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "assessment")
	}
	if a.Course == nil || !caller.CanViewCourse(a.Course) {
		return nil, util.Forbiddenf("not allowed to view assessment %d", id)
	}
	if !caller.Role.IsPrivileged() {
		StripAnswers(a)
	}
	return a, nil
}

func StripAnswers(a *model.Assessment) {
	for i := range a.Questions {
		a.Questions[i].CorrectAnswers = nil
		a.Questions[i].Explanation = ""
	}
}

// ListAttempts 学员只能看到自己的记录，enrollmentID 对学员无效
func (s *AssessmentService) ListAttempts(ctx context.Context, caller model.Caller, assessmentID, enrollmentID uint, page util.PageQuery) ([]model.AssessmentAttempt, util.Pagination, error) {
	a, err := s.AssessmentRepo.FindByID(ctx, assessmentID)
	if err != nil {
		return nil, util.Pagination{}, lookupErr(err, "assessment")
	}
	if caller.IsTrainee() {
		e, err := s.EnrollmentRepo.FindByTraineeAndCourse(ctx, caller.UserID, a.CourseID)
		if err != nil {
			return nil, util.Pagination{}, lookupErr(err, "enrollment")
		}
		enrollmentID = e.ID
	} else if a.Course == nil || !caller.CanManageCourse(a.Course) {
		return nil, util.Pagination{}, util.Forbiddenf("not allowed to view attempts of assessment %d", assessmentID)
	}

	attempts, total, err := s.AssessmentRepo.ListAttempts(ctx, assessmentID, enrollmentID, page.Offset(), page.Limit)
	if err != nil {
		return nil, util.Pagination{}, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, page.Result(total), nil
}

func (s *AssessmentService) GetAttempt(ctx context.Context, caller model.Caller, id uint) (*model.AssessmentAttempt, error) {
	attempt, err := s.AssessmentRepo.FindAttempt(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "attempt")
	}
	e, err := s.EnrollmentRepo.FindByID(ctx, attempt.EnrollmentID)
	if err != nil {
		return nil, lookupErr(err, "enrollment")
	}
	if !canViewEnrollment(caller, e) {
		return nil, util.Forbiddenf("not allowed to view attempt %d", id)
	}
	return attempt, nil
}
