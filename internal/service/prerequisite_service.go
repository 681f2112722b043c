package service

import (
	"context"
	"errors"
	"fmt"

	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"
	"lms_backend/pkg/tracing"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PrerequisiteService struct {
	DB               *gorm.DB
	CourseRepo       *repository.CourseRepository
	PrerequisiteRepo *repository.PrerequisiteRepository
	EnrollmentRepo   *repository.EnrollmentRepository
}

func NewPrerequisiteService(db *gorm.DB) *PrerequisiteService {
	return &PrerequisiteService{
		DB:               db,
		CourseRepo:       repository.NewCourseRepository(db),
		PrerequisiteRepo: repository.NewPrerequisiteRepository(db),
		EnrollmentRepo:   repository.NewEnrollmentRepository(db),
	}
}

func (s *PrerequisiteService) WithTx(tx *gorm.DB) *PrerequisiteService {
	return &PrerequisiteService{
		DB:               tx,
		CourseRepo:       s.CourseRepo.WithTx(tx),
		PrerequisiteRepo: s.PrerequisiteRepo.WithTx(tx),
		EnrollmentRepo:   s.EnrollmentRepo.WithTx(tx),
	}
}

type PrerequisiteCheck struct {
	Satisfied bool              `json:"satisfied"`
	Missing   []model.CourseRef `json:"missing"`
}

// CheckPrerequisites 只检查必修前置课程，学员需要在该课程有 completed 状态的报名。
// 前置课程记录缺失时按未满足处理。
func (s *PrerequisiteService) CheckPrerequisites(ctx context.Context, course *model.Course, traineeID uint) (*PrerequisiteCheck, error) {
	links, err := s.PrerequisiteRepo.ListMandatory(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("list prerequisites: %w", err)
	}

	ids := make([]uint, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.PrerequisiteCourseID)
	}
	done, err := s.EnrollmentRepo.CompletedCourseIDs(ctx, traineeID, ids)
	if err != nil {
		return nil, fmt.Errorf("load completed courses: %w", err)
	}

	result := &PrerequisiteCheck{Satisfied: true, Missing: []model.CourseRef{}}
	for _, l := range links {
		if l.PrerequisiteCourse != nil && done[l.PrerequisiteCourseID] {
			continue
		}
		ref := model.CourseRef{ID: l.PrerequisiteCourseID}
		if l.PrerequisiteCourse != nil {
			ref.Title = l.PrerequisiteCourse.Title
		}
		result.Satisfied = false
		result.Missing = append(result.Missing, ref)
	}
	return result, nil
}

type AddPrerequisiteRequest struct {
	PrerequisiteCourseID uint `json:"prerequisiteCourseId" binding:"required"`
	IsMandatory          bool `json:"isMandatory"`
}

func (s *PrerequisiteService) AddPrerequisite(ctx context.Context, caller model.Caller, courseID uint, req AddPrerequisiteRequest) (*model.CoursePrerequisite, error) {
	ctx, span := tracing.StartSpan(ctx, "PrerequisiteService.AddPrerequisite")
	defer span.End()

	if req.PrerequisiteCourseID == courseID {
		return nil, util.BadRequestf("a course cannot be its own prerequisite")
	}

	var link *model.CoursePrerequisite
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		txs := s.WithTx(tx)

		course, err := txs.CourseRepo.FindByIDForUpdate(ctx, courseID)
		if err != nil {
			return lookupErr(err, "course")
		}
		if !caller.CanManageCourse(course) {
			return util.Forbiddenf("not allowed to manage course %d", courseID)
		}
		prereq, err := txs.CourseRepo.FindByID(ctx, req.PrerequisiteCourseID)
		if err != nil {
			return lookupErr(err, "prerequisite course")
		}
		if prereq.OrganizationID != course.OrganizationID {
			return util.BadRequestf("prerequisite course must belong to the same organization")
		}

		if _, err := txs.PrerequisiteRepo.Find(ctx, courseID, prereq.ID); err == nil {
			return util.Conflictf("prerequisite already exists")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load prerequisite: %w", err)
		}

		edges, err := txs.PrerequisiteRepo.Edges(ctx, course.OrganizationID)
		if err != nil {
			return fmt.Errorf("load prerequisite graph: %w", err)
		}
		if createsCycle(edges, courseID, prereq.ID) {
			return util.BadRequestf("prerequisite %q would create a cycle", prereq.Title)
		}

		link = &model.CoursePrerequisite{
			CourseID:             courseID,
			PrerequisiteCourseID: prereq.ID,
			IsMandatory:          req.IsMandatory,
		}
		if err := txs.PrerequisiteRepo.Create(ctx, link); err != nil {
			if isDuplicate(err) {
				return util.Conflictf("prerequisite already exists")
			}
			return fmt.Errorf("create prerequisite: %w", err)
		}
		link.PrerequisiteCourse = prereq
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("prerequisite added",
		zap.Uint("course_id", courseID),
		zap.Uint("prerequisite_course_id", req.PrerequisiteCourseID),
		zap.Bool("mandatory", req.IsMandatory),
		zap.Uint("by", caller.UserID))
	return link, nil
}

// createsCycle 新增 course -> prereq 边后，如果从 prereq 出发能回到 course 就成环
func createsCycle(edges map[uint][]uint, courseID, prereqID uint) bool {
	visited := make(map[uint]bool)
	stack := []uint{prereqID}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == courseID {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, edges[n]...)
	}
	return false
}

func (s *PrerequisiteService) RemovePrerequisite(ctx context.Context, caller model.Caller, courseID, prerequisiteCourseID uint) error {
	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return lookupErr(err, "course")
	}
	if !caller.CanManageCourse(course) {
		return util.Forbiddenf("not allowed to manage course %d", courseID)
	}
	n, err := s.PrerequisiteRepo.Delete(ctx, courseID, prerequisiteCourseID)
	if err != nil {
		return fmt.Errorf("delete prerequisite: %w", err)
	}
	if n == 0 {
		return util.NotFoundf("prerequisite not found")
	}
	logger.Log.Info("prerequisite removed",
		zap.Uint("course_id", courseID),
		zap.Uint("prerequisite_course_id", prerequisiteCourseID),
		zap.Uint("by", caller.UserID))
	return nil
}

// PrerequisiteView Satisfied 只对学员返回
type PrerequisiteView struct {
	model.CoursePrerequisite
	Satisfied *bool `json:"satisfied,omitempty"`
}

func (s *PrerequisiteService) ListPrerequisites(ctx context.Context, caller model.Caller, courseID uint) ([]PrerequisiteView, error) {
	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, lookupErr(err, "course")
	}
	if !caller.CanViewCourse(course) {
		return nil, util.Forbiddenf("not allowed to view course %d", courseID)
	}
	links, err := s.PrerequisiteRepo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list prerequisites: %w", err)
	}

	var done map[uint]bool
	if caller.IsTrainee() {
		ids := make([]uint, 0, len(links))
		for _, l := range links {
			ids = append(ids, l.PrerequisiteCourseID)
		}
		if done, err = s.EnrollmentRepo.CompletedCourseIDs(ctx, caller.UserID, ids); err != nil {
			return nil, fmt.Errorf("load completed courses: %w", err)
		}
	}

	views := make([]PrerequisiteView, 0, len(links))
	for _, l := range links {
		v := PrerequisiteView{CoursePrerequisite: l}
		if done != nil {
			ok := done[l.PrerequisiteCourseID]
			v.Satisfied = &ok
		}
		views = append(views, v)
	}
	return views, nil
}
