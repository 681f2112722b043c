package service

import (
	"context"
	"testing"

	"lms_backend/internal/config"
	"lms_backend/internal/model"
	"lms_backend/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testOrg = 1

var (
	admin      = model.Caller{UserID: 1, Role: model.Admin, OrganizationID: testOrg}
	instructor = model.Caller{UserID: 2, Role: model.Instructor, OrganizationID: testOrg}
	alice      = model.Caller{UserID: 100, Role: model.Trainee, OrganizationID: testOrg}
	bob        = model.Caller{UserID: 101, Role: model.Trainee, OrganizationID: testOrg}
)

type testEnv struct {
	db            *gorm.DB
	events        *MemoryPublisher
	prerequisites *PrerequisiteService
	progress      *ProgressService
	enrollments   *EnrollmentService
	assessments   *AssessmentService
	assignments   *AssignmentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenTestDB()
	require.NoError(t, err)

	events := NewMemoryPublisher()
	prerequisites := NewPrerequisiteService(db)
	progress := NewProgressService(db)
	enrollments := NewEnrollmentService(db, prerequisites, progress, events)
	storage := NewStorageService(&config.StorageConfig{Type: "local", PublicBaseURL: "http://files.test"})
	return &testEnv{
		db:            db,
		events:        events,
		prerequisites: prerequisites,
		progress:      progress,
		enrollments:   enrollments,
		assessments:   NewAssessmentService(db, enrollments, events),
		assignments:   NewAssignmentService(db, enrollments, storage),
	}
}

func (env *testEnv) course(t *testing.T, title string, mutate ...func(*model.Course)) *model.Course {
	t.Helper()
	c := &model.Course{
		OrganizationID: testOrg,
		InstructorID:   instructor.UserID,
		Title:          title,
		Status:         model.CoursePublished,
	}
	for _, m := range mutate {
		m(c)
	}
	require.NoError(t, env.db.Create(c).Error)
	return c
}

// module 创建模块，required 为每个内容的必修标记
func (env *testEnv) module(t *testing.T, courseID uint, order int, required ...bool) *model.Module {
	t.Helper()
	m := &model.Module{CourseID: courseID, Title: "module", Order: order, IsRequired: true}
	require.NoError(t, env.db.Create(m).Error)
	for i, r := range required {
		c := model.Content{
			ModuleID:    m.ID,
			Title:       "content",
			Order:       i + 1,
			IsRequired:  r,
			ContentType: model.ContentText,
		}
		require.NoError(t, env.db.Create(&c).Error)
		m.Contents = append(m.Contents, c)
	}
	return m
}

func (env *testEnv) enroll(t *testing.T, caller model.Caller, courseID uint) *model.Enrollment {
	t.Helper()
	e, err := env.enrollments.Enroll(context.Background(), caller, EnrollRequest{CourseID: courseID})
	require.NoError(t, err)
	return e
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
