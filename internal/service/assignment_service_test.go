package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"lms_backend/internal/model"
	"lms_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (env *testEnv) assignment(t *testing.T, courseID uint, mutate ...func(*model.Assignment)) *model.Assignment {
	t.Helper()
	a := &model.Assignment{CourseID: courseID, Title: "essay", MaxScore: 20}
	for _, m := range mutate {
		m(a)
	}
	require.NoError(t, env.db.Create(a).Error)
	return a
}

func TestSubmitAssignment_Once(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Writing")
	a := env.assignment(t, course.ID)
	e := env.enroll(t, alice, course.ID)

	sub, err := env.assignments.Submit(ctx, alice, a.ID, SubmitAssignmentRequest{
		EnrollmentID: e.ID,
		Content:      "my essay",
		Attachments:  []string{"https://files.test/essay.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionSubmitted, sub.Status)
	assert.False(t, sub.IsLate)

	_, err = env.assignments.Submit(ctx, alice, a.ID, SubmitAssignmentRequest{EnrollmentID: e.ID, Content: "different"})
	assert.ErrorIs(t, err, util.ErrConflict)
}

func TestSubmitAssignment_LateIsAccepted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Writing")
	past := time.Now().Add(-time.Hour)
	a := env.assignment(t, course.ID, func(a *model.Assignment) { a.DueDate = &past })
	e := env.enroll(t, alice, course.ID)

	sub, err := env.assignments.Submit(ctx, alice, a.ID, SubmitAssignmentRequest{EnrollmentID: e.ID, Content: "sorry"})
	require.NoError(t, err)
	assert.True(t, sub.IsLate)
}

func TestSubmitAssignment_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Writing")
	a := env.assignment(t, course.ID)
	e := env.enroll(t, alice, course.ID)

	_, err := env.assignments.Submit(ctx, alice, a.ID, SubmitAssignmentRequest{EnrollmentID: e.ID})
	assert.ErrorIs(t, err, util.ErrBadRequest, "empty submission")

	_, err = env.assignments.Submit(ctx, alice, a.ID, SubmitAssignmentRequest{EnrollmentID: e.ID, Attachments: []string{"ftp://x/y"}})
	assert.ErrorIs(t, err, util.ErrBadRequest, "bad attachment")

	_, err = env.assignments.Submit(ctx, bob, a.ID, SubmitAssignmentRequest{EnrollmentID: e.ID, Content: "x"})
	assert.ErrorIs(t, err, util.ErrForbidden)
}

func TestGradeSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Writing")
	a := env.assignment(t, course.ID)
	e := env.enroll(t, alice, course.ID)
	sub, err := env.assignments.Submit(ctx, alice, a.ID, SubmitAssignmentRequest{EnrollmentID: e.ID, Content: "essay"})
	require.NoError(t, err)

	_, err = env.assignments.Grade(ctx, instructor, sub.ID, GradeSubmissionRequest{Score: floatPtr(21)})
	assert.ErrorIs(t, err, util.ErrBadRequest)
	_, err = env.assignments.Grade(ctx, instructor, sub.ID, GradeSubmissionRequest{Score: floatPtr(-1)})
	assert.ErrorIs(t, err, util.ErrBadRequest)
	_, err = env.assignments.Grade(ctx, instructor, sub.ID, GradeSubmissionRequest{Score: floatPtr(5), Status: model.SubmissionSubmitted})
	assert.ErrorIs(t, err, util.ErrBadRequest)
	_, err = env.assignments.Grade(ctx, alice, sub.ID, GradeSubmissionRequest{Score: floatPtr(5)})
	assert.ErrorIs(t, err, util.ErrForbidden)

	graded, err := env.assignments.Grade(ctx, instructor, sub.ID, GradeSubmissionRequest{Score: floatPtr(20), Feedback: "great"})
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionGraded, graded.Status)
	require.NotNil(t, graded.GradedBy)
	assert.Equal(t, instructor.UserID, *graded.GradedBy)

	regraded, err := env.assignments.Grade(ctx, admin, sub.ID, GradeSubmissionRequest{Score: floatPtr(12), Feedback: "revise", Status: model.SubmissionReturned})
	require.NoError(t, err)
	assert.Equal(t, admin.UserID, *regraded.GradedBy)

	mine, err := env.assignments.GetMySubmission(ctx, alice, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionReturned, mine.Status)
	assert.Equal(t, 12.0, *mine.Score)
	assert.Equal(t, "revise", mine.Feedback)
}

func TestGradeSubmission_CompletesLinkedContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Project")
	m := env.module(t, course.ID, 1, true)
	contentID := m.Contents[0].ID
	a := env.assignment(t, course.ID, func(a *model.Assignment) { a.ContentID = &contentID })
	e := env.enroll(t, alice, course.ID)

	sub, err := env.assignments.Submit(ctx, alice, a.ID, SubmitAssignmentRequest{EnrollmentID: e.ID, Content: "done"})
	require.NoError(t, err)
	_, err = env.assignments.Grade(ctx, instructor, sub.ID, GradeSubmissionRequest{Score: floatPtr(18)})
	require.NoError(t, err)

	got, err := env.enrollments.GetEnrollment(ctx, alice, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentCompleted, got.Status)
	assert.Equal(t, float64(100), got.ProgressPercentage)
	require.Len(t, env.events.Events(), 1)
}

func TestListSubmissionsAndUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Writing")
	a := env.assignment(t, course.ID)
	ea := env.enroll(t, alice, course.ID)
	eb := env.enroll(t, bob, course.ID)
	for _, s := range []struct {
		caller model.Caller
		id     uint
	}{{alice, ea.ID}, {bob, eb.ID}} {
		_, err := env.assignments.Submit(ctx, s.caller, a.ID, SubmitAssignmentRequest{EnrollmentID: s.id, Content: "x"})
		require.NoError(t, err)
	}

	subs, page, err := env.assignments.ListSubmissions(ctx, instructor, a.ID, util.NewPageQuery(1, 10))
	require.NoError(t, err)
	assert.Len(t, subs, 2)
	assert.Equal(t, int64(2), page.Total)

	_, _, err = env.assignments.ListSubmissions(ctx, alice, a.ID, util.NewPageQuery(1, 10))
	assert.ErrorIs(t, err, util.ErrForbidden)

	ticket, err := env.assignments.RequestAttachmentUpload(ctx, alice, a.ID, AttachmentUploadRequest{FileName: "Report.PDF", ContentType: "application/pdf"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ticket.FileURL, "http://files.test/uploads/assignments/"))
	assert.True(t, strings.HasSuffix(ticket.Key, ".pdf"))
	assert.Equal(t, ticket.FileURL, ticket.UploadURL)

	_, err = env.assignments.RequestAttachmentUpload(ctx, alice, a.ID, AttachmentUploadRequest{FileName: "clip.exe"})
	assert.ErrorIs(t, err, util.ErrBadRequest)

	outsider := model.Caller{UserID: 300, Role: model.Trainee, OrganizationID: testOrg}
	_, err = env.assignments.RequestAttachmentUpload(ctx, outsider, a.ID, AttachmentUploadRequest{FileName: "a.pdf"})
	assert.ErrorIs(t, err, util.ErrForbidden)
}
