package service

import (
	"context"
	"testing"

	"lms_backend/internal/model"
	"lms_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedRow(moduleID uint, contentID *uint) model.Progress {
	return model.Progress{ModuleID: moduleID, ContentID: contentID, Status: model.ProgressCompleted}
}

func uintPtr(v uint) *uint { return &v }

func TestComputeRollup(t *testing.T) {
	modules := []model.Module{
		{BaseModel: model.BaseModel{ID: 1}, Contents: []model.Content{
			{BaseModel: model.BaseModel{ID: 11}, IsRequired: true},
			{BaseModel: model.BaseModel{ID: 12}, IsRequired: true},
			{BaseModel: model.BaseModel{ID: 13}},
		}},
		{BaseModel: model.BaseModel{ID: 2}, Contents: []model.Content{
			{BaseModel: model.BaseModel{ID: 21}, IsRequired: true},
			{BaseModel: model.BaseModel{ID: 22}, IsRequired: true},
		}},
	}

	tests := []struct {
		name   string
		ledger []model.Progress
		want   float64
		full   bool
	}{
		{"empty", nil, 0, false},
		{"optional content only", []model.Progress{completedRow(1, uintPtr(13))}, 0, false},
		{"one required content", []model.Progress{completedRow(1, uintPtr(11))}, 7.5, false},
		{"first module done", []model.Progress{
			completedRow(1, uintPtr(11)), completedRow(1, uintPtr(12)), completedRow(1, nil),
		}, 50, false},
		{"in progress rows ignored", []model.Progress{
			{ModuleID: 1, ContentID: uintPtr(11), Status: model.ProgressInProgress},
			{ModuleID: 1, Status: model.ProgressInProgress},
		}, 0, false},
		{"everything", []model.Progress{
			completedRow(1, uintPtr(11)), completedRow(1, uintPtr(12)), completedRow(1, nil),
			completedRow(2, uintPtr(21)), completedRow(2, uintPtr(22)), completedRow(2, nil),
		}, 100, true},
		{"modules without content", []model.Progress{completedRow(1, nil), completedRow(2, nil)}, 70, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ComputeRollup(modules, tt.ledger)
			assert.Equal(t, tt.want, r.Percentage)
			assert.Equal(t, tt.full, r.IsFull())
			assert.GreaterOrEqual(t, r.Percentage, float64(0))
			assert.LessOrEqual(t, r.Percentage, float64(100))
			assert.Equal(t, r.Percentage == 100, r.IsFull())
		})
	}
}

func TestComputeRollup_NoModules(t *testing.T) {
	r := ComputeRollup(nil, nil)
	assert.Zero(t, r.Percentage)
	assert.False(t, r.IsFull())
}

func TestComputeRollup_NoRequiredContentCapsAt70(t *testing.T) {
	modules := []model.Module{{BaseModel: model.BaseModel{ID: 1}}}
	r := ComputeRollup(modules, []model.Progress{completedRow(1, nil)})
	assert.Equal(t, float64(70), r.Percentage)
}

func TestComputeRollup_RoundingNeverReportsFull(t *testing.T) {
	var modules []model.Module
	var ledger []model.Progress
	for i := uint(1); i <= 20000; i++ {
		modules = append(modules, model.Module{BaseModel: model.BaseModel{ID: i}, Contents: []model.Content{
			{BaseModel: model.BaseModel{ID: 100000 + i}, IsRequired: true},
		}})
		ledger = append(ledger, completedRow(i, uintPtr(100000+i)))
		if i > 1 {
			ledger = append(ledger, completedRow(i, nil))
		}
	}
	r := ComputeRollup(modules, ledger)
	assert.False(t, r.IsFull())
	assert.Less(t, r.Percentage, float64(100))
}

func TestCompleteContent_AutoCompletesModule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Single")
	m := env.module(t, course.ID, 1, true)
	e := env.enroll(t, alice, course.ID)

	res, err := env.enrollments.CompleteContent(ctx, alice, e.ID, CompleteContentRequest{ModuleID: m.ID, ContentID: m.Contents[0].ID, TimeSpent: 60})
	require.NoError(t, err)
	assert.Equal(t, model.ProgressCompleted, res.Progress.Status)

	var rows []model.Progress
	require.NoError(t, env.db.Where("enrollment_id = ?", e.ID).Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.False(t, rows[0].Key().IsModuleLevel())
	assert.True(t, rows[1].Key().IsModuleLevel())
	for _, row := range rows {
		assert.Equal(t, model.ProgressCompleted, row.Status)
		assert.NotNil(t, row.CompletedAt)
	}

	assert.Equal(t, float64(100), res.Enrollment.ProgressPercentage)
	assert.Equal(t, model.EnrollmentCompleted, res.Enrollment.Status)
	require.Len(t, env.events.Events(), 1)
	assert.Equal(t, EventEnrollmentCompleted, env.events.Events()[0].Type)
}

func TestCheckModuleCompletion_SetEquality(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Sets")
	m := env.module(t, course.ID, 1, true, false, true)
	empty := env.module(t, course.ID, 2)
	e := env.enroll(t, alice, course.ID)

	// 逆序完成必修内容，选修内容不影响
	_, err := env.progress.CompleteContent(ctx, e.ID, m.ID, m.Contents[2].ID, 0)
	require.NoError(t, err)
	_, err = env.progress.CompleteContent(ctx, e.ID, m.ID, m.Contents[1].ID, 0)
	require.NoError(t, err)
	_, err = env.progress.FindModuleRow(ctx, e.ID, m.ID)
	assert.ErrorIs(t, err, util.ErrNotFound)

	_, err = env.progress.CompleteContent(ctx, e.ID, m.ID, m.Contents[0].ID, 0)
	require.NoError(t, err)
	row, err := env.progress.FindModuleRow(ctx, e.ID, m.ID)
	require.NoError(t, err)
	assert.True(t, row.IsCompleted())

	done, err := env.progress.CheckModuleCompletion(ctx, e.ID, empty.ID)
	require.NoError(t, err)
	assert.True(t, done, "module without required content completes immediately")
}

func TestRecordProgress_Ledger(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Ledger")
	m := env.module(t, course.ID, 1, true, true)
	e := env.enroll(t, alice, course.ID)
	contentID := m.Contents[0].ID

	first, err := env.enrollments.RecordProgress(ctx, alice, e.ID, RecordProgressRequest{
		ModuleID: m.ID, ContentID: &contentID, Status: model.ProgressInProgress, Percentage: 40, TimeSpent: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, 30, first.Progress.TimeSpent)
	require.NotNil(t, first.Progress.StartedAt)
	startedAt := *first.Progress.StartedAt

	second, err := env.enrollments.RecordProgress(ctx, alice, e.ID, RecordProgressRequest{
		ModuleID: m.ID, ContentID: &contentID, Status: model.ProgressCompleted, Percentage: 100, TimeSpent: 45,
	})
	require.NoError(t, err)
	assert.Equal(t, 75, second.Progress.TimeSpent)
	assert.True(t, startedAt.Equal(*second.Progress.StartedAt))
	require.NotNil(t, second.Progress.CompletedAt)
	completedAt := *second.Progress.CompletedAt
	assert.Equal(t, second.Progress.ID, first.Progress.ID)

	// 已完成不会回退
	third, err := env.enrollments.RecordProgress(ctx, alice, e.ID, RecordProgressRequest{
		ModuleID: m.ID, ContentID: &contentID, Status: model.ProgressInProgress, Percentage: 10, TimeSpent: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProgressCompleted, third.Progress.Status)
	assert.Equal(t, float64(100), third.Progress.ProgressPercentage)
	assert.Equal(t, 80, third.Progress.TimeSpent)
	assert.True(t, completedAt.Equal(*third.Progress.CompletedAt))

	// 1/2 必修内容 -> 15%
	assert.Equal(t, 15.0, third.Enrollment.ProgressPercentage)
	assert.Equal(t, model.EnrollmentInProgress, third.Enrollment.Status)
}

func TestRecordProgress_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Main")
	m := env.module(t, course.ID, 1, true)
	other := env.course(t, "Elsewhere")
	om := env.module(t, other.ID, 1, true)
	e := env.enroll(t, alice, course.ID)

	_, err := env.enrollments.RecordProgress(ctx, alice, e.ID, RecordProgressRequest{ModuleID: om.ID, Status: model.ProgressInProgress})
	assert.ErrorIs(t, err, util.ErrBadRequest, "module from another course")

	foreignContent := om.Contents[0].ID
	_, err = env.enrollments.RecordProgress(ctx, alice, e.ID, RecordProgressRequest{ModuleID: m.ID, ContentID: &foreignContent, Status: model.ProgressInProgress})
	assert.ErrorIs(t, err, util.ErrBadRequest, "content from another module")

	_, err = env.enrollments.RecordProgress(ctx, alice, e.ID, RecordProgressRequest{ModuleID: m.ID, Status: "paused"})
	assert.ErrorIs(t, err, util.ErrBadRequest)

	_, err = env.enrollments.RecordProgress(ctx, alice, e.ID, RecordProgressRequest{ModuleID: m.ID, Status: model.ProgressInProgress, TimeSpent: -1})
	assert.ErrorIs(t, err, util.ErrBadRequest)

	_, err = env.enrollments.RecordProgress(ctx, bob, e.ID, RecordProgressRequest{ModuleID: m.ID, Status: model.ProgressInProgress})
	assert.ErrorIs(t, err, util.ErrForbidden)

	_, err = env.enrollments.RecordProgress(ctx, alice, e.ID, RecordProgressRequest{ModuleID: 999, Status: model.ProgressInProgress})
	assert.ErrorIs(t, err, util.ErrNotFound)

	_, err = env.enrollments.Drop(ctx, alice, e.ID)
	require.NoError(t, err)
	_, err = env.enrollments.RecordProgress(ctx, alice, e.ID, RecordProgressRequest{ModuleID: m.ID, Status: model.ProgressInProgress})
	assert.ErrorIs(t, err, util.ErrBadRequest, "dropped enrollment")
}

func TestProgressSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Summary")
	m1 := env.module(t, course.ID, 1, true)
	m2 := env.module(t, course.ID, 2, true, true)
	e := env.enroll(t, alice, course.ID)

	_, err := env.enrollments.CompleteContent(ctx, alice, e.ID, CompleteContentRequest{ModuleID: m1.ID, ContentID: m1.Contents[0].ID, TimeSpent: 20})
	require.NoError(t, err)

	summary, err := env.enrollments.GetProgressSummary(ctx, alice, e.ID)
	require.NoError(t, err)
	require.Len(t, summary.Modules, 2)
	assert.True(t, summary.Modules[0].Completed)
	assert.Equal(t, 20, summary.Modules[0].TimeSpent)
	assert.False(t, summary.Modules[1].Completed)
	assert.Equal(t, m2.ID, summary.Modules[1].ModuleID)
	assert.Equal(t, 2, summary.Modules[1].RequiredContent)
	// 1/2 模块 * 0.7 + 1/3 内容 * 0.3
	assert.Equal(t, 45.0, summary.Rollup.Percentage)
	assert.Equal(t, summary.Rollup.Percentage, summary.ProgressPercentage)

	_, err = env.enrollments.GetProgressSummary(ctx, bob, e.ID)
	assert.ErrorIs(t, err, util.ErrForbidden)
}

func TestCalculateProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Recalc")
	m := env.module(t, course.ID, 1)
	e := env.enroll(t, alice, course.ID)

	// 直接写台账，再由重算推导状态
	_, err := env.progress.Record(ctx, e.ID, model.ModuleLevel(m.ID), ProgressUpdate{Status: model.ProgressCompleted})
	require.NoError(t, err)

	res, err := env.enrollments.CalculateProgress(ctx, instructor, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 70.0, res.Rollup.Percentage)
	assert.Equal(t, model.EnrollmentInProgress, res.Enrollment.Status)

	_, err = env.enrollments.CalculateProgress(ctx, bob, e.ID)
	assert.ErrorIs(t, err, util.ErrForbidden)
}

func TestRecordProgress_ModuleCompletionRequiresContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Gated")
	m := env.module(t, course.ID, 1, true, true)
	e := env.enroll(t, alice, course.ID)

	_, err := env.enrollments.RecordProgress(ctx, alice, e.ID, RecordProgressRequest{ModuleID: m.ID, Status: model.ProgressCompleted})
	assert.ErrorIs(t, err, util.ErrBadRequest)

	_, err = env.progress.FindModuleRow(ctx, e.ID, m.ID)
	assert.ErrorIs(t, err, util.ErrNotFound)
	got, err := env.enrollments.GetEnrollment(ctx, alice, e.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ProgressPercentage)
	assert.Equal(t, model.EnrollmentEnrolled, got.Status)

	// 模块级的非完成状态仍然可以记录
	res, err := env.enrollments.RecordProgress(ctx, alice, e.ID, RecordProgressRequest{ModuleID: m.ID, Status: model.ProgressInProgress, TimeSpent: 10})
	require.NoError(t, err)
	assert.Zero(t, res.Enrollment.ProgressPercentage)

	for _, c := range m.Contents {
		contentID := c.ID
		_, err = env.enrollments.RecordProgress(ctx, alice, e.ID, RecordProgressRequest{ModuleID: m.ID, ContentID: &contentID, Status: model.ProgressCompleted})
		require.NoError(t, err)
	}
	res, err = env.enrollments.RecordProgress(ctx, alice, e.ID, RecordProgressRequest{ModuleID: m.ID, Status: model.ProgressCompleted})
	require.NoError(t, err)
	assert.Equal(t, float64(100), res.Enrollment.ProgressPercentage)
}

func TestCheckModuleCompletion_DoesNotRewriteCompletedModule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Once")
	m := env.module(t, course.ID, 1, true, false)
	e := env.enroll(t, alice, course.ID)

	_, err := env.progress.CompleteContent(ctx, e.ID, m.ID, m.Contents[0].ID, 0)
	require.NoError(t, err)
	before, err := env.progress.FindModuleRow(ctx, e.ID, m.ID)
	require.NoError(t, err)

	_, err = env.progress.CompleteContent(ctx, e.ID, m.ID, m.Contents[1].ID, 0)
	require.NoError(t, err)
	after, err := env.progress.FindModuleRow(ctx, e.ID, m.ID)
	require.NoError(t, err)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))

	done, err := env.progress.CheckModuleCompletion(ctx, e.ID, m.ID)
	require.NoError(t, err)
	assert.True(t, done)
}
