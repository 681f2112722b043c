package service

import (
	"context"
	"encoding/json"
	"testing"

	"lms_backend/internal/model"
	"lms_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func question(id uint, typ model.QuestionType, correct string, points *int) model.AssessmentQuestion {
	return model.AssessmentQuestion{
		BaseModel:      model.BaseModel{ID: id},
		QuestionType:   typ,
		Options:        datatypes.JSONSlice[string]{"a", "b", "c", "d"},
		CorrectAnswers: datatypes.JSON(correct),
		Points:         points,
	}
}

func TestIsCorrect(t *testing.T) {
	tests := []struct {
		name    string
		typ     model.QuestionType
		correct string
		answer  string
		want    bool
	}{
		{"choice bare index", model.QuestionMultipleChoice, `1`, `1`, true},
		{"choice array correct", model.QuestionMultipleChoice, `[1]`, `1`, true},
		{"choice array answer", model.QuestionMultipleChoice, `2`, `[2]`, true},
		{"choice wrong", model.QuestionMultipleChoice, `1`, `0`, false},
		{"choice two answers", model.QuestionMultipleChoice, `1`, `[1,2]`, false},
		{"choice garbage", model.QuestionMultipleChoice, `1`, `"b"`, false},
		{"true-false", model.QuestionTrueFalse, `0`, `0`, true},
		{"true-false wrong", model.QuestionTrueFalse, `[0]`, `[1]`, false},
		{"select order independent", model.QuestionMultipleSelect, `[0,1]`, `[1,0]`, true},
		{"select duplicates collapse", model.QuestionMultipleSelect, `[0,1]`, `[1,0,1]`, true},
		{"select subset", model.QuestionMultipleSelect, `[0,1]`, `[0]`, false},
		{"select superset", model.QuestionMultipleSelect, `[0,1]`, `[0,1,2]`, false},
		{"select empty", model.QuestionMultipleSelect, `[0,1]`, `[]`, false},
		{"select single correct", model.QuestionMultipleSelect, `2`, `[2]`, true},
		{"unknown type", "essay", `0`, `0`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := question(1, tt.typ, tt.correct, nil)
			assert.Equal(t, tt.want, IsCorrect(&q, json.RawMessage(tt.answer)))
		})
	}
}

func TestGradeAttempt(t *testing.T) {
	a := &model.Assessment{
		PassingScore: 70,
		Questions: []model.AssessmentQuestion{
			question(1, model.QuestionMultipleChoice, `1`, nil),
			question(2, model.QuestionMultipleSelect, `[0,1]`, nil),
		},
	}

	r := GradeAttempt(a, map[uint]json.RawMessage{1: json.RawMessage(`1`), 2: json.RawMessage(`[0]`)})
	assert.Equal(t, GradeResult{EarnedPoints: 10, TotalPoints: 20, Score: 50, IsPassed: false}, r)

	r = GradeAttempt(a, map[uint]json.RawMessage{1: json.RawMessage(`1`), 2: json.RawMessage(`[1,0]`)})
	assert.Equal(t, float64(100), r.Score)
	assert.True(t, r.IsPassed)

	// 未作答也计入总分，未知题目忽略
	r = GradeAttempt(a, map[uint]json.RawMessage{99: json.RawMessage(`1`)})
	assert.Equal(t, 20, r.TotalPoints)
	assert.Zero(t, r.EarnedPoints)

	weighted := &model.Assessment{
		PassingScore: 60,
		Questions: []model.AssessmentQuestion{
			question(1, model.QuestionTrueFalse, `0`, intPtr(1)),
			question(2, model.QuestionTrueFalse, `1`, intPtr(2)),
		},
	}
	r = GradeAttempt(weighted, map[uint]json.RawMessage{2: json.RawMessage(`1`)})
	assert.Equal(t, 66.67, r.Score)
	assert.True(t, r.IsPassed)

	assert.Equal(t, GradeResult{IsPassed: true}, GradeAttempt(&model.Assessment{}, nil))

	// 69.997 存储为 70，但没有达到 70 分
	boundary := &model.Assessment{
		PassingScore: 70,
		Questions: []model.AssessmentQuestion{
			question(1, model.QuestionTrueFalse, `1`, intPtr(6999)),
			question(2, model.QuestionTrueFalse, `1`, intPtr(3000)),
		},
	}
	r = GradeAttempt(boundary, map[uint]json.RawMessage{1: json.RawMessage(`1`)})
	assert.Equal(t, 70.0, r.Score)
	assert.False(t, r.IsPassed)
}

func (env *testEnv) assessment(t *testing.T, courseID uint, mutate ...func(*model.Assessment)) *model.Assessment {
	t.Helper()
	a := &model.Assessment{
		CourseID:     courseID,
		Title:        "quiz",
		PassingScore: 70,
		Questions: []model.AssessmentQuestion{
			{Order: 1, QuestionType: model.QuestionMultipleChoice, Prompt: "q1", Options: datatypes.JSONSlice[string]{"a", "b"}, CorrectAnswers: datatypes.JSON(`1`), Explanation: "because"},
			{Order: 2, QuestionType: model.QuestionMultipleSelect, Prompt: "q2", Options: datatypes.JSONSlice[string]{"a", "b", "c"}, CorrectAnswers: datatypes.JSON(`[0,2]`)},
		},
	}
	for _, m := range mutate {
		m(a)
	}
	require.NoError(t, env.db.Create(a).Error)
	return a
}

func answers(a *model.Assessment, first, second string) map[uint]json.RawMessage {
	return map[uint]json.RawMessage{
		a.Questions[0].ID: json.RawMessage(first),
		a.Questions[1].ID: json.RawMessage(second),
	}
}

func TestSubmitAttempt_ScoresAndNumbers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Quiz")
	a := env.assessment(t, course.ID, func(a *model.Assessment) { a.MaxAttempts = intPtr(2) })
	e := env.enroll(t, alice, course.ID)

	req := SubmitAttemptRequest{EnrollmentID: e.ID, Answers: answers(a, `1`, `[0,1]`)}
	first, err := env.assessments.Submit(ctx, alice, a.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 1, first.AttemptNumber)
	assert.Equal(t, float64(50), first.Score)
	assert.False(t, first.IsPassed)

	second, err := env.assessments.Submit(ctx, alice, a.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptNumber)
	assert.Equal(t, first.Score, second.Score)

	_, err = env.assessments.Submit(ctx, alice, a.ID, req)
	require.ErrorIs(t, err, util.ErrBadRequest)
	assert.Contains(t, err.Error(), "max attempts reached")
	assert.Empty(t, env.events.Events())
}

func TestSubmitAttempt_UnlimitedAndPassed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Quiz")
	a := env.assessment(t, course.ID, func(a *model.Assessment) { a.TimeLimit = 1 })
	e := env.enroll(t, alice, course.ID)

	for i := 1; i <= 3; i++ {
		attempt, err := env.assessments.Submit(ctx, alice, a.ID, SubmitAttemptRequest{
			EnrollmentID: e.ID,
			Answers:      answers(a, `[1]`, `[2,0]`),
			TimeTaken:    intPtr(90),
		})
		require.NoError(t, err)
		assert.Equal(t, i, attempt.AttemptNumber)
		assert.True(t, attempt.IsPassed)
		assert.True(t, attempt.IsOverTime)
	}

	events := env.events.Events()
	require.Len(t, events, 3)
	assert.Equal(t, EventAssessmentPassed, events[0].Type)
	assert.Equal(t, course.ID, events[0].CourseID)
}

func TestSubmitAttempt_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Quiz")
	other := env.course(t, "Other")
	a := env.assessment(t, course.ID)
	e := env.enroll(t, alice, course.ID)
	eOther := env.enroll(t, alice, other.ID)

	_, err := env.assessments.Submit(ctx, bob, a.ID, SubmitAttemptRequest{EnrollmentID: e.ID})
	assert.ErrorIs(t, err, util.ErrForbidden)

	_, err = env.assessments.Submit(ctx, alice, a.ID, SubmitAttemptRequest{EnrollmentID: eOther.ID})
	assert.ErrorIs(t, err, util.ErrBadRequest)

	_, err = env.assessments.Submit(ctx, alice, 404, SubmitAttemptRequest{EnrollmentID: e.ID})
	assert.ErrorIs(t, err, util.ErrNotFound)

	_, err = env.assessments.Submit(ctx, alice, a.ID, SubmitAttemptRequest{EnrollmentID: e.ID, TimeTaken: intPtr(-5)})
	assert.ErrorIs(t, err, util.ErrBadRequest)
}

func TestGetAssessment_StripsAnswersForTrainees(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Quiz")
	a := env.assessment(t, course.ID)

	view, err := env.assessments.GetAssessment(ctx, alice, a.ID)
	require.NoError(t, err)
	require.Len(t, view.Questions, 2)
	for _, q := range view.Questions {
		assert.Empty(t, q.CorrectAnswers)
		assert.Empty(t, q.Explanation)
	}

	full, err := env.assessments.GetAssessment(ctx, instructor, a.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `1`, string(full.Questions[0].CorrectAnswers))
	assert.Equal(t, "because", full.Questions[0].Explanation)

	foreign := model.Caller{UserID: 500, Role: model.Trainee, OrganizationID: 9}
	_, err = env.assessments.GetAssessment(ctx, foreign, a.ID)
	assert.ErrorIs(t, err, util.ErrForbidden)
}

func TestListAndGetAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	course := env.course(t, "Quiz")
	a := env.assessment(t, course.ID)
	ea := env.enroll(t, alice, course.ID)
	eb := env.enroll(t, bob, course.ID)

	attempt, err := env.assessments.Submit(ctx, alice, a.ID, SubmitAttemptRequest{EnrollmentID: ea.ID, Answers: answers(a, `0`, `[0]`)})
	require.NoError(t, err)
	_, err = env.assessments.Submit(ctx, bob, a.ID, SubmitAttemptRequest{EnrollmentID: eb.ID})
	require.NoError(t, err)

	mine, page, err := env.assessments.ListAttempts(ctx, alice, a.ID, eb.ID, util.NewPageQuery(1, 10))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, ea.ID, mine[0].EnrollmentID)
	assert.Equal(t, int64(1), page.Total)

	all, _, err := env.assessments.ListAttempts(ctx, instructor, a.ID, 0, util.NewPageQuery(1, 10))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := env.assessments.GetAttempt(ctx, alice, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, attempt.Score, got.Score)

	_, err = env.assessments.GetAttempt(ctx, bob, attempt.ID)
	assert.ErrorIs(t, err, util.ErrForbidden)
}
