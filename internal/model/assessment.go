package model

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTrueFalse      QuestionType = "true-false"
	QuestionMultipleSelect QuestionType = "multiple-select"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionMultipleSelect:
		return true
	}
	return false
}

// swagger:model Assessment
type Assessment struct {
	BaseModel
	CourseID     uint                 `gorm:"index;not null" json:"courseId"`
	ModuleID     *uint                `gorm:"index" json:"moduleId,omitempty"`
	Title        string               `gorm:"size:255;not null" json:"title"`
	Description  string               `gorm:"type:text" json:"description"`
	PassingScore int                  `gorm:"not null" json:"passingScore"` // 0-100
	MaxAttempts  *int                 `json:"maxAttempts,omitempty"`        // nil 表示不限次数
	TimeLimit    int                  `gorm:"default:0" json:"timeLimit"`   // Minutes
	Questions    []AssessmentQuestion `gorm:"foreignKey:AssessmentID" json:"questions,omitempty"`
	Course       *Course              `gorm:"foreignKey:CourseID" json:"-"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// AssessmentQuestion CorrectAnswers 可以是单个下标 (0)、单元素数组 ([0]) 或下标集合 ([0,2])
// swagger:model AssessmentQuestion
type AssessmentQuestion struct {
	BaseModel
	AssessmentID   uint                        `gorm:"index;not null" json:"assessmentId"`
	Order          int                         `gorm:"column:sort_order" json:"order"`
	QuestionType   QuestionType                `gorm:"size:30;not null" json:"questionType"`
	Prompt         string                      `gorm:"type:text;not null" json:"prompt"`
	Options        datatypes.JSONSlice[string] `json:"options"`
	CorrectAnswers datatypes.JSON              `json:"correctAnswers,omitempty"`
	Points         *int                        `json:"points,omitempty"`
	Explanation    string                      `gorm:"type:text" json:"explanation,omitempty"`
}

func (AssessmentQuestion) TableName() string {
	return "assessment_questions"
}

// AssessmentAttempt 创建时评分，之后不再修改
// swagger:model AssessmentAttempt
type AssessmentAttempt struct {
	BaseModel
	AssessmentID  uint           `gorm:"uniqueIndex:idx_attempt_sequence;not null" json:"assessmentId"`
	EnrollmentID  uint           `gorm:"uniqueIndex:idx_attempt_sequence;index;not null" json:"enrollmentId"`
	AttemptNumber int            `gorm:"uniqueIndex:idx_attempt_sequence;not null" json:"attemptNumber"`
	Answers       datatypes.JSON `json:"answers"`
	EarnedPoints  int            `json:"earnedPoints"`
	TotalPoints   int            `json:"totalPoints"`
	Score         float64        `json:"score"` // 百分制
	IsPassed      bool           `json:"isPassed"`
	TimeTaken     *int           `json:"timeTaken,omitempty"` // 秒
	IsOverTime    bool           `json:"isOverTime"`
	SubmittedAt   time.Time      `json:"submittedAt"`
}

func (AssessmentAttempt) TableName() string {
	return "assessment_attempts"
}
