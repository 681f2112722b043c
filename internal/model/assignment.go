package model

import (
	"time"

	"gorm.io/datatypes"
)

type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionGraded    SubmissionStatus = "graded"
	SubmissionReturned  SubmissionStatus = "returned"
)

// swagger:model Assignment
type Assignment struct {
	BaseModel
	CourseID     uint       `gorm:"index;not null" json:"courseId"`
	ModuleID     *uint      `gorm:"index" json:"moduleId,omitempty"`
	ContentID    *uint      `gorm:"index" json:"contentId,omitempty"`
	Title        string     `gorm:"size:255;not null" json:"title"`
	Instructions string     `gorm:"type:text" json:"instructions"`
	MaxScore     float64    `gorm:"not null" json:"maxScore"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	Course       *Course    `gorm:"foreignKey:CourseID" json:"-"`
}

func (Assignment) TableName() string {
	return "assignments"
}

// IsLate 截止时间之后提交只做标记
func (a *Assignment) IsLate(at time.Time) bool {
	return a.DueDate != nil && at.After(*a.DueDate)
}

// AssignmentSubmission 每个 (assignment, enrollment) 只允许一条
// swagger:model AssignmentSubmission
type AssignmentSubmission struct {
	BaseModel
	AssignmentID uint                        `gorm:"uniqueIndex:idx_submission_once;not null" json:"assignmentId"`
	EnrollmentID uint                        `gorm:"uniqueIndex:idx_submission_once;index;not null" json:"enrollmentId"`
	Content      string                      `gorm:"type:text" json:"content"`
	Attachments  datatypes.JSONSlice[string] `json:"attachments"`
	Status       SubmissionStatus            `gorm:"size:20;not null" json:"status"`
	Score        *float64                    `json:"score,omitempty"`
	Feedback     string                      `gorm:"type:text" json:"feedback,omitempty"`
	GradedBy     *uint                       `json:"gradedBy,omitempty"`
	GradedAt     *time.Time                  `json:"gradedAt,omitempty"`
	SubmittedAt  time.Time                   `json:"submittedAt"`
	IsLate       bool                        `json:"isLate"`
}

func (AssignmentSubmission) TableName() string {
	return "assignment_submissions"
}
