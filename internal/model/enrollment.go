package model

import "time"

type EnrollmentStatus string

const (
	EnrollmentEnrolled   EnrollmentStatus = "enrolled"
	EnrollmentInProgress EnrollmentStatus = "in_progress"
	EnrollmentCompleted  EnrollmentStatus = "completed"
	EnrollmentDropped    EnrollmentStatus = "dropped"
)

// IsActive dropped 之外的状态都占用名额
func (s EnrollmentStatus) IsActive() bool {
	return s != EnrollmentDropped
}

// swagger:model Enrollment
type Enrollment struct {
	BaseModel
	TraineeID          uint             `gorm:"uniqueIndex:idx_enrollment_trainee_course;not null" json:"traineeId"`
	CourseID           uint             `gorm:"uniqueIndex:idx_enrollment_trainee_course;index;not null" json:"courseId"`
	Status             EnrollmentStatus `gorm:"size:20;index;not null" json:"status"`
	ProgressPercentage float64          `gorm:"default:0" json:"progressPercentage"`
	StartedAt          *time.Time       `json:"startedAt"`
	CompletedAt        *time.Time       `json:"completedAt"`
	DroppedAt          *time.Time       `json:"droppedAt,omitempty"`
	DueDate            *time.Time       `json:"dueDate,omitempty"`
	Course             *Course          `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}
