package model

type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CoursePublished CourseStatus = "published"
	CourseArchived  CourseStatus = "archived"
)

// swagger:model Course
type Course struct {
	BaseModel
	OrganizationID uint                 `gorm:"index;not null" json:"organizationId"`
	InstructorID   uint                 `gorm:"index" json:"instructorId"`
	Title          string               `gorm:"size:255;not null" json:"title"`
	Description    string               `gorm:"type:text" json:"description"`
	Status         CourseStatus         `gorm:"size:20;default:'draft'" json:"status"`
	MaxEnrollments *int                 `json:"maxEnrollments,omitempty"` // nil 表示不限
	IsPublic       bool                 `json:"isPublic"`
	Modules        []Module             `gorm:"foreignKey:CourseID" json:"modules,omitempty"`
	Prerequisites  []CoursePrerequisite `gorm:"foreignKey:CourseID" json:"prerequisites,omitempty"`
}

func (Course) TableName() string {
	return "courses"
}

func (c *Course) IsPublished() bool {
	return c.Status == CoursePublished
}

// CoursePrerequisite 前置课程关系，只有 IsMandatory 的关系会阻止选课
// swagger:model CoursePrerequisite
type CoursePrerequisite struct {
	ID                   uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	CourseID             uint    `gorm:"uniqueIndex:idx_course_prerequisite;not null" json:"courseId"`
	PrerequisiteCourseID uint    `gorm:"uniqueIndex:idx_course_prerequisite;not null" json:"prerequisiteCourseId"`
	IsMandatory          bool    `json:"isMandatory"`
	PrerequisiteCourse   *Course `gorm:"foreignKey:PrerequisiteCourseID" json:"prerequisiteCourse,omitempty"`
}

func (CoursePrerequisite) TableName() string {
	return "course_prerequisites"
}

// CourseRef 对外暴露的课程引用
type CourseRef struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}
