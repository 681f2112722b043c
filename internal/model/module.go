package model

// swagger:model Module
type Module struct {
	BaseModel
	CourseID    uint      `gorm:"uniqueIndex:idx_module_course_order;not null" json:"courseId"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Order       int       `gorm:"column:sort_order;uniqueIndex:idx_module_course_order" json:"order"`
	IsRequired  bool      `json:"isRequired"`
	Contents    []Content `gorm:"foreignKey:ModuleID" json:"contents,omitempty"`
}

func (Module) TableName() string {
	return "course_modules"
}

type ContentType string

const (
	ContentVideo      ContentType = "video"
	ContentDocument   ContentType = "document"
	ContentText       ContentType = "text"
	ContentLink       ContentType = "link"
	ContentAssignment ContentType = "assignment"
)

// swagger:model Content
type Content struct {
	BaseModel
	ModuleID    uint        `gorm:"index;not null" json:"moduleId"`
	Title       string      `gorm:"size:255;not null" json:"title"`
	Order       int         `gorm:"column:sort_order" json:"order"`
	IsRequired  bool        `json:"isRequired"`
	ContentType ContentType `gorm:"size:20;not null" json:"contentType"`
	URL         string      `gorm:"size:512" json:"url,omitempty"`
	Body        string      `gorm:"type:text" json:"body,omitempty"`
}

func (Content) TableName() string {
	return "module_contents"
}
