package model

// UserRole 调用方角色，由身份层在 token 中下发
type UserRole string

const (
	Admin      UserRole = "admin"
	Instructor UserRole = "instructor"
	Trainee    UserRole = "trainee"
)

func (r UserRole) Valid() bool {
	switch r {
	case Admin, Instructor, Trainee:
		return true
	}
	return false
}

// IsPrivileged 管理员和讲师可以看到答案、批改作业
func (r UserRole) IsPrivileged() bool {
	return r == Admin || r == Instructor
}

// Caller 一次请求的调用方：用户、角色、所属组织
type Caller struct {
	UserID         uint
	Role           UserRole
	OrganizationID uint
}

func (c Caller) IsAdmin() bool {
	return c.Role == Admin
}

func (c Caller) IsTrainee() bool {
	return c.Role == Trainee
}

// CanViewCourse 非管理员只能访问本组织课程，讲师只能访问自己负责的课程，
// 学员额外可以访问公开课程
func (c Caller) CanViewCourse(course *Course) bool {
	switch c.Role {
	case Admin:
		return true
	case Instructor:
		return course.OrganizationID == c.OrganizationID && course.InstructorID == c.UserID
	case Trainee:
		return course.OrganizationID == c.OrganizationID || course.IsPublic
	}
	return false
}

// CanManageCourse 管理员或课程讲师
func (c Caller) CanManageCourse(course *Course) bool {
	if c.Role == Admin {
		return true
	}
	return c.Role == Instructor && course.OrganizationID == c.OrganizationID && course.InstructorID == c.UserID
}
