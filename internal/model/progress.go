package model

import (
	"fmt"
	"time"
)

type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

func (s ProgressStatus) Valid() bool {
	switch s {
	case ProgressNotStarted, ProgressInProgress, ProgressCompleted:
		return true
	}
	return false
}

// Progress 学习进度台账，ContentID 为空的行表示整个模块的完成情况。
// 业务代码通过 Key() 访问，不直接判断 ContentID 是否为 nil。
// swagger:model Progress
type Progress struct {
	BaseModel
	EnrollmentID       uint           `gorm:"index:idx_progress_key;not null" json:"enrollmentId"`
	ModuleID           uint           `gorm:"index:idx_progress_key;not null" json:"moduleId"`
	ContentID          *uint          `gorm:"index:idx_progress_key" json:"contentId"`
	Status             ProgressStatus `gorm:"size:20;not null" json:"status"`
	ProgressPercentage float64        `gorm:"default:0" json:"progressPercentage"`
	TimeSpent          int            `gorm:"default:0" json:"timeSpent"` // 秒，只增不减
	StartedAt          *time.Time     `json:"startedAt"`
	CompletedAt        *time.Time     `json:"completedAt"`
}

func (Progress) TableName() string {
	return "progress"
}

func (p *Progress) Key() ProgressKey {
	if p.ContentID == nil {
		return ModuleLevel(p.ModuleID)
	}
	return ContentLevel(p.ModuleID, *p.ContentID)
}

func (p *Progress) IsCompleted() bool {
	return p.Status == ProgressCompleted
}

type progressLevel uint8

const (
	moduleLevel progressLevel = iota + 1
	contentLevel
)

// ProgressKey 台账主键：ModuleLevel(moduleID) 或 ContentLevel(moduleID, contentID)。
// 零值无效，只能通过两个构造函数得到。
type ProgressKey struct {
	level     progressLevel
	moduleID  uint
	contentID uint
}

func ModuleLevel(moduleID uint) ProgressKey {
	return ProgressKey{level: moduleLevel, moduleID: moduleID}
}

func ContentLevel(moduleID, contentID uint) ProgressKey {
	return ProgressKey{level: contentLevel, moduleID: moduleID, contentID: contentID}
}

func (k ProgressKey) ModuleID() uint {
	return k.moduleID
}

// ContentID 模块级 key 返回 false
func (k ProgressKey) ContentID() (uint, bool) {
	return k.contentID, k.level == contentLevel
}

func (k ProgressKey) IsModuleLevel() bool {
	return k.level == moduleLevel
}

func (k ProgressKey) Valid() bool {
	switch k.level {
	case moduleLevel:
		return k.moduleID > 0
	case contentLevel:
		return k.moduleID > 0 && k.contentID > 0
	}
	return false
}

// contentColumn 写入数据库时使用的 content_id 值
func (k ProgressKey) contentColumn() *uint {
	if k.level != contentLevel {
		return nil
	}
	id := k.contentID
	return &id
}

// NewProgress 按 key 构造一条新的台账行
func (k ProgressKey) NewProgress(enrollmentID uint) *Progress {
	return &Progress{
		EnrollmentID: enrollmentID,
		ModuleID:     k.moduleID,
		ContentID:    k.contentColumn(),
		Status:       ProgressNotStarted,
	}
}

func (k ProgressKey) String() string {
	if k.level == contentLevel {
		return fmt.Sprintf("module:%d/content:%d", k.moduleID, k.contentID)
	}
	return fmt.Sprintf("module:%d", k.moduleID)
}
