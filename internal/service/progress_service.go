package service

import (
	"context"
	"fmt"
	"time"

	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"
	"lms_backend/pkg/tracing"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 课程进度权重。内容完成会被计两次：直接计入 ContentWeight，
// 完成模块内全部必修内容后又通过模块计入 ModuleWeight。前端进度曲线依赖这个比例。
const (
	ModuleWeight  = 0.7
	ContentWeight = 0.3
)

// ProgressService 进度台账的唯一写入方，负责模块自动完成和课程进度汇总
type ProgressService struct {
	DB           *gorm.DB
	CourseRepo   *repository.CourseRepository
	ProgressRepo *repository.ProgressRepository
}

func NewProgressService(db *gorm.DB) *ProgressService {
	return &ProgressService{
		DB:           db,
		CourseRepo:   repository.NewCourseRepository(db),
		ProgressRepo: repository.NewProgressRepository(db),
	}
}

func (s *ProgressService) WithTx(tx *gorm.DB) *ProgressService {
	return &ProgressService{
		DB:           tx,
		CourseRepo:   s.CourseRepo.WithTx(tx),
		ProgressRepo: s.ProgressRepo.WithTx(tx),
	}
}

type ProgressUpdate struct {
	Status     model.ProgressStatus
	Percentage float64
	TimeSpent  int
}

func (u ProgressUpdate) Validate() error {
	if !u.Status.Valid() {
		return util.BadRequestf("invalid progress status: %q", u.Status)
	}
	if u.Percentage < 0 || u.Percentage > 100 {
		return util.BadRequestf("progress percentage must be between 0 and 100")
	}
	if u.TimeSpent < 0 {
		return util.BadRequestf("timeSpent must not be negative")
	}
	return nil
}

func statusRank(s model.ProgressStatus) int {
	switch s {
	case model.ProgressInProgress:
		return 1
	case model.ProgressCompleted:
		return 2
	}
	return 0
}

// Record 按 key upsert 台账行。状态和百分比只进不退，timeSpent 累加，
// startedAt/completedAt 只写一次。
func (s *ProgressService) Record(ctx context.Context, enrollmentID uint, key model.ProgressKey, upd ProgressUpdate) (*model.Progress, error) {
	if !key.Valid() {
		return nil, util.BadRequestf("invalid progress key")
	}
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	now := time.Now()

	p, err := s.ProgressRepo.FindByKey(ctx, enrollmentID, key)
	created := false
	switch {
	case err == nil:
		p.TimeSpent += upd.TimeSpent
	case isNotFound(err):
		p = key.NewProgress(enrollmentID)
		p.TimeSpent = upd.TimeSpent
		created = true
	default:
		return nil, fmt.Errorf("load progress %s: %w", key, err)
	}

	if statusRank(upd.Status) > statusRank(p.Status) {
		p.Status = upd.Status
	}
	if upd.Percentage > p.ProgressPercentage {
		p.ProgressPercentage = upd.Percentage
	}
	if p.Status == model.ProgressCompleted {
		p.ProgressPercentage = 100
		if p.CompletedAt == nil {
			p.CompletedAt = &now
		}
	}
	if p.StartedAt == nil && (p.Status != model.ProgressNotStarted || p.TimeSpent > 0) {
		p.StartedAt = &now
	}

	if created {
		err = s.ProgressRepo.Create(ctx, p)
	} else {
		err = s.ProgressRepo.Save(ctx, p)
	}
	if err != nil {
		return nil, fmt.Errorf("save progress %s: %w", key, err)
	}
	return p, nil
}

// FindModuleRow 模块级台账行
func (s *ProgressService) FindModuleRow(ctx context.Context, enrollmentID, moduleID uint) (*model.Progress, error) {
	p, err := s.ProgressRepo.FindByKey(ctx, enrollmentID, model.ModuleLevel(moduleID))
	if err != nil {
		return nil, lookupErr(err, "module progress")
	}
	return p, nil
}

// CompleteContent 标记内容完成并检查所在模块是否可以自动完成
func (s *ProgressService) CompleteContent(ctx context.Context, enrollmentID, moduleID, contentID uint, timeSpent int) (*model.Progress, error) {
	p, err := s.Record(ctx, enrollmentID, model.ContentLevel(moduleID, contentID), ProgressUpdate{
		Status:     model.ProgressCompleted,
		Percentage: 100,
		TimeSpent:  timeSpent,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.CheckModuleCompletion(ctx, enrollmentID, moduleID); err != nil {
		return nil, err
	}
	return p, nil
}

// RequiredContentComplete 模块内必修内容是否全部完成（集合相等，与顺序无关）。
// 没有必修内容的模块直接满足条件。
func (s *ProgressService) RequiredContentComplete(ctx context.Context, enrollmentID, moduleID uint) (bool, error) {
	required, err := s.CourseRepo.ListRequiredContentIDs(ctx, moduleID)
	if err != nil {
		return false, fmt.Errorf("load required content: %w", err)
	}
	completed, err := s.ProgressRepo.CompletedContentIDs(ctx, enrollmentID, moduleID)
	if err != nil {
		return false, fmt.Errorf("load completed content: %w", err)
	}
	return containsAll(completed, required), nil
}

// CheckModuleCompletion 必修内容全部完成时写入模块级完成记录，已完成的模块不再重复写入
func (s *ProgressService) CheckModuleCompletion(ctx context.Context, enrollmentID, moduleID uint) (bool, error) {
	row, err := s.ProgressRepo.FindByKey(ctx, enrollmentID, model.ModuleLevel(moduleID))
	switch {
	case err == nil:
		if row.IsCompleted() {
			return true, nil
		}
	case !isNotFound(err):
		return false, fmt.Errorf("load module progress: %w", err)
	}

	ok, err := s.RequiredContentComplete(ctx, enrollmentID, moduleID)
	if err != nil || !ok {
		return false, err
	}

	if _, err := s.Record(ctx, enrollmentID, model.ModuleLevel(moduleID), ProgressUpdate{
		Status:     model.ProgressCompleted,
		Percentage: 100,
	}); err != nil {
		return false, err
	}
	logger.Log.Info("module auto-completed",
		zap.Uint("enrollment_id", enrollmentID),
		zap.Uint("module_id", moduleID))
	return true, nil
}

func containsAll(have, want []uint) bool {
	set := make(map[uint]struct{}, len(have))
	for _, id := range have {
		set[id] = struct{}{}
	}
	for _, id := range want {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// Rollup 课程进度汇总结果
type Rollup struct {
	TotalModules             int     `json:"totalModules"`
	CompletedModules         int     `json:"completedModules"`
	TotalRequiredContent     int     `json:"totalRequiredContent"`
	CompletedRequiredContent int     `json:"completedRequiredContent"`
	ModuleProgress           float64 `json:"moduleProgress"`
	ContentProgress          float64 `json:"contentProgress"`
	Percentage               float64 `json:"percentage"`
}

// IsFull 全部模块和必修内容都已完成
func (r Rollup) IsFull() bool {
	return r.TotalModules > 0 && r.CompletedModules == r.TotalModules &&
		r.TotalRequiredContent > 0 && r.CompletedRequiredContent == r.TotalRequiredContent
}

// ComputeRollup 基于课程结构和台账快照计算加权进度。
// 没有必修内容的课程 contentProgress 恒为 0，进度最高 70%。
func ComputeRollup(modules []model.Module, ledger []model.Progress) Rollup {
	completedModules := make(map[uint]bool)
	completedContent := make(map[uint]bool)
	for i := range ledger {
		p := &ledger[i]
		if !p.IsCompleted() {
			continue
		}
		key := p.Key()
		if contentID, ok := key.ContentID(); ok {
			completedContent[contentID] = true
		} else {
			completedModules[key.ModuleID()] = true
		}
	}

	var r Rollup
	r.TotalModules = len(modules)
	for _, m := range modules {
		if completedModules[m.ID] {
			r.CompletedModules++
		}
		for _, c := range m.Contents {
			if !c.IsRequired {
				continue
			}
			r.TotalRequiredContent++
			if completedContent[c.ID] {
				r.CompletedRequiredContent++
			}
		}
	}

	if r.TotalModules > 0 {
		r.ModuleProgress = float64(r.CompletedModules) / float64(r.TotalModules)
	}
	if r.TotalRequiredContent > 0 {
		r.ContentProgress = float64(r.CompletedRequiredContent) / float64(r.TotalRequiredContent)
	}

	pct := round2((r.ModuleProgress*ModuleWeight + r.ContentProgress*ContentWeight) * 100)
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	// 舍入不能让未完成的课程显示 100
	if pct >= 100 && !r.IsFull() {
		pct = 99.99
	}
	r.Percentage = pct
	return r
}

func (s *ProgressService) CalculateEnrollmentProgress(ctx context.Context, enrollment *model.Enrollment) (*Rollup, error) {
	ctx, span := tracing.StartSpan(ctx, "ProgressService.CalculateEnrollmentProgress")
	defer span.End()

	modules, err := s.CourseRepo.ListModulesWithContents(ctx, enrollment.CourseID)
	if err != nil {
		return nil, fmt.Errorf("load course structure: %w", err)
	}
	ledger, err := s.ProgressRepo.ListByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	r := ComputeRollup(modules, ledger)
	return &r, nil
}

type ModuleSummary struct {
	ModuleID                 uint    `json:"moduleId"`
	Title                    string  `json:"title"`
	Order                    int     `json:"order"`
	IsRequired               bool    `json:"isRequired"`
	Completed                bool    `json:"completed"`
	RequiredContent          int     `json:"requiredContent"`
	CompletedRequiredContent int     `json:"completedRequiredContent"`
	TimeSpent                int     `json:"timeSpent"`
	ProgressPercentage       float64 `json:"progressPercentage"`
}

type ProgressSummary struct {
	EnrollmentID       uint                   `json:"enrollmentId"`
	CourseID           uint                   `json:"courseId"`
	Status             model.EnrollmentStatus `json:"status"`
	ProgressPercentage float64                `json:"progressPercentage"`
	Rollup             Rollup                 `json:"rollup"`
	Modules            []ModuleSummary        `json:"modules"`
}

// Summary 按模块展开的进度，Rollup 为实时计算值，ProgressPercentage 为已保存值
func (s *ProgressService) Summary(ctx context.Context, enrollment *model.Enrollment) (*ProgressSummary, error) {
	modules, err := s.CourseRepo.ListModulesWithContents(ctx, enrollment.CourseID)
	if err != nil {
		return nil, fmt.Errorf("load course structure: %w", err)
	}
	ledger, err := s.ProgressRepo.ListByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	moduleRows := make(map[uint]*model.Progress)
	contentRows := make(map[uint]*model.Progress)
	timeSpent := make(map[uint]int)
	for i := range ledger {
		p := &ledger[i]
		key := p.Key()
		timeSpent[key.ModuleID()] += p.TimeSpent
		if contentID, ok := key.ContentID(); ok {
			contentRows[contentID] = p
		} else {
			moduleRows[key.ModuleID()] = p
		}
	}

	summary := &ProgressSummary{
		EnrollmentID:       enrollment.ID,
		CourseID:           enrollment.CourseID,
		Status:             enrollment.Status,
		ProgressPercentage: enrollment.ProgressPercentage,
		Rollup:             ComputeRollup(modules, ledger),
		Modules:            make([]ModuleSummary, 0, len(modules)),
	}
	for _, m := range modules {
		ms := ModuleSummary{
			ModuleID:   m.ID,
			Title:      m.Title,
			Order:      m.Order,
			IsRequired: m.IsRequired,
			TimeSpent:  timeSpent[m.ID],
		}
		if row, ok := moduleRows[m.ID]; ok {
			ms.Completed = row.IsCompleted()
			ms.ProgressPercentage = row.ProgressPercentage
		}
		for _, c := range m.Contents {
			if !c.IsRequired {
				continue
			}
			ms.RequiredContent++
			if row, ok := contentRows[c.ID]; ok && row.IsCompleted() {
				ms.CompletedRequiredContent++
			}
		}
		summary.Modules = append(summary.Modules, ms)
	}
	return summary, nil
}
