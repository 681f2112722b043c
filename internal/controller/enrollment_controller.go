package controller

import (
	"lms_backend/internal/model"
	"lms_backend/internal/service"
	"lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type EnrollmentController struct {
	EnrollmentService *service.EnrollmentService
}

func NewEnrollmentController(enrollmentService *service.EnrollmentService) *EnrollmentController {
	return &EnrollmentController{EnrollmentService: enrollmentService}
}

// Enroll godoc
// @Summary 报名课程
// @Description 学员为自己报名；管理员或课程讲师可以指定 traineeId 代为报名。已退课的报名会被重新激活
// @Tags 报名
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.EnrollRequest true "报名请求"
// @Success 201 {object} util.Response{data=model.Enrollment}
// @Failure 400 {object} util.Response "课程未发布或前置课程未完成"
// @Failure 403 {object} util.Response "无权访问该课程"
// @Failure 404 {object} util.Response "课程不存在"
// @Failure 409 {object} util.Response "名额已满或已报名"
// @Router /api/enrollments [post]
func (c *EnrollmentController) Enroll(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	var req service.EnrollRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	enrollment, err := c.EnrollmentService.Enroll(ctx.Request.Context(), caller, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, enrollment)
}

// ListEnrollments godoc
// @Summary 报名列表
// @Description 学员只能看到自己的报名，讲师只能看到自己课程的报名
// @Tags 报名
// @Produce json
// @Security BearerAuth
// @Param courseId query int false "课程ID"
// @Param traineeId query int false "学员ID"
// @Param status query string false "状态" Enums(enrolled, in_progress, completed, dropped)
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} util.Response{data=[]model.Enrollment}
// @Router /api/enrollments [get]
func (c *EnrollmentController) ListEnrollments(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	courseID, ok := queryID(ctx, "courseId")
	if !ok {
		return
	}
	traineeID, ok := queryID(ctx, "traineeId")
	if !ok {
		return
	}

	list, pagination, err := c.EnrollmentService.ListEnrollments(ctx.Request.Context(), caller, service.ListEnrollmentsQuery{
		CourseID:  courseID,
		TraineeID: traineeID,
		Status:    model.EnrollmentStatus(ctx.Query("status")),
		Page:      util.ParsePageQuery(ctx),
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.SuccessWithPagination(ctx, list, pagination)
}

// GetEnrollment godoc
// @Summary 报名详情
// @Tags 报名
// @Produce json
// @Security BearerAuth
// @Param id path int true "报名ID"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/enrollments/{id} [get]
func (c *EnrollmentController) GetEnrollment(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	enrollment, err := c.EnrollmentService.GetEnrollment(ctx.Request.Context(), caller, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, enrollment)
}

// Drop godoc
// @Summary 退课
// @Tags 报名
// @Produce json
// @Security BearerAuth
// @Param id path int true "报名ID"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Failure 400 {object} util.Response "已完成的报名不能退课"
// @Failure 409 {object} util.Response "已经退课"
// @Router /api/enrollments/{id}/drop [post]
func (c *EnrollmentController) Drop(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	enrollment, err := c.EnrollmentService.Drop(ctx.Request.Context(), caller, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.SuccessWithMessage(ctx, "enrollment dropped", enrollment)
}

// Complete godoc
// @Summary 强制完成报名
// @Tags 报名
// @Produce json
// @Security BearerAuth
// @Param id path int true "报名ID"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Router /api/enrollments/{id}/complete [post]
func (c *EnrollmentController) Complete(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	enrollment, err := c.EnrollmentService.Complete(ctx.Request.Context(), caller, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.SuccessWithMessage(ctx, "enrollment completed", enrollment)
}

// Recalculate godoc
// @Summary 重新计算课程进度
// @Tags 进度
// @Produce json
// @Security BearerAuth
// @Param id path int true "报名ID"
// @Success 200 {object} util.Response{data=service.Recalculation}
// @Router /api/enrollments/{id}/recalculate [post]
func (c *EnrollmentController) Recalculate(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	result, err := c.EnrollmentService.CalculateProgress(ctx.Request.Context(), caller, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// GetProgress godoc
// @Summary 进度概览
// @Description 按模块展开的进度，包含实时汇总值
// @Tags 进度
// @Produce json
// @Security BearerAuth
// @Param id path int true "报名ID"
// @Success 200 {object} util.Response{data=service.ProgressSummary}
// @Router /api/enrollments/{id}/progress [get]
func (c *EnrollmentController) GetProgress(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	summary, err := c.EnrollmentService.GetProgressSummary(ctx.Request.Context(), caller, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}

// RecordProgress godoc
// @Summary 记录学习进度
// @Description contentId 为空时记录模块级进度；timeSpent 为本次新增的学习秒数
// @Tags 进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "报名ID"
// @Param request body service.RecordProgressRequest true "进度"
// @Success 200 {object} util.Response{data=service.ProgressResult}
// @Failure 400 {object} util.Response "模块/内容不匹配或报名已退课"
// @Router /api/enrollments/{id}/progress [post]
func (c *EnrollmentController) RecordProgress(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.RecordProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	result, err := c.EnrollmentService.RecordProgress(ctx.Request.Context(), caller, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// CompleteContent godoc
// @Summary 完成内容
// @Description 标记内容完成，模块内必修内容全部完成时自动完成模块
// @Tags 进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "报名ID"
// @Param request body service.CompleteContentRequest true "内容"
// @Success 200 {object} util.Response{data=service.ProgressResult}
// @Router /api/enrollments/{id}/progress/complete [post]
func (c *EnrollmentController) CompleteContent(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.CompleteContentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	result, err := c.EnrollmentService.CompleteContent(ctx.Request.Context(), caller, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
