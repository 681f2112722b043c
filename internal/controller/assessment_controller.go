package controller

import (
	"lms_backend/internal/service"
	"lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AssessmentController struct {
	AssessmentService *service.AssessmentService
}

func NewAssessmentController(assessmentService *service.AssessmentService) *AssessmentController {
	return &AssessmentController{AssessmentService: assessmentService}
}

// GetAssessment godoc
// @Summary 获取测验
// @Description 学员获取时不返回正确答案和解析
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response{data=model.Assessment}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/assessments/{id} [get]
func (c *AssessmentController) GetAssessment(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	assessment, err := c.AssessmentService.GetAssessment(ctx.Request.Context(), caller, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, assessment)
}

// SubmitAttempt godoc
// @Summary 提交测验
// @Description answers 以题目ID为键，单选/判断题填下标或单元素数组，多选题填下标数组
// @Tags 测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Param request body service.SubmitAttemptRequest true "答案"
// @Success 201 {object} util.Response{data=model.AssessmentAttempt}
// @Failure 400 {object} util.Response "超过最大次数"
// @Failure 403 {object} util.Response
// @Router /api/assessments/{id}/attempts [post]
func (c *AssessmentController) SubmitAttempt(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.SubmitAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	attempt, err := c.AssessmentService.Submit(ctx.Request.Context(), caller, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, attempt)
}

// ListAttempts godoc
// @Summary 测验提交记录
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Param enrollmentId query int false "报名ID（讲师/管理员）"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} util.Response{data=[]model.AssessmentAttempt}
// @Router /api/assessments/{id}/attempts [get]
func (c *AssessmentController) ListAttempts(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	enrollmentID, ok := queryID(ctx, "enrollmentId")
	if !ok {
		return
	}
	attempts, pagination, err := c.AssessmentService.ListAttempts(ctx.Request.Context(), caller, id, enrollmentID, util.ParsePageQuery(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.SuccessWithPagination(ctx, attempts, pagination)
}

// GetAttempt godoc
// @Summary 提交记录详情
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "提交记录ID"
// @Success 200 {object} util.Response{data=model.AssessmentAttempt}
// @Router /api/attempts/{id} [get]
func (c *AssessmentController) GetAttempt(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	attempt, err := c.AssessmentService.GetAttempt(ctx.Request.Context(), caller, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}
