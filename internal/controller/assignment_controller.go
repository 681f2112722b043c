package controller

import (
	"lms_backend/internal/service"
	"lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AssignmentController struct {
	AssignmentService *service.AssignmentService
}

func NewAssignmentController(assignmentService *service.AssignmentService) *AssignmentController {
	return &AssignmentController{AssignmentService: assignmentService}
}

// SubmitAssignment godoc
// @Summary 提交作业
// @Description 每个报名只能提交一次，截止后提交会被标记为逾期
// @Tags 作业
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作业ID"
// @Param request body service.SubmitAssignmentRequest true "作业内容"
// @Success 201 {object} util.Response{data=model.AssignmentSubmission}
// @Failure 409 {object} util.Response "已提交"
// @Router /api/assignments/{id}/submissions [post]
func (c *AssignmentController) SubmitAssignment(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.SubmitAssignmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	sub, err := c.AssignmentService.Submit(ctx.Request.Context(), caller, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, sub)
}

// ListSubmissions godoc
// @Summary 作业提交列表
// @Tags 作业
// @Produce json
// @Security BearerAuth
// @Param id path int true "作业ID"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} util.Response{data=[]model.AssignmentSubmission}
// @Router /api/assignments/{id}/submissions [get]
func (c *AssignmentController) ListSubmissions(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	subs, pagination, err := c.AssignmentService.ListSubmissions(ctx.Request.Context(), caller, id, util.ParsePageQuery(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.SuccessWithPagination(ctx, subs, pagination)
}

// GetMySubmission godoc
// @Summary 我的作业提交
// @Tags 作业
// @Produce json
// @Security BearerAuth
// @Param id path int true "作业ID"
// @Success 200 {object} util.Response{data=model.AssignmentSubmission}
// @Router /api/assignments/{id}/submissions/me [get]
func (c *AssignmentController) GetMySubmission(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	sub, err := c.AssignmentService.GetMySubmission(ctx.Request.Context(), caller, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// GradeSubmission godoc
// @Summary 批改作业
// @Description 分数范围 [0, maxScore]，status 为 graded 或 returned，可重复批改
// @Tags 作业
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "提交ID"
// @Param request body service.GradeSubmissionRequest true "批改结果"
// @Success 200 {object} util.Response{data=model.AssignmentSubmission}
// @Failure 400 {object} util.Response "分数超出范围"
// @Router /api/submissions/{id}/grade [put]
func (c *AssignmentController) GradeSubmission(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.GradeSubmissionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	sub, err := c.AssignmentService.Grade(ctx.Request.Context(), caller, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// RequestAttachmentUpload godoc
// @Summary 申请附件上传地址
// @Description 返回预签名上传地址，客户端直接上传到对象存储，提交作业时使用 fileUrl
// @Tags 作业
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作业ID"
// @Param request body service.AttachmentUploadRequest true "文件信息"
// @Success 200 {object} util.Response{data=service.UploadTicket}
// @Router /api/assignments/{id}/attachments [post]
func (c *AssignmentController) RequestAttachmentUpload(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.AttachmentUploadRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	ticket, err := c.AssignmentService.RequestAttachmentUpload(ctx.Request.Context(), caller, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, ticket)
}
