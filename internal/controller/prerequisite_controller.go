package controller

import (
	"lms_backend/internal/service"
	"lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type PrerequisiteController struct {
	PrerequisiteService *service.PrerequisiteService
}

func NewPrerequisiteController(prerequisiteService *service.PrerequisiteService) *PrerequisiteController {
	return &PrerequisiteController{PrerequisiteService: prerequisiteService}
}

// ListPrerequisites godoc
// @Summary 前置课程列表
// @Description 学员调用时附带每个前置课程的完成情况
// @Tags 前置课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=[]service.PrerequisiteView}
// @Router /api/courses/{id}/prerequisites [get]
func (c *PrerequisiteController) ListPrerequisites(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	views, err := c.PrerequisiteService.ListPrerequisites(ctx.Request.Context(), caller, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, views)
}

// AddPrerequisite godoc
// @Summary 添加前置课程
// @Description 不允许自引用、跨组织或形成环
// @Tags 前置课程
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Param request body service.AddPrerequisiteRequest true "前置课程"
// @Success 201 {object} util.Response{data=model.CoursePrerequisite}
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response "已存在"
// @Router /api/courses/{id}/prerequisites [post]
func (c *PrerequisiteController) AddPrerequisite(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.AddPrerequisiteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	link, err := c.PrerequisiteService.AddPrerequisite(ctx.Request.Context(), caller, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, link)
}

// RemovePrerequisite godoc
// @Summary 删除前置课程
// @Tags 前置课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Param prerequisiteId path int true "前置课程ID"
// @Success 200 {object} util.Response
// @Router /api/courses/{id}/prerequisites/{prerequisiteId} [delete]
func (c *PrerequisiteController) RemovePrerequisite(ctx *gin.Context) {
	caller, ok := currentCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	prereqID, ok := pathID(ctx, "prerequisiteId")
	if !ok {
		return
	}
	if err := c.PrerequisiteService.RemovePrerequisite(ctx.Request.Context(), caller, id, prereqID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.SuccessWithMessage(ctx, "prerequisite removed", nil)
}
