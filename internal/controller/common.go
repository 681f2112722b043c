package controller

import (
	"lms_backend/internal/model"
	"lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// currentCaller 未认证时直接写 401
func currentCaller(ctx *gin.Context) (model.Caller, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return model.Caller{}, false
	}
	return user.Caller(), true
}

func pathID(ctx *gin.Context, name string) (uint, bool) {
	id, err := util.ParseID(ctx.Param(name))
	if err != nil {
		util.HandleError(ctx, err)
		return 0, false
	}
	return id, true
}

func queryID(ctx *gin.Context, name string) (uint, bool) {
	raw := ctx.Query(name)
	if raw == "" {
		return 0, true
	}
	id, err := util.ParseID(raw)
	if err != nil {
		util.HandleError(ctx, err)
		return 0, false
	}
	return id, true
}
