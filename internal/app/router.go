package app

import (
	"lms_backend/docs"
	"lms_backend/internal/middleware"
	"lms_backend/internal/model"
	"lms_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	router.Use(middleware.RequestID(), middleware.RequestLogger())

	// 1. 公共路由
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(a.Config.JWT.Secret))
	{
		a.registerEnrollmentRoutes(authGroup, c)
		a.registerCourseRoutes(authGroup, c)
		a.registerAssessmentRoutes(authGroup, c)
		a.registerAssignmentRoutes(authGroup, c)
	}
}

func (a *App) registerEnrollmentRoutes(r *gin.RouterGroup, c *controllers) {
	enrollments := r.Group("/enrollments")
	{
		enrollments.POST("", c.enrollment.Enroll)
		enrollments.GET("", c.enrollment.ListEnrollments)
		enrollments.GET("/:id", c.enrollment.GetEnrollment)
		enrollments.POST("/:id/drop", c.enrollment.Drop)
		enrollments.POST("/:id/complete", middleware.RoleMiddleware(model.Instructor), c.enrollment.Complete)
		enrollments.POST("/:id/recalculate", c.enrollment.Recalculate)
		enrollments.GET("/:id/progress", c.enrollment.GetProgress)
		enrollments.POST("/:id/progress", c.enrollment.RecordProgress)
		enrollments.POST("/:id/progress/complete", c.enrollment.CompleteContent)
	}
}

func (a *App) registerCourseRoutes(r *gin.RouterGroup, c *controllers) {
	courses := r.Group("/courses")
	{
		courses.GET("/:id/prerequisites", c.prerequisite.ListPrerequisites)
		courses.POST("/:id/prerequisites", middleware.RoleMiddleware(model.Instructor), c.prerequisite.AddPrerequisite)
		courses.DELETE("/:id/prerequisites/:prerequisiteId", middleware.RoleMiddleware(model.Instructor), c.prerequisite.RemovePrerequisite)
	}
}

func (a *App) registerAssessmentRoutes(r *gin.RouterGroup, c *controllers) {
	r.GET("/assessments/:id", c.assessment.GetAssessment)
	r.POST("/assessments/:id/attempts", c.assessment.SubmitAttempt)
	r.GET("/assessments/:id/attempts", c.assessment.ListAttempts)
	r.GET("/attempts/:id", c.assessment.GetAttempt)
}

func (a *App) registerAssignmentRoutes(r *gin.RouterGroup, c *controllers) {
	assignments := r.Group("/assignments")
	{
		assignments.POST("/:id/submissions", c.assignment.SubmitAssignment)
		assignments.GET("/:id/submissions", middleware.RoleMiddleware(model.Instructor), c.assignment.ListSubmissions)
		assignments.GET("/:id/submissions/me", c.assignment.GetMySubmission)
		assignments.POST("/:id/attachments", c.assignment.RequestAttachmentUpload)
	}

	r.PUT("/submissions/:id/grade", middleware.RoleMiddleware(model.Instructor), c.assignment.GradeSubmission)
}
