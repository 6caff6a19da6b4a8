package api

import (
	"aivid/annot8r/internal/domain"
	"aivid/annot8r/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authService service.AuthService,
	projectService service.ProjectService,
	imageService service.ImageService,
	distributionService service.DistributionService,
	submissionService service.SubmissionService,
) {
	authHandler := NewAuthHandler(authService)
	projectHandler := NewProjectHandler(projectService)
	imageHandler := NewImageHandler(imageService)
	distributionHandler := NewDistributionHandler(distributionService)
	submissionHandler := NewSubmissionHandler(submissionService)

	authMiddleware := AuthMiddleware(jwtSecret)
	adminOnly := RoleMiddleware(domain.RoleAdmin, domain.RoleSuperAdmin)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userID, err := currentUserID(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			role, _ := currentUserRole(c)
			c.JSON(http.StatusOK, gin.H{"userId": userID.Hex(), "role": role})
		})

		// --- Project Routes ---
		projectGroup := protected.Group("/projects")
		{
			projectGroup.GET("", projectHandler.ListMyProjects)
			projectGroup.POST("", adminOnly, projectHandler.CreateProject)
			projectGroup.GET("/:projectId", projectHandler.GetProject)

			// Membership management is reserved for office users.
			projectGroup.GET("/:projectId/members", projectHandler.GetMembers)
			projectGroup.POST("/:projectId/members", adminOnly, projectHandler.AddMember)
			projectGroup.DELETE("/:projectId/members/:userId", adminOnly, projectHandler.RemoveMember)

			projectGroup.GET("/:projectId/activity", projectHandler.GetActivity)

			// --- Image Intake ---
			projectGroup.POST("/:projectId/images/upload-url", adminOnly, imageHandler.RequestUploadURL)
			projectGroup.POST("/:projectId/images", adminOnly, imageHandler.RegisterImage)
			projectGroup.POST("/:projectId/images/:imageId/annotated", imageHandler.MarkAnnotated)

			// --- Distribution ---
			projectGroup.POST("/:projectId/distribute/manual", adminOnly, distributionHandler.DistributeManual)
			projectGroup.POST("/:projectId/distribute/smart", adminOnly, distributionHandler.DistributeSmart)
			projectGroup.GET("/:projectId/metrics", distributionHandler.GetMetrics)

			// --- Submission Lifecycle ---
			projectGroup.POST("/:projectId/submissions", submissionHandler.SubmitForReview)
			projectGroup.GET("/:projectId/can-submit", submissionHandler.CanSubmit)
			projectGroup.POST("/:projectId/complete", adminOnly, submissionHandler.CompleteProject)
		}

		// Review decisions address the submission directly.
		protected.POST("/submissions/:submissionId/review", submissionHandler.ReviewSubmission)

		protected.GET("/images/:imageId/download-url", imageHandler.GetDownloadURL)
	}
}
