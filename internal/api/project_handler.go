package api

import (
	"aivid/annot8r/internal/domain"
	"aivid/annot8r/internal/service"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProjectHandler struct {
	projectService service.ProjectService
}

func NewProjectHandler(projectService service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

// --- DTOs ---

type CreateProjectRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Classes     []string `json:"classes" binding:"required,min=1"`
}

type AddMemberRequest struct {
	UserID string            `json:"userId" binding:"required"`
	Role   domain.MemberRole `json:"role" binding:"required,oneof=annotator reviewer"`
}

type ProjectResponse struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description,omitempty"`
	Classes              []string  `json:"classes"`
	TotalImages          int       `json:"totalImages"`
	AnnotatedImages      int       `json:"annotatedImages"`
	ReviewedImages       int       `json:"reviewedImages"`
	ApprovedImages       int       `json:"approvedImages"`
	CompletionPercentage int       `json:"completionPercentage"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"createdAt"`
}

type MemberResponse struct {
	UserID  string    `json:"userId"`
	Role    string    `json:"role"`
	AddedAt time.Time `json:"addedAt"`
}

// MapProjectToResponse converts a domain.Project to its API DTO.
func MapProjectToResponse(p *domain.Project) ProjectResponse {
	if p == nil {
		return ProjectResponse{}
	}
	return ProjectResponse{
		ID:                   p.ID.Hex(),
		Name:                 p.Name,
		Description:          p.Description,
		Classes:              p.Classes,
		TotalImages:          p.TotalImages,
		AnnotatedImages:      p.AnnotatedImages,
		ReviewedImages:       p.ReviewedImages,
		ApprovedImages:       p.ApprovedImages,
		CompletionPercentage: p.CompletionPercentage,
		Status:               string(p.Status),
		CreatedAt:            p.CreatedAt,
	}
}

// --- Handlers ---

// CreateProject creates a project; the caller becomes its first reviewer.
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	actorID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	project, err := h.projectService.CreateProject(c.Request.Context(), req.Name, req.Description, req.Classes, actorID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			abortWithError(c, http.StatusNotFound, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to create project.")
		}
		return
	}
	c.JSON(http.StatusCreated, MapProjectToResponse(project))
}

// GetProject returns a single project with its derived counters.
func (h *ProjectHandler) GetProject(c *gin.Context) {
	projectID, err := primitive.ObjectIDFromHex(c.Param("projectId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid project ID.")
		return
	}

	project, err := h.projectService.GetProject(c.Request.Context(), projectID)
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			abortWithError(c, http.StatusNotFound, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to retrieve project.")
		}
		return
	}
	c.JSON(http.StatusOK, MapProjectToResponse(project))
}

// ListMyProjects returns every project the caller is a member of.
func (h *ProjectHandler) ListMyProjects(c *gin.Context) {
	actorID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	projects, err := h.projectService.GetProjectsForUser(c.Request.Context(), actorID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to retrieve projects.")
		return
	}

	responses := make([]ProjectResponse, 0, len(projects))
	for i := range projects {
		responses = append(responses, MapProjectToResponse(&projects[i]))
	}
	c.JSON(http.StatusOK, responses)
}

// GetMembers lists the project membership.
func (h *ProjectHandler) GetMembers(c *gin.Context) {
	projectID, err := primitive.ObjectIDFromHex(c.Param("projectId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid project ID.")
		return
	}

	members, err := h.projectService.GetMembers(c.Request.Context(), projectID)
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			abortWithError(c, http.StatusNotFound, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to retrieve members.")
		}
		return
	}

	responses := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		responses = append(responses, MemberResponse{
			UserID:  m.UserID.Hex(),
			Role:    string(m.Role),
			AddedAt: m.AddedAt,
		})
	}
	c.JSON(http.StatusOK, responses)
}

// AddMember adds a user to the project.
func (h *ProjectHandler) AddMember(c *gin.Context) {
	projectID, err := primitive.ObjectIDFromHex(c.Param("projectId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid project ID.")
		return
	}
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid user ID.")
		return
	}
	actorID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	member, err := h.projectService.AddMember(c.Request.Context(), projectID, userID, req.Role, actorID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound), errors.Is(err, service.ErrUserNotFound):
			abortWithError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrAlreadyMember):
			abortWithError(c, http.StatusConflict, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to add member.")
		}
		return
	}

	c.JSON(http.StatusCreated, MemberResponse{
		UserID:  member.UserID.Hex(),
		Role:    string(member.Role),
		AddedAt: member.AddedAt,
	})
}

// RemoveMember removes a member and reclaims their assigned images.
func (h *ProjectHandler) RemoveMember(c *gin.Context) {
	projectID, err := primitive.ObjectIDFromHex(c.Param("projectId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid project ID.")
		return
	}
	userID, err := primitive.ObjectIDFromHex(c.Param("userId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid user ID.")
		return
	}
	actorID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	if err := h.projectService.RemoveMember(c.Request.Context(), projectID, userID, actorID); err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound), errors.Is(err, service.ErrMemberNotFound):
			abortWithError(c, http.StatusNotFound, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to remove member.")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

// GetActivity lists recent audit records for the project.
func (h *ProjectHandler) GetActivity(c *gin.Context) {
	projectID, err := primitive.ObjectIDFromHex(c.Param("projectId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid project ID.")
		return
	}

	activities, err := h.projectService.GetRecentActivity(c.Request.Context(), projectID, 50)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to retrieve activity.")
		return
	}
	c.JSON(http.StatusOK, activities)
}
