package api

import (
	"aivid/annot8r/internal/domain"
	"aivid/annot8r/internal/service"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SubmissionHandler struct {
	submissionService service.SubmissionService
}

func NewSubmissionHandler(submissionService service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: submissionService}
}

// --- DTOs ---

type SubmitForReviewRequest struct {
	AssignmentID string `json:"assignmentId" binding:"required"`
	Message      string `json:"message"`
}

type flaggedImageRequest struct {
	ImageID string `json:"imageId" binding:"required"`
	Reason  string `json:"reason"`
}

type imageFeedbackRequest struct {
	ImageID  string `json:"imageId" binding:"required"`
	Feedback string `json:"feedback" binding:"required"`
}

type ReviewSubmissionRequest struct {
	Status        string                 `json:"status" binding:"required,oneof=approved rejected under_review"`
	Feedback      string                 `json:"feedback"`
	FlaggedImages []flaggedImageRequest  `json:"flaggedImages" binding:"dive"`
	ImageFeedback []imageFeedbackRequest `json:"imageFeedback" binding:"dive"`
}

// --- Handlers ---

// SubmitForReview submits the caller's pending assignment for review.
func (h *SubmissionHandler) SubmitForReview(c *gin.Context) {
	projectID, err := primitive.ObjectIDFromHex(c.Param("projectId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid project ID.")
		return
	}
	var req SubmitForReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	assignmentID, err := primitive.ObjectIDFromHex(req.AssignmentID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid assignment ID.")
		return
	}
	actorID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	submission, err := h.submissionService.SubmitForReview(c.Request.Context(), projectID, actorID, assignmentID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound), errors.Is(err, service.ErrAssignmentNotFound):
			abortWithError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrAssignmentAccessDenied):
			abortWithError(c, http.StatusForbidden, err.Error())
		case errors.Is(err, service.ErrProjectCompleted),
			errors.Is(err, service.ErrAlreadySubmitted),
			errors.Is(err, service.ErrPendingSubmissionExists):
			abortWithError(c, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrNothingToSubmit):
			abortWithError(c, http.StatusBadRequest, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to submit for review.")
		}
		return
	}
	c.JSON(http.StatusCreated, submission)
}

// ReviewSubmission applies a reviewer decision to a pending submission.
func (h *SubmissionHandler) ReviewSubmission(c *gin.Context) {
	submissionID, err := primitive.ObjectIDFromHex(c.Param("submissionId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid submission ID.")
		return
	}
	var req ReviewSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	decision := service.ReviewDecision{
		Status:   domain.SubmissionStatus(req.Status),
		Feedback: req.Feedback,
	}
	for _, f := range req.FlaggedImages {
		imageID, err := primitive.ObjectIDFromHex(f.ImageID)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid image ID in flaggedImages: "+f.ImageID)
			return
		}
		decision.FlaggedImages = append(decision.FlaggedImages, domain.FlaggedImage{ImageID: imageID, Reason: f.Reason})
	}
	for _, f := range req.ImageFeedback {
		imageID, err := primitive.ObjectIDFromHex(f.ImageID)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid image ID in imageFeedback: "+f.ImageID)
			return
		}
		decision.ImageFeedback = append(decision.ImageFeedback, domain.ImageFeedback{ImageID: imageID, Feedback: f.Feedback})
	}

	actorID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	submission, err := h.submissionService.ReviewSubmission(c.Request.Context(), submissionID, actorID, decision)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound), errors.Is(err, service.ErrAssignmentNotFound):
			abortWithError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrSubmissionNotPending):
			abortWithError(c, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrInvalidDecision):
			abortWithError(c, http.StatusBadRequest, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to review submission.")
		}
		return
	}
	c.JSON(http.StatusOK, submission)
}

// CanSubmit reports whether the caller may submit work in this project.
func (h *SubmissionHandler) CanSubmit(c *gin.Context) {
	projectID, err := primitive.ObjectIDFromHex(c.Param("projectId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid project ID.")
		return
	}
	actorID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	eligibility, err := h.submissionService.CanUserSubmit(c.Request.Context(), projectID, actorID)
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			abortWithError(c, http.StatusNotFound, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to check submit eligibility.")
		}
		return
	}
	c.JSON(http.StatusOK, eligibility)
}

// CompleteProject marks a fully approved project as completed.
func (h *SubmissionHandler) CompleteProject(c *gin.Context) {
	projectID, err := primitive.ObjectIDFromHex(c.Param("projectId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid project ID.")
		return
	}
	actorID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	if err := h.submissionService.CompleteProject(c.Request.Context(), projectID, actorID); err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound):
			abortWithError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrProjectCompleted), errors.Is(err, service.ErrProjectNotFullyApproved):
			abortWithError(c, http.StatusConflict, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to complete project.")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": true})
}
