package api

import (
	"aivid/annot8r/internal/service"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DistributionHandler struct {
	distributionService service.DistributionService
}

func NewDistributionHandler(distributionService service.DistributionService) *DistributionHandler {
	return &DistributionHandler{distributionService: distributionService}
}

// --- DTOs ---

type ManualTargetRequest struct {
	UserID string `json:"userId" binding:"required"`
	Count  int    `json:"count" binding:"required,min=1"`
}

type ManualDistributionRequest struct {
	Targets           []ManualTargetRequest `json:"targets" binding:"required,min=1,dive"`
	ResetDistribution bool                  `json:"resetDistribution"`
}

type SmartDistributionRequest struct {
	ResetDistribution bool `json:"resetDistribution"`
}

// --- Handlers ---

// DistributeManual assigns explicit image counts to named annotators.
func (h *DistributionHandler) DistributeManual(c *gin.Context) {
	projectID, err := primitive.ObjectIDFromHex(c.Param("projectId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid project ID.")
		return
	}
	var req ManualDistributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	targets := make([]service.ManualTarget, 0, len(req.Targets))
	for _, t := range req.Targets {
		userID, err := primitive.ObjectIDFromHex(t.UserID)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid user ID in targets: "+t.UserID)
			return
		}
		targets = append(targets, service.ManualTarget{UserID: userID, Count: t.Count})
	}

	actorID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	err = h.distributionService.DistributeManual(c.Request.Context(), projectID, targets, actorID, req.ResetDistribution)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound):
			abortWithError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrEmptyPool), errors.Is(err, service.ErrNotAnnotatorMember):
			abortWithError(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrImageClaimLost):
			abortWithError(c, http.StatusConflict, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to distribute images.")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"distributed": true})
}

// DistributeSmart splits the assignable pool evenly over all annotators.
func (h *DistributionHandler) DistributeSmart(c *gin.Context) {
	projectID, err := primitive.ObjectIDFromHex(c.Param("projectId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid project ID.")
		return
	}
	var req SmartDistributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	actorID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	err = h.distributionService.DistributeSmart(c.Request.Context(), projectID, actorID, req.ResetDistribution)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound):
			abortWithError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrEmptyPool), errors.Is(err, service.ErrNoAnnotators):
			abortWithError(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrImageClaimLost):
			abortWithError(c, http.StatusConflict, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to distribute images.")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"distributed": true})
}

// GetMetrics reports per-annotator assignment progress for the project.
func (h *DistributionHandler) GetMetrics(c *gin.Context) {
	projectID, err := primitive.ObjectIDFromHex(c.Param("projectId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid project ID.")
		return
	}

	metrics, err := h.distributionService.GetAssignmentMetrics(c.Request.Context(), projectID)
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			abortWithError(c, http.StatusNotFound, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to compute assignment metrics.")
		}
		return
	}
	c.JSON(http.StatusOK, metrics)
}
