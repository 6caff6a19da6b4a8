package api

import (
	"aivid/annot8r/internal/service"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ImageHandler struct {
	imageService service.ImageService
}

func NewImageHandler(imageService service.ImageService) *ImageHandler {
	return &ImageHandler{imageService: imageService}
}

// --- DTOs ---

type UploadURLRequest struct {
	ContentType string `json:"contentType" binding:"required"`
}

type RegisterImageRequest struct {
	ObjectKey string `json:"objectKey" binding:"required"`
	FileName  string `json:"fileName" binding:"required"`
	Size      int64  `json:"size" binding:"required,min=1"`
}

// --- Handlers ---

// RequestUploadURL issues a presigned PUT URL for a new project image.
func (h *ImageHandler) RequestUploadURL(c *gin.Context) {
	projectID, err := primitive.ObjectIDFromHex(c.Param("projectId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid project ID.")
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	actorID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	resp, err := h.imageService.RequestUploadURL(c.Request.Context(), projectID, actorID, req.ContentType)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound):
			abortWithError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrInvalidContentType):
			abortWithError(c, http.StatusBadRequest, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to generate upload URL.")
		}
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RegisterImage records an uploaded object as a project image.
func (h *ImageHandler) RegisterImage(c *gin.Context) {
	projectID, err := primitive.ObjectIDFromHex(c.Param("projectId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid project ID.")
		return
	}
	var req RegisterImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	image, err := h.imageService.RegisterImage(c.Request.Context(), projectID, req.ObjectKey, req.FileName, req.Size)
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			abortWithError(c, http.StatusNotFound, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to register image.")
		}
		return
	}
	c.JSON(http.StatusCreated, image)
}

// GetDownloadURL issues a presigned GET URL for an image's pixels.
func (h *ImageHandler) GetDownloadURL(c *gin.Context) {
	imageID, err := primitive.ObjectIDFromHex(c.Param("imageId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid image ID.")
		return
	}

	url, err := h.imageService.GetImageDownloadURL(c.Request.Context(), imageID)
	if err != nil {
		if errors.Is(err, service.ErrImageNotFound) {
			abortWithError(c, http.StatusNotFound, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to generate download URL.")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"downloadUrl": url})
}

// MarkAnnotated records completed annotation work on an image the caller
// owns. Called by the annotation editor on save.
func (h *ImageHandler) MarkAnnotated(c *gin.Context) {
	projectID, err := primitive.ObjectIDFromHex(c.Param("projectId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid project ID.")
		return
	}
	imageID, err := primitive.ObjectIDFromHex(c.Param("imageId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid image ID.")
		return
	}
	actorID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	image, err := h.imageService.MarkImageAnnotated(c.Request.Context(), projectID, imageID, actorID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound), errors.Is(err, service.ErrImageNotFound):
			abortWithError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrImageNotOwned):
			abortWithError(c, http.StatusForbidden, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to record annotation.")
		}
		return
	}
	c.JSON(http.StatusOK, image)
}
