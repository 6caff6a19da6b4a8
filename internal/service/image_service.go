package service

import (
	"aivid/annot8r/internal/domain"
	"aivid/annot8r/internal/repository"
	"aivid/annot8r/internal/storage"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrImageNotFound      = errors.New("image not found")
	ErrImageNotOwned      = errors.New("image is not assigned to this user")
	ErrInvalidContentType = errors.New("invalid or missing image content type")
	ErrUploadURLError     = errors.New("failed to generate upload URL")
	ErrDownloadURLError   = errors.New("failed to generate download URL")
)

// UploadURLResponse carries a presigned PUT URL and the object key the
// client must report back when registering the image.
type UploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	ObjectKey string `json:"objectKey"`
}

// ImageService handles image metadata intake and the narrow surface the
// external annotation editor drives. Pixel handling stays entirely in
// object storage; this service only ever sees keys and metadata.
type ImageService interface {
	RequestUploadURL(ctx context.Context, projectID, actorID primitive.ObjectID, contentType string) (*UploadURLResponse, error)
	// RegisterImage records an uploaded object as a project image in the
	// uploaded state. Called after the client PUT the bytes to storage.
	RegisterImage(ctx context.Context, projectID primitive.ObjectID, objectKey, fileName string, size int64) (*domain.ProjectImage, error)
	GetImageDownloadURL(ctx context.Context, imageID primitive.ObjectID) (string, error)
	// MarkImageAnnotated is the hook the annotation editor calls when an
	// annotator saves completed work on an image they own.
	MarkImageAnnotated(ctx context.Context, projectID, imageID, userID primitive.ObjectID) (*domain.ProjectImage, error)
}

// --- Service Implementation ---

type imageService struct {
	projectRepo    repository.ProjectRepository
	imageRepo      repository.ImageRepository
	assignmentRepo repository.AssignmentRepository
	fileStorage    storage.FileStorage
	progress       ProgressService
	locks          *ProjectLocks
	activity       *activityLogger
}

// NewImageService creates a new instance of imageService.
func NewImageService(
	projectRepo repository.ProjectRepository,
	imageRepo repository.ImageRepository,
	assignmentRepo repository.AssignmentRepository,
	fileStorage storage.FileStorage,
	progress ProgressService,
	locks *ProjectLocks,
	activityRepo repository.ActivityRepository,
) ImageService {
	return &imageService{
		projectRepo:    projectRepo,
		imageRepo:      imageRepo,
		assignmentRepo: assignmentRepo,
		fileStorage:    fileStorage,
		progress:       progress,
		locks:          locks,
		activity:       newActivityLogger(activityRepo),
	}
}

// RequestUploadURL generates a presigned URL for uploading an image into a
// project's bucket prefix.
func (s *imageService) RequestUploadURL(ctx context.Context, projectID, actorID primitive.ObjectID, contentType string) (*UploadURLResponse, error) {
	if projectID == primitive.NilObjectID {
		return nil, errors.New("project ID is required")
	}
	if contentType == "" || !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil, ErrInvalidContentType
	}
	if _, err := s.projectRepo.GetByID(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	fileExtension := ""
	if parts := strings.Split(contentType, "/"); len(parts) == 2 {
		fileExtension = parts[1]
	}
	objectKey := path.Join("images", projectID.Hex(), fmt.Sprintf("%s.%s", uuid.NewString(), fileExtension))

	uploadURL, err := s.fileStorage.GeneratePresignedUploadURL(ctx, objectKey, contentType, storage.DefaultPresignedURLExpiry)
	if err != nil {
		return nil, ErrUploadURLError
	}
	return &UploadURLResponse{UploadURL: uploadURL, ObjectKey: objectKey}, nil
}

// RegisterImage stores the metadata of an uploaded image and refreshes the
// project counters, since the image total just changed.
func (s *imageService) RegisterImage(ctx context.Context, projectID primitive.ObjectID, objectKey, fileName string, size int64) (*domain.ProjectImage, error) {
	if projectID == primitive.NilObjectID || objectKey == "" || fileName == "" {
		return nil, errors.New("project ID, object key and file name are required")
	}
	if _, err := s.projectRepo.GetByID(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	image := &domain.ProjectImage{
		ProjectID:        projectID,
		FileName:         fileName,
		S3ObjectKey:      objectKey,
		Size:             size,
		Status:           domain.ImageUploaded,
		AnnotationStatus: domain.AnnotationUnannotated,
		ReviewStatus:     domain.ReviewNotReviewed,
	}
	imageID, err := s.imageRepo.Create(ctx, image)
	if err != nil {
		return nil, err
	}
	image.ID = imageID

	if _, err := s.progress.Recompute(ctx, projectID); err != nil {
		return nil, err
	}
	return image, nil
}

// GetImageDownloadURL generates a temporary viewing URL for an image.
func (s *imageService) GetImageDownloadURL(ctx context.Context, imageID primitive.ObjectID) (string, error) {
	image, err := s.imageRepo.GetByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrImageNotFound
		}
		return "", err
	}

	downloadURL, err := s.fileStorage.GeneratePresignedDownloadURL(ctx, image.S3ObjectKey, storage.DefaultPresignedURLExpiry)
	if err != nil {
		return "", ErrDownloadURLError
	}
	return downloadURL, nil
}

// MarkImageAnnotated records a completed annotation: the image moves to the
// annotated state with fresh attribution, and the owning pending assignment
// advances (in_progress, completed count).
func (s *imageService) MarkImageAnnotated(ctx context.Context, projectID, imageID, userID primitive.ObjectID) (*domain.ProjectImage, error) {
	if projectID == primitive.NilObjectID || imageID == primitive.NilObjectID || userID == primitive.NilObjectID {
		return nil, errors.New("project ID, image ID and user ID are required")
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	image, err := s.imageRepo.GetByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrImageNotFound
		}
		return nil, err
	}
	if image.ProjectID != projectID {
		return nil, ErrImageNotFound
	}
	if !image.IsAssigned() || *image.AssignedTo != userID {
		return nil, ErrImageNotOwned
	}

	alreadyCompleted := image.AnnotationStatus == domain.AnnotationCompleted

	image.AnnotationStatus = domain.AnnotationCompleted
	image.AnnotatedBy = &userID // New annotation act replaces attribution
	image.Status = domain.ImageAnnotated
	if err := s.imageRepo.Update(ctx, image); err != nil {
		return nil, err
	}

	assignment, err := s.assignmentRepo.GetPendingByUser(ctx, projectID, userID)
	if err == nil && assignment.ContainsImage(imageID) {
		if assignment.Status == domain.AssignmentAssigned {
			assignment.Status = domain.AssignmentInProgress
		}
		if !alreadyCompleted && assignment.CompletedImages < assignment.TotalImages {
			assignment.CompletedImages++
		}
		if err := s.assignmentRepo.Update(ctx, assignment); err != nil {
			return nil, err
		}
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if _, err := s.progress.Recompute(ctx, projectID); err != nil {
		return nil, err
	}

	s.activity.record(ctx, projectID, userID, "image_annotated", imageID.Hex())
	return image, nil
}
