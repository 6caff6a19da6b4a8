package service

import (
	"aivid/annot8r/internal/domain"
	"aivid/annot8r/internal/repository"
	"context"
	"math"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProgressService recomputes the derived project counters from the image
// documents. The status it writes is advisory only: a project becomes
// authoritatively completed solely through the explicit completion action,
// and the repository-level progress update never touches a completed or
// archived project.
type ProgressService interface {
	Recompute(ctx context.Context, projectID primitive.ObjectID) (repository.ProgressCounts, error)
}

type progressService struct {
	projectRepo repository.ProjectRepository
	imageRepo   repository.ImageRepository
}

// NewProgressService creates a new instance of progressService.
func NewProgressService(projectRepo repository.ProjectRepository, imageRepo repository.ImageRepository) ProgressService {
	return &progressService{
		projectRepo: projectRepo,
		imageRepo:   imageRepo,
	}
}

// Recompute counts the project's images and rewrites the project counters.
// It returns the counts so callers can act on conditions like
// "all images approved" without a second read.
func (s *progressService) Recompute(ctx context.Context, projectID primitive.ObjectID) (repository.ProgressCounts, error) {
	counts, err := s.imageRepo.CountProgress(ctx, projectID)
	if err != nil {
		return repository.ProgressCounts{}, err
	}

	percentage := 0
	if counts.Total > 0 {
		percentage = int(math.Round(100 * float64(counts.Approved) / float64(counts.Total)))
	}

	status := deriveProgressStatus(counts)
	if err := s.projectRepo.UpdateProgress(ctx, projectID, counts, percentage, status); err != nil {
		return repository.ProgressCounts{}, err
	}
	return counts, nil
}

// deriveProgressStatus is the advisory status heuristic: created until any
// annotation exists, in_progress from then on. It never returns completed;
// that value is reserved for the explicit completion action, so an
// all-approved project stays in_progress until an admin closes it.
func deriveProgressStatus(counts repository.ProgressCounts) domain.ProjectStatus {
	if counts.Annotated == 0 {
		return domain.ProjectCreated
	}
	return domain.ProjectInProgress
}
