package repository

import (
	"aivid/annot8r/internal/domain" // Import our defined domain models
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive" // For using ObjectIDs
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrDuplicate    = RepositoryError("duplicate document")
	ErrUpdateFailed = RepositoryError("update failed")
	ErrDeleteFailed = RepositoryError("delete failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// ProgressCounts is the raw material for the project progress recompute.
type ProgressCounts struct {
	Total     int
	Annotated int // annotationStatus == completed
	Reviewed  int // reviewStatus in {approved, flagged}
	Approved  int // reviewStatus == approved
}

// ProjectRepository defines the interface for interacting with project data.
type ProjectRepository interface {
	Create(ctx context.Context, project *domain.Project) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Project, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.Project, error)
	Update(ctx context.Context, project *domain.Project) error
	// UpdateProgress rewrites only the derived counter fields and the
	// advisory status. The authoritative completed/archived statuses are set
	// through Update by the explicit admin actions.
	UpdateProgress(ctx context.Context, id primitive.ObjectID, counts ProgressCounts, percentage int, status domain.ProjectStatus) error
}

// MemberRepository defines the interface for project membership data.
type MemberRepository interface {
	Create(ctx context.Context, member *domain.ProjectMember) (primitive.ObjectID, error)
	GetByProject(ctx context.Context, projectID primitive.ObjectID) ([]domain.ProjectMember, error) // Stable order: addedAt, then _id
	GetByProjectAndUser(ctx context.Context, projectID, userID primitive.ObjectID) (*domain.ProjectMember, error)
	GetByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.ProjectMember, error)
	Delete(ctx context.Context, projectID, userID primitive.ObjectID) error
}

// ImageRepository defines the interface for per-image documents.
type ImageRepository interface {
	Create(ctx context.Context, image *domain.ProjectImage) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ProjectImage, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.ProjectImage, error)
	GetByProject(ctx context.Context, projectID primitive.ObjectID) ([]domain.ProjectImage, error)
	// GetAssignable returns unassigned images, plus assigned images whose
	// annotation is not completed when includeRedistributable is set.
	// Sorted by (uploadedAt, _id) so pool slicing is deterministic.
	GetAssignable(ctx context.Context, projectID primitive.ObjectID, includeRedistributable bool) ([]domain.ProjectImage, error)
	GetByAssignee(ctx context.Context, projectID, userID primitive.ObjectID) ([]domain.ProjectImage, error)
	Update(ctx context.Context, image *domain.ProjectImage) error
	// Assign conditionally claims an image for a user: the write matches
	// only if the image is currently unassigned, or owned by fromUser when
	// fromUser is non-nil. A lost race surfaces as ErrUpdateFailed instead
	// of silently double-assigning.
	Assign(ctx context.Context, imageID, userID primitive.ObjectID, fromUser *primitive.ObjectID) error
	// Unassign clears the owner and resets status to uploaded. AnnotatedBy
	// is left untouched.
	Unassign(ctx context.Context, imageID primitive.ObjectID) error
	MarkUnderReview(ctx context.Context, imageIDs []primitive.ObjectID, submissionID primitive.ObjectID) error
	MarkApproved(ctx context.Context, imageIDs []primitive.ObjectID, reviewerID primitive.ObjectID, reviewedAt time.Time) error
	MarkFlagged(ctx context.Context, imageIDs []primitive.ObjectID, reviewerID primitive.ObjectID, reviewedAt time.Time) error
	// MarkReturned hands non-flagged rejected images back to the annotator:
	// status annotated, review state untouched.
	MarkReturned(ctx context.Context, imageIDs []primitive.ObjectID) error
	CountProgress(ctx context.Context, projectID primitive.ObjectID) (ProgressCounts, error)
}

// AssignmentRepository defines the interface for the assignment ledger.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *domain.ImageAssignment) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ImageAssignment, error)
	GetByProject(ctx context.Context, projectID primitive.ObjectID) ([]domain.ImageAssignment, error)
	// GetPendingByUser returns the user's assignment in assigned/in_progress
	// state, or ErrNotFound. At most one such record exists per user per
	// project.
	GetPendingByUser(ctx context.Context, projectID, userID primitive.ObjectID) (*domain.ImageAssignment, error)
	Update(ctx context.Context, assignment *domain.ImageAssignment) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeletePendingByUser(ctx context.Context, projectID, userID primitive.ObjectID) error
}

// SubmissionRepository defines the interface for submission review rounds.
// Submissions are never deleted.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *domain.SubmissionReview) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.SubmissionReview, error)
	GetByProject(ctx context.Context, projectID primitive.ObjectID) ([]domain.SubmissionReview, error)
	GetPendingByUser(ctx context.Context, projectID, userID primitive.ObjectID) (*domain.SubmissionReview, error)
	GetPendingByProject(ctx context.Context, projectID primitive.ObjectID) ([]domain.SubmissionReview, error)
	Update(ctx context.Context, submission *domain.SubmissionReview) error
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}

// ActivityRepository records the audit trail. Writes are fire-and-forget
// from the services' point of view.
type ActivityRepository interface {
	Create(ctx context.Context, activity *domain.Activity) (primitive.ObjectID, error)
	GetRecentByProject(ctx context.Context, projectID primitive.ObjectID, limit int64) ([]domain.Activity, error)
}
