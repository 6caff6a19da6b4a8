package service

import (
	"aivid/annot8r/internal/domain"
	"aivid/annot8r/internal/repository"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrAssignmentNotFound      = errors.New("assignment not found")
	ErrSubmissionNotFound      = errors.New("submission not found")
	ErrAssignmentAccessDenied  = errors.New("assignment does not belong to this user")
	ErrProjectCompleted        = errors.New("project is already completed")
	ErrAlreadySubmitted        = errors.New("assignment is already submitted for review")
	ErrPendingSubmissionExists = errors.New("user already has a pending submission for this project")
	ErrNothingToSubmit         = errors.New("no submittable images on this assignment")
	ErrSubmissionNotPending    = errors.New("submission is not awaiting review")
	ErrInvalidDecision         = errors.New("invalid review decision")
	ErrProjectNotFullyApproved = errors.New("project cannot be completed")
)

// ReviewDecision is a reviewer's verdict on a submission. Status must be
// approved, rejected, or under_review (the optional intermediate state).
type ReviewDecision struct {
	Status        domain.SubmissionStatus
	Feedback      string
	FlaggedImages []domain.FlaggedImage
	ImageFeedback []domain.ImageFeedback
}

// SubmitEligibility is the canUserSubmit answer: a verdict plus the reason
// when submission is not possible.
type SubmitEligibility struct {
	CanSubmit bool   `json:"canSubmit"`
	Reason    string `json:"reason,omitempty"`
}

// SubmissionService drives the submit, review, approve/reject lifecycle and
// the explicit project completion action.
type SubmissionService interface {
	SubmitForReview(ctx context.Context, projectID, userID, assignmentID primitive.ObjectID, message string) (*domain.SubmissionReview, error)
	ReviewSubmission(ctx context.Context, submissionID, reviewerID primitive.ObjectID, decision ReviewDecision) (*domain.SubmissionReview, error)
	// CanUserSubmit is a pure read; it never mutates state.
	CanUserSubmit(ctx context.Context, projectID, userID primitive.ObjectID) (*SubmitEligibility, error)
	// CompleteProject is the explicit admin action that authoritatively
	// completes a project. It requires every image to be approved and
	// force-rejects any still-open submissions.
	CompleteProject(ctx context.Context, projectID, actorID primitive.ObjectID) error
}

// --- Service Implementation ---

type submissionService struct {
	projectRepo    repository.ProjectRepository
	imageRepo      repository.ImageRepository
	assignmentRepo repository.AssignmentRepository
	submissionRepo repository.SubmissionRepository
	progress       ProgressService
	locks          *ProjectLocks
	activity       *activityLogger
}

// NewSubmissionService creates a new instance of submissionService.
func NewSubmissionService(
	projectRepo repository.ProjectRepository,
	imageRepo repository.ImageRepository,
	assignmentRepo repository.AssignmentRepository,
	submissionRepo repository.SubmissionRepository,
	progress ProgressService,
	locks *ProjectLocks,
	activityRepo repository.ActivityRepository,
) SubmissionService {
	return &submissionService{
		projectRepo:    projectRepo,
		imageRepo:      imageRepo,
		assignmentRepo: assignmentRepo,
		submissionRepo: submissionRepo,
		progress:       progress,
		locks:          locks,
		activity:       newActivityLogger(activityRepo),
	}
}

// SubmitForReview opens a new review round for the user's assignment.
// Images already approved in earlier rounds are excluded from the snapshot.
func (s *submissionService) SubmitForReview(ctx context.Context, projectID, userID, assignmentID primitive.ObjectID, message string) (*domain.SubmissionReview, error) {
	if projectID == primitive.NilObjectID || userID == primitive.NilObjectID || assignmentID == primitive.NilObjectID {
		return nil, errors.New("project ID, user ID and assignment ID are required")
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	// Checked under the lock so a concurrent completion cannot slip in
	// between the check and the writes below.
	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	if project.IsCompleted() {
		return nil, ErrProjectCompleted
	}

	assignment, err := s.assignmentRepo.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	if assignment.ProjectID != projectID {
		return nil, ErrAssignmentNotFound
	}
	if assignment.UserID != userID {
		return nil, ErrAssignmentAccessDenied
	}
	if assignment.Status == domain.AssignmentSubmitted || assignment.Status == domain.AssignmentUnderReview {
		return nil, ErrAlreadySubmitted
	}

	// One pending submission per user per project.
	if _, err := s.submissionRepo.GetPendingByUser(ctx, projectID, userID); err == nil {
		return nil, ErrPendingSubmissionExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	images, err := s.imageRepo.GetByIDs(ctx, assignment.ImageIDs)
	if err != nil {
		return nil, err
	}
	var submittable []primitive.ObjectID
	for _, img := range images {
		if img.ReviewStatus != domain.ReviewApproved {
			submittable = append(submittable, img.ID)
		}
	}
	if len(submittable) == 0 {
		return nil, ErrNothingToSubmit
	}

	submission := &domain.SubmissionReview{
		ProjectID:    projectID,
		UserID:       userID,
		AssignmentID: assignmentID,
		ImageIDs:     submittable,
		Message:      message,
		Status:       domain.SubmissionSubmitted,
	}
	submissionID, err := s.submissionRepo.Create(ctx, submission)
	if err != nil {
		return nil, err
	}
	submission.ID = submissionID

	assignment.Status = domain.AssignmentSubmitted
	if err := s.assignmentRepo.Update(ctx, assignment); err != nil {
		return nil, err
	}
	if err := s.imageRepo.MarkUnderReview(ctx, submittable, submissionID); err != nil {
		return nil, err
	}

	if _, err := s.progress.Recompute(ctx, projectID); err != nil {
		return nil, err
	}

	s.activity.record(ctx, projectID, userID, "submission_created",
		fmt.Sprintf("submitted %d images for review", len(submittable)))
	return submission, nil
}

// ReviewSubmission applies a reviewer decision to a pending submission,
// propagates it to the images and the owning assignment, and appends the
// decision to the submission's history.
func (s *submissionService) ReviewSubmission(ctx context.Context, submissionID, reviewerID primitive.ObjectID, decision ReviewDecision) (*domain.SubmissionReview, error) {
	if submissionID == primitive.NilObjectID || reviewerID == primitive.NilObjectID {
		return nil, errors.New("submission ID and reviewer ID are required")
	}

	// First fetch only locates the project; the state check happens again
	// under the project lock.
	located, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}

	unlock := s.locks.Lock(located.ProjectID)
	defer unlock()

	submission, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	if !submission.IsPending() {
		return nil, ErrSubmissionNotPending
	}
	if err := validateDecision(submission, decision); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	submission.ReviewHistory = append(submission.ReviewHistory, domain.ReviewRecord{
		ReviewerID:    reviewerID,
		Status:        decision.Status,
		Feedback:      decision.Feedback,
		FlaggedImages: decision.FlaggedImages,
		ImageFeedback: decision.ImageFeedback,
		ReviewedAt:    now,
	})
	submission.Status = decision.Status
	submission.Feedback = decision.Feedback
	submission.FlaggedImages = decision.FlaggedImages
	submission.ImageFeedback = decision.ImageFeedback

	if err := s.submissionRepo.Update(ctx, submission); err != nil {
		return nil, err
	}

	assignment, err := s.assignmentRepo.GetByID(ctx, submission.AssignmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}

	switch decision.Status {
	case domain.SubmissionApproved:
		if err := s.imageRepo.MarkApproved(ctx, submission.ImageIDs, reviewerID, now); err != nil {
			return nil, err
		}
		assignment.Status = domain.AssignmentCompleted
	case domain.SubmissionRejected:
		flagged := make([]primitive.ObjectID, 0, len(decision.FlaggedImages))
		flaggedSet := make(map[primitive.ObjectID]bool, len(decision.FlaggedImages))
		for _, f := range decision.FlaggedImages {
			flagged = append(flagged, f.ImageID)
			flaggedSet[f.ImageID] = true
		}
		var returned []primitive.ObjectID
		for _, id := range submission.ImageIDs {
			if !flaggedSet[id] {
				returned = append(returned, id)
			}
		}
		if err := s.imageRepo.MarkFlagged(ctx, flagged, reviewerID, now); err != nil {
			return nil, err
		}
		if err := s.imageRepo.MarkReturned(ctx, returned); err != nil {
			return nil, err
		}
		assignment.Status = domain.AssignmentNeedsRevision
	case domain.SubmissionUnderReview:
		assignment.Status = domain.AssignmentUnderReview
	}

	// Partial approvals can converge over multiple rounds: once every image
	// of the assignment is approved, the assignment is done regardless of
	// this round's outcome.
	if done, err := s.assignmentFullyApproved(ctx, assignment); err != nil {
		return nil, err
	} else if done {
		assignment.Status = domain.AssignmentCompleted
		assignment.CompletedImages = assignment.TotalImages
	}
	if err := s.assignmentRepo.Update(ctx, assignment); err != nil {
		return nil, err
	}

	counts, err := s.progress.Recompute(ctx, submission.ProjectID)
	if err != nil {
		return nil, err
	}
	if counts.Total > 0 && counts.Approved == counts.Total {
		// Advisory only. Completing the project stays an explicit admin
		// action.
		log.Printf("INFO: all %d images of project %s are approved", counts.Total, submission.ProjectID.Hex())
	}

	s.activity.record(ctx, submission.ProjectID, reviewerID, "submission_reviewed",
		fmt.Sprintf("submission %s reviewed: %s", submissionID.Hex(), decision.Status))
	return submission, nil
}

func validateDecision(submission *domain.SubmissionReview, decision ReviewDecision) error {
	switch decision.Status {
	case domain.SubmissionApproved, domain.SubmissionRejected, domain.SubmissionUnderReview:
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidDecision, decision.Status)
	}
	for _, f := range decision.FlaggedImages {
		if !containsID(submission.ImageIDs, f.ImageID) {
			return fmt.Errorf("%w: flagged image %s is not part of this submission", ErrInvalidDecision, f.ImageID.Hex())
		}
	}
	for _, f := range decision.ImageFeedback {
		if !containsID(submission.ImageIDs, f.ImageID) {
			return fmt.Errorf("%w: feedback image %s is not part of this submission", ErrInvalidDecision, f.ImageID.Hex())
		}
	}
	return nil
}

func (s *submissionService) assignmentFullyApproved(ctx context.Context, assignment *domain.ImageAssignment) (bool, error) {
	images, err := s.imageRepo.GetByIDs(ctx, assignment.ImageIDs)
	if err != nil {
		return false, err
	}
	if len(images) == 0 {
		return false, nil
	}
	for _, img := range images {
		if img.ReviewStatus != domain.ReviewApproved {
			return false, nil
		}
	}
	return true, nil
}

// CanUserSubmit reports whether the user could open a submission right now,
// with the blocking reason when they cannot.
func (s *submissionService) CanUserSubmit(ctx context.Context, projectID, userID primitive.ObjectID) (*SubmitEligibility, error) {
	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	if project.IsCompleted() {
		return &SubmitEligibility{Reason: "project is already completed"}, nil
	}

	if _, err := s.submissionRepo.GetPendingByUser(ctx, projectID, userID); err == nil {
		return &SubmitEligibility{Reason: "a previous submission is still awaiting review"}, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	images, err := s.imageRepo.GetByAssignee(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		if img.AnnotationStatus == domain.AnnotationCompleted && img.ReviewStatus != domain.ReviewApproved {
			return &SubmitEligibility{CanSubmit: true}, nil
		}
	}
	return &SubmitEligibility{Reason: "no completed annotations are ready for review"}, nil
}

// CompleteProject marks a fully-approved project as completed and closes
// any submission rounds still open with an auto-generated rejection.
func (s *submissionService) CompleteProject(ctx context.Context, projectID, actorID primitive.ObjectID) error {
	unlock := s.locks.Lock(projectID)
	defer unlock()

	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProjectNotFound
		}
		return err
	}
	if project.IsCompleted() {
		return ErrProjectCompleted
	}

	counts, err := s.imageRepo.CountProgress(ctx, projectID)
	if err != nil {
		return err
	}
	if counts.Total == 0 || counts.Approved != counts.Total {
		return fmt.Errorf("%w: %d of %d images approved", ErrProjectNotFullyApproved, counts.Approved, counts.Total)
	}

	pending, err := s.submissionRepo.GetPendingByProject(ctx, projectID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range pending {
		sub := &pending[i]
		note := "Submission closed automatically: the project was marked complete."
		sub.Status = domain.SubmissionRejected
		sub.Feedback = note
		sub.ReviewHistory = append(sub.ReviewHistory, domain.ReviewRecord{
			ReviewerID: actorID,
			Status:     domain.SubmissionRejected,
			Feedback:   note,
			ReviewedAt: now,
		})
		if err := s.submissionRepo.Update(ctx, sub); err != nil {
			return err
		}
	}

	project.Status = domain.ProjectCompleted
	project.TotalImages = counts.Total
	project.AnnotatedImages = counts.Annotated
	project.ReviewedImages = counts.Reviewed
	project.ApprovedImages = counts.Approved
	project.CompletionPercentage = 100
	if err := s.projectRepo.Update(ctx, project); err != nil {
		return err
	}

	s.activity.record(ctx, projectID, actorID, "project_completed",
		fmt.Sprintf("project marked complete with %d approved images", counts.Approved))
	return nil
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
