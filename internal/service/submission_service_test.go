package service

import (
	"aivid/annot8r/internal/domain"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// annotateAll marks every given image as annotation-completed by userID,
// going through the repository the way the editor hook would leave them.
func annotateAll(t *testing.T, f *fixture, userID primitive.ObjectID, imageIDs []primitive.ObjectID) {
	t.Helper()
	for _, id := range imageIDs {
		img, err := f.images.GetByID(context.Background(), id)
		require.NoError(t, err)
		img.AnnotationStatus = domain.AnnotationCompleted
		img.AnnotatedBy = &userID
		img.Status = domain.ImageAnnotated
		require.NoError(t, f.images.Update(context.Background(), img))
	}
}

// setupAnnotatedAssignment distributes n images to one annotator and marks
// them all annotated, returning the pending assignment.
func setupAnnotatedAssignment(t *testing.T, f *fixture, n int) (*domain.Project, primitive.ObjectID, *domain.ImageAssignment) {
	t.Helper()
	project := f.addProject()
	userID := f.addAnnotator(project.ID)
	imageIDs := f.addImages(project.ID, n)

	require.NoError(t, f.distribution().DistributeManual(context.Background(), project.ID,
		[]ManualTarget{{UserID: userID, Count: n}}, primitive.NewObjectID(), false))
	annotateAll(t, f, userID, imageIDs)

	assignment, err := f.assignments.GetPendingByUser(context.Background(), project.ID, userID)
	require.NoError(t, err)
	return project, userID, assignment
}

func TestSubmitAndApproveRoundTrip(t *testing.T) {
	f := newFixture()
	project, userID, assignment := setupAnnotatedAssignment(t, f, 3)
	svc := f.submission()

	submission, err := svc.SubmitForReview(context.Background(), project.ID, userID, assignment.ID, "first batch")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionSubmitted, submission.Status)
	assert.Len(t, submission.ImageIDs, 3)

	updated, err := f.assignments.GetByID(context.Background(), assignment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentSubmitted, updated.Status)

	reviewerID := primitive.NewObjectID()
	reviewed, err := svc.ReviewSubmission(context.Background(), submission.ID, reviewerID, ReviewDecision{
		Status:   domain.SubmissionApproved,
		Feedback: "clean work",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionApproved, reviewed.Status)
	require.Len(t, reviewed.ReviewHistory, 1)
	assert.Equal(t, reviewerID, reviewed.ReviewHistory[0].ReviewerID)

	updated, err = f.assignments.GetByID(context.Background(), assignment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentCompleted, updated.Status)
	assert.Equal(t, updated.TotalImages, updated.CompletedImages)

	for _, id := range submission.ImageIDs {
		img, err := f.images.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.ReviewApproved, img.ReviewStatus)
		require.NotNil(t, img.ReviewedBy)
		assert.Equal(t, reviewerID, *img.ReviewedBy)
	}

	// Counters converge to 100% but the lifecycle status is untouched;
	// only the explicit completion action may set it to completed.
	p, err := f.projects.GetByID(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, p.CompletionPercentage)
	assert.Equal(t, 3, p.ApprovedImages)
	assert.Equal(t, domain.ProjectInProgress, p.Status)
}

func TestRejectFlagsSomeAndReturnsRest(t *testing.T) {
	f := newFixture()
	project, userID, assignment := setupAnnotatedAssignment(t, f, 5)
	svc := f.submission()

	submission, err := svc.SubmitForReview(context.Background(), project.ID, userID, assignment.ID, "")
	require.NoError(t, err)

	reviewerID := primitive.NewObjectID()
	flagged := []domain.FlaggedImage{
		{ImageID: submission.ImageIDs[1], Reason: "wrong class"},
		{ImageID: submission.ImageIDs[3], Reason: "missing box"},
	}
	_, err = svc.ReviewSubmission(context.Background(), submission.ID, reviewerID, ReviewDecision{
		Status:        domain.SubmissionRejected,
		Feedback:      "two images need fixes",
		FlaggedImages: flagged,
	})
	require.NoError(t, err)

	updated, err := f.assignments.GetByID(context.Background(), assignment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentNeedsRevision, updated.Status)

	for i, id := range submission.ImageIDs {
		img, err := f.images.GetByID(context.Background(), id)
		require.NoError(t, err)
		if i == 1 || i == 3 {
			assert.Equal(t, domain.ReviewFlagged, img.ReviewStatus)
		} else {
			assert.Equal(t, domain.ImageAnnotated, img.Status)
		}
		// Ownership never moved; the annotator fixes their own rejects.
		require.NotNil(t, img.AssignedTo)
		assert.Equal(t, userID, *img.AssignedTo)
	}
}

func TestSubmitExcludesAlreadyApprovedImages(t *testing.T) {
	f := newFixture()
	project, userID, assignment := setupAnnotatedAssignment(t, f, 4)
	svc := f.submission()

	// Approve two images out of band, as an earlier round would have.
	reviewerID := primitive.NewObjectID()
	require.NoError(t, f.images.MarkApproved(context.Background(),
		assignment.ImageIDs[:2], reviewerID, time.Now().UTC()))

	submission, err := svc.SubmitForReview(context.Background(), project.ID, userID, assignment.ID, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, assignment.ImageIDs[2:], submission.ImageIDs)
}

func TestSubmitConflicts(t *testing.T) {
	f := newFixture()
	project, userID, assignment := setupAnnotatedAssignment(t, f, 2)
	svc := f.submission()

	_, err := svc.SubmitForReview(context.Background(), project.ID, userID, assignment.ID, "")
	require.NoError(t, err)

	_, err = svc.SubmitForReview(context.Background(), project.ID, userID, assignment.ID, "")
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestSubmitDeniedForOtherUser(t *testing.T) {
	f := newFixture()
	project, _, assignment := setupAnnotatedAssignment(t, f, 2)

	_, err := f.submission().SubmitForReview(context.Background(), project.ID, primitive.NewObjectID(), assignment.ID, "")
	assert.ErrorIs(t, err, ErrAssignmentAccessDenied)
}

func TestSubmitOnCompletedProject(t *testing.T) {
	f := newFixture()
	project, userID, assignment := setupAnnotatedAssignment(t, f, 2)

	p, err := f.projects.GetByID(context.Background(), project.ID)
	require.NoError(t, err)
	p.Status = domain.ProjectCompleted
	require.NoError(t, f.projects.Update(context.Background(), p))

	_, err = f.submission().SubmitForReview(context.Background(), project.ID, userID, assignment.ID, "")
	assert.ErrorIs(t, err, ErrProjectCompleted)
}

func TestSubmitSeesCompletionFinishedWhileWaitingForLock(t *testing.T) {
	f := newFixture()
	project, userID, assignment := setupAnnotatedAssignment(t, f, 2)
	svc := f.submission()

	// Hold the project lock so the submit blocks before its completed
	// check, then complete the project out from under it.
	unlock := f.locks.Lock(project.ID)
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.SubmitForReview(context.Background(), project.ID, userID, assignment.ID, "")
		errCh <- err
	}()

	p, err := f.projects.GetByID(context.Background(), project.ID)
	require.NoError(t, err)
	p.Status = domain.ProjectCompleted
	require.NoError(t, f.projects.Update(context.Background(), p))
	unlock()

	assert.ErrorIs(t, <-errCh, ErrProjectCompleted)
}

func TestReviewRejectsInvalidDecision(t *testing.T) {
	f := newFixture()
	project, userID, assignment := setupAnnotatedAssignment(t, f, 2)
	svc := f.submission()

	submission, err := svc.SubmitForReview(context.Background(), project.ID, userID, assignment.ID, "")
	require.NoError(t, err)

	reviewerID := primitive.NewObjectID()

	_, err = svc.ReviewSubmission(context.Background(), submission.ID, reviewerID, ReviewDecision{Status: "maybe"})
	assert.ErrorIs(t, err, ErrInvalidDecision)

	// Flagging an image outside the submission snapshot is invalid too.
	_, err = svc.ReviewSubmission(context.Background(), submission.ID, reviewerID, ReviewDecision{
		Status:        domain.SubmissionRejected,
		FlaggedImages: []domain.FlaggedImage{{ImageID: primitive.NewObjectID()}},
	})
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestReviewTwiceConflicts(t *testing.T) {
	f := newFixture()
	project, userID, assignment := setupAnnotatedAssignment(t, f, 2)
	svc := f.submission()

	submission, err := svc.SubmitForReview(context.Background(), project.ID, userID, assignment.ID, "")
	require.NoError(t, err)

	reviewerID := primitive.NewObjectID()
	_, err = svc.ReviewSubmission(context.Background(), submission.ID, reviewerID, ReviewDecision{Status: domain.SubmissionApproved})
	require.NoError(t, err)

	_, err = svc.ReviewSubmission(context.Background(), submission.ID, reviewerID, ReviewDecision{Status: domain.SubmissionApproved})
	assert.ErrorIs(t, err, ErrSubmissionNotPending)
}

func TestPartialApprovalConvergesOverRounds(t *testing.T) {
	f := newFixture()
	project, userID, assignment := setupAnnotatedAssignment(t, f, 3)
	svc := f.submission()

	// Round one: reject with one image flagged, the good two are returned.
	submission, err := svc.SubmitForReview(context.Background(), project.ID, userID, assignment.ID, "")
	require.NoError(t, err)
	reviewerID := primitive.NewObjectID()
	_, err = svc.ReviewSubmission(context.Background(), submission.ID, reviewerID, ReviewDecision{
		Status:        domain.SubmissionRejected,
		FlaggedImages: []domain.FlaggedImage{{ImageID: submission.ImageIDs[0], Reason: "redo"}},
	})
	require.NoError(t, err)

	// The annotator reworks and resubmits everything still unapproved.
	annotateAll(t, f, userID, submission.ImageIDs)
	second, err := svc.SubmitForReview(context.Background(), project.ID, userID, assignment.ID, "fixed")
	require.NoError(t, err)
	assert.Len(t, second.ImageIDs, 3)

	_, err = svc.ReviewSubmission(context.Background(), second.ID, reviewerID, ReviewDecision{Status: domain.SubmissionApproved})
	require.NoError(t, err)

	final, err := f.assignments.GetByID(context.Background(), assignment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentCompleted, final.Status)
	assert.Equal(t, final.TotalImages, final.CompletedImages)
}

func TestCanUserSubmit(t *testing.T) {
	f := newFixture()
	project, userID, assignment := setupAnnotatedAssignment(t, f, 2)
	svc := f.submission()

	eligibility, err := svc.CanUserSubmit(context.Background(), project.ID, userID)
	require.NoError(t, err)
	assert.True(t, eligibility.CanSubmit)

	// Asking is a pure read: the answer does not change by repetition.
	again, err := svc.CanUserSubmit(context.Background(), project.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, eligibility, again)

	_, err = svc.SubmitForReview(context.Background(), project.ID, userID, assignment.ID, "")
	require.NoError(t, err)

	eligibility, err = svc.CanUserSubmit(context.Background(), project.ID, userID)
	require.NoError(t, err)
	assert.False(t, eligibility.CanSubmit)
	assert.Equal(t, "a previous submission is still awaiting review", eligibility.Reason)
}

func TestCanUserSubmitWithNothingAnnotated(t *testing.T) {
	f := newFixture()
	project := f.addProject()
	userID := f.addAnnotator(project.ID)
	f.addImages(project.ID, 2)
	require.NoError(t, f.distribution().DistributeManual(context.Background(), project.ID,
		[]ManualTarget{{UserID: userID, Count: 2}}, primitive.NewObjectID(), false))

	eligibility, err := f.submission().CanUserSubmit(context.Background(), project.ID, userID)
	require.NoError(t, err)
	assert.False(t, eligibility.CanSubmit)
	assert.Equal(t, "no completed annotations are ready for review", eligibility.Reason)
}

func TestApprovedReviewLeavesProjectOpen(t *testing.T) {
	f := newFixture()
	project, userID, assignment := setupAnnotatedAssignment(t, f, 1)
	svc := f.submission()

	submission, err := svc.SubmitForReview(context.Background(), project.ID, userID, assignment.ID, "")
	require.NoError(t, err)
	reviewerID := primitive.NewObjectID()
	_, err = svc.ReviewSubmission(context.Background(), submission.ID, reviewerID, ReviewDecision{
		Status: domain.SubmissionApproved,
	})
	require.NoError(t, err)

	// Every image is approved, yet the project is still open for work.
	p, err := f.projects.GetByID(context.Background(), project.ID)
	require.NoError(t, err)
	assert.NotEqual(t, domain.ProjectCompleted, p.Status)

	// A new image arriving afterwards goes through the full round trip.
	newImageIDs := f.addImages(project.ID, 1)
	require.NoError(t, f.distribution().DistributeManual(context.Background(), project.ID,
		[]ManualTarget{{UserID: userID, Count: 1}}, reviewerID, false))
	annotateAll(t, f, userID, newImageIDs)

	nextAssignment, err := f.assignments.GetPendingByUser(context.Background(), project.ID, userID)
	require.NoError(t, err)
	second, err := svc.SubmitForReview(context.Background(), project.ID, userID, nextAssignment.ID, "")
	require.NoError(t, err)
	_, err = svc.ReviewSubmission(context.Background(), second.ID, reviewerID, ReviewDecision{
		Status: domain.SubmissionApproved,
	})
	require.NoError(t, err)

	// Counters track the grown image set, and the explicit completion
	// action is still available.
	p, err = f.projects.GetByID(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalImages)

	require.NoError(t, svc.CompleteProject(context.Background(), project.ID, reviewerID))
	p, err = f.projects.GetByID(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectCompleted, p.Status)
}

func TestCompleteProjectRequiresFullApproval(t *testing.T) {
	f := newFixture()
	project, _, assignment := setupAnnotatedAssignment(t, f, 10)
	svc := f.submission()

	// Approve nine of ten.
	reviewerID := primitive.NewObjectID()
	require.NoError(t, f.images.MarkApproved(context.Background(),
		assignment.ImageIDs[:9], reviewerID, time.Now().UTC()))

	err := svc.CompleteProject(context.Background(), project.ID, reviewerID)
	require.ErrorIs(t, err, ErrProjectNotFullyApproved)
	assert.Contains(t, err.Error(), "9 of 10 images approved")

	p, err := f.projects.GetByID(context.Background(), project.ID)
	require.NoError(t, err)
	assert.NotEqual(t, domain.ProjectCompleted, p.Status)
}

func TestCompleteProjectClosesPendingSubmissions(t *testing.T) {
	f := newFixture()
	project, userID, assignment := setupAnnotatedAssignment(t, f, 3)
	svc := f.submission()

	submission, err := svc.SubmitForReview(context.Background(), project.ID, userID, assignment.ID, "")
	require.NoError(t, err)

	// All images get approved directly; the submission round is still open.
	adminID := primitive.NewObjectID()
	require.NoError(t, f.images.MarkApproved(context.Background(), assignment.ImageIDs, adminID, time.Now().UTC()))

	require.NoError(t, svc.CompleteProject(context.Background(), project.ID, adminID))

	p, err := f.projects.GetByID(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectCompleted, p.Status)
	assert.Equal(t, 100, p.CompletionPercentage)
	assert.Equal(t, 3, p.ApprovedImages)

	closed, err := f.submissions.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionRejected, closed.Status)
	assert.Contains(t, closed.Feedback, "marked complete")
	require.Len(t, closed.ReviewHistory, 1)
	assert.Equal(t, adminID, closed.ReviewHistory[0].ReviewerID)

	// Completing twice conflicts.
	err = svc.CompleteProject(context.Background(), project.ID, adminID)
	assert.ErrorIs(t, err, ErrProjectCompleted)
}
