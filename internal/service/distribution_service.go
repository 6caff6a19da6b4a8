package service

import (
	"aivid/annot8r/internal/domain"
	"aivid/annot8r/internal/repository"
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrProjectNotFound    = errors.New("project not found")
	ErrEmptyPool          = errors.New("no images available for assignment")
	ErrNotAnnotatorMember = errors.New("target user is not an annotator member of this project")
	ErrNoAnnotators       = errors.New("project has no annotator members")
	ErrImageClaimLost     = errors.New("image was claimed by a concurrent distribution")
)

// ManualTarget names one annotator and how many pool images they should
// receive. Order matters: earlier targets draw from the pool first.
type ManualTarget struct {
	UserID primitive.ObjectID
	Count  int
}

// UserAssignmentMetrics is the per-annotator progress row.
type UserAssignmentMetrics struct {
	UserID          primitive.ObjectID `json:"userId"`
	AssignedImages  int                `json:"assignedImages"`
	AnnotatedImages int                `json:"annotatedImages"`
	ApprovedImages  int                `json:"approvedImages"`
	Status          string             `json:"status,omitempty"` // Pending assignment status, if any
}

// AssignmentMetrics aggregates distribution progress for a project.
type AssignmentMetrics struct {
	ProjectID        primitive.ObjectID      `json:"projectId"`
	TotalImages      int                     `json:"totalImages"`
	AssignedImages   int                     `json:"assignedImages"`
	UnassignedImages int                     `json:"unassignedImages"`
	PerUser          []UserAssignmentMetrics `json:"perUser"`
}

// DistributionService allocates pool images to annotators and keeps the
// assignment ledger consistent with image ownership.
type DistributionService interface {
	// DistributeManual assigns explicit per-user counts, drawing from the
	// pool in target order. With resetDistribution, assigned-but-unannotated
	// images are reclaimed from their current owners first.
	DistributeManual(ctx context.Context, projectID primitive.ObjectID, targets []ManualTarget, actorID primitive.ObjectID, resetDistribution bool) error
	// DistributeSmart splits the pool evenly over all annotator members,
	// handing the remainder one extra image each to the earliest members in
	// membership order.
	DistributeSmart(ctx context.Context, projectID, actorID primitive.ObjectID, resetDistribution bool) error
	GetAssignmentMetrics(ctx context.Context, projectID primitive.ObjectID) (*AssignmentMetrics, error)
}

// --- Service Implementation ---

type distributionService struct {
	projectRepo    repository.ProjectRepository
	memberRepo     repository.MemberRepository
	imageRepo      repository.ImageRepository
	assignmentRepo repository.AssignmentRepository
	locks          *ProjectLocks
	activity       *activityLogger
}

// NewDistributionService creates a new instance of distributionService.
// The locks argument must be the shared per-project lock registry so
// distribution, submission and membership changes serialize against each
// other.
func NewDistributionService(
	projectRepo repository.ProjectRepository,
	memberRepo repository.MemberRepository,
	imageRepo repository.ImageRepository,
	assignmentRepo repository.AssignmentRepository,
	locks *ProjectLocks,
	activityRepo repository.ActivityRepository,
) DistributionService {
	return &distributionService{
		projectRepo:    projectRepo,
		memberRepo:     memberRepo,
		imageRepo:      imageRepo,
		assignmentRepo: assignmentRepo,
		locks:          locks,
		activity:       newActivityLogger(activityRepo),
	}
}

// allocation is one user's slice of the pool, decided before any write.
type allocation struct {
	userID primitive.ObjectID
	images []domain.ProjectImage
}

func (s *distributionService) DistributeManual(ctx context.Context, projectID primitive.ObjectID, targets []ManualTarget, actorID primitive.ObjectID, resetDistribution bool) error {
	if projectID == primitive.NilObjectID {
		return errors.New("project ID is required")
	}
	if _, err := s.projectRepo.GetByID(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProjectNotFound
		}
		return err
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	// Validate every target before touching anything, so a bad user later
	// in the batch cannot leave a half-applied distribution behind.
	for _, target := range targets {
		member, err := s.memberRepo.GetByProjectAndUser(ctx, projectID, target.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrNotAnnotatorMember, target.UserID.Hex())
			}
			return err
		}
		if !member.IsAnnotator() {
			return fmt.Errorf("%w: %s", ErrNotAnnotatorMember, target.UserID.Hex())
		}
	}

	pool, err := s.imageRepo.GetAssignable(ctx, projectID, resetDistribution)
	if err != nil {
		return err
	}
	if len(pool) == 0 {
		return ErrEmptyPool
	}

	allocations := sliceManually(pool, targets)
	if err := s.apply(ctx, projectID, allocations); err != nil {
		return err
	}

	s.activity.record(ctx, projectID, actorID, "images_distributed",
		fmt.Sprintf("manual distribution of %d images to %d users (reset=%t)", len(pool), len(allocations), resetDistribution))
	return nil
}

func (s *distributionService) DistributeSmart(ctx context.Context, projectID, actorID primitive.ObjectID, resetDistribution bool) error {
	if projectID == primitive.NilObjectID {
		return errors.New("project ID is required")
	}
	if _, err := s.projectRepo.GetByID(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProjectNotFound
		}
		return err
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	members, err := s.memberRepo.GetByProject(ctx, projectID)
	if err != nil {
		return err
	}
	var annotators []domain.ProjectMember
	for _, m := range members {
		if m.IsAnnotator() {
			annotators = append(annotators, m)
		}
	}
	if len(annotators) == 0 {
		return ErrNoAnnotators
	}

	pool, err := s.imageRepo.GetAssignable(ctx, projectID, resetDistribution)
	if err != nil {
		return err
	}
	if len(pool) == 0 {
		return ErrEmptyPool
	}

	// Even split, with the remainder going one extra image each to the
	// earliest members in membership order.
	base := len(pool) / len(annotators)
	remainder := len(pool) % len(annotators)
	targets := make([]ManualTarget, len(annotators))
	for i, m := range annotators {
		count := base
		if i < remainder {
			count++
		}
		targets[i] = ManualTarget{UserID: m.UserID, Count: count}
	}

	allocations := sliceManually(pool, targets)
	if err := s.apply(ctx, projectID, allocations); err != nil {
		return err
	}

	s.activity.record(ctx, projectID, actorID, "images_distributed",
		fmt.Sprintf("smart distribution of %d images over %d annotators (reset=%t)", len(pool), len(annotators), resetDistribution))
	return nil
}

// sliceManually walks the pool in its deterministic order and hands each
// target up to its requested count. Targets with a non-positive count, or
// reached after the pool ran dry, get nothing.
func sliceManually(pool []domain.ProjectImage, targets []ManualTarget) []allocation {
	var allocations []allocation
	next := 0
	for _, target := range targets {
		if target.Count <= 0 || next >= len(pool) {
			continue
		}
		take := target.Count
		if take > len(pool)-next {
			take = len(pool) - next
		}
		allocations = append(allocations, allocation{
			userID: target.UserID,
			images: pool[next : next+take],
		})
		next += take
	}
	return allocations
}

// apply commits the decided allocations: reclaim moved images from their
// previous assignments, claim ownership per image, then merge each user's
// batch into their pending assignment record.
func (s *distributionService) apply(ctx context.Context, projectID primitive.ObjectID, allocations []allocation) error {
	// Ledger records are loaded once; reclaims mutate this in-memory view
	// before the writes go out.
	ledger, err := s.assignmentRepo.GetByProject(ctx, projectID)
	if err != nil {
		return err
	}

	for _, alloc := range allocations {
		var movedIDs []primitive.ObjectID
		for _, img := range alloc.images {
			if img.IsAssigned() && *img.AssignedTo == alloc.userID {
				// Already with the right user; the merge below keeps the
				// ledger consistent without reclaiming.
				movedIDs = append(movedIDs, img.ID)
				continue
			}
			if img.IsAssigned() {
				if err := s.reclaimFromLedger(ctx, ledger, img.ID, *img.AssignedTo); err != nil {
					return err
				}
			}
			if err := s.imageRepo.Assign(ctx, img.ID, alloc.userID, img.AssignedTo); err != nil {
				if errors.Is(err, repository.ErrUpdateFailed) {
					return fmt.Errorf("%w: %s", ErrImageClaimLost, img.ID.Hex())
				}
				return err
			}
			movedIDs = append(movedIDs, img.ID)
		}
		if err := s.mergeIntoPending(ctx, projectID, alloc.userID, movedIDs); err != nil {
			return err
		}
	}
	return nil
}

// reclaimFromLedger removes an image from the previous owner's active
// assignment records, deleting any record this empties.
func (s *distributionService) reclaimFromLedger(ctx context.Context, ledger []domain.ImageAssignment, imageID, ownerID primitive.ObjectID) error {
	for i := range ledger {
		record := &ledger[i]
		if record.UserID != ownerID || record.Status == domain.AssignmentCompleted {
			continue
		}
		if !record.ContainsImage(imageID) {
			continue
		}

		remaining := record.ImageIDs[:0:0]
		for _, id := range record.ImageIDs {
			if id != imageID {
				remaining = append(remaining, id)
			}
		}
		record.ImageIDs = remaining
		record.TotalImages = len(remaining)
		if record.CompletedImages > record.TotalImages {
			record.CompletedImages = record.TotalImages
		}

		if len(remaining) == 0 {
			if err := s.assignmentRepo.Delete(ctx, record.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			continue
		}
		if err := s.assignmentRepo.Update(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// mergeIntoPending appends newly assigned images to the user's pending
// assignment, or opens a new one. At most one pending record exists per
// user per project; this merge is what maintains that invariant.
func (s *distributionService) mergeIntoPending(ctx context.Context, projectID, userID primitive.ObjectID, imageIDs []primitive.ObjectID) error {
	if len(imageIDs) == 0 {
		return nil
	}

	pending, err := s.assignmentRepo.GetPendingByUser(ctx, projectID, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		_, err = s.assignmentRepo.Create(ctx, &domain.ImageAssignment{
			ProjectID: projectID,
			UserID:    userID,
			ImageIDs:  imageIDs,
			Status:    domain.AssignmentAssigned,
		})
		return err
	}

	for _, id := range imageIDs {
		if !pending.ContainsImage(id) {
			pending.ImageIDs = append(pending.ImageIDs, id)
		}
	}
	pending.TotalImages = len(pending.ImageIDs)
	return s.assignmentRepo.Update(ctx, pending)
}

// GetAssignmentMetrics reports per-annotator and aggregate progress from
// the current image documents and ledger records. Pure read.
func (s *distributionService) GetAssignmentMetrics(ctx context.Context, projectID primitive.ObjectID) (*AssignmentMetrics, error) {
	if _, err := s.projectRepo.GetByID(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	images, err := s.imageRepo.GetByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.assignmentRepo.GetByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	metrics := &AssignmentMetrics{ProjectID: projectID, TotalImages: len(images)}

	perUser := make(map[primitive.ObjectID]*UserAssignmentMetrics)
	var order []primitive.ObjectID
	rowFor := func(userID primitive.ObjectID) *UserAssignmentMetrics {
		row, ok := perUser[userID]
		if !ok {
			row = &UserAssignmentMetrics{UserID: userID}
			perUser[userID] = row
			order = append(order, userID)
		}
		return row
	}

	for _, img := range images {
		if !img.IsAssigned() {
			continue
		}
		metrics.AssignedImages++
		row := rowFor(*img.AssignedTo)
		row.AssignedImages++
		if img.AnnotationStatus == domain.AnnotationCompleted {
			row.AnnotatedImages++
		}
		if img.ReviewStatus == domain.ReviewApproved {
			row.ApprovedImages++
		}
	}
	metrics.UnassignedImages = metrics.TotalImages - metrics.AssignedImages

	// Ledger order is stable (assignedAt, _id), so the latest record's
	// status wins per user.
	for _, record := range ledger {
		rowFor(record.UserID).Status = string(record.Status)
	}

	metrics.PerUser = make([]UserAssignmentMetrics, 0, len(order))
	for _, userID := range order {
		metrics.PerUser = append(metrics.PerUser, *perUser[userID])
	}
	return metrics, nil
}
