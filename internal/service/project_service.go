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
	ErrUserNotFound   = errors.New("user not found")
	ErrAlreadyMember  = errors.New("user is already a member of this project")
	ErrMemberNotFound = errors.New("user is not a member of this project")
)

// ProjectService manages projects and their memberships. Removing a member
// reclaims their assigned work so their images flow back into the pool.
type ProjectService interface {
	CreateProject(ctx context.Context, name, description string, classes []string, creatorID primitive.ObjectID) (*domain.Project, error)
	GetProject(ctx context.Context, projectID primitive.ObjectID) (*domain.Project, error)
	GetProjectsForUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Project, error)
	GetMembers(ctx context.Context, projectID primitive.ObjectID) ([]domain.ProjectMember, error)
	AddMember(ctx context.Context, projectID, userID primitive.ObjectID, role domain.MemberRole, actorID primitive.ObjectID) (*domain.ProjectMember, error)
	RemoveMember(ctx context.Context, projectID, userID, actorID primitive.ObjectID) error
	GetRecentActivity(ctx context.Context, projectID primitive.ObjectID, limit int64) ([]domain.Activity, error)
}

// --- Service Implementation ---

type projectService struct {
	projectRepo    repository.ProjectRepository
	memberRepo     repository.MemberRepository
	imageRepo      repository.ImageRepository
	assignmentRepo repository.AssignmentRepository
	userRepo       repository.UserRepository
	activityRepo   repository.ActivityRepository
	progress       ProgressService
	locks          *ProjectLocks
	activity       *activityLogger
}

// NewProjectService creates a new instance of projectService.
func NewProjectService(
	projectRepo repository.ProjectRepository,
	memberRepo repository.MemberRepository,
	imageRepo repository.ImageRepository,
	assignmentRepo repository.AssignmentRepository,
	userRepo repository.UserRepository,
	activityRepo repository.ActivityRepository,
	progress ProgressService,
	locks *ProjectLocks,
) ProjectService {
	return &projectService{
		projectRepo:    projectRepo,
		memberRepo:     memberRepo,
		imageRepo:      imageRepo,
		assignmentRepo: assignmentRepo,
		userRepo:       userRepo,
		activityRepo:   activityRepo,
		progress:       progress,
		locks:          locks,
		activity:       newActivityLogger(activityRepo),
	}
}

// CreateProject creates a project and adds the creator as its first
// reviewer member.
func (s *projectService) CreateProject(ctx context.Context, name, description string, classes []string, creatorID primitive.ObjectID) (*domain.Project, error) {
	if name == "" || creatorID == primitive.NilObjectID {
		return nil, errors.New("project name and creator ID are required")
	}
	if _, err := s.userRepo.GetByID(ctx, creatorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	project := &domain.Project{
		Name:        name,
		Description: description,
		Classes:     classes,
		CreatedBy:   creatorID,
		Status:      domain.ProjectCreated,
	}
	projectID, err := s.projectRepo.Create(ctx, project)
	if err != nil {
		return nil, err
	}
	project.ID = projectID

	_, err = s.memberRepo.Create(ctx, &domain.ProjectMember{
		ProjectID: projectID,
		UserID:    creatorID,
		Role:      domain.MemberReviewer,
	})
	if err != nil {
		return nil, err
	}

	s.activity.record(ctx, projectID, creatorID, "project_created", fmt.Sprintf("project %q created", name))
	return project, nil
}

// GetProject retrieves a single project.
func (s *projectService) GetProject(ctx context.Context, projectID primitive.ObjectID) (*domain.Project, error) {
	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return project, nil
}

// GetProjectsForUser retrieves every project the user is a member of.
func (s *projectService) GetProjectsForUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Project, error) {
	memberships, err := s.memberRepo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.ProjectID)
	}
	return s.projectRepo.GetByIDs(ctx, ids)
}

// GetMembers retrieves the project's membership in stable order.
func (s *projectService) GetMembers(ctx context.Context, projectID primitive.ObjectID) ([]domain.ProjectMember, error) {
	if _, err := s.projectRepo.GetByID(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return s.memberRepo.GetByProject(ctx, projectID)
}

// AddMember adds a user to a project with the given role.
func (s *projectService) AddMember(ctx context.Context, projectID, userID primitive.ObjectID, role domain.MemberRole, actorID primitive.ObjectID) (*domain.ProjectMember, error) {
	if _, err := s.projectRepo.GetByID(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	member := &domain.ProjectMember{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
	}
	if _, err := s.memberRepo.Create(ctx, member); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyMember
		}
		return nil, err
	}

	s.activity.record(ctx, projectID, actorID, "member_added",
		fmt.Sprintf("user %s added as %s", userID.Hex(), role))
	return member, nil
}

// RemoveMember removes a member and reclaims their work: every image they
// own goes back to the pool (annotation attribution preserved) and their
// pending assignment records are deleted.
func (s *projectService) RemoveMember(ctx context.Context, projectID, userID, actorID primitive.ObjectID) error {
	if _, err := s.projectRepo.GetByID(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProjectNotFound
		}
		return err
	}
	if _, err := s.memberRepo.GetByProjectAndUser(ctx, projectID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMemberNotFound
		}
		return err
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	owned, err := s.imageRepo.GetByAssignee(ctx, projectID, userID)
	if err != nil {
		return err
	}
	for _, img := range owned {
		if err := s.imageRepo.Unassign(ctx, img.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}

	if err := s.assignmentRepo.DeletePendingByUser(ctx, projectID, userID); err != nil {
		return err
	}
	if err := s.memberRepo.Delete(ctx, projectID, userID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if _, err := s.progress.Recompute(ctx, projectID); err != nil {
		return err
	}

	s.activity.record(ctx, projectID, actorID, "member_removed",
		fmt.Sprintf("user %s removed, %d images reclaimed", userID.Hex(), len(owned)))
	return nil
}

// GetRecentActivity retrieves the newest audit records for a project.
func (s *projectService) GetRecentActivity(ctx context.Context, projectID primitive.ObjectID, limit int64) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.activityRepo.GetRecentByProject(ctx, projectID, limit)
}
