package service

import (
	"aivid/annot8r/internal/domain"
	"aivid/annot8r/internal/repository"
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory repository fakes mirroring the Mongo implementations' observable
// behavior: insertion-order reads, conditional Assign writes, duplicate
// member detection.

// --- fakeProjectRepo ---

type fakeProjectRepo struct {
	mu       sync.Mutex
	projects map[primitive.ObjectID]*domain.Project
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{projects: make(map[primitive.ObjectID]*domain.Project)}
}

func (r *fakeProjectRepo) Create(_ context.Context, project *domain.Project) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	project.ID = primitive.NewObjectID()
	project.CreatedAt = time.Now().UTC()
	cp := *project
	r.projects[project.ID] = &cp
	return project.ID, nil
}

func (r *fakeProjectRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProjectRepo) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Project
	for _, id := range ids {
		if p, ok := r.projects[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeProjectRepo) Update(_ context.Context, project *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[project.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *project
	r.projects[project.ID] = &cp
	return nil
}

func (r *fakeProjectRepo) UpdateProgress(_ context.Context, id primitive.ObjectID, counts repository.ProgressCounts, percentage int, status domain.ProjectStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Status == domain.ProjectCompleted || p.Status == domain.ProjectArchived {
		return nil
	}
	p.TotalImages = counts.Total
	p.AnnotatedImages = counts.Annotated
	p.ReviewedImages = counts.Reviewed
	p.ApprovedImages = counts.Approved
	p.CompletionPercentage = percentage
	p.Status = status
	return nil
}

// --- fakeMemberRepo ---

type fakeMemberRepo struct {
	mu      sync.Mutex
	members []domain.ProjectMember
}

func newFakeMemberRepo() *fakeMemberRepo { return &fakeMemberRepo{} }

func (r *fakeMemberRepo) Create(_ context.Context, member *domain.ProjectMember) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.ProjectID == member.ProjectID && m.UserID == member.UserID {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	member.ID = primitive.NewObjectID()
	member.AddedAt = time.Now().UTC()
	r.members = append(r.members, *member)
	return member.ID, nil
}

func (r *fakeMemberRepo) GetByProject(_ context.Context, projectID primitive.ObjectID) ([]domain.ProjectMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProjectMember
	for _, m := range r.members {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMemberRepo) GetByProjectAndUser(_ context.Context, projectID, userID primitive.ObjectID) (*domain.ProjectMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.ProjectID == projectID && m.UserID == userID {
			cp := m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeMemberRepo) GetByUser(_ context.Context, userID primitive.ObjectID) ([]domain.ProjectMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProjectMember
	for _, m := range r.members {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMemberRepo) Delete(_ context.Context, projectID, userID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.members {
		if m.ProjectID == projectID && m.UserID == userID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

// --- fakeImageRepo ---

type fakeImageRepo struct {
	mu     sync.Mutex
	images map[primitive.ObjectID]*domain.ProjectImage
	order  []primitive.ObjectID
}

func newFakeImageRepo() *fakeImageRepo {
	return &fakeImageRepo{images: make(map[primitive.ObjectID]*domain.ProjectImage)}
}

func (r *fakeImageRepo) Create(_ context.Context, image *domain.ProjectImage) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	image.ID = primitive.NewObjectID()
	if image.UploadedAt.IsZero() {
		image.UploadedAt = time.Now().UTC()
	}
	cp := *image
	r.images[image.ID] = &cp
	r.order = append(r.order, image.ID)
	return image.ID, nil
}

func (r *fakeImageRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.ProjectImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *img
	return &cp, nil
}

func (r *fakeImageRepo) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]domain.ProjectImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProjectImage
	for _, id := range r.order {
		for _, want := range ids {
			if id == want {
				out = append(out, *r.images[id])
				break
			}
		}
	}
	return out, nil
}

func (r *fakeImageRepo) GetByProject(_ context.Context, projectID primitive.ObjectID) ([]domain.ProjectImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProjectImage
	for _, id := range r.order {
		if img := r.images[id]; img.ProjectID == projectID {
			out = append(out, *img)
		}
	}
	return out, nil
}

func (r *fakeImageRepo) GetAssignable(_ context.Context, projectID primitive.ObjectID, includeRedistributable bool) ([]domain.ProjectImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProjectImage
	for _, id := range r.order {
		img := r.images[id]
		if img.ProjectID != projectID {
			continue
		}
		if img.AssignedTo == nil {
			out = append(out, *img)
			continue
		}
		if includeRedistributable && img.AnnotationStatus != domain.AnnotationCompleted {
			out = append(out, *img)
		}
	}
	return out, nil
}

func (r *fakeImageRepo) GetByAssignee(_ context.Context, projectID, userID primitive.ObjectID) ([]domain.ProjectImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProjectImage
	for _, id := range r.order {
		img := r.images[id]
		if img.ProjectID == projectID && img.AssignedTo != nil && *img.AssignedTo == userID {
			out = append(out, *img)
		}
	}
	return out, nil
}

func (r *fakeImageRepo) Update(_ context.Context, image *domain.ProjectImage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.images[image.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *image
	r.images[image.ID] = &cp
	return nil
}

func (r *fakeImageRepo) Assign(_ context.Context, imageID, userID primitive.ObjectID, fromUser *primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[imageID]
	if !ok {
		return repository.ErrUpdateFailed
	}
	if img.AssignedTo != nil && (fromUser == nil || *img.AssignedTo != *fromUser) {
		return repository.ErrUpdateFailed
	}
	owner := userID
	img.AssignedTo = &owner
	img.Status = domain.ImageAssigned
	return nil
}

func (r *fakeImageRepo) Unassign(_ context.Context, imageID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[imageID]
	if !ok {
		return repository.ErrNotFound
	}
	img.AssignedTo = nil
	img.Status = domain.ImageUploaded
	return nil
}

func (r *fakeImageRepo) MarkUnderReview(_ context.Context, imageIDs []primitive.ObjectID, submissionID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range imageIDs {
		if img, ok := r.images[id]; ok {
			img.Status = domain.ImageUnderReview
			img.ReviewStatus = domain.ReviewUnderReview
			sub := submissionID
			img.CurrentSubmissionID = &sub
		}
	}
	return nil
}

func (r *fakeImageRepo) MarkApproved(_ context.Context, imageIDs []primitive.ObjectID, reviewerID primitive.ObjectID, reviewedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range imageIDs {
		if img, ok := r.images[id]; ok {
			img.Status = domain.ImageApproved
			img.ReviewStatus = domain.ReviewApproved
			reviewer := reviewerID
			at := reviewedAt
			img.ReviewedBy = &reviewer
			img.ReviewedAt = &at
		}
	}
	return nil
}

func (r *fakeImageRepo) MarkFlagged(_ context.Context, imageIDs []primitive.ObjectID, reviewerID primitive.ObjectID, reviewedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range imageIDs {
		if img, ok := r.images[id]; ok {
			img.Status = domain.ImageReviewed
			img.ReviewStatus = domain.ReviewFlagged
			reviewer := reviewerID
			at := reviewedAt
			img.ReviewedBy = &reviewer
			img.ReviewedAt = &at
		}
	}
	return nil
}

func (r *fakeImageRepo) MarkReturned(_ context.Context, imageIDs []primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range imageIDs {
		if img, ok := r.images[id]; ok {
			img.Status = domain.ImageAnnotated
		}
	}
	return nil
}

func (r *fakeImageRepo) CountProgress(_ context.Context, projectID primitive.ObjectID) (repository.ProgressCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var counts repository.ProgressCounts
	for _, id := range r.order {
		img := r.images[id]
		if img.ProjectID != projectID {
			continue
		}
		counts.Total++
		if img.AnnotationStatus == domain.AnnotationCompleted {
			counts.Annotated++
		}
		if img.ReviewStatus == domain.ReviewApproved || img.ReviewStatus == domain.ReviewFlagged {
			counts.Reviewed++
		}
		if img.ReviewStatus == domain.ReviewApproved {
			counts.Approved++
		}
	}
	return counts, nil
}

// --- fakeAssignmentRepo ---

type fakeAssignmentRepo struct {
	mu          sync.Mutex
	assignments map[primitive.ObjectID]*domain.ImageAssignment
	order       []primitive.ObjectID
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{assignments: make(map[primitive.ObjectID]*domain.ImageAssignment)}
}

func (r *fakeAssignmentRepo) Create(_ context.Context, assignment *domain.ImageAssignment) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	assignment.ID = primitive.NewObjectID()
	assignment.AssignedAt = time.Now().UTC()
	if assignment.TotalImages == 0 {
		assignment.TotalImages = len(assignment.ImageIDs)
	}
	cp := *assignment
	cp.ImageIDs = append([]primitive.ObjectID(nil), assignment.ImageIDs...)
	r.assignments[assignment.ID] = &cp
	r.order = append(r.order, assignment.ID)
	return assignment.ID, nil
}

func (r *fakeAssignmentRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.ImageAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	cp.ImageIDs = append([]primitive.ObjectID(nil), a.ImageIDs...)
	return &cp, nil
}

func (r *fakeAssignmentRepo) GetByProject(_ context.Context, projectID primitive.ObjectID) ([]domain.ImageAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ImageAssignment
	for _, id := range r.order {
		a, ok := r.assignments[id]
		if !ok || a.ProjectID != projectID {
			continue
		}
		cp := *a
		cp.ImageIDs = append([]primitive.ObjectID(nil), a.ImageIDs...)
		out = append(out, cp)
	}
	return out, nil
}

func (r *fakeAssignmentRepo) GetPendingByUser(_ context.Context, projectID, userID primitive.ObjectID) (*domain.ImageAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		a, ok := r.assignments[id]
		if !ok {
			continue
		}
		if a.ProjectID == projectID && a.UserID == userID && a.IsPending() {
			cp := *a
			cp.ImageIDs = append([]primitive.ObjectID(nil), a.ImageIDs...)
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAssignmentRepo) Update(_ context.Context, assignment *domain.ImageAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assignments[assignment.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *assignment
	cp.ImageIDs = append([]primitive.ObjectID(nil), assignment.ImageIDs...)
	r.assignments[assignment.ID] = &cp
	return nil
}

func (r *fakeAssignmentRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assignments[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.assignments, id)
	return nil
}

func (r *fakeAssignmentRepo) DeletePendingByUser(_ context.Context, projectID, userID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.assignments {
		if a.ProjectID == projectID && a.UserID == userID && a.IsPending() {
			delete(r.assignments, id)
		}
	}
	return nil
}

// --- fakeSubmissionRepo ---

type fakeSubmissionRepo struct {
	mu          sync.Mutex
	submissions map[primitive.ObjectID]*domain.SubmissionReview
	order       []primitive.ObjectID
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{submissions: make(map[primitive.ObjectID]*domain.SubmissionReview)}
}

func (r *fakeSubmissionRepo) Create(_ context.Context, submission *domain.SubmissionReview) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	submission.ID = primitive.NewObjectID()
	submission.SubmittedAt = time.Now().UTC()
	cp := *submission
	cp.ImageIDs = append([]primitive.ObjectID(nil), submission.ImageIDs...)
	r.submissions[submission.ID] = &cp
	r.order = append(r.order, submission.ID)
	return submission.ID, nil
}

func (r *fakeSubmissionRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.SubmissionReview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	cp.ImageIDs = append([]primitive.ObjectID(nil), s.ImageIDs...)
	return &cp, nil
}

func (r *fakeSubmissionRepo) GetByProject(_ context.Context, projectID primitive.ObjectID) ([]domain.SubmissionReview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SubmissionReview
	for _, id := range r.order {
		if s, ok := r.submissions[id]; ok && s.ProjectID == projectID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSubmissionRepo) GetPendingByUser(_ context.Context, projectID, userID primitive.ObjectID) (*domain.SubmissionReview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		s, ok := r.submissions[id]
		if ok && s.ProjectID == projectID && s.UserID == userID && s.IsPending() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeSubmissionRepo) GetPendingByProject(_ context.Context, projectID primitive.ObjectID) ([]domain.SubmissionReview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SubmissionReview
	for _, id := range r.order {
		if s, ok := r.submissions[id]; ok && s.ProjectID == projectID && s.IsPending() {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSubmissionRepo) Update(_ context.Context, submission *domain.SubmissionReview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.submissions[submission.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *submission
	cp.ImageIDs = append([]primitive.ObjectID(nil), submission.ImageIDs...)
	r.submissions[submission.ID] = &cp
	return nil
}

// --- fakeUserRepo ---

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[primitive.ObjectID]*domain.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	user.ID = primitive.NewObjectID()
	cp := *user
	r.users[user.ID] = &cp
	return user.ID, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// --- fakeActivityRepo ---

type fakeActivityRepo struct {
	mu         sync.Mutex
	activities []domain.Activity
}

func newFakeActivityRepo() *fakeActivityRepo { return &fakeActivityRepo{} }

func (r *fakeActivityRepo) Create(_ context.Context, activity *domain.Activity) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	activity.ID = primitive.NewObjectID()
	activity.CreatedAt = time.Now().UTC()
	r.activities = append(r.activities, *activity)
	return activity.ID, nil
}

func (r *fakeActivityRepo) GetRecentByProject(_ context.Context, projectID primitive.ObjectID, limit int64) ([]domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Activity
	for i := len(r.activities) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		if r.activities[i].ProjectID == projectID {
			out = append(out, r.activities[i])
		}
	}
	return out, nil
}

// --- fixture helpers ---

type fixture struct {
	projects    *fakeProjectRepo
	members     *fakeMemberRepo
	images      *fakeImageRepo
	assignments *fakeAssignmentRepo
	submissions *fakeSubmissionRepo
	users       *fakeUserRepo
	activities  *fakeActivityRepo
	locks       *ProjectLocks
	progress    ProgressService
}

func newFixture() *fixture {
	f := &fixture{
		projects:    newFakeProjectRepo(),
		members:     newFakeMemberRepo(),
		images:      newFakeImageRepo(),
		assignments: newFakeAssignmentRepo(),
		submissions: newFakeSubmissionRepo(),
		users:       newFakeUserRepo(),
		activities:  newFakeActivityRepo(),
		locks:       NewProjectLocks(),
	}
	f.progress = NewProgressService(f.projects, f.images)
	return f
}

func (f *fixture) distribution() DistributionService {
	return NewDistributionService(f.projects, f.members, f.images, f.assignments, f.locks, f.activities)
}

func (f *fixture) submission() SubmissionService {
	return NewSubmissionService(f.projects, f.images, f.assignments, f.submissions, f.progress, f.locks, f.activities)
}

func (f *fixture) project() ProjectService {
	return NewProjectService(f.projects, f.members, f.images, f.assignments, f.users, f.activities, f.progress, f.locks)
}

func (f *fixture) addProject() *domain.Project {
	p := &domain.Project{Name: "plates", Classes: []string{"car", "plate"}, Status: domain.ProjectCreated}
	_, _ = f.projects.Create(context.Background(), p)
	return p
}

func (f *fixture) addAnnotator(projectID primitive.ObjectID) primitive.ObjectID {
	userID := primitive.NewObjectID()
	_, _ = f.members.Create(context.Background(), &domain.ProjectMember{
		ProjectID: projectID,
		UserID:    userID,
		Role:      domain.MemberAnnotator,
	})
	return userID
}

func (f *fixture) addImages(projectID primitive.ObjectID, n int) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, n)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < n; i++ {
		img := &domain.ProjectImage{
			ProjectID:        projectID,
			FileName:         "frame.jpg",
			Status:           domain.ImageUploaded,
			AnnotationStatus: domain.AnnotationUnannotated,
			ReviewStatus:     domain.ReviewNotReviewed,
			UploadedAt:       base.Add(time.Duration(i) * time.Second),
		}
		id, _ := f.images.Create(context.Background(), img)
		ids = append(ids, id)
	}
	return ids
}
