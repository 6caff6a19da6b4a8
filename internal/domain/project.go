package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProjectStatus type for the project lifecycle
type ProjectStatus string

const (
	ProjectCreated    ProjectStatus = "created"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectArchived   ProjectStatus = "archived"
)

// Project is the top-level container for images, members and submissions.
// The counter fields are derived from ProjectImage documents and are only
// rewritten by the progress recompute; Status is only set to completed by
// the explicit admin completion action.
type Project struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Classes     []string           `bson:"classes" json:"classes"` // Annotation class labels
	CreatedBy   primitive.ObjectID `bson:"createdBy" json:"createdBy"`

	// Derived progress counters (see ProgressService).
	TotalImages          int `bson:"totalImages" json:"totalImages"`
	AnnotatedImages      int `bson:"annotatedImages" json:"annotatedImages"`
	ReviewedImages       int `bson:"reviewedImages" json:"reviewedImages"`
	ApprovedImages       int `bson:"approvedImages" json:"approvedImages"`
	CompletionPercentage int `bson:"completionPercentage" json:"completionPercentage"`

	Status    ProjectStatus `bson:"status" json:"status"`
	CreatedAt time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt" json:"updatedAt"`
}

func (p *Project) IsCompleted() bool {
	return p.Status == ProjectCompleted
}
