package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AssignmentStatus type for the assignment lifecycle
type AssignmentStatus string

const (
	AssignmentAssigned      AssignmentStatus = "assigned"
	AssignmentInProgress    AssignmentStatus = "in_progress"    // Annotator started working
	AssignmentSubmitted     AssignmentStatus = "submitted"      // Sent for review
	AssignmentUnderReview   AssignmentStatus = "under_review"   // Reviewer picked it up
	AssignmentNeedsRevision AssignmentStatus = "needs_revision" // Rejected, back with annotator
	AssignmentCompleted     AssignmentStatus = "completed"      // Every image approved
)

// ImageAssignment is the ledger record of a batch of images allocated to one
// annotator. For a given (projectId, userId) at most one record is pending
// (assigned or in_progress) at a time; new allocations merge into it.
// Records are deleted outright when redistribution empties their image set
// or when the owning member is removed, never archived.
type ImageAssignment struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	ProjectID primitive.ObjectID   `bson:"projectId" json:"projectId"`
	UserID    primitive.ObjectID   `bson:"userId" json:"userId"`
	ImageIDs  []primitive.ObjectID `bson:"imageIds" json:"imageIds"`

	Status          AssignmentStatus `bson:"status" json:"status"`
	TotalImages     int              `bson:"totalImages" json:"totalImages"`
	CompletedImages int              `bson:"completedImages" json:"completedImages"`

	AssignedAt   time.Time `bson:"assignedAt" json:"assignedAt"`
	LastActivity time.Time `bson:"lastActivity" json:"lastActivity"`
}

// IsPending reports whether the assignment is still with the annotator and
// eligible to absorb newly distributed images.
func (a *ImageAssignment) IsPending() bool {
	return a.Status == AssignmentAssigned || a.Status == AssignmentInProgress
}

// ContainsImage reports whether imageID is part of this assignment.
func (a *ImageAssignment) ContainsImage(imageID primitive.ObjectID) bool {
	for _, id := range a.ImageIDs {
		if id == imageID {
			return true
		}
	}
	return false
}
