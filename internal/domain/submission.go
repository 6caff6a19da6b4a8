package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SubmissionStatus type for the review round lifecycle
type SubmissionStatus string

const (
	SubmissionSubmitted   SubmissionStatus = "submitted"
	SubmissionUnderReview SubmissionStatus = "under_review" // Optional intermediate state
	SubmissionRejected    SubmissionStatus = "rejected"     // Terminal for this round
	SubmissionApproved    SubmissionStatus = "approved"     // Terminal for this round
)

// FlaggedImage marks a submitted image the reviewer wants redone.
type FlaggedImage struct {
	ImageID primitive.ObjectID `bson:"imageId" json:"imageId"`
	Reason  string             `bson:"reason,omitempty" json:"reason,omitempty"`
}

// ImageFeedback is per-image free-text feedback, independent of flagging.
type ImageFeedback struct {
	ImageID  primitive.ObjectID `bson:"imageId" json:"imageId"`
	Feedback string             `bson:"feedback" json:"feedback"`
}

// ReviewRecord is one entry in the append-only review history.
type ReviewRecord struct {
	ReviewerID    primitive.ObjectID `bson:"reviewerId" json:"reviewerId"`
	Status        SubmissionStatus   `bson:"status" json:"status"`
	Feedback      string             `bson:"feedback,omitempty" json:"feedback,omitempty"`
	FlaggedImages []FlaggedImage     `bson:"flaggedImages,omitempty" json:"flaggedImages,omitempty"`
	ImageFeedback []ImageFeedback    `bson:"imageFeedback,omitempty" json:"imageFeedback,omitempty"`
	ReviewedAt    time.Time          `bson:"reviewedAt" json:"reviewedAt"`
}

// SubmissionReview is one review round for an assignment. ImageIDs is the
// snapshot of images submitted in this round (already-approved images are
// excluded at submit time). At most one submission per (projectId, userId)
// is pending at a time. Submissions are never deleted and ReviewHistory
// only grows; a rejection ends the round and the next submit opens a new
// one.
type SubmissionReview struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	ProjectID    primitive.ObjectID   `bson:"projectId" json:"projectId"`
	UserID       primitive.ObjectID   `bson:"userId" json:"userId"`
	AssignmentID primitive.ObjectID   `bson:"assignmentId" json:"assignmentId"`
	ImageIDs     []primitive.ObjectID `bson:"imageIds" json:"imageIds"`
	Message      string               `bson:"message,omitempty" json:"message,omitempty"`

	Status        SubmissionStatus `bson:"status" json:"status"`
	Feedback      string           `bson:"feedback,omitempty" json:"feedback,omitempty"`
	FlaggedImages []FlaggedImage   `bson:"flaggedImages,omitempty" json:"flaggedImages,omitempty"`
	ImageFeedback []ImageFeedback  `bson:"imageFeedback,omitempty" json:"imageFeedback,omitempty"`
	ReviewHistory []ReviewRecord   `bson:"reviewHistory,omitempty" json:"reviewHistory,omitempty"`

	SubmittedAt time.Time `bson:"submittedAt" json:"submittedAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsPending reports whether this submission still awaits a terminal
// reviewer decision.
func (s *SubmissionReview) IsPending() bool {
	return s.Status == SubmissionSubmitted || s.Status == SubmissionUnderReview
}
