package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ImageStatus tracks where an image sits in the annotation lifecycle.
type ImageStatus string

const (
	ImageUploaded    ImageStatus = "uploaded"     // Registered, not yet assigned
	ImageAssigned    ImageStatus = "assigned"     // Owned by an annotator
	ImageAnnotated   ImageStatus = "annotated"    // Annotation saved, not submitted
	ImageUnderReview ImageStatus = "under_review" // Part of a pending submission
	ImageReviewed    ImageStatus = "reviewed"     // Reviewer looked at it (flagged)
	ImageApproved    ImageStatus = "approved"     // Terminal
)

// AnnotationStatus tracks the annotation work itself, independent of review.
type AnnotationStatus string

const (
	AnnotationUnannotated AnnotationStatus = "unannotated"
	AnnotationInProgress  AnnotationStatus = "in_progress"
	AnnotationCompleted   AnnotationStatus = "completed"
)

// ReviewStatus tracks the review outcome for an image.
type ReviewStatus string

const (
	ReviewNotReviewed ReviewStatus = "not_reviewed"
	ReviewUnderReview ReviewStatus = "under_review"
	ReviewFlagged     ReviewStatus = "flagged"
	ReviewApproved    ReviewStatus = "approved"
)

// ProjectImage is the per-image document. An image has at most one owner
// (AssignedTo) at a time. AnnotatedBy is sticky attribution: it survives
// reassignment and member removal, and is only replaced by a new annotation
// act.
type ProjectImage struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID   primitive.ObjectID `bson:"projectId" json:"projectId"`
	FileName    string             `bson:"fileName" json:"fileName"`
	S3ObjectKey string             `bson:"s3ObjectKey" json:"-"` // Key in the image bucket
	Size        int64              `bson:"size" json:"size"`

	Status     ImageStatus         `bson:"status" json:"status"`
	AssignedTo *primitive.ObjectID `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"` // nil means unassigned

	AnnotationStatus AnnotationStatus    `bson:"annotationStatus" json:"annotationStatus"`
	AnnotatedBy      *primitive.ObjectID `bson:"annotatedBy,omitempty" json:"annotatedBy,omitempty"`

	ReviewStatus ReviewStatus        `bson:"reviewStatus" json:"reviewStatus"`
	ReviewedBy   *primitive.ObjectID `bson:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	ReviewedAt   *time.Time          `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`

	CurrentSubmissionID *primitive.ObjectID `bson:"currentSubmissionId,omitempty" json:"currentSubmissionId,omitempty"`

	UploadedAt time.Time `bson:"uploadedAt" json:"uploadedAt"`
	UpdatedAt  time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsAssigned reports whether the image currently has an owner.
func (i *ProjectImage) IsAssigned() bool {
	return i.AssignedTo != nil && *i.AssignedTo != primitive.NilObjectID
}
