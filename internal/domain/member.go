package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemberRole type to distinguish project membership roles
type MemberRole string

const (
	MemberAnnotator MemberRole = "annotator"
	MemberReviewer  MemberRole = "reviewer"
)

// ProjectMember links a user to a project with a role.
// The (projectId, userId) pair is unique. The project creator is added as a
// reviewer on project creation; removing a member reclaims their
// assigned-but-incomplete images.
type ProjectMember struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID primitive.ObjectID `bson:"projectId" json:"projectId"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	Role      MemberRole         `bson:"role" json:"role"`
	AddedAt   time.Time          `bson:"addedAt" json:"addedAt"`
}

func (m *ProjectMember) IsAnnotator() bool {
	return m.Role == MemberAnnotator
}

func (m *ProjectMember) IsReviewer() bool {
	return m.Role == MemberReviewer
}
