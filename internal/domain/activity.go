package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Activity is a fire-and-forget audit record of a mutating call. Failure to
// persist one must never fail the operation that produced it.
type Activity struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID primitive.ObjectID `bson:"projectId" json:"projectId"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	Action    string             `bson:"action" json:"action"`
	Detail    string             `bson:"detail,omitempty" json:"detail,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}
