package service

import (
	"aivid/annot8r/internal/domain"
	"aivid/annot8r/internal/repository"
	"context"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// activityLogger writes audit records fire-and-forget: a failed write is
// logged and swallowed, never surfaced to the caller.
type activityLogger struct {
	activityRepo repository.ActivityRepository
}

func newActivityLogger(activityRepo repository.ActivityRepository) *activityLogger {
	return &activityLogger{activityRepo: activityRepo}
}

func (l *activityLogger) record(ctx context.Context, projectID, userID primitive.ObjectID, action, detail string) {
	if l == nil || l.activityRepo == nil {
		return
	}
	_, err := l.activityRepo.Create(ctx, &domain.Activity{
		ProjectID: projectID,
		UserID:    userID,
		Action:    action,
		Detail:    detail,
	})
	if err != nil {
		log.Printf("WARN: failed to record activity %q for project %s: %v", action, projectID.Hex(), err)
	}
}
