package mongo

import (
	"aivid/annot8r/internal/domain"
	"aivid/annot8r/internal/repository"
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const submissionCollectionName = "submission_reviews"

var pendingSubmissionStatuses = bson.A{domain.SubmissionSubmitted, domain.SubmissionUnderReview}

// mongoSubmissionRepository implements repository.SubmissionRepository
type mongoSubmissionRepository struct {
	collection *mongo.Collection
}

// NewMongoSubmissionRepository creates a new SubmissionReview repository backed by MongoDB.
func NewMongoSubmissionRepository(db *mongo.Database) repository.SubmissionRepository {
	return &mongoSubmissionRepository{
		collection: db.Collection(submissionCollectionName),
	}
}

// Create inserts a new submission round.
func (r *mongoSubmissionRepository) Create(ctx context.Context, submission *domain.SubmissionReview) (primitive.ObjectID, error) {
	if submission.ProjectID == primitive.NilObjectID ||
		submission.UserID == primitive.NilObjectID ||
		submission.AssignmentID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("submission requires projectId, userId and assignmentId")
	}
	if len(submission.ImageIDs) == 0 {
		return primitive.NilObjectID, errors.New("submission requires at least one image")
	}

	submission.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	submission.SubmittedAt = now
	submission.UpdatedAt = now
	if submission.Status == "" {
		submission.Status = domain.SubmissionSubmitted
	}

	result, err := r.collection.InsertOne(ctx, submission)
	if err != nil {
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted submission ID")
	}
	return insertedID, nil
}

// GetByID retrieves a submission by its ID.
func (r *mongoSubmissionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.SubmissionReview, error) {
	var submission domain.SubmissionReview
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&submission)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &submission, nil
}

// GetByProject retrieves every submission of a project, newest round first.
func (r *mongoSubmissionRepository) GetByProject(ctx context.Context, projectID primitive.ObjectID) ([]domain.SubmissionReview, error) {
	return r.find(ctx, bson.M{"projectId": projectID})
}

// GetPendingByUser retrieves the user's submitted/under_review submission in
// a project, or ErrNotFound. At most one exists at a time.
func (r *mongoSubmissionRepository) GetPendingByUser(ctx context.Context, projectID, userID primitive.ObjectID) (*domain.SubmissionReview, error) {
	var submission domain.SubmissionReview
	filter := bson.M{
		"projectId": projectID,
		"userId":    userID,
		"status":    bson.M{"$in": pendingSubmissionStatuses},
	}

	err := r.collection.FindOne(ctx, filter).Decode(&submission)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &submission, nil
}

// GetPendingByProject retrieves all pending submissions of a project. Used
// by the explicit completion action to force-close open rounds.
func (r *mongoSubmissionRepository) GetPendingByProject(ctx context.Context, projectID primitive.ObjectID) ([]domain.SubmissionReview, error) {
	return r.find(ctx, bson.M{
		"projectId": projectID,
		"status":    bson.M{"$in": pendingSubmissionStatuses},
	})
}

// Update rewrites the decision fields of a submission. ReviewHistory is
// replaced wholesale with the caller's copy, which only ever appends.
func (r *mongoSubmissionRepository) Update(ctx context.Context, submission *domain.SubmissionReview) error {
	if submission.ID == primitive.NilObjectID {
		return errors.New("submission ID is required for update")
	}

	update := bson.M{"$set": bson.M{
		"status":        submission.Status,
		"feedback":      submission.Feedback,
		"flaggedImages": submission.FlaggedImages,
		"imageFeedback": submission.ImageFeedback,
		"reviewHistory": submission.ReviewHistory,
		"updatedAt":     time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": submission.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *mongoSubmissionRepository) find(ctx context.Context, filter bson.M) ([]domain.SubmissionReview, error) {
	var submissions []domain.SubmissionReview
	findOptions := options.Find().SetSort(bson.D{{Key: "submittedAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &submissions); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return submissions, nil
}

// EnsureSubmissionIndexes creates necessary indexes for the submission_reviews collection.
func EnsureSubmissionIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// Pending-submission lookup during submit gating
			Keys:    bson.D{{Key: "projectId", Value: 1}, {Key: "userId", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "assignmentId", Value: 1}},
			Options: options.Index(),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
