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

const assignmentCollectionName = "image_assignments"

var pendingAssignmentStatuses = bson.A{domain.AssignmentAssigned, domain.AssignmentInProgress}

// mongoAssignmentRepository implements repository.AssignmentRepository
type mongoAssignmentRepository struct {
	collection *mongo.Collection
}

// NewMongoAssignmentRepository creates a new ImageAssignment repository backed by MongoDB.
func NewMongoAssignmentRepository(db *mongo.Database) repository.AssignmentRepository {
	return &mongoAssignmentRepository{
		collection: db.Collection(assignmentCollectionName),
	}
}

// Create inserts a new assignment ledger record.
func (r *mongoAssignmentRepository) Create(ctx context.Context, assignment *domain.ImageAssignment) (primitive.ObjectID, error) {
	if assignment.ProjectID == primitive.NilObjectID || assignment.UserID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("assignment requires projectId and userId")
	}
	if len(assignment.ImageIDs) == 0 {
		return primitive.NilObjectID, errors.New("assignment requires at least one image")
	}

	assignment.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	assignment.AssignedAt = now
	assignment.LastActivity = now
	if assignment.Status == "" {
		assignment.Status = domain.AssignmentAssigned
	}
	assignment.TotalImages = len(assignment.ImageIDs)

	result, err := r.collection.InsertOne(ctx, assignment)
	if err != nil {
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted assignment ID")
	}
	return insertedID, nil
}

// GetByID retrieves an assignment by its ID.
func (r *mongoAssignmentRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ImageAssignment, error) {
	var assignment domain.ImageAssignment
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&assignment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &assignment, nil
}

// GetByProject retrieves every assignment record of a project.
func (r *mongoAssignmentRepository) GetByProject(ctx context.Context, projectID primitive.ObjectID) ([]domain.ImageAssignment, error) {
	var assignments []domain.ImageAssignment
	filter := bson.M{"projectId": projectID}
	findOptions := options.Find().SetSort(bson.D{{Key: "assignedAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &assignments); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// GetPendingByUser retrieves the single assigned/in_progress assignment a
// user holds in a project, if any. New distributions merge into this record
// instead of creating a second pending one.
func (r *mongoAssignmentRepository) GetPendingByUser(ctx context.Context, projectID, userID primitive.ObjectID) (*domain.ImageAssignment, error) {
	var assignment domain.ImageAssignment
	filter := bson.M{
		"projectId": projectID,
		"userId":    userID,
		"status":    bson.M{"$in": pendingAssignmentStatuses},
	}

	err := r.collection.FindOne(ctx, filter).Decode(&assignment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &assignment, nil
}

// Update rewrites the mutable fields of an assignment and bumps lastActivity.
func (r *mongoAssignmentRepository) Update(ctx context.Context, assignment *domain.ImageAssignment) error {
	if assignment.ID == primitive.NilObjectID {
		return errors.New("assignment ID is required for update")
	}

	update := bson.M{"$set": bson.M{
		"imageIds":        assignment.ImageIDs,
		"status":          assignment.Status,
		"totalImages":     assignment.TotalImages,
		"completedImages": assignment.CompletedImages,
		"lastActivity":    time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": assignment.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes an assignment record outright. Used when redistribution
// empties the image set or the owning member leaves the project.
func (r *mongoAssignmentRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeletePendingByUser removes all of a user's assigned/in_progress
// assignments in a project. Zero deletions is not an error; the member may
// simply hold no pending work.
func (r *mongoAssignmentRepository) DeletePendingByUser(ctx context.Context, projectID, userID primitive.ObjectID) error {
	filter := bson.M{
		"projectId": projectID,
		"userId":    userID,
		"status":    bson.M{"$in": pendingAssignmentStatuses},
	}
	_, err := r.collection.DeleteMany(ctx, filter)
	return err
}

// EnsureAssignmentIndexes creates necessary indexes for the image_assignments collection.
func EnsureAssignmentIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// Pending-assignment lookup during distribution and submit
			Keys:    bson.D{{Key: "projectId", Value: 1}, {Key: "userId", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "projectId", Value: 1}, {Key: "assignedAt", Value: 1}},
			Options: options.Index(),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
