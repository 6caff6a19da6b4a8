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

const memberCollectionName = "project_members"

// mongoMemberRepository implements repository.MemberRepository
type mongoMemberRepository struct {
	collection *mongo.Collection
}

// NewMongoMemberRepository creates a new ProjectMember repository backed by MongoDB.
func NewMongoMemberRepository(db *mongo.Database) repository.MemberRepository {
	return &mongoMemberRepository{
		collection: db.Collection(memberCollectionName),
	}
}

// Create inserts a new membership record. The unique (projectId, userId)
// index turns a duplicate insert into repository.ErrDuplicate.
func (r *mongoMemberRepository) Create(ctx context.Context, member *domain.ProjectMember) (primitive.ObjectID, error) {
	if member.ProjectID == primitive.NilObjectID || member.UserID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("membership requires projectId and userId")
	}

	member.ID = primitive.NewObjectID()
	member.AddedAt = time.Now().UTC()
	if member.Role == "" {
		member.Role = domain.MemberAnnotator
	}

	result, err := r.collection.InsertOne(ctx, member)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted member ID")
	}
	return insertedID, nil
}

// GetByProject retrieves all members of a project in a stable order
// (addedAt, then _id). Smart distribution relies on this order for the
// remainder hand-out.
func (r *mongoMemberRepository) GetByProject(ctx context.Context, projectID primitive.ObjectID) ([]domain.ProjectMember, error) {
	var members []domain.ProjectMember
	filter := bson.M{"projectId": projectID}
	findOptions := options.Find().SetSort(bson.D{{Key: "addedAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &members); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

// GetByProjectAndUser retrieves a single membership record.
func (r *mongoMemberRepository) GetByProjectAndUser(ctx context.Context, projectID, userID primitive.ObjectID) (*domain.ProjectMember, error) {
	var member domain.ProjectMember
	filter := bson.M{"projectId": projectID, "userId": userID}

	err := r.collection.FindOne(ctx, filter).Decode(&member)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &member, nil
}

// GetByUser retrieves all memberships held by a user.
func (r *mongoMemberRepository) GetByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.ProjectMember, error) {
	var members []domain.ProjectMember
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &members); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

// Delete removes a membership record.
func (r *mongoMemberRepository) Delete(ctx context.Context, projectID, userID primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"projectId": projectID, "userId": userID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureMemberIndexes creates necessary indexes for the project_members collection.
func EnsureMemberIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// One membership per user per project
			Keys:    bson.D{{Key: "projectId", Value: 1}, {Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index(),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
