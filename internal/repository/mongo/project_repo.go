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

const projectCollectionName = "projects"

// mongoProjectRepository implements repository.ProjectRepository
type mongoProjectRepository struct {
	collection *mongo.Collection
}

// NewMongoProjectRepository creates a new Project repository backed by MongoDB.
func NewMongoProjectRepository(db *mongo.Database) repository.ProjectRepository {
	return &mongoProjectRepository{
		collection: db.Collection(projectCollectionName),
	}
}

// Create inserts a new project into the database.
func (r *mongoProjectRepository) Create(ctx context.Context, project *domain.Project) (primitive.ObjectID, error) {
	if project.Name == "" || project.CreatedBy == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("project requires a name and a creator")
	}

	project.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now
	if project.Status == "" {
		project.Status = domain.ProjectCreated
	}
	if project.Classes == nil {
		project.Classes = []string{}
	}

	result, err := r.collection.InsertOne(ctx, project)
	if err != nil {
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted project ID")
	}
	return insertedID, nil
}

// GetByID retrieves a project by its ID.
func (r *mongoProjectRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Project, error) {
	var project domain.Project
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&project)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

// GetByIDs retrieves all projects with the given IDs, newest first.
func (r *mongoProjectRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.Project, error) {
	if len(ids) == 0 {
		return []domain.Project{}, nil
	}

	var projects []domain.Project
	filter := bson.M{"_id": bson.M{"$in": ids}}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &projects); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return projects, nil
}

// Update modifies an existing project document.
func (r *mongoProjectRepository) Update(ctx context.Context, project *domain.Project) error {
	if project.ID == primitive.NilObjectID {
		return errors.New("project ID is required for update")
	}

	update := bson.M{"$set": bson.M{
		"name":                 project.Name,
		"description":          project.Description,
		"classes":              project.Classes,
		"totalImages":          project.TotalImages,
		"annotatedImages":      project.AnnotatedImages,
		"reviewedImages":       project.ReviewedImages,
		"approvedImages":       project.ApprovedImages,
		"completionPercentage": project.CompletionPercentage,
		"status":               project.Status,
		"updatedAt":            time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": project.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateProgress rewrites the derived counters and the advisory status.
// The filter excludes completed projects so the recompute never downgrades
// an authoritative completion.
func (r *mongoProjectRepository) UpdateProgress(ctx context.Context, id primitive.ObjectID, counts repository.ProgressCounts, percentage int, status domain.ProjectStatus) error {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$nin": bson.A{domain.ProjectCompleted, domain.ProjectArchived}},
	}
	update := bson.M{"$set": bson.M{
		"totalImages":          counts.Total,
		"annotatedImages":      counts.Annotated,
		"reviewedImages":       counts.Reviewed,
		"approvedImages":       counts.Approved,
		"completionPercentage": percentage,
		"status":               status,
		"updatedAt":            time.Now().UTC(),
	}}

	_, err := r.collection.UpdateOne(ctx, filter, update)
	return err
}

// EnsureProjectIndexes creates necessary indexes for the projects collection.
func EnsureProjectIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "createdBy", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index(),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
