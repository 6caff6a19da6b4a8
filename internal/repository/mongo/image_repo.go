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

const imageCollectionName = "project_images"

// mongoImageRepository implements repository.ImageRepository
type mongoImageRepository struct {
	collection *mongo.Collection
}

// NewMongoImageRepository creates a new ProjectImage repository backed by MongoDB.
func NewMongoImageRepository(db *mongo.Database) repository.ImageRepository {
	return &mongoImageRepository{
		collection: db.Collection(imageCollectionName),
	}
}

// Create inserts a new image document in the uploaded state.
func (r *mongoImageRepository) Create(ctx context.Context, image *domain.ProjectImage) (primitive.ObjectID, error) {
	if image.ProjectID == primitive.NilObjectID || image.FileName == "" {
		return primitive.NilObjectID, errors.New("image requires projectId and fileName")
	}

	image.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	image.UploadedAt = now
	image.UpdatedAt = now
	if image.Status == "" {
		image.Status = domain.ImageUploaded
	}
	if image.AnnotationStatus == "" {
		image.AnnotationStatus = domain.AnnotationUnannotated
	}
	if image.ReviewStatus == "" {
		image.ReviewStatus = domain.ReviewNotReviewed
	}

	result, err := r.collection.InsertOne(ctx, image)
	if err != nil {
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted image ID")
	}
	return insertedID, nil
}

// GetByID retrieves an image by its ID.
func (r *mongoImageRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ProjectImage, error) {
	var image domain.ProjectImage
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&image)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &image, nil
}

// GetByIDs retrieves the images with the given IDs.
func (r *mongoImageRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.ProjectImage, error) {
	if len(ids) == 0 {
		return []domain.ProjectImage{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, defaultImageSort())
}

// GetByProject retrieves all images of a project in upload order.
func (r *mongoImageRepository) GetByProject(ctx context.Context, projectID primitive.ObjectID) ([]domain.ProjectImage, error) {
	return r.find(ctx, bson.M{"projectId": projectID}, defaultImageSort())
}

// GetAssignable returns the distribution pool: unassigned images, plus
// assigned-but-not-annotation-completed images when redistributing. The
// (uploadedAt, _id) sort makes pool slicing deterministic for a given
// snapshot.
func (r *mongoImageRepository) GetAssignable(ctx context.Context, projectID primitive.ObjectID, includeRedistributable bool) ([]domain.ProjectImage, error) {
	clauses := bson.A{
		bson.M{"assignedTo": bson.M{"$exists": false}},
		bson.M{"assignedTo": nil},
	}
	if includeRedistributable {
		clauses = append(clauses, bson.M{
			"assignedTo":       bson.M{"$ne": nil},
			"annotationStatus": bson.M{"$ne": domain.AnnotationCompleted},
		})
	}

	filter := bson.M{"projectId": projectID, "$or": clauses}
	return r.find(ctx, filter, defaultImageSort())
}

// GetByAssignee retrieves all images currently owned by a user in a project.
func (r *mongoImageRepository) GetByAssignee(ctx context.Context, projectID, userID primitive.ObjectID) ([]domain.ProjectImage, error) {
	return r.find(ctx, bson.M{"projectId": projectID, "assignedTo": userID}, defaultImageSort())
}

// Update modifies a single image document.
func (r *mongoImageRepository) Update(ctx context.Context, image *domain.ProjectImage) error {
	if image.ID == primitive.NilObjectID {
		return errors.New("image ID is required for update")
	}

	updateFields := bson.M{
		"status":           image.Status,
		"annotationStatus": image.AnnotationStatus,
		"reviewStatus":     image.ReviewStatus,
		"updatedAt":        time.Now().UTC(),
	}
	if image.AssignedTo != nil {
		updateFields["assignedTo"] = *image.AssignedTo
	}
	if image.AnnotatedBy != nil {
		updateFields["annotatedBy"] = *image.AnnotatedBy
	}
	if image.ReviewedBy != nil {
		updateFields["reviewedBy"] = *image.ReviewedBy
	}
	if image.ReviewedAt != nil {
		updateFields["reviewedAt"] = *image.ReviewedAt
	}
	if image.CurrentSubmissionID != nil {
		updateFields["currentSubmissionId"] = *image.CurrentSubmissionID
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": image.ID}, bson.M{"$set": updateFields})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Assign claims an image for a user with a conditional write. The filter
// only matches when the image is unassigned, or still owned by fromUser
// when reclaiming during redistribution, so a concurrent claim loses with
// ErrUpdateFailed rather than overwriting.
func (r *mongoImageRepository) Assign(ctx context.Context, imageID, userID primitive.ObjectID, fromUser *primitive.ObjectID) error {
	owner := bson.A{
		bson.M{"assignedTo": bson.M{"$exists": false}},
		bson.M{"assignedTo": nil},
	}
	if fromUser != nil {
		owner = append(owner, bson.M{"assignedTo": *fromUser})
	}
	filter := bson.M{"_id": imageID, "$or": owner}

	update := bson.M{"$set": bson.M{
		"assignedTo": userID,
		"status":     domain.ImageAssigned,
		"updatedAt":  time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrUpdateFailed
	}
	return nil
}

// Unassign releases an image back to the pool. Annotation attribution
// (annotatedBy) is deliberately not cleared.
func (r *mongoImageRepository) Unassign(ctx context.Context, imageID primitive.ObjectID) error {
	update := bson.M{
		"$unset": bson.M{"assignedTo": ""},
		"$set": bson.M{
			"status":    domain.ImageUploaded,
			"updatedAt": time.Now().UTC(),
		},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": imageID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkUnderReview moves submitted images into the review state and points
// them at their submission.
func (r *mongoImageRepository) MarkUnderReview(ctx context.Context, imageIDs []primitive.ObjectID, submissionID primitive.ObjectID) error {
	if len(imageIDs) == 0 {
		return nil
	}
	update := bson.M{"$set": bson.M{
		"status":              domain.ImageUnderReview,
		"reviewStatus":        domain.ReviewUnderReview,
		"currentSubmissionId": submissionID,
		"updatedAt":           time.Now().UTC(),
	}}
	_, err := r.collection.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": imageIDs}}, update)
	return err
}

// MarkApproved stamps approval on the given images.
func (r *mongoImageRepository) MarkApproved(ctx context.Context, imageIDs []primitive.ObjectID, reviewerID primitive.ObjectID, reviewedAt time.Time) error {
	if len(imageIDs) == 0 {
		return nil
	}
	update := bson.M{"$set": bson.M{
		"status":       domain.ImageApproved,
		"reviewStatus": domain.ReviewApproved,
		"reviewedBy":   reviewerID,
		"reviewedAt":   reviewedAt,
		"updatedAt":    time.Now().UTC(),
	}}
	_, err := r.collection.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": imageIDs}}, update)
	return err
}

// MarkFlagged records a reviewer flag on the given images.
func (r *mongoImageRepository) MarkFlagged(ctx context.Context, imageIDs []primitive.ObjectID, reviewerID primitive.ObjectID, reviewedAt time.Time) error {
	if len(imageIDs) == 0 {
		return nil
	}
	update := bson.M{"$set": bson.M{
		"status":       domain.ImageReviewed,
		"reviewStatus": domain.ReviewFlagged,
		"reviewedBy":   reviewerID,
		"reviewedAt":   reviewedAt,
		"updatedAt":    time.Now().UTC(),
	}}
	_, err := r.collection.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": imageIDs}}, update)
	return err
}

// MarkReturned sends non-flagged images of a rejected submission back to
// the annotator. Review state stays as it was.
func (r *mongoImageRepository) MarkReturned(ctx context.Context, imageIDs []primitive.ObjectID) error {
	if len(imageIDs) == 0 {
		return nil
	}
	update := bson.M{"$set": bson.M{
		"status":    domain.ImageAnnotated,
		"updatedAt": time.Now().UTC(),
	}}
	_, err := r.collection.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": imageIDs}}, update)
	return err
}

// CountProgress computes the counter inputs for the project progress
// recompute with one aggregation pass over the project's images.
func (r *mongoImageRepository) CountProgress(ctx context.Context, projectID primitive.ObjectID) (repository.ProgressCounts, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"projectId": projectID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": 1},
			"annotated": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$annotationStatus", domain.AnnotationCompleted}}, 1, 0,
			}}},
			"reviewed": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$in": bson.A{"$reviewStatus", bson.A{domain.ReviewApproved, domain.ReviewFlagged}}}, 1, 0,
			}}},
			"approved": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$reviewStatus", domain.ReviewApproved}}, 1, 0,
			}}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return repository.ProgressCounts{}, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Total     int `bson:"total"`
		Annotated int `bson:"annotated"`
		Reviewed  int `bson:"reviewed"`
		Approved  int `bson:"approved"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return repository.ProgressCounts{}, err
	}
	if len(rows) == 0 {
		// Project with no images yet
		return repository.ProgressCounts{}, nil
	}
	return repository.ProgressCounts{
		Total:     rows[0].Total,
		Annotated: rows[0].Annotated,
		Reviewed:  rows[0].Reviewed,
		Approved:  rows[0].Approved,
	}, nil
}

func (r *mongoImageRepository) find(ctx context.Context, filter bson.M, sort bson.D) ([]domain.ProjectImage, error) {
	var images []domain.ProjectImage
	findOptions := options.Find().SetSort(sort)

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &images); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return images, nil
}

func defaultImageSort() bson.D {
	return bson.D{{Key: "uploadedAt", Value: 1}, {Key: "_id", Value: 1}}
}

// EnsureImageIndexes creates necessary indexes for the project_images collection.
func EnsureImageIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// Pool queries and per-project listings
			Keys:    bson.D{{Key: "projectId", Value: 1}, {Key: "uploadedAt", Value: 1}},
			Options: options.Index(),
		},
		{
			// Reclaim on member removal
			Keys:    bson.D{{Key: "projectId", Value: 1}, {Key: "assignedTo", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "projectId", Value: 1}, {Key: "reviewStatus", Value: 1}},
			Options: options.Index(),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
