package mongodb

import (
	"context"
	"fmt"

	"github.com/grana-app/grana_backend/internal/apperrors"
	portsrepo "github.com/grana-app/grana_backend/internal/core/ports/repositories"
	"github.com/grana-app/grana_backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// collectionForEntityType maps sync entity types to their read-model
// collections. Unknown types are rejected so a misrouted message cannot
// create a stray collection.
var collectionForEntityType = map[string]string{
	"transaction": "transactions_read",
	"budget":      "budgets_read",
	"user":        "users_read",
	"account":     "accounts_read",
}

type MongoReadModelRepository struct {
	db *mongo.Database
}

func NewMongoReadModelRepository(db *mongo.Database) portsrepo.ReadModelRepository {
	return &MongoReadModelRepository{db: db}
}

var _ portsrepo.ReadModelRepository = (*MongoReadModelRepository)(nil)

// UpsertEntity replaces the stored document unless it already holds an equal
// or newer version. The filter only matches a document with a lower version,
// so a redelivered or out-of-order message either inserts nothing (duplicate
// key on the upsert) or replaces an older copy. Duplicate key here means the
// stored copy is at least as new, which is reported as ErrStaleVersion.
func (r *MongoReadModelRepository) UpsertEntity(ctx context.Context, doc models.EntityDocument) error {
	coll, err := r.collection(doc.EntityType)
	if err != nil {
		return err
	}

	filter := bson.M{
		"_id":     doc.EntityID,
		"version": bson.M{"$lt": doc.Version},
	}
	_, err = coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrStaleVersion
		}
		return apperrors.NewAppError(500, "failed to upsert read model for "+doc.EntityType+" "+doc.EntityID, err)
	}
	return nil
}

// DeleteEntity removes the document. Deleting an absent document is a no-op
// so delete redeliveries converge.
func (r *MongoReadModelRepository) DeleteEntity(ctx context.Context, entityType, entityID string) error {
	coll, err := r.collection(entityType)
	if err != nil {
		return err
	}
	if _, err := coll.DeleteOne(ctx, bson.M{"_id": entityID}); err != nil {
		return apperrors.NewAppError(500, "failed to delete read model for "+entityType+" "+entityID, err)
	}
	return nil
}

// FindEntity retrieves one read-model document.
func (r *MongoReadModelRepository) FindEntity(ctx context.Context, entityType, entityID string) (*models.EntityDocument, error) {
	coll, err := r.collection(entityType)
	if err != nil {
		return nil, err
	}
	var doc models.EntityDocument
	if err := coll.FindOne(ctx, bson.M{"_id": entityID}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find read model for "+entityType+" "+entityID, err)
	}
	return &doc, nil
}

func (r *MongoReadModelRepository) collection(entityType string) (*mongo.Collection, error) {
	name, ok := collectionForEntityType[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown read model entity type %q", apperrors.ErrValidation, entityType)
	}
	return r.db.Collection(name), nil
}
