package mongodb

import (
	"context"

	"github.com/grana-app/grana_backend/internal/apperrors"
	portsrepo "github.com/grana-app/grana_backend/internal/core/ports/repositories"
	"github.com/grana-app/grana_backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const monthlySummaryCollection = "monthly_summaries"

type MongoMonthlySummaryRepository struct {
	db *mongo.Database
}

func NewMongoMonthlySummaryRepository(db *mongo.Database) portsrepo.MonthlySummaryRepository {
	return &MongoMonthlySummaryRepository{db: db}
}

var _ portsrepo.MonthlySummaryRepository = (*MongoMonthlySummaryRepository)(nil)

// UpsertSummary replaces the month aggregate unless the stored copy already
// carries an equal or newer version, mirroring the entity read-model guard.
func (r *MongoMonthlySummaryRepository) UpsertSummary(ctx context.Context, doc models.MonthlySummaryDocument) error {
	filter := bson.M{
		"userId":  doc.UserID,
		"year":    doc.Year,
		"month":   doc.Month,
		"version": bson.M{"$lt": doc.Version},
	}
	_, err := r.db.Collection(monthlySummaryCollection).
		ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrStaleVersion
		}
		return apperrors.NewAppError(500, "failed to upsert monthly summary for user "+doc.UserID, err)
	}
	return nil
}

// FindSummary retrieves one month aggregate.
func (r *MongoMonthlySummaryRepository) FindSummary(ctx context.Context, userID string, year, month int) (*models.MonthlySummaryDocument, error) {
	filter := bson.M{"userId": userID, "year": year, "month": month}
	var doc models.MonthlySummaryDocument
	if err := r.db.Collection(monthlySummaryCollection).FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find monthly summary for user "+userID, err)
	}
	return &doc, nil
}
