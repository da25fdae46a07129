package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/truth-engine/internal/models"
)

// ErrNotFound is returned when an archived report does not exist.
var ErrNotFound = errors.New("not found")

// MongoStore archives generated reports in MongoDB.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection("reports")}
}

// EnsureIndexes creates the indexes used by ListRecent and niche lookups.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "niche", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, doc *models.ReportDocument) (string, error) {
	doc.CreatedAt = time.Now()
	res, err := s.col.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("mongo insert: %w", err)
	}
	oid := res.InsertedID.(primitive.ObjectID)
	doc.ID = oid
	return oid.Hex(), nil
}

// ListRecent returns the newest archived reports first.
func (s *MongoStore) ListRecent(ctx context.Context, limit int) ([]models.ReportDocument, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []models.ReportDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *MongoStore) GetByID(ctx context.Context, id string) (*models.ReportDocument, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid id: %w", ErrNotFound)
	}
	var doc models.ReportDocument
	if err := s.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// SetExportKey records where the report's JSON export was uploaded.
func (s *MongoStore) SetExportKey(ctx context.Context, id, key string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid id: %w", ErrNotFound)
	}
	_, err = s.col.UpdateByID(ctx, oid, bson.M{"$set": bson.M{"export_key": key}})
	return err
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid id: %w", ErrNotFound)
	}
	_, err = s.col.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}
