package match

import (
	"context"
	"fmt"
	"mpc_match/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type (
	MatchRepo struct {
		collection *mongo.Collection
	}
)

func NewMatchRepo(db *mongo.Database) *MatchRepo {
	return &MatchRepo{
		collection: db.Collection("matches"),
	}
}

// EnsureIndexes creates the unique index on the normalized pair. It is what
// rejects (A, B) after (B, A) even under concurrent inserts.
func (r *MatchRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "low", Value: 1}, {Key: "high", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("pair_unique"),
		},
		{Keys: bson.D{{Key: "user_a", Value: 1}}},
		{Keys: bson.D{{Key: "user_b", Value: 1}}},
	})
	return err
}

func (r *MatchRepo) Create(ctx context.Context, m *model.Match) error {
	res, err := r.collection.InsertOne(ctx, m)
	if mongo.IsDuplicateKeyError(err) {
		return model.ErrDuplicatePair
	}
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}

	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		m.ID = id
	}
	return nil
}

func (r *MatchRepo) ListFor(ctx context.Context, userID string) ([]*model.Match, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"user_a": userID},
			bson.M{"user_b": userID},
		},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}

	var matches []*model.Match
	if err := cursor.All(ctx, &matches); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return matches, nil
}
