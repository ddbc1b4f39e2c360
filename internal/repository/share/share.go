package share

import (
	"context"
	"fmt"
	"mpc_match/internal/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type (
	// HashRepo records which user registered which share content. The hash
	// is the document id, so a second claim fails on the primary key.
	HashRepo struct {
		collection *mongo.Collection
	}

	hashDoc struct {
		Hash      string    `bson:"_id"`
		UserID    string    `bson:"user_id"`
		CreatedAt time.Time `bson:"created_at"`
	}
)

func NewHashRepo(db *mongo.Database) *HashRepo {
	return &HashRepo{
		collection: db.Collection("share_hashes"),
	}
}

func (r *HashRepo) Claim(ctx context.Context, hash, userID string) error {
	_, err := r.collection.InsertOne(ctx, &hashDoc{
		Hash:      hash,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return model.ErrDuplicateShare
	}
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return nil
}

// Release drops a claim, but only if it still belongs to userID.
func (r *HashRepo) Release(ctx context.Context, hash, userID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": hash, "user_id": userID})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return nil
}
