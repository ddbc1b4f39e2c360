package user

import (
	"context"
	"fmt"
	"mpc_match/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type (
	UserRepo struct {
		collection *mongo.Collection
	}
)

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{
		collection: db.Collection("users"),
	}
}

func (r *UserRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "handle", Value: 1}},
	})
	return err
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	filter := bson.M{
		"_id": id,
	}

	var user model.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}

	return &user, nil
}

func (r *UserRepo) List(ctx context.Context) ([]*model.User, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}

	var users []*model.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}

	return users, nil
}

func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.collection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return model.ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return nil
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return nil
}

// AddChecked unions ids into the user's checked set in a single atomic
// update, so concurrent writers never overwrite each other.
func (r *UserRepo) AddChecked(ctx context.Context, id string, ids []string) error {
	update := bson.M{
		"$addToSet": bson.M{
			"checked": bson.M{"$each": ids},
		},
	}
	return r.updateChecked(ctx, id, update)
}

func (r *UserRepo) RemoveChecked(ctx context.Context, id string, ids []string) error {
	update := bson.M{
		"$pullAll": bson.M{
			"checked": ids,
		},
	}
	return r.updateChecked(ctx, id, update)
}

func (r *UserRepo) updateChecked(ctx context.Context, id string, update bson.M) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	if res.MatchedCount == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

// Handles resolves ids to display handles. Unknown ids are skipped.
func (r *UserRepo) Handles(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}

	opts := options.Find().SetProjection(bson.M{"handle": 1})
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}

	var rows []struct {
		Handle string `bson:"handle"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}

	handles := make([]string, 0, len(rows))
	for _, row := range rows {
		handles = append(handles, row.Handle)
	}
	return handles, nil
}
