package match

import (
	"context"
	"mpc_match/internal/model"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMatchRepo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("create", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		repo := NewMatchRepo(mt.DB)

		m := model.NewMatch("b", "a")
		require.NoError(mt, repo.Create(ctx, m))
		require.False(mt, m.ID.IsZero())
		require.Equal(mt, "a", m.Low)
		require.Equal(mt, "b", m.High)
	})

	mt.Run("create duplicate pair", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: matches index: pair_unique",
		}))
		repo := NewMatchRepo(mt.DB)

		err := repo.Create(ctx, model.NewMatch("a", "b"))
		require.ErrorIs(mt, err, model.ErrDuplicatePair)
	})

	mt.Run("list for user", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "mpc_match.matches", mtest.FirstBatch,
			bson.D{{Key: "user_a", Value: "a"}, {Key: "user_b", Value: "b"}, {Key: "low", Value: "a"}, {Key: "high", Value: "b"}},
			bson.D{{Key: "user_a", Value: "c"}, {Key: "user_b", Value: "a"}, {Key: "low", Value: "a"}, {Key: "high", Value: "c"}},
		))
		repo := NewMatchRepo(mt.DB)

		matches, err := repo.ListFor(ctx, "a")
		require.NoError(mt, err)
		require.Len(mt, matches, 2)
		require.Equal(mt, "b", matches[0].Other("a"))
		require.Equal(mt, "c", matches[1].Other("a"))
	})
}
