package share

import (
	"context"
	"mpc_match/internal/model"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestHashRepo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("claim", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(mt, NewHashRepo(mt.DB).Claim(ctx, "abc", "alice"))
	})

	mt.Run("claim taken", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: share_hashes index: _id_",
		}))
		err := NewHashRepo(mt.DB).Claim(ctx, "abc", "bob")
		require.ErrorIs(mt, err, model.ErrDuplicateShare)
	})
}
