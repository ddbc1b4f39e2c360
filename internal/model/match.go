package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	// Match is an unordered pair of users. Low and High hold the pair in
	// lexical order and form the uniqueness key.
	Match struct {
		ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
		UserA     string             `bson:"user_a" json:"user_a"`
		UserB     string             `bson:"user_b" json:"user_b"`
		Low       string             `bson:"low" json:"-"`
		High      string             `bson:"high" json:"-"`
		CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	}
)

func NewMatch(userA, userB string) *Match {
	low, high := PairKey(userA, userB)
	return &Match{
		UserA:     userA,
		UserB:     userB,
		Low:       low,
		High:      high,
		CreatedAt: time.Now().UTC(),
	}
}

// PairKey orders two ids so that (a, b) and (b, a) map to the same key.
func PairKey(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// Other returns the member of the pair that is not userID.
func (m *Match) Other(userID string) string {
	if m.UserA == userID {
		return m.UserB
	}
	return m.UserA
}
