package model

import "time"

type (
	User struct {
		ID        string    `bson:"_id" json:"id"`
		Handle    string    `bson:"handle" json:"handle"`
		Checked   []string  `bson:"checked" json:"checked"`
		ShareHash string    `bson:"share_hash" json:"-"`
		CreatedAt time.Time `bson:"created_at" json:"created_at"`
	}
)

// NewUser returns a user whose checked set is seeded with its own id, so it
// can never be selected as its own candidate.
func NewUser(id, handle, shareHash string) *User {
	return &User{
		ID:        id,
		Handle:    handle,
		Checked:   []string{id},
		ShareHash: shareHash,
		CreatedAt: time.Now().UTC(),
	}
}

func (u *User) HasChecked(id string) bool {
	for _, c := range u.Checked {
		if c == id {
			return true
		}
	}
	return false
}

func (u *User) CheckedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(u.Checked))
	for _, c := range u.Checked {
		set[c] = struct{}{}
	}
	return set
}
