// Package memory holds in-process implementations of the registry and share
// hash stores. They give the same atomicity guarantees as the mongo
// repositories within a single process.
package memory

import (
	"context"
	"mpc_match/internal/model"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	UserRepo struct {
		mu    sync.RWMutex
		users map[string]*model.User
	}

	MatchRepo struct {
		mu      sync.RWMutex
		matches map[[2]string]*model.Match
	}

	HashRepo struct {
		mu     sync.Mutex
		hashes map[string]string
	}
)

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]*model.User)}
}

func (r *UserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (r *UserRepo) List(_ context.Context) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*model.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, cloneUser(u))
	}
	return users, nil
}

func (r *UserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return model.ErrDuplicateID
	}
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *UserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

func (r *UserRepo) AddChecked(_ context.Context, id string, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	for _, c := range ids {
		if !u.HasChecked(c) {
			u.Checked = append(u.Checked, c)
		}
	}
	return nil
}

func (r *UserRepo) RemoveChecked(_ context.Context, id string, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	drop := make(map[string]struct{}, len(ids))
	for _, c := range ids {
		drop[c] = struct{}{}
	}
	kept := u.Checked[:0]
	for _, c := range u.Checked {
		if _, ok := drop[c]; !ok {
			kept = append(kept, c)
		}
	}
	u.Checked = kept
	return nil
}

func (r *UserRepo) Handles(_ context.Context, ids []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]string, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			handles = append(handles, u.Handle)
		}
	}
	return handles, nil
}

func NewMatchRepo() *MatchRepo {
	return &MatchRepo{matches: make(map[[2]string]*model.Match)}
}

func (r *MatchRepo) Create(_ context.Context, m *model.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	low, high := model.PairKey(m.UserA, m.UserB)
	key := [2]string{low, high}
	if _, ok := r.matches[key]; ok {
		return model.ErrDuplicatePair
	}

	m.ID = primitive.NewObjectID()
	stored := *m
	r.matches[key] = &stored
	return nil
}

func (r *MatchRepo) ListFor(_ context.Context, userID string) ([]*model.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Match
	for _, m := range r.matches {
		if m.UserA == userID || m.UserB == userID {
			c := *m
			out = append(out, &c)
		}
	}
	return out, nil
}

// All returns every recorded match.
func (r *MatchRepo) All() []*model.Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Match, 0, len(r.matches))
	for _, m := range r.matches {
		c := *m
		out = append(out, &c)
	}
	return out
}

func NewHashRepo() *HashRepo {
	return &HashRepo{hashes: make(map[string]string)}
}

func (r *HashRepo) Claim(_ context.Context, hash, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.hashes[hash]; ok {
		return model.ErrDuplicateShare
	}
	r.hashes[hash] = userID
	return nil
}

func (r *HashRepo) Release(_ context.Context, hash, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hashes[hash] == userID {
		delete(r.hashes, hash)
	}
	return nil
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Checked = append([]string(nil), u.Checked...)
	return &c
}
