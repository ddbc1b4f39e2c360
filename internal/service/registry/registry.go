package registry

import (
	"context"
	"errors"
	"fmt"
	"mpc_match/internal/model"
	"sync"
	"unicode/utf8"
)

type (
	UserStore interface {
		// GetByID returns (nil, nil) for an unknown id.
		GetByID(ctx context.Context, id string) (*model.User, error)
		List(ctx context.Context) ([]*model.User, error)
		Create(ctx context.Context, user *model.User) error
		Delete(ctx context.Context, id string) error
		AddChecked(ctx context.Context, id string, ids []string) error
		RemoveChecked(ctx context.Context, id string, ids []string) error
		Handles(ctx context.Context, ids []string) ([]string, error)
	}

	MatchStore interface {
		Create(ctx context.Context, m *model.Match) error
		ListFor(ctx context.Context, userID string) ([]*model.Match, error)
	}

	// Registry is the authoritative record of users, their checked sets and
	// recorded matches.
	Registry struct {
		users     UserStore
		matches   MatchStore
		maxHandle int

		locksMu sync.Mutex
		locks   map[string]*userLock
	}

	userLock struct {
		mu   sync.Mutex
		refs int
	}
)

func NewRegistry(users UserStore, matches MatchStore, maxHandleLength int) *Registry {
	return &Registry{
		users:     users,
		matches:   matches,
		maxHandle: maxHandleLength,
		locks:     make(map[string]*userLock),
	}
}

func (r *Registry) ValidateHandle(handle string) error {
	n := utf8.RuneCountInString(handle)
	if n == 0 || n > r.maxHandle {
		return fmt.Errorf("%w: length must be between 1 and %d", model.ErrInvalidHandle, r.maxHandle)
	}
	return nil
}

func (r *Registry) CreateUser(ctx context.Context, id, handle, shareHash string) (*model.User, error) {
	if err := r.ValidateHandle(handle); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: empty user id", model.ErrValidation)
	}

	user := model.NewUser(id, handle, shareHash)
	if err := r.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes a user row. It exists to roll back a registration
// whose later steps failed.
func (r *Registry) DeleteUser(ctx context.Context, id string) error {
	return r.users.Delete(ctx, id)
}

func (r *Registry) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := r.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.ErrUserNotFound
	}
	return user, nil
}

func (r *Registry) ListUsers(ctx context.Context) ([]*model.User, error) {
	return r.users.List(ctx)
}

// MarkChecked unions newlyChecked into the user's checked set. Repeating a
// call is a no-op.
func (r *Registry) MarkChecked(ctx context.Context, id string, newlyChecked []string) error {
	if len(newlyChecked) == 0 {
		_, err := r.GetUser(ctx, id)
		return err
	}
	return r.users.AddChecked(ctx, id, newlyChecked)
}

// MarkCheckedMany applies MarkChecked to every id. All ids are attempted; the
// ones that failed are reported in a *model.PartialFailureError.
func (r *Registry) MarkCheckedMany(ctx context.Context, ids []string, newlyChecked []string) error {
	failed := make(map[string]error)
	for _, id := range ids {
		if err := r.MarkChecked(ctx, id, newlyChecked); err != nil {
			failed[id] = err
		}
	}
	if len(failed) > 0 {
		return &model.PartialFailureError{Failed: failed}
	}
	return nil
}

// UnmarkChecked removes ids from the user's checked set. The user's own id is
// never removed.
func (r *Registry) UnmarkChecked(ctx context.Context, id string, ids []string) error {
	drop := make([]string, 0, len(ids))
	for _, c := range ids {
		if c != id {
			drop = append(drop, c)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	return r.users.RemoveChecked(ctx, id, drop)
}

// RecordMatch stores the unordered pair. Recording a pair that already
// exists in either order returns model.ErrDuplicatePair.
func (r *Registry) RecordMatch(ctx context.Context, userA, userB string) (*model.Match, error) {
	if userA == userB {
		return nil, fmt.Errorf("%w: cannot match a user with itself", model.ErrValidation)
	}
	m := model.NewMatch(userA, userB)
	if err := r.matches.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// MatchesFor returns the handles of every user matched with userID.
func (r *Registry) MatchesFor(ctx context.Context, userID string) ([]string, error) {
	matches, err := r.matches.ListFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		other := m.Other(userID)
		if _, ok := seen[other]; ok {
			continue
		}
		seen[other] = struct{}{}
		ids = append(ids, other)
	}

	return r.users.Handles(ctx, ids)
}

// Lock serializes candidate selection for one user inside this process. The
// returned func releases it.
func (r *Registry) Lock(userID string) func() {
	r.locksMu.Lock()
	l, ok := r.locks[userID]
	if !ok {
		l = &userLock{}
		r.locks[userID] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, userID)
		}
		r.locksMu.Unlock()
	}
}

// IsDuplicate reports whether err is any duplicate-class error.
func IsDuplicate(err error) bool {
	return errors.Is(err, model.ErrDuplicate)
}
