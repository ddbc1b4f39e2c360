package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

// Error classes. Every specific error below wraps exactly one of them.
var (
	ErrValidation = errors.New("validation error")
	ErrDuplicate  = errors.New("duplicate")
	ErrNotFound   = errors.New("not found")
	ErrNetwork    = errors.New("network error")
	ErrProtocol   = errors.New("protocol error")
	ErrStorage    = errors.New("storage error")
)

var (
	ErrInvalidHandle     = fmt.Errorf("%w: invalid handle", ErrValidation)
	ErrInvalidShareSize  = fmt.Errorf("%w: invalid share size", ErrValidation)
	ErrInvalidShareCount = fmt.Errorf("%w: invalid number of shares", ErrValidation)

	ErrDuplicateShare = fmt.Errorf("%w: share content already registered", ErrDuplicate)
	ErrDuplicateID    = fmt.Errorf("%w: user id already exists", ErrDuplicate)
	ErrDuplicatePair  = fmt.Errorf("%w: match already recorded", ErrDuplicate)

	ErrUserNotFound  = fmt.Errorf("%w: user", ErrNotFound)
	ErrShareNotFound = fmt.Errorf("%w: share", ErrNotFound)
	ErrCorruptShare  = fmt.Errorf("%w: corrupt share", ErrStorage)

	ErrHandshakeTimeout = fmt.Errorf("%w: handshake timed out", ErrNetwork)
	ErrNotVerified      = fmt.Errorf("%w: proof verification failed", ErrProtocol)
)

// PartialFailureError reports the ids a batch update could not apply.
type PartialFailureError struct {
	Failed map[string]error
}

func (e *PartialFailureError) Error() string {
	ids := e.IDs()
	return fmt.Sprintf("update failed for %d id(s) [%s]: %v", len(ids), strings.Join(ids, ", "), e.Unwrap())
}

// Unwrap returns the combined causes so errors.Is sees through to them.
func (e *PartialFailureError) Unwrap() error {
	var err error
	for _, id := range e.IDs() {
		err = multierr.Append(err, e.Failed[id])
	}
	return err
}

func (e *PartialFailureError) IDs() []string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
