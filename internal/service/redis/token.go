package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"mpc_match/internal/model"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenPrefix = "session:"

var ErrInvalidToken = errors.New("invalid or expired token")

// TokenStore maps opaque bearer tokens to user ids.
type TokenStore struct {
	svc      *RedisService
	ttl      time.Duration
	generate func() (string, error)
}

func NewTokenStore(svc *RedisService, ttl time.Duration) *TokenStore {
	return &TokenStore{svc: svc, ttl: ttl, generate: randomToken}
}

func (t *TokenStore) Issue(ctx context.Context, userID string) (string, error) {
	token, err := t.generate()
	if err != nil {
		return "", err
	}
	if err := t.svc.Set(ctx, tokenPrefix+token, userID, t.ttl); err != nil {
		return "", fmt.Errorf("%w: store token: %v", model.ErrStorage, err)
	}
	return token, nil
}

func (t *TokenStore) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	userID, err := t.svc.Get(ctx, tokenPrefix+token)
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("%w: resolve token: %v", model.ErrStorage, err)
	}
	return userID, nil
}

func (t *TokenStore) Revoke(ctx context.Context, token string) error {
	return t.svc.Del(ctx, tokenPrefix+token)
}

func randomToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
