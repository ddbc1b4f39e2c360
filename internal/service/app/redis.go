package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionTTL = 24 * time.Hour

func sessionKey(handle string) string {
	return "client:" + handle
}

// SaveSession remembers the token of a registered handle so that a later
// "login" can pick it up.
func (c *App) SaveSession(ctx context.Context, s *Session) error {
	if c.redisService == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.redisService.Set(ctx, sessionKey(s.Handle), data, sessionTTL)
}

// LoadSession returns (nil, nil) when nothing is cached for handle.
func (c *App) LoadSession(ctx context.Context, handle string) (*Session, error) {
	if c.redisService == nil {
		return nil, nil
	}
	v, err := c.redisService.Get(ctx, sessionKey(handle))
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal([]byte(v), &s); err != nil {
		return nil, err
	}
	return &s, nil
}
