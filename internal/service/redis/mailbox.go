package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"mpc_match/internal/model"
	"time"
)

const mailboxPrefix = "notify:"

// Mailbox queues notifications for users who are not connected.
type Mailbox struct {
	svc *RedisService
	ttl time.Duration
}

// NewMailbox keeps undelivered notifications for ttl after the last push.
// A zero ttl keeps them until drained.
func NewMailbox(svc *RedisService, ttl time.Duration) *Mailbox {
	return &Mailbox{svc: svc, ttl: ttl}
}

func (m *Mailbox) Push(ctx context.Context, userID string, n *model.Notification) error {
	key := mailboxPrefix + userID
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := m.svc.RPush(ctx, key, string(data)); err != nil {
		return fmt.Errorf("%w: queue notification: %v", model.ErrStorage, err)
	}
	if m.ttl > 0 {
		return m.svc.Expire(ctx, key, m.ttl)
	}
	return nil
}

// Drain returns and clears every queued notification for userID.
func (m *Mailbox) Drain(ctx context.Context, userID string) ([]*model.Notification, error) {
	key := mailboxPrefix + userID
	vals, err := m.svc.LRange(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: read notifications: %v", model.ErrStorage, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	if err := m.svc.Del(ctx, key); err != nil {
		return nil, fmt.Errorf("%w: clear notifications: %v", model.ErrStorage, err)
	}

	res := make([]*model.Notification, 0, len(vals))
	for _, v := range vals {
		var n model.Notification
		if err := json.Unmarshal([]byte(v), &n); err != nil {
			return nil, err
		}
		res = append(res, &n)
	}
	return res, nil
}
