package store

import (
	"fmt"
	"time"

	"github.com/artishok-center/artclub-bot/types"
)

// RedisDialogStore persists per-user conversation state: which multi-step
// flow the user is in, and a discount code applied but not yet spent at
// checkout. Rows expire with the TTL so abandoned flows clean themselves up.
type RedisDialogStore struct {
	client *RedisClient
	ttl    time.Duration
}

func NewRedisDialogStore(redisClient *RedisClient, ttlHours int) *RedisDialogStore {
	ttl := time.Duration(ttlHours) * time.Hour
	if ttlHours <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisDialogStore{
		client: redisClient,
		ttl:    ttl,
	}
}

func (s *RedisDialogStore) GetDialog(userID int64) (*types.Dialog, error) {
	key := s.client.generateKey("dialog", fmt.Sprintf("%d", userID))
	var dialog types.Dialog
	if err := s.client.Get(key, &dialog); err != nil {
		return &types.Dialog{UserID: userID, State: types.DialogNone}, nil
	}
	return &dialog, nil
}

func (s *RedisDialogStore) SetDialog(dialog *types.Dialog) error {
	if dialog == nil {
		return nil
	}
	dialog.UpdatedAt = time.Now().UTC()
	key := s.client.generateKey("dialog", fmt.Sprintf("%d", dialog.UserID))
	return s.client.Set(key, dialog, s.ttl)
}

func (s *RedisDialogStore) ClearDialog(userID int64) error {
	key := s.client.generateKey("dialog", fmt.Sprintf("%d", userID))
	return s.client.Del(key)
}
