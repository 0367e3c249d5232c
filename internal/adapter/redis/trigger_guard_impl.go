package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/utils"
)

const triggerKeyPrefix = "scrape:trigger:"

// TriggerGuardImpl debounces background refresh triggers with SET NX keys.
type TriggerGuardImpl struct {
	client *redis.Client
}

// NewTriggerGuard creates a new instance of TriggerGuardImpl.
func NewTriggerGuard(client *redis.Client) *TriggerGuardImpl {
	return &TriggerGuardImpl{client: client}
}

// generateKey hashes the trigger key so arbitrary URLs make safe Redis keys.
func (g *TriggerGuardImpl) generateKey(key string) string {
	return fmt.Sprintf("%s%s", triggerKeyPrefix, utils.HashURL(key))
}

// Acquire sets the key with an expiry of window. SET NX is atomic, so only one
// of several concurrent callers wins.
func (g *TriggerGuardImpl) Acquire(ctx context.Context, key string, window time.Duration) (bool, error) {
	return g.client.SetNX(ctx, g.generateKey(key), "1", window).Result()
}

func (g *TriggerGuardImpl) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, g.generateKey(key)).Err()
}

var _ repository.TriggerGuard = (*TriggerGuardImpl)(nil)
