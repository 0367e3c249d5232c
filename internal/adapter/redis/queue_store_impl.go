package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/queue"
)

const (
	queueKeyPrefix    = "scrape:queue:"
	defaultVisibility = 5 * time.Minute
)

// addScript stores the envelope and schedules it unless the id is already known.
// KEYS: delayed zset, envelope key. ARGV: envelope json, run-at ms, id.
var addScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[2], ARGV[1])
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[3])
return 1
`)

// claimScript first returns expired claims to the delayed set, then moves up to
// ARGV[2] due ids from delayed to active and returns id, envelope pairs.
// KEYS: delayed zset, active zset. ARGV: now ms, limit, visibility ms, envelope key prefix.
var claimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local expired = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", now)
for _, id in ipairs(expired) do
	redis.call("ZREM", KEYS[2], id)
	redis.call("ZADD", KEYS[1], now, id)
end

local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", now, "LIMIT", 0, tonumber(ARGV[2]))
local out = {}
for _, id in ipairs(ids) do
	redis.call("ZREM", KEYS[1], id)
	local env = redis.call("GET", ARGV[4] .. id)
	if env then
		redis.call("ZADD", KEYS[2], now + tonumber(ARGV[3]), id)
		table.insert(out, id)
		table.insert(out, env)
	end
end
return out
`)

// QueueStore implements queue.Store on Redis: a delayed ZSET scored by run-at,
// an active ZSET scored by claim deadline and one JSON key per envelope.
type QueueStore struct {
	client     *redis.Client
	delayedKey string
	activeKey  string
	envPrefix  string
	visibility time.Duration
	logger     *zap.Logger
}

// NewQueueStore creates a store for the named queue. Envelopes claimed longer
// than visibility ago without an ack are handed out again.
func NewQueueStore(client *redis.Client, name string, visibility time.Duration, logger *zap.Logger) *QueueStore {
	if visibility <= 0 {
		visibility = defaultVisibility
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := queueKeyPrefix + name + ":"
	return &QueueStore{
		client:     client,
		delayedKey: prefix + "delayed",
		activeKey:  prefix + "active",
		envPrefix:  prefix + "env:",
		visibility: visibility,
		logger:     logger.Named("queue_store"),
	}
}

func (s *QueueStore) envKey(id string) string {
	return s.envPrefix + id
}

func (s *QueueStore) Add(ctx context.Context, env *queue.Envelope, runAt time.Time) (bool, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return false, err
	}
	added, err := addScript.Run(ctx, s.client,
		[]string{s.delayedKey, s.envKey(env.ID)},
		data, runAt.UnixMilli(), env.ID,
	).Int()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

func (s *QueueStore) Claim(ctx context.Context, now time.Time, limit int) ([]*queue.Envelope, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := claimScript.Run(ctx, s.client,
		[]string{s.delayedKey, s.activeKey},
		now.UnixMilli(), limit, s.visibility.Milliseconds(), s.envPrefix,
	).StringSlice()
	if err != nil {
		return nil, err
	}

	envs := make([]*queue.Envelope, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		id, item := raw[i], raw[i+1]
		var env queue.Envelope
		if err := json.Unmarshal([]byte(item), &env); err != nil {
			// Already moved to the active set; drop it so it is not redelivered forever.
			s.logger.Error("Dropping undecodable envelope", zap.String("id", id), zap.Error(err))
			if rerr := s.Remove(ctx, id); rerr != nil {
				s.logger.Warn("Failed to remove undecodable envelope", zap.String("id", id), zap.Error(rerr))
			}
			continue
		}
		envs = append(envs, &env)
	}
	return envs, nil
}

func (s *QueueStore) Reschedule(ctx context.Context, env *queue.Envelope, runAt time.Time) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.envKey(env.ID), data, 0)
		pipe.ZRem(ctx, s.activeKey, env.ID)
		pipe.ZAdd(ctx, s.delayedKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: env.ID})
		return nil
	})
	return err
}

func (s *QueueStore) Remove(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.envKey(id))
		pipe.ZRem(ctx, s.activeKey, id)
		pipe.ZRem(ctx, s.delayedKey, id)
		return nil
	})
	return err
}

func (s *QueueStore) Len(ctx context.Context) (int64, error) {
	pipe := s.client.Pipeline()
	delayed := pipe.ZCard(ctx, s.delayedKey)
	active := pipe.ZCard(ctx, s.activeKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return delayed.Val() + active.Val(), nil
}

// dueAt returns when id is next due.
func (s *QueueStore) dueAt(ctx context.Context, id string) (time.Time, error) {
	score, err := s.client.ZScore(ctx, s.delayedKey, id).Result()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(score)), nil
}

var _ queue.Store = (*QueueStore)(nil)
