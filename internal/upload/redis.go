package upload

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// submitScript stores the aggregate unless the participant already has one.
// KEYS[1] = guard key (e.g. "cogniviz:aggregates:uploaded:p-17")
// KEYS[2] = hash of aggregates by id
// ARGV[1] = aggregate id
// ARGV[2] = aggregate JSON
var submitScript = redis.NewScript(`
local existing = redis.call("GET", KEYS[1])
if existing then
    return {0, existing}
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("HSET", KEYS[2], ARGV[1], ARGV[2])
return {1, ARGV[1]}
`)

// #region redis-submitter

// RedisSubmitter stores aggregates in a Redis hash with a per-participant
// guard key.
type RedisSubmitter struct {
	client *redis.Client
	key    string
	run    func(ctx context.Context, keys []string, args ...any) (any, error)
}

// NewRedisSubmitter connects to addr. key names the aggregate hash.
func NewRedisSubmitter(addr, key string) *RedisSubmitter {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	s := &RedisSubmitter{client: rdb, key: key}
	s.run = func(ctx context.Context, keys []string, args ...any) (any, error) {
		return submitScript.Run(ctx, rdb, keys, args...).Result()
	}
	return s
}

// Ping checks the connection.
func (s *RedisSubmitter) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisSubmitter) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Submit implements Submitter.
func (s *RedisSubmitter) Submit(ctx context.Context, agg Aggregate) (Result, error) {
	body, err := json.Marshal(agg)
	if err != nil {
		return Result{}, fmt.Errorf("marshal aggregate: %w", err)
	}
	guard := s.key + ":uploaded:" + agg.GuardKey()

	res, err := s.run(ctx, []string{guard, s.key}, agg.AggregateID, string(body))
	if err != nil {
		return Result{}, fmt.Errorf("redis submit: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return Result{}, fmt.Errorf("invalid response from submit script")
	}
	stored, _ := results[0].(int64)
	id, _ := results[1].(string)
	return Result{ID: id, Duplicate: stored == 0}, nil
}

// #endregion redis-submitter
